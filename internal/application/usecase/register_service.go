package usecase

import (
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// RegisterServiceUseCase обрабатывает регистрации memory- и capture-агентов
type RegisterServiceUseCase struct {
	store    repository.StateRepository
	notifier port.EventNotifier
	logger   *logger.Logger
}

// NewRegisterServiceUseCase создает новый use case
func NewRegisterServiceUseCase(
	store repository.StateRepository,
	notifier port.EventNotifier,
	logger *logger.Logger,
) *RegisterServiceUseCase {
	return &RegisterServiceUseCase{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Execute регистрирует сервис от имени соединения connID.
// Повторная регистрация вытесняет предыдущее producer-соединение.
func (uc *RegisterServiceUseCase) Execute(msg dto.RegistrationMessage, connID string) entity.Service {
	svc := uc.store.RegisterService(msg.Service, agentTime(msg.Timestamp), connID)

	uc.notifier.Publish(dto.NewServiceRegisteredEvent(svc))
	uc.logger.Info("Service registered", "service", svc.Name, "conn", connID)

	return svc
}

// ExecuteCaptureAgent регистрирует capture-агента под псевдо-сервисом capture-<name>
func (uc *RegisterServiceUseCase) ExecuteCaptureAgent(msg dto.CaptureAgentRegistrationMessage, connID string) entity.Service {
	svc := uc.store.RegisterService("capture-"+msg.ServiceName, agentTime(msg.Timestamp), connID)

	uc.notifier.Publish(dto.NewCaptureAgentRegisteredEvent(msg.ServiceName, msg.ContainerID, msg.Timestamp))
	uc.logger.Info("Capture agent registered",
		"service", msg.ServiceName,
		"container", msg.ContainerID,
	)

	return svc
}

// agentTime конвертирует миллисекунды epoch от агента; нулевая отметка
// заменяется временем сервера
func agentTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
