package liveness

import (
	"context"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// Monitor — периодический sweep, переводящий молчащие сервисы в disconnected.
// Работает независимо от закрытия сокетов: открытое, но молчащее соединение
// тоже попадает под дедлайн неактивности.
type Monitor struct {
	store    repository.StateRepository
	notifier port.EventNotifier
	period   time.Duration
	timeout  time.Duration
	logger   *logger.Logger
}

// NewMonitor создает монитор с периодом period и дедлайном timeout
func NewMonitor(
	store repository.StateRepository,
	notifier port.EventNotifier,
	period, timeout time.Duration,
	logger *logger.Logger,
) *Monitor {
	return &Monitor{
		store:    store,
		notifier: notifier,
		period:   period,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run запускает sweep-цикл (должен быть запущен в отдельной goroutine)
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	m.logger.Info("Liveness monitor started",
		"period", m.period.String(),
		"timeout", m.timeout.String(),
	)

	for {
		select {
		case <-ticker.C:
			m.Sweep(time.Now())
		case <-ctx.Done():
			m.logger.Info("Liveness monitor stopped")
			return
		}
	}
}

// Sweep выполняет один проход и публикует переходы статусов
func (m *Monitor) Sweep(now time.Time) []entity.Service {
	affected := m.store.SweepInactive(now, m.timeout)
	for _, svc := range affected {
		m.notifier.Publish(dto.NewServiceUpdateEvent(svc, now))
		m.logger.Warn("Service timed out",
			"service", svc.Name,
			"last_seen", svc.LastSeen.Format(time.RFC3339),
		)
	}
	return affected
}
