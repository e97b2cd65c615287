package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// SnapshotNoticeUseCase обрабатывает legacy-уведомления о готовом файле
// снапшота: только алерт, без приема данных
type SnapshotNoticeUseCase struct {
	store    repository.StateRepository
	notifier port.EventNotifier
	archive  port.MetricArchive // может быть nil
	logger   *logger.Logger
}

// NewSnapshotNoticeUseCase создает новый use case
func NewSnapshotNoticeUseCase(
	store repository.StateRepository,
	notifier port.EventNotifier,
	archive port.MetricArchive,
	logger *logger.Logger,
) *SnapshotNoticeUseCase {
	return &SnapshotNoticeUseCase{
		store:    store,
		notifier: notifier,
		archive:  archive,
		logger:   logger,
	}
}

// Execute записывает snapshot-алерт
func (uc *SnapshotNoticeUseCase) Execute(msg dto.SnapshotNoticeMessage) {
	alert := uc.store.RecordAlert(entity.Alert{
		Service:   msg.Service,
		Kind:      entity.AlertKindSnapshot,
		Severity:  entity.SeverityInfo,
		Message:   fmt.Sprintf("Heap snapshot captured: %s", msg.Filename),
		Timestamp: time.Now(),
		Filename:  msg.Filename,
		FilePath:  msg.Filepath,
	})

	uc.notifier.Publish(dto.NewSnapshotAlertEvent(alert))
	uc.logger.Info("Snapshot notice recorded", "service", msg.Service, "filename", msg.Filename)

	if uc.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := uc.archive.SaveAlert(ctx, alert); err != nil {
				uc.logger.Warn("Failed to archive snapshot alert", "error", err.Error())
			}
		}()
	}
}
