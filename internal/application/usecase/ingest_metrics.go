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

// IngestMetricsUseCase координирует прием замера: кольцо метрик, рассылка,
// синтез leak-алерта и зеркалирование во внешние системы
type IngestMetricsUseCase struct {
	store     repository.StateRepository
	notifier  port.EventNotifier
	archive   port.MetricArchive    // может быть nil
	publisher port.MetricsPublisher // может быть nil (CloudWatch выключен)
	logger    *logger.Logger
}

// NewIngestMetricsUseCase создает новый use case
func NewIngestMetricsUseCase(
	store repository.StateRepository,
	notifier port.EventNotifier,
	archive port.MetricArchive,
	publisher port.MetricsPublisher,
	logger *logger.Logger,
) *IngestMetricsUseCase {
	return &IngestMetricsUseCase{
		store:     store,
		notifier:  notifier,
		archive:   archive,
		publisher: publisher,
		logger:    logger,
	}
}

// Execute принимает один замер от агента
func (uc *IngestMetricsUseCase) Execute(ctx context.Context, msg dto.MetricsMessage) {
	sample := entity.MetricSample{
		Service:          msg.Service,
		HeapUsedMB:       msg.HeapUsedMB,
		HeapTotalMB:      msg.HeapTotalMB,
		RSSMB:            msg.RSSMB,
		ExternalMB:       msg.ExternalMB,
		EventLoopDelayMs: msg.EventLoopDelayMs,
		MemoryGrowthMB:   msg.MemoryGrowthMB,
		LeakDetected:     msg.LeakDetected,
		Timestamp:        msg.Timestamp,
		ReceivedAt:       time.Now(),
	}

	uc.store.AppendSample(sample)
	uc.notifier.Publish(dto.NewMetricsUpdateEvent(sample))

	var alert *entity.Alert
	if msg.LeakDetected {
		recorded := uc.store.RecordAlert(entity.Alert{
			Service:  msg.Service,
			Kind:     entity.AlertKindLeak,
			Severity: entity.SeverityCritical,
			Message: fmt.Sprintf("Memory leak detected: heap %.1fMB, growth %.1fMB",
				msg.HeapUsedMB, msg.MemoryGrowthMB),
			Timestamp:      time.Now(),
			HeapUsedMB:     msg.HeapUsedMB,
			MemoryGrowthMB: msg.MemoryGrowthMB,
		})
		alert = &recorded

		uc.notifier.Publish(dto.NewLeakAlertEvent(recorded))
		uc.logger.Warn("Leak detected by agent",
			"service", msg.Service,
			"heap_used_mb", msg.HeapUsedMB,
			"growth_mb", msg.MemoryGrowthMB,
		)
	}

	// Зеркалирование вне критического пути приема
	if uc.publisher != nil {
		if err := uc.publisher.PublishSample(ctx, sample); err != nil {
			uc.logger.Warn("Failed to publish sample to CloudWatch", "error", err.Error())
		}
	}
	if uc.archive != nil {
		go uc.archiveSample(sample, alert)
	}
}

func (uc *IngestMetricsUseCase) archiveSample(sample entity.MetricSample, alert *entity.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := uc.archive.SaveSample(ctx, sample); err != nil {
		uc.logger.Warn("Failed to archive sample", "service", sample.Service, "error", err.Error())
	}
	if alert != nil {
		if err := uc.archive.SaveAlert(ctx, *alert); err != nil {
			uc.logger.Warn("Failed to archive alert", "service", alert.Service, "error", err.Error())
		}
	}
}
