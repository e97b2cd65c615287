package ingest

import (
	"context"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/application/usecase"
	"github.com/dreschagin/memleak-dashboard/internal/comparison"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// Dispatcher маршрутизирует декодированные сообщения агентов по обработчикам.
// Сообщения одного соединения обрабатываются строго в порядке прихода —
// Dispatch вызывается только из read-цикла соединения.
type Dispatcher struct {
	registerUC  *usecase.RegisterServiceUseCase
	metricsUC   *usecase.IngestMetricsUseCase
	noticeUC    *usecase.SnapshotNoticeUseCase
	snapshotUC  *usecase.SnapshotIngestUseCase
	coordinator *comparison.Coordinator

	store    repository.StateRepository
	notifier port.EventNotifier
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewDispatcher создает диспетчер сообщений агентов
func NewDispatcher(
	registerUC *usecase.RegisterServiceUseCase,
	metricsUC *usecase.IngestMetricsUseCase,
	noticeUC *usecase.SnapshotNoticeUseCase,
	snapshotUC *usecase.SnapshotIngestUseCase,
	coordinator *comparison.Coordinator,
	store repository.StateRepository,
	notifier port.EventNotifier,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		registerUC:  registerUC,
		metricsUC:   metricsUC,
		noticeUC:    noticeUC,
		snapshotUC:  snapshotUC,
		coordinator: coordinator,
		store:       store,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
	}
}

// Dispatch применяет одно сообщение к состоянию хаба
func (d *Dispatcher) Dispatch(ctx context.Context, conn *Connection, msg *dto.AgentMessage) {
	d.metrics.FramesTotal.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case dto.MsgRegistration:
		svc := d.registerUC.Execute(*msg.Registration, conn.ID)
		conn.markProducer(svc.Name)

	case dto.MsgMetrics:
		d.metricsUC.Execute(ctx, *msg.Metrics)

	case dto.MsgSnapshotNotice:
		d.noticeUC.Execute(*msg.SnapshotNotice)

	case dto.MsgCaptureAgentRegistration:
		svc := d.registerUC.ExecuteCaptureAgent(*msg.CaptureAgent, conn.ID)
		conn.markCaptureAgent(svc.Name)

	case dto.MsgSnapshotMetadata:
		d.snapshotUC.HandleMetadata(*msg.SnapshotMetadata)

	case dto.MsgSnapshotChunk:
		d.snapshotUC.HandleChunk(*msg.SnapshotChunk)

	case dto.MsgSnapshotComplete:
		d.snapshotUC.HandleComplete(msg.SnapshotComplete.ResolveID())

	case dto.MsgComparisonReady:
		sess, ready := d.coordinator.HandleComparisonReady(*msg.ComparisonReady)
		if ready {
			d.coordinator.RunAsync(sess.ID)
		}

	default:
		d.logger.Warn("Unknown message tag ignored", "type", msg.Type, "conn", conn.ID)
	}
}

// OnClose выполняет reconciliation после разрыва соединения: все сервисы,
// ссылающиеся на него, переводятся в disconnected.
func (d *Dispatcher) OnClose(conn *Connection) {
	affected := d.store.DisconnectByConn(conn.ID)
	now := time.Now()
	for _, svc := range affected {
		d.notifier.Publish(dto.NewServiceUpdateEvent(svc, now))
		d.logger.Info("Service disconnected", "service", svc.Name, "conn", conn.ID)
	}
}
