package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/reassembly"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// ErrValidation — запрос без обязательных полей, handler отвечает 400
var ErrValidation = errors.New("validation error")

// UploadSnapshotUseCase принимает цельный снапшот одним запросом.
// Эквивалент анонса, единственного чанка и completion.
type UploadSnapshotUseCase struct {
	store     repository.StateRepository
	assembler *reassembly.Assembler
	notifier  port.EventNotifier
	archive   port.SnapshotArchive // может быть nil
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewUploadSnapshotUseCase создает новый use case
func NewUploadSnapshotUseCase(
	store repository.StateRepository,
	assembler *reassembly.Assembler,
	notifier port.EventNotifier,
	archive port.SnapshotArchive,
	m *metrics.Metrics,
	logger *logger.Logger,
) *UploadSnapshotUseCase {
	return &UploadSnapshotUseCase{
		store:     store,
		assembler: assembler,
		notifier:  notifier,
		archive:   archive,
		metrics:   m,
		logger:    logger,
	}
}

// Execute валидирует запрос, сохраняет blob и регистрирует готовый снапшот
func (uc *UploadSnapshotUseCase) Execute(ctx context.Context, req dto.UploadSnapshotRequest) (entity.Snapshot, error) {
	if err := validateUpload(req); err != nil {
		return entity.Snapshot{}, err
	}

	now := time.Now()
	id := fmt.Sprintf("%s_%s_%d", req.Phase, req.ServiceName, now.UnixMilli())
	data := []byte(req.SnapshotData)

	path, err := uc.assembler.PersistBlob(req.ServiceName, req.Filename, data)
	if err != nil {
		uc.logger.Error("Failed to persist uploaded snapshot", err, "snapshot_id", id)
		return entity.Snapshot{}, fmt.Errorf("persist snapshot: %w", err)
	}

	snap := entity.Snapshot{
		ID:             id,
		ServiceName:    req.ServiceName,
		ContainerID:    req.ContainerID,
		Phase:          entity.SnapshotPhase(req.Phase),
		Timestamp:      now.UnixMilli(),
		Size:           int64(len(data)),
		Filename:       req.Filename,
		TotalChunks:    1,
		ReceivedChunks: 1,
		Complete:       true,
		FilePath:       path,
		CreatedAt:      now,
	}
	uc.store.PutSnapshot(snap)

	// Те же события, что у чанкованного пути
	uc.notifier.Publish(dto.NewSnapshotStartedEvent(snap))
	uc.notifier.Publish(dto.NewSnapshotProgressEvent(snap))
	uc.notifier.Publish(dto.NewSnapshotCompletedEvent(snap))
	uc.metrics.ChunksReceived.Inc()
	uc.metrics.SnapshotsCompleted.Inc()

	uc.logger.Info("Snapshot uploaded",
		"snapshot_id", id,
		"service", req.ServiceName,
		"size", snap.Size,
	)

	if uc.archive != nil {
		go func() {
			archiveCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			key := snap.ServiceName + "/" + snap.Filename
			if _, err := uc.archive.Store(archiveCtx, key, data); err != nil {
				uc.logger.Warn("Failed to archive uploaded snapshot", "snapshot_id", id, "error", err.Error())
			}
		}()
	}

	return snap, nil
}

func validateUpload(req dto.UploadSnapshotRequest) error {
	if strings.TrimSpace(req.ServiceName) == "" {
		return fmt.Errorf("%w: serviceName is required", ErrValidation)
	}
	if req.Phase != string(entity.PhaseBefore) && req.Phase != string(entity.PhaseAfter) {
		return fmt.Errorf("%w: phase must be before or after", ErrValidation)
	}
	if req.SnapshotData == "" {
		return fmt.Errorf("%w: snapshotData is required", ErrValidation)
	}
	if strings.TrimSpace(req.Filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	return nil
}
