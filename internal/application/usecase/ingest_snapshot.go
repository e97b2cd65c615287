package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/reassembly"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// SnapshotIngestUseCase координирует прием чанкованных снапшотов:
// анонс, чанки, завершение, персистенция и события прогресса
type SnapshotIngestUseCase struct {
	store     repository.StateRepository
	assembler *reassembly.Assembler
	notifier  port.EventNotifier
	archive   port.SnapshotArchive // может быть nil (S3 выключен)
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewSnapshotIngestUseCase создает новый use case
func NewSnapshotIngestUseCase(
	store repository.StateRepository,
	assembler *reassembly.Assembler,
	notifier port.EventNotifier,
	archive port.SnapshotArchive,
	m *metrics.Metrics,
	logger *logger.Logger,
) *SnapshotIngestUseCase {
	return &SnapshotIngestUseCase{
		store:     store,
		assembler: assembler,
		notifier:  notifier,
		archive:   archive,
		metrics:   m,
		logger:    logger,
	}
}

// HandleMetadata обрабатывает анонс снапшота. Повторный анонс того же id
// замещает и запись, и таблицу чанков.
func (uc *SnapshotIngestUseCase) HandleMetadata(msg dto.SnapshotMetadataMessage) {
	meta := msg.Snapshot
	snap := entity.Snapshot{
		ID:          meta.ID,
		ServiceName: meta.ServiceName,
		ContainerID: meta.ContainerID,
		Phase:       entity.SnapshotPhase(meta.Phase),
		Timestamp:   meta.Timestamp,
		Size:        meta.Size,
		Filename:    meta.Filename,
		TotalChunks: meta.TotalChunks,
		CreatedAt:   time.Now(),
	}

	uc.store.PutSnapshot(snap)
	uc.assembler.Announce(meta)

	uc.notifier.Publish(dto.NewSnapshotStartedEvent(snap))
	uc.logger.Info("Snapshot announced",
		"snapshot_id", meta.ID,
		"service", meta.ServiceName,
		"phase", meta.Phase,
		"size", meta.Size,
	)
}

// HandleChunk обрабатывает один чанк и публикует прогресс.
// Чанк неизвестного снапшота логируется и отбрасывается без ответа агенту.
func (uc *SnapshotIngestUseCase) HandleChunk(msg dto.SnapshotChunkMessage) {
	progress, assembled, err := uc.assembler.AddChunk(msg.SnapshotID, msg.ChunkIndex, msg.TotalChunks, msg.Data)
	if err != nil {
		if errors.Is(err, reassembly.ErrUnknownSnapshot) {
			uc.logger.Warn("Chunk for unknown snapshot dropped", "snapshot_id", msg.SnapshotID)
			return
		}
		uc.logger.Error("Failed to accept snapshot chunk", err,
			"snapshot_id", msg.SnapshotID,
			"chunk_index", msg.ChunkIndex,
		)
		return
	}

	uc.metrics.ChunksReceived.Inc()

	snap, ok := uc.store.SetSnapshotProgress(msg.SnapshotID, progress.Received, progress.Total)
	if ok {
		uc.notifier.Publish(dto.NewSnapshotProgressEvent(snap))
	}

	if assembled != nil {
		// Раннее completion примирилось на последнем чанке
		uc.finalize(assembled)
	}
}

// HandleComplete обрабатывает completion-сообщение.
// Завершение неизвестного снапшота логируется и отбрасывается.
func (uc *SnapshotIngestUseCase) HandleComplete(snapshotID string) {
	assembled, pending, err := uc.assembler.RequestComplete(snapshotID)
	if err != nil {
		if errors.Is(err, reassembly.ErrUnknownSnapshot) {
			uc.logger.Warn("Completion for unknown snapshot dropped", "snapshot_id", snapshotID)
			return
		}
		uc.logger.Error("Failed to finalize snapshot", err, "snapshot_id", snapshotID)
		return
	}
	if pending {
		uc.logger.Debug("Completion deferred until last chunk", "snapshot_id", snapshotID)
		return
	}

	uc.finalize(assembled)
}

func (uc *SnapshotIngestUseCase) finalize(assembled *reassembly.Assembled) {
	snap, ok := uc.store.CompleteSnapshot(assembled.ID, assembled.FilePath)
	if !ok {
		uc.logger.Warn("Assembled snapshot missing from store", "snapshot_id", assembled.ID)
		return
	}

	uc.metrics.SnapshotsCompleted.Inc()
	uc.notifier.Publish(dto.NewSnapshotCompletedEvent(snap))
	uc.logger.Info("Snapshot completed",
		"snapshot_id", snap.ID,
		"file", snap.FilePath,
		"chunks", snap.ReceivedChunks,
	)

	if uc.archive != nil {
		go uc.archiveBlob(snap, assembled.Data)
	}
}

func (uc *SnapshotIngestUseCase) archiveBlob(snap entity.Snapshot, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	key := snap.ServiceName + "/" + snap.Filename
	location, err := uc.archive.Store(ctx, key, data)
	if err != nil {
		uc.logger.Warn("Failed to archive snapshot blob", "snapshot_id", snap.ID, "error", err.Error())
		return
	}
	uc.logger.Info("Snapshot archived", "snapshot_id", snap.ID, "location", location)
}
