package port

import (
	"context"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

// SnapshotAnalyzer определяет интерфейс внешнего анализатора утечек (Port).
// Ядро не разбирает внутренности heap-снапшотов: анализатору передаются
// только пути к scratch-файлам на диске и порог в байтах.
type SnapshotAnalyzer interface {
	Analyze(ctx context.Context, beforePath, afterPath string, thresholdBytes int64) (*entity.AnalysisReport, error)
}
