package port

import (
	"context"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

// MetricsPublisher defines the interface for shipping ingested samples to an
// external metrics platform (CloudWatch). Implementations buffer internally.
type MetricsPublisher interface {
	// PublishSample buffers a single sample for batched publication
	PublishSample(ctx context.Context, sample entity.MetricSample) error

	// Flush forces immediate publication of buffered samples.
	// Should be called during graceful shutdown to prevent data loss.
	Flush(ctx context.Context) error

	// Close stops background flushing and flushes the remainder
	Close(ctx context.Context) error
}
