package port

import (
	"context"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

// MetricArchive defines the optional write-behind persistence adapter for
// samples and alerts. The canonical state stays in memory; archive failures
// are logged and never fail ingestion.
type MetricArchive interface {
	// SaveSample persists one metric sample
	SaveSample(ctx context.Context, sample entity.MetricSample) error

	// SaveAlert persists one alert
	SaveAlert(ctx context.Context, alert entity.Alert) error

	// Close releases the underlying connection pool
	Close() error
}
