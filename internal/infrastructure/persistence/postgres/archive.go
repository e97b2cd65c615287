package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	_ "github.com/lib/pq"
)

// Archive реализует port.MetricArchive поверх PostgreSQL.
// Это write-behind журнал замеров и алертов: каноническое состояние остается
// in-memory, ошибки архива никогда не валят прием.
type Archive struct {
	db *sql.DB
}

// NewArchive создает архив поверх готового пула соединений
func NewArchive(db *sql.DB) *Archive {
	return &Archive{
		db: db,
	}
}

// EnsureSchema создает таблицы архива если их нет
func (a *Archive) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS metric_samples (
			id                  BIGSERIAL PRIMARY KEY,
			service             TEXT NOT NULL,
			heap_used_mb        DOUBLE PRECISION NOT NULL,
			heap_total_mb       DOUBLE PRECISION NOT NULL,
			rss_mb              DOUBLE PRECISION NOT NULL,
			external_mb         DOUBLE PRECISION NOT NULL,
			event_loop_delay_ms DOUBLE PRECISION NOT NULL,
			memory_growth_mb    DOUBLE PRECISION NOT NULL,
			leak_detected       BOOLEAN NOT NULL,
			agent_timestamp_ms  BIGINT NOT NULL,
			received_at         TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_metric_samples_service_received
			ON metric_samples (service, received_at);

		CREATE TABLE IF NOT EXISTS alerts (
			id               BIGSERIAL PRIMARY KEY,
			alert_id         BIGINT NOT NULL,
			service          TEXT NOT NULL,
			kind             TEXT NOT NULL,
			severity         TEXT NOT NULL,
			message          TEXT NOT NULL,
			heap_used_mb     DOUBLE PRECISION NOT NULL,
			memory_growth_mb DOUBLE PRECISION NOT NULL,
			filename         TEXT NOT NULL DEFAULT '',
			filepath         TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL
		);
	`
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure archive schema: %w", err)
	}
	return nil
}

// SaveSample сохраняет один замер
func (a *Archive) SaveSample(ctx context.Context, sample entity.MetricSample) error {
	query := `
		INSERT INTO metric_samples
			(service, heap_used_mb, heap_total_mb, rss_mb, external_mb,
			 event_loop_delay_ms, memory_growth_mb, leak_detected,
			 agent_timestamp_ms, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := a.db.ExecContext(ctx, query,
		sample.Service,
		sample.HeapUsedMB,
		sample.HeapTotalMB,
		sample.RSSMB,
		sample.ExternalMB,
		sample.EventLoopDelayMs,
		sample.MemoryGrowthMB,
		sample.LeakDetected,
		sample.Timestamp,
		sample.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metric sample: %w", err)
	}

	return nil
}

// SaveAlert сохраняет один алерт
func (a *Archive) SaveAlert(ctx context.Context, alert entity.Alert) error {
	query := `
		INSERT INTO alerts
			(alert_id, service, kind, severity, message,
			 heap_used_mb, memory_growth_mb, filename, filepath, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := a.db.ExecContext(ctx, query,
		alert.ID,
		alert.Service,
		string(alert.Kind),
		string(alert.Severity),
		alert.Message,
		alert.HeapUsedMB,
		alert.MemoryGrowthMB,
		alert.Filename,
		alert.FilePath,
		alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// Close закрывает пул соединений
func (a *Archive) Close() error {
	return a.db.Close()
}
