package comparison

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// criticalGrowthMB — порог роста, выше которого leak-алерт становится critical
const criticalGrowthMB = 50.0

var (
	// ErrSessionNotFound — сессия с данным id не существует
	ErrSessionNotFound = errors.New("comparison session not found")

	// ErrNotReady — сессия не может войти в analyzing (не в waiting)
	ErrNotReady = errors.New("comparison session not ready for analysis")
)

// Coordinator владеет жизненным циклом сессий сравнения.
//
// Переходы статусов: waiting → analyzing → {completed, failed}; analyzing
// достигается не более одного раза (гарантируется store.BeginAnalysis).
// Анализатор вызывается без удержания каких-либо локов состояния; его вход —
// только пути к scratch-файлам. Scratch-файлы удаляются на каждом выходе.
type Coordinator struct {
	store          repository.StateRepository
	notifier       port.EventNotifier
	primary        port.SnapshotAnalyzer
	fallback       port.SnapshotAnalyzer // может быть nil
	thresholdBytes int64
	scratchDir     string
	metrics        *metrics.Metrics
	logger         *logger.Logger
}

// NewCoordinator создает координатор анализа.
// Пустой scratchDir означает системный временный каталог.
func NewCoordinator(
	store repository.StateRepository,
	notifier port.EventNotifier,
	primary, fallback port.SnapshotAnalyzer,
	thresholdBytes int64,
	scratchDir string,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Coordinator {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Coordinator{
		store:          store,
		notifier:       notifier,
		primary:        primary,
		fallback:       fallback,
		thresholdBytes: thresholdBytes,
		scratchDir:     scratchDir,
		metrics:        m,
		logger:         logger,
	}
}

// HandleComparisonReady создает сессию для триггера сравнения.
// Если хотя бы один снапшот не готов, публикуется comparisonPending и сессия
// остается в waiting: автоматического возобновления нет, недостающий снапшот
// не дозапускает анализ. ready=true означает что оба снапшота готовы и
// вызывающий может запускать Run.
func (c *Coordinator) HandleComparisonReady(msg dto.ComparisonReadyMessage) (entity.ComparisonSession, bool) {
	now := time.Now()
	sess := entity.ComparisonSession{
		ID:               fmt.Sprintf("comparison_%s_%d", msg.ServiceName, now.UnixMilli()),
		ServiceName:      msg.ServiceName,
		ContainerID:      msg.ContainerID,
		BeforeSnapshotID: msg.BeforeSnapshotID,
		AfterSnapshotID:  msg.AfterSnapshotID,
		Timeframe:        msg.Timeframe,
		CreatedAt:        now,
		Status:           entity.SessionWaiting,
	}
	c.store.PutSession(sess)

	missing := c.missingSnapshots(msg.BeforeSnapshotID, msg.AfterSnapshotID)
	if missing.Before || missing.After {
		c.notifier.Publish(dto.NewComparisonPendingEvent(sess, missing))
		c.logger.Info("Comparison pending, snapshots incomplete",
			"session_id", sess.ID,
			"missing_before", missing.Before,
			"missing_after", missing.After,
		)
		return sess, false
	}

	return sess, true
}

// Run выполняет анализ сессии: analyzing, scratch-файлы, анализатор с одним
// fallback, терминальный статус и события. Возвращает терминальную сессию.
func (c *Coordinator) Run(ctx context.Context, sessionID string) (entity.ComparisonSession, error) {
	sess, ok := c.store.Session(sessionID)
	if !ok {
		return entity.ComparisonSession{}, ErrSessionNotFound
	}

	if !c.store.BeginAnalysis(sessionID) {
		return sess, ErrNotReady
	}
	sess.Status = entity.SessionAnalyzing
	c.notifier.Publish(dto.NewComparisonStartedEvent(sess))
	c.logger.Info("Comparison analysis started", "session_id", sessionID)

	report, err := c.analyze(ctx, sess)
	if err != nil {
		failed, _ := c.store.FailSession(sessionID, err.Error())
		c.notifier.Publish(dto.NewComparisonFailedEvent(failed))
		c.metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		c.logger.Error("Comparison analysis failed", err, "session_id", sessionID)
		return failed, err
	}

	completed, _ := c.store.CompleteSession(sessionID, report)
	c.notifier.Publish(dto.NewComparisonCompletedEvent(completed))
	c.metrics.AnalysesTotal.WithLabelValues("completed").Inc()
	c.logger.Info("Comparison analysis completed",
		"session_id", sessionID,
		"growth_mb", report.Summary.TotalGrowthMB,
		"suspicious", report.Summary.SuspiciousGrowth,
	)

	if report.Summary.SuspiciousGrowth {
		c.raiseLeakAlert(completed, report)
	}

	return completed, nil
}

// RunAsync запускает анализ не блокируя вызывающего (путь comparison-ready)
func (c *Coordinator) RunAsync(sessionID string) {
	go func() {
		if _, err := c.Run(context.Background(), sessionID); err != nil {
			// Run уже зафиксировал статус и события
			return
		}
	}()
}

// analyze пишет оба блоба в scratch-файлы, вызывает основной анализатор и,
// при его ошибке, один раз fallback. Scratch-файлы удаляются всегда.
func (c *Coordinator) analyze(ctx context.Context, sess entity.ComparisonSession) (*entity.AnalysisReport, error) {
	beforePath, err := c.writeScratch(sess.ID, "before", sess.BeforeSnapshotID)
	if err != nil {
		return nil, err
	}
	defer os.Remove(beforePath)

	afterPath, err := c.writeScratch(sess.ID, "after", sess.AfterSnapshotID)
	if err != nil {
		return nil, err
	}
	defer os.Remove(afterPath)

	report, primaryErr := c.primary.Analyze(ctx, beforePath, afterPath, c.thresholdBytes)
	if primaryErr == nil {
		return report, nil
	}
	c.logger.Warn("Primary analyzer failed, trying fallback",
		"session_id", sess.ID,
		"error", primaryErr.Error(),
	)

	if c.fallback == nil {
		return nil, primaryErr
	}

	report, fallbackErr := c.fallback.Analyze(ctx, beforePath, afterPath, c.thresholdBytes)
	if fallbackErr != nil {
		// На поверхность выходит ошибка fallback-анализатора
		return nil, fallbackErr
	}
	return report, nil
}

// writeScratch копирует блоб снапшота в scratch-файл с предсказуемым именем
func (c *Coordinator) writeScratch(sessionID, phase, snapshotID string) (string, error) {
	snap, ok := c.store.Snapshot(snapshotID)
	if !ok || !snap.Complete {
		return "", fmt.Errorf("snapshot %s is not complete", snapshotID)
	}

	data, err := os.ReadFile(snap.FilePath)
	if err != nil {
		return "", fmt.Errorf("read snapshot blob: %w", err)
	}

	path := filepath.Join(c.scratchDir, fmt.Sprintf("%s_%s.heapsnapshot", sessionID, phase))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return path, nil
}

func (c *Coordinator) missingSnapshots(beforeID, afterID string) dto.MissingSnapshots {
	var missing dto.MissingSnapshots
	if snap, ok := c.store.Snapshot(beforeID); !ok || !snap.Complete {
		missing.Before = true
	}
	if snap, ok := c.store.Snapshot(afterID); !ok || !snap.Complete {
		missing.After = true
	}
	return missing
}

func (c *Coordinator) raiseLeakAlert(sess entity.ComparisonSession, report *entity.AnalysisReport) {
	severity := entity.SeverityWarning
	if report.Summary.TotalGrowthMB > criticalGrowthMB {
		severity = entity.SeverityCritical
	}

	alert := c.store.RecordAlert(entity.Alert{
		Service:  sess.ServiceName,
		Kind:     entity.AlertKindLeak,
		Severity: severity,
		Message: fmt.Sprintf("Suspicious memory growth: %.1fMB between snapshots",
			report.Summary.TotalGrowthMB),
		Timestamp:      time.Now(),
		MemoryGrowthMB: report.Summary.TotalGrowthMB,
	})
	c.notifier.Publish(dto.NewLeakAlertEvent(alert))
}
