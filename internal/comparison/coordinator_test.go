package comparison

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []dto.Event
}

func (r *eventRecorder) Publish(event dto.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) SubscriberCount() int { return 0 }

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]string, 0, len(r.events))
	for _, event := range r.events {
		result = append(result, event.Type)
	}
	return result
}

func (r *eventRecorder) find(eventType string) (dto.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.Type == eventType {
			return event, true
		}
	}
	return dto.Event{}, false
}

type stubAnalyzer struct {
	report *entity.AnalysisReport
	err    error
	calls  int
}

func (s *stubAnalyzer) Analyze(_ context.Context, _, _ string, _ int64) (*entity.AnalysisReport, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

type fixture struct {
	store       *memory.Store
	recorder    *eventRecorder
	scratchDir  string
	coordinator *Coordinator
}

func newFixture(t *testing.T, primary, fallback port.SnapshotAnalyzer) *fixture {
	t.Helper()

	store := memory.NewStore(100, 100)
	recorder := &eventRecorder{}
	scratchDir := t.TempDir()

	coordinator := NewCoordinator(
		store,
		recorder,
		primary,
		fallback,
		10<<20,
		scratchDir,
		metrics.New(prometheus.NewRegistry()),
		logger.New("error"),
	)

	return &fixture{
		store:       store,
		recorder:    recorder,
		scratchDir:  scratchDir,
		coordinator: coordinator,
	}
}

func (f *fixture) addCompleteSnapshot(t *testing.T, id string, content string) {
	t.Helper()

	path := filepath.Join(f.scratchDir, id+".blob")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write snapshot blob: %v", err)
	}
	f.store.PutSnapshot(entity.Snapshot{
		ID:        id,
		Filename:  id + ".heapsnapshot",
		Size:      int64(len(content)),
		Complete:  true,
		FilePath:  path,
		CreatedAt: time.Now(),
	})
}

func comparisonReady() dto.ComparisonReadyMessage {
	return dto.ComparisonReadyMessage{
		ServiceName:      "svc-a",
		ContainerID:      "c-1",
		BeforeSnapshotID: "before_svc-a_1",
		AfterSnapshotID:  "after_svc-a_2",
		Timestamp:        time.Now().UnixMilli(),
	}
}

func TestHandleComparisonReady_Pending(t *testing.T) {
	primary := &stubAnalyzer{report: &entity.AnalysisReport{}}
	f := newFixture(t, primary, nil)
	f.addCompleteSnapshot(t, "before_svc-a_1", "before")
	// after-снапшот отсутствует

	sess, ready := f.coordinator.HandleComparisonReady(comparisonReady())
	if ready {
		t.Fatalf("expected not ready with missing after snapshot")
	}
	if sess.Status != entity.SessionWaiting {
		t.Fatalf("expected waiting, got %s", sess.Status)
	}
	if !strings.HasPrefix(sess.ID, "comparison_svc-a_") {
		t.Fatalf("unexpected session id %s", sess.ID)
	}

	event, ok := f.recorder.find(dto.EventComparisonPending)
	if !ok {
		t.Fatalf("expected comparisonPending event, got %v", f.recorder.types())
	}
	payload := event.Data.(dto.ComparisonPendingPayload)
	if payload.MissingSnapshots.Before || !payload.MissingSnapshots.After {
		t.Fatalf("unexpected missing flags: %+v", payload.MissingSnapshots)
	}

	if primary.calls != 0 {
		t.Fatalf("analyzer must not be invoked for pending session")
	}

	stored, _ := f.store.Session(sess.ID)
	if stored.Status != entity.SessionWaiting {
		t.Fatalf("session must stay waiting, got %s", stored.Status)
	}
}

func TestRun_HappyPath_WarningAlert(t *testing.T) {
	primary := &stubAnalyzer{report: &entity.AnalysisReport{
		Summary: entity.AnalysisSummary{TotalGrowthMB: 10, SuspiciousGrowth: true, Confidence: 0.9},
	}}
	f := newFixture(t, primary, nil)
	f.addCompleteSnapshot(t, "before_svc-a_1", "aaa")
	f.addCompleteSnapshot(t, "after_svc-a_2", "aaaaaa")

	sess, ready := f.coordinator.HandleComparisonReady(comparisonReady())
	if !ready {
		t.Fatalf("expected ready")
	}

	result, err := f.coordinator.Run(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Status != entity.SessionCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Result == nil || result.Result.Summary.TotalGrowthMB != 10 {
		t.Fatalf("unexpected report %+v", result.Result)
	}

	for _, eventType := range []string{dto.EventComparisonStarted, dto.EventComparisonCompleted, dto.EventLeakAlert} {
		if _, ok := f.recorder.find(eventType); !ok {
			t.Fatalf("expected %s event, got %v", eventType, f.recorder.types())
		}
	}

	alerts := f.store.Alerts("", "warning", 0)
	if len(alerts) != 1 {
		t.Fatalf("expected one warning alert, got %d", len(alerts))
	}

	// Scratch-файлы удалены
	assertNoScratchFiles(t, f.scratchDir, sess.ID)
}

func TestRun_CriticalAlertAboveThreshold(t *testing.T) {
	primary := &stubAnalyzer{report: &entity.AnalysisReport{
		Summary: entity.AnalysisSummary{TotalGrowthMB: 60, SuspiciousGrowth: true},
	}}
	f := newFixture(t, primary, nil)
	f.addCompleteSnapshot(t, "before_svc-a_1", "aaa")
	f.addCompleteSnapshot(t, "after_svc-a_2", "bbb")

	sess, _ := f.coordinator.HandleComparisonReady(comparisonReady())
	if _, err := f.coordinator.Run(context.Background(), sess.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	alerts := f.store.Alerts("", "critical", 0)
	if len(alerts) != 1 {
		t.Fatalf("expected one critical alert, got %d", len(alerts))
	}
}

func TestRun_FallbackOnPrimaryFailure(t *testing.T) {
	primary := &stubAnalyzer{err: errors.New("primary down")}
	fallback := &stubAnalyzer{report: &entity.AnalysisReport{
		Summary: entity.AnalysisSummary{TotalGrowthMB: 1},
	}}
	f := newFixture(t, primary, fallback)
	f.addCompleteSnapshot(t, "before_svc-a_1", "aaa")
	f.addCompleteSnapshot(t, "after_svc-a_2", "bbb")

	sess, _ := f.coordinator.HandleComparisonReady(comparisonReady())
	result, err := f.coordinator.Run(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Status != entity.SessionCompleted {
		t.Fatalf("expected completed via fallback, got %s", result.Status)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("expected one call each, got primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestRun_BothAnalyzersFail(t *testing.T) {
	primary := &stubAnalyzer{err: errors.New("primary down")}
	fallback := &stubAnalyzer{err: errors.New("fallback down")}
	f := newFixture(t, primary, fallback)
	f.addCompleteSnapshot(t, "before_svc-a_1", "aaa")
	f.addCompleteSnapshot(t, "after_svc-a_2", "bbb")

	sess, _ := f.coordinator.HandleComparisonReady(comparisonReady())
	result, err := f.coordinator.Run(context.Background(), sess.ID)
	if err == nil {
		t.Fatalf("expected error")
	}
	if result.Status != entity.SessionFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	// На поверхности ошибка fallback-анализатора
	if result.Error != "fallback down" {
		t.Fatalf("expected fallback error surfaced, got %q", result.Error)
	}

	if _, ok := f.recorder.find(dto.EventComparisonFailed); !ok {
		t.Fatalf("expected comparisonFailed event, got %v", f.recorder.types())
	}

	assertNoScratchFiles(t, f.scratchDir, sess.ID)
}

func TestRun_AtMostOncePerSession(t *testing.T) {
	primary := &stubAnalyzer{report: &entity.AnalysisReport{}}
	f := newFixture(t, primary, nil)
	f.addCompleteSnapshot(t, "before_svc-a_1", "aaa")
	f.addCompleteSnapshot(t, "after_svc-a_2", "bbb")

	sess, _ := f.coordinator.HandleComparisonReady(comparisonReady())
	if _, err := f.coordinator.Run(context.Background(), sess.ID); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	if _, err := f.coordinator.Run(context.Background(), sess.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady on second run, got %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("analyzer must run exactly once, got %d", primary.calls)
	}
}

func assertNoScratchFiles(t *testing.T, dir, sessionID string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, sessionID+"_*.heapsnapshot"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("scratch files left behind: %v", matches)
	}
}
