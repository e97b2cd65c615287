package usecase

import (
	"testing"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/persistence/memory"
)

func putSnap(store *memory.Store, id, service, filename string, phase entity.SnapshotPhase, at time.Time) {
	store.PutSnapshot(entity.Snapshot{
		ID:          id,
		ServiceName: service,
		Phase:       phase,
		Filename:    filename,
		CreatedAt:   at,
	})
}

func TestListSnapshots_SessionGrouping(t *testing.T) {
	store := memory.NewStore(10, 10)
	base := time.Now()

	// Полная сессия: префикс имени файла до маркера фазы
	putSnap(store, "before_svc-a_1", "svc-a", "run42-before.heapsnapshot", entity.PhaseBefore, base)
	putSnap(store, "after_svc-a_2", "svc-a", "run42-after.heapsnapshot", entity.PhaseAfter, base.Add(time.Second))

	// Неполная сессия: только before
	putSnap(store, "before_svc-b_3", "svc-b", "nightly_before.heapsnapshot", entity.PhaseBefore, base.Add(2*time.Second))

	// Файл без маркера фазы группируется по сервису
	putSnap(store, "before_svc-c_4", "svc-c", "dump.heapsnapshot", entity.PhaseBefore, base.Add(3*time.Second))

	result := NewListSnapshotsUseCase(store).Execute()

	if len(result.Snapshots) != 4 {
		t.Fatalf("expected 4 snapshots, got %d", len(result.Snapshots))
	}
	if len(result.Sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(result.Sessions))
	}

	byID := make(map[string]bool)
	for _, sess := range result.Sessions {
		byID[sess.SessionID] = sess.Complete
		switch sess.SessionID {
		case "run42":
			if len(sess.Snapshots) != 2 {
				t.Fatalf("expected 2 snapshots in run42, got %d", len(sess.Snapshots))
			}
		case "nightly", "svc-c":
			if len(sess.Snapshots) != 1 {
				t.Fatalf("expected 1 snapshot in %s, got %d", sess.SessionID, len(sess.Snapshots))
			}
		default:
			t.Fatalf("unexpected session id %s", sess.SessionID)
		}
	}

	if !byID["run42"] {
		t.Fatalf("run42 has both phases, must be complete")
	}
	if byID["nightly"] || byID["svc-c"] {
		t.Fatalf("sessions without both phases must not be complete: %+v", byID)
	}
}
