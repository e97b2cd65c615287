package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/reassembly"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []dto.Event
}

func (n *captureNotifier) Publish(event dto.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) SubscriberCount() int { return 0 }

func (n *captureNotifier) eventTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]string, 0, len(n.events))
	for _, event := range n.events {
		result = append(result, event.Type)
	}
	return result
}

func newUploadFixture(t *testing.T) (*UploadSnapshotUseCase, *memory.Store, *captureNotifier, string) {
	t.Helper()

	store := memory.NewStore(10, 10)
	notifier := &captureNotifier{}
	dir := t.TempDir()
	assembler := reassembly.NewAssembler(dir, logger.New("error"))

	uc := NewUploadSnapshotUseCase(
		store,
		assembler,
		notifier,
		nil,
		metrics.New(prometheus.NewRegistry()),
		logger.New("error"),
	)
	return uc, store, notifier, dir
}

func TestUploadSnapshot_Success(t *testing.T) {
	uc, store, notifier, dir := newUploadFixture(t)

	snap, err := uc.Execute(context.Background(), dto.UploadSnapshotRequest{
		ServiceName:  "svc-a",
		ContainerID:  "c-1",
		Phase:        "before",
		SnapshotData: "payload-bytes",
		Filename:     "manual.heapsnapshot",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !strings.HasPrefix(snap.ID, "before_svc-a_") {
		t.Fatalf("unexpected id format %s", snap.ID)
	}
	if snap.Size != int64(len("payload-bytes")) {
		t.Fatalf("size must be byte-exact, got %d", snap.Size)
	}
	if !snap.Complete {
		t.Fatalf("uploaded snapshot must be complete")
	}

	// Файл лежит в подкаталоге сервиса
	expectedPath := filepath.Join(dir, "svc-a", "manual.heapsnapshot")
	content, err := os.ReadFile(expectedPath)
	if err != nil || string(content) != "payload-bytes" {
		t.Fatalf("persisted upload = %q err=%v", content, err)
	}

	// Снапшот виден в store как завершенный
	stored, ok := store.Snapshot(snap.ID)
	if !ok || !stored.Complete || stored.Phase != "before" {
		t.Fatalf("unexpected stored snapshot %+v ok=%v", stored, ok)
	}

	// Путь эквивалентен announce + chunk + complete
	types := notifier.eventTypes()
	want := []string{dto.EventSnapshotStarted, dto.EventSnapshotProgress, dto.EventSnapshotCompleted}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i, eventType := range want {
		if types[i] != eventType {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}

func TestUploadSnapshot_Validation(t *testing.T) {
	uc, _, _, _ := newUploadFixture(t)

	tests := []struct {
		name string
		req  dto.UploadSnapshotRequest
	}{
		{"missing service", dto.UploadSnapshotRequest{Phase: "before", SnapshotData: "x", Filename: "f"}},
		{"bad phase", dto.UploadSnapshotRequest{ServiceName: "svc", Phase: "during", SnapshotData: "x", Filename: "f"}},
		{"missing data", dto.UploadSnapshotRequest{ServiceName: "svc", Phase: "after", Filename: "f"}},
		{"missing filename", dto.UploadSnapshotRequest{ServiceName: "svc", Phase: "after", SnapshotData: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := uc.Execute(context.Background(), tt.req); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}
