package liveness

import (
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []dto.Event
}

func (n *recordingNotifier) Publish(event dto.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) SubscriberCount() int { return 0 }

func TestSweep_ReapsSilentService(t *testing.T) {
	store := memory.NewStore(10, 10)
	notifier := &recordingNotifier{}
	monitor := NewMonitor(store, notifier, 30*time.Second, time.Minute, logger.New("error"))

	base := time.Now()
	store.RegisterService("svc-b", base, "conn-1")

	// Сервис молчит дольше дедлайна: ровно один переход и одно событие
	affected := monitor.Sweep(base.Add(2 * time.Minute))
	if len(affected) != 1 {
		t.Fatalf("expected one service reaped, got %d", len(affected))
	}
	if affected[0].Status != entity.StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", affected[0].Status)
	}

	if len(notifier.events) != 1 || notifier.events[0].Type != dto.EventServiceUpdate {
		t.Fatalf("expected one serviceUpdate event, got %+v", notifier.events)
	}
	payload := notifier.events[0].Data.(dto.ServiceUpdatePayload)
	if payload.Service != "svc-b" || payload.Status != "disconnected" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	// Повторный sweep не дает второго события
	if affected := monitor.Sweep(base.Add(3 * time.Minute)); len(affected) != 0 {
		t.Fatalf("expected no repeat transitions, got %d", len(affected))
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(notifier.events))
	}
}

func TestSweep_ActiveServiceUntouched(t *testing.T) {
	store := memory.NewStore(10, 10)
	notifier := &recordingNotifier{}
	monitor := NewMonitor(store, notifier, 30*time.Second, time.Minute, logger.New("error"))

	base := time.Now()
	store.RegisterService("svc-a", base, "conn-1")

	if affected := monitor.Sweep(base.Add(30 * time.Second)); len(affected) != 0 {
		t.Fatalf("active service must not be reaped, got %d", len(affected))
	}
	svc, _ := store.Service("svc-a")
	if svc.Status != entity.StatusConnected {
		t.Fatalf("expected connected, got %s", svc.Status)
	}
}
