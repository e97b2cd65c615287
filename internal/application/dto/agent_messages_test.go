package dto

import (
	"errors"
	"testing"
)

func TestParseAgentMessage_Registration(t *testing.T) {
	frame := []byte(`{"type":"registration","service":"svc-a","timestamp":1000000}`)

	msg, err := ParseAgentMessage(frame)
	if err != nil {
		t.Fatalf("ParseAgentMessage() error = %v", err)
	}
	if msg.Type != MsgRegistration || msg.Registration == nil {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Registration.Service != "svc-a" || msg.Registration.Timestamp != 1000000 {
		t.Fatalf("unexpected payload %+v", msg.Registration)
	}
}

func TestParseAgentMessage_Metrics(t *testing.T) {
	frame := []byte(`{"type":"metrics","service":"svc-a","heapUsedMB":120,"heapTotalMB":200,` +
		`"rssMB":300,"externalMB":5,"eventLoopDelayMs":2,"timestamp":1000100,` +
		`"leakDetected":true,"memoryGrowthMB":50}`)

	msg, err := ParseAgentMessage(frame)
	if err != nil {
		t.Fatalf("ParseAgentMessage() error = %v", err)
	}
	payload := msg.Metrics
	if payload == nil {
		t.Fatalf("expected metrics payload")
	}
	if payload.HeapUsedMB != 120 || !payload.LeakDetected || payload.MemoryGrowthMB != 50 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestParseAgentMessage_SnapshotCompleteIDVariants(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"snapshotId field", `{"type":"snapshot-complete","snapshotId":"snap-1"}`, "snap-1"},
		{"id field", `{"type":"snapshot-complete","id":"snap-2"}`, "snap-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseAgentMessage([]byte(tt.frame))
			if err != nil {
				t.Fatalf("ParseAgentMessage() error = %v", err)
			}
			if got := msg.SnapshotComplete.ResolveID(); got != tt.want {
				t.Fatalf("ResolveID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAgentMessage_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{{{`},
		{"missing type", `{"service":"svc-a"}`},
		{"empty type", `{"type":"  "}`},
		{"type not string", `{"type":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAgentMessage([]byte(tt.frame))
			if !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("expected ErrInvalidMessage, got %v", err)
			}
		})
	}
}

func TestParseAgentMessage_UnknownTagIsNotAnError(t *testing.T) {
	msg, err := ParseAgentMessage([]byte(`{"type":"telemetry-v2","whatever":1}`))
	if err != nil {
		t.Fatalf("unknown tag must parse, got %v", err)
	}
	if msg.Type != "telemetry-v2" {
		t.Fatalf("unexpected type %q", msg.Type)
	}
	// Полезной нагрузки нет: решает диспетчер
	if msg.Registration != nil || msg.Metrics != nil {
		t.Fatalf("unknown tag must carry no payload")
	}
}

func TestParseAgentMessage_SnapshotMetadata(t *testing.T) {
	frame := []byte(`{"type":"snapshot-metadata","snapshot":{"id":"before_svc-a_1",` +
		`"serviceName":"svc-a","containerId":"c-1","phase":"before",` +
		`"timestamp":1,"size":9,"filename":"b.heapsnapshot","totalChunks":3}}`)

	msg, err := ParseAgentMessage(frame)
	if err != nil {
		t.Fatalf("ParseAgentMessage() error = %v", err)
	}
	meta := msg.SnapshotMetadata.Snapshot
	if meta.ID != "before_svc-a_1" || meta.Phase != "before" || meta.TotalChunks != 3 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}
