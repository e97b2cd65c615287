package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	applicationPort "github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/application/usecase"
	"github.com/dreschagin/memleak-dashboard/internal/comparison"
	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/ingest"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/liveness"
	wsInfra "github.com/dreschagin/memleak-dashboard/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/reassembly"
	"github.com/dreschagin/memleak-dashboard/internal/interfaces/http/handler"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/config"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const eventWait = 3 * time.Second

type stubAnalyzer struct {
	report *entity.AnalysisReport
	err    error
}

func (s *stubAnalyzer) Analyze(_ context.Context, _, _ string, _ int64) (*entity.AnalysisReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

type testEnv struct {
	server      *httptest.Server
	store       *memory.Store
	monitor     *liveness.Monitor
	snapshotDir string
}

func newTestEnv(t *testing.T, analyzerStub applicationPort.SnapshotAnalyzer) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logger.New("error")
	registry := prometheus.NewRegistry()
	promMetrics := metrics.New(registry)

	store := memory.NewStore(1000, 100)
	snapshotDir := t.TempDir()
	assembler := reassembly.NewAssembler(snapshotDir, log)

	listServicesUC := usecase.NewListServicesUseCase(store)
	hub := wsInfra.NewHub(func() dto.Event {
		return dto.NewInitialEvent(
			listServicesUC.Execute(),
			dto.ToAlerts(store.RecentAlerts(10)),
		)
	}, promMetrics, log)
	go hub.Run(ctx)

	if analyzerStub == nil {
		analyzerStub = &stubAnalyzer{report: &entity.AnalysisReport{}}
	}

	coordinator := comparison.NewCoordinator(
		store, hub, analyzerStub, nil, 10<<20, t.TempDir(), promMetrics, log,
	)

	registerUC := usecase.NewRegisterServiceUseCase(store, hub, log)
	ingestMetricsUC := usecase.NewIngestMetricsUseCase(store, hub, nil, nil, log)
	snapshotNoticeUC := usecase.NewSnapshotNoticeUseCase(store, hub, nil, log)
	snapshotIngestUC := usecase.NewSnapshotIngestUseCase(store, assembler, hub, nil, promMetrics, log)
	uploadUC := usecase.NewUploadSnapshotUseCase(store, assembler, hub, nil, promMetrics, log)

	dispatcher := ingest.NewDispatcher(
		registerUC, ingestMetricsUC, snapshotNoticeUC, snapshotIngestUC,
		coordinator, store, hub, promMetrics, log,
	)

	router := NewRouter(
		handler.NewHealthHandler(store),
		handler.NewServicesAPIHandler(listServicesUC, usecase.NewGetServiceMetricsUseCase(store, nil, log), log),
		handler.NewAlertsAPIHandler(usecase.NewGetAlertsUseCase(store), log),
		handler.NewStatsAPIHandler(usecase.NewGetStatsUseCase(store, hub, log)),
		handler.NewSnapshotAPIHandler(uploadUC, usecase.NewListSnapshotsUseCase(store), coordinator, store, 64<<20, log),
		handler.NewWebSocketHandler(ctx, hub, dispatcher, []string{"*"}, 16<<20, promMetrics, log),
		registry,
		promMetrics,
		config.SnapshotConfig{Dir: snapshotDir, UploadRatePerMinute: 600, MaxUploadBytes: 64 << 20},
		config.PrometheusConfig{Enabled: true},
		log,
	)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)

	return &testEnv{
		server:      server,
		store:       store,
		monitor:     liveness.NewMonitor(store, hub, 30*time.Second, time.Minute, log),
		snapshotDir: snapshotDir,
	}
}

func (env *testEnv) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(env.server.URL, "http") + path
}

func (env *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(path), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, payload interface{}) {
	t.Helper()
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

type eventFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) eventFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(eventWait))
	var event eventFrame
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

// waitForEvent читает кадры, пропуская нерелевантные типы
func waitForEvent(t *testing.T, conn *websocket.Conn, eventType string) eventFrame {
	t.Helper()
	deadline := time.Now().Add(eventWait)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Type == eventType {
			return event
		}
	}
	t.Fatalf("event %s not received", eventType)
	return eventFrame{}
}

func waitUntil(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(eventWait)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", message)
}

func (env *testEnv) getJSON(t *testing.T, path string, dest interface{}) int {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if dest != nil {
		_ = json.NewDecoder(resp.Body).Decode(dest)
	}
	return resp.StatusCode
}

func (env *testEnv) postJSON(t *testing.T, path string, body interface{}, dest interface{}) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if dest != nil {
		_ = json.NewDecoder(resp.Body).Decode(dest)
	}
	return resp.StatusCode
}

func registerAgent(t *testing.T, env *testEnv, conn *websocket.Conn, service string) {
	t.Helper()
	sendFrame(t, conn, map[string]interface{}{
		"type": "registration", "service": service, "timestamp": time.Now().UnixMilli(),
	})
	waitUntil(t, func() bool {
		_, ok := env.store.Service(service)
		return ok
	}, "service registered")
}

func TestRegistrationAndSingleMetric(t *testing.T) {
	env := newTestEnv(t, nil)

	agent := env.dial(t, "/")
	sendFrame(t, agent, map[string]interface{}{
		"type": "registration", "service": "svc-a", "timestamp": 1000000,
	})
	waitUntil(t, func() bool {
		_, ok := env.store.Service("svc-a")
		return ok
	}, "svc-a registered")

	subscriber := env.dial(t, "/dashboard")

	// Первый кадр подписчика — initial со срезом состояния
	initial := readEvent(t, subscriber)
	if initial.Type != dto.EventInitial {
		t.Fatalf("first frame must be initial, got %s", initial.Type)
	}
	var initialPayload struct {
		Services []dto.ServiceDTO `json:"services"`
		Alerts   []dto.AlertDTO   `json:"alerts"`
	}
	if err := json.Unmarshal(initial.Data, &initialPayload); err != nil {
		t.Fatalf("decode initial: %v", err)
	}
	if len(initialPayload.Services) != 1 || initialPayload.Services[0].Service != "svc-a" {
		t.Fatalf("initial must contain svc-a, got %+v", initialPayload.Services)
	}

	sendFrame(t, agent, map[string]interface{}{
		"type": "metrics", "service": "svc-a",
		"heapUsedMB": 120, "heapTotalMB": 200, "rssMB": 300, "externalMB": 5,
		"eventLoopDelayMs": 2, "timestamp": 1000100,
		"leakDetected": false, "memoryGrowthMB": 1,
	})

	update := waitForEvent(t, subscriber, dto.EventMetricsUpdate)
	var sample dto.MetricSampleDTO
	if err := json.Unmarshal(update.Data, &sample); err != nil {
		t.Fatalf("decode metricsUpdate: %v", err)
	}
	if sample.Service != "svc-a" || sample.HeapUsedMB != 120 {
		t.Fatalf("unexpected metricsUpdate %+v", sample)
	}

	var window dto.MetricsWindowDTO
	if status := env.getJSON(t, "/api/services/svc-a/metrics?limit=10", &window); status != http.StatusOK {
		t.Fatalf("metrics query status = %d", status)
	}
	if len(window.Metrics) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(window.Metrics))
	}
}

func TestLeakDetection(t *testing.T) {
	env := newTestEnv(t, nil)

	agent := env.dial(t, "/")
	registerAgent(t, env, agent, "svc-a")
	subscriber := env.dial(t, "/dashboard")
	if event := readEvent(t, subscriber); event.Type != dto.EventInitial {
		t.Fatalf("expected initial, got %s", event.Type)
	}

	sendFrame(t, agent, map[string]interface{}{
		"type": "metrics", "service": "svc-a",
		"heapUsedMB": 800, "heapTotalMB": 900, "rssMB": 1000, "externalMB": 5,
		"eventLoopDelayMs": 2, "timestamp": time.Now().UnixMilli(),
		"leakDetected": true, "memoryGrowthMB": 50,
	})

	waitForEvent(t, subscriber, dto.EventMetricsUpdate)
	alertEvent := waitForEvent(t, subscriber, dto.EventLeakAlert)
	var alert dto.AlertDTO
	if err := json.Unmarshal(alertEvent.Data, &alert); err != nil {
		t.Fatalf("decode leakAlert: %v", err)
	}
	if alert.Severity != "critical" || alert.Service != "svc-a" {
		t.Fatalf("unexpected alert %+v", alert)
	}

	var alerts dto.AlertsResponseDTO
	if status := env.getJSON(t, "/api/alerts?severity=critical", &alerts); status != http.StatusOK {
		t.Fatalf("alerts query status = %d", status)
	}
	if alerts.Total < 1 {
		t.Fatalf("expected at least one critical alert")
	}

	svc, _ := env.store.Service("svc-a")
	if svc.TotalAlerts != 1 {
		t.Fatalf("expected totalAlerts 1, got %d", svc.TotalAlerts)
	}
}

func TestChunkedSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)

	agent := env.dial(t, "/")
	subscriber := env.dial(t, "/dashboard")
	if event := readEvent(t, subscriber); event.Type != dto.EventInitial {
		t.Fatalf("expected initial, got %s", event.Type)
	}

	sendFrame(t, agent, map[string]interface{}{
		"type": "snapshot-metadata",
		"snapshot": map[string]interface{}{
			"id": "before_svc-a_1", "serviceName": "svc-a", "containerId": "c-1",
			"phase": "before", "timestamp": 1, "size": 9,
			"filename": "b.heapsnapshot", "totalChunks": 3,
		},
	})

	// Чанки в произвольном порядке: 0, 2, 1
	for _, chunk := range []struct {
		index int
		data  string
	}{{0, "abc"}, {2, "ghi"}, {1, "def"}} {
		sendFrame(t, agent, map[string]interface{}{
			"type": "snapshot-chunk", "snapshotId": "before_svc-a_1",
			"chunkIndex": chunk.index, "totalChunks": 3, "data": chunk.data,
		})
	}
	sendFrame(t, agent, map[string]interface{}{
		"type": "snapshot-complete", "snapshotId": "before_svc-a_1",
	})

	waitForEvent(t, subscriber, dto.EventSnapshotStarted)
	progressCount := 0
	for {
		event := readEvent(t, subscriber)
		if event.Type == dto.EventSnapshotProgress {
			progressCount++
			continue
		}
		if event.Type == dto.EventSnapshotCompleted {
			break
		}
		t.Fatalf("unexpected event %s", event.Type)
	}
	if progressCount != 3 {
		t.Fatalf("expected 3 progress events, got %d", progressCount)
	}

	content, err := os.ReadFile(filepath.Join(env.snapshotDir, "b.heapsnapshot"))
	if err != nil {
		t.Fatalf("read persisted snapshot: %v", err)
	}
	if string(content) != "abcdefghi" {
		t.Fatalf("persisted bytes = %q", content)
	}
}

func uploadSnapshot(t *testing.T, env *testEnv, phase, data string) string {
	t.Helper()
	var resp dto.UploadSnapshotResponse
	status := env.postJSON(t, "/api/snapshots/upload", dto.UploadSnapshotRequest{
		ServiceName:  "svc-a",
		ContainerID:  "c-1",
		Phase:        phase,
		SnapshotData: data,
		Filename:     fmt.Sprintf("%s-%d.heapsnapshot", phase, time.Now().UnixNano()),
	}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("upload status = %d", status)
	}
	return resp.Snapshot.ID
}

func TestComparisonHappyPath(t *testing.T) {
	env := newTestEnv(t, &stubAnalyzer{report: &entity.AnalysisReport{
		Summary: entity.AnalysisSummary{TotalGrowthMB: 10, SuspiciousGrowth: true, Confidence: 0.8},
	}})

	beforeID := uploadSnapshot(t, env, "before", "aaa")
	afterID := uploadSnapshot(t, env, "after", "aaaaaa")

	agent := env.dial(t, "/")
	subscriber := env.dial(t, "/dashboard")
	if event := readEvent(t, subscriber); event.Type != dto.EventInitial {
		t.Fatalf("expected initial, got %s", event.Type)
	}

	sendFrame(t, agent, map[string]interface{}{
		"type": "comparison-ready", "serviceName": "svc-a", "containerId": "c-1",
		"beforeSnapshotId": beforeID, "afterSnapshotId": afterID,
		"timeframe": "5m", "timestamp": time.Now().UnixMilli(),
	})

	waitForEvent(t, subscriber, dto.EventComparisonStarted)
	completed := waitForEvent(t, subscriber, dto.EventComparisonCompleted)

	var payload dto.ComparisonCompletedPayload
	if err := json.Unmarshal(completed.Data, &payload); err != nil {
		t.Fatalf("decode comparisonCompleted: %v", err)
	}
	if payload.Analysis == nil || payload.Analysis.Summary.TotalGrowthMB != 10 {
		t.Fatalf("unexpected analysis %+v", payload.Analysis)
	}

	// Рост 10MB дает warning-алерт
	waitUntil(t, func() bool {
		return len(env.store.Alerts("", "warning", 0)) == 1
	}, "warning leak alert recorded")
}

func TestComparisonPending(t *testing.T) {
	env := newTestEnv(t, nil)

	beforeID := uploadSnapshot(t, env, "before", "aaa")

	agent := env.dial(t, "/")
	subscriber := env.dial(t, "/dashboard")
	if event := readEvent(t, subscriber); event.Type != dto.EventInitial {
		t.Fatalf("expected initial, got %s", event.Type)
	}

	sendFrame(t, agent, map[string]interface{}{
		"type": "comparison-ready", "serviceName": "svc-a", "containerId": "c-1",
		"beforeSnapshotId": beforeID, "afterSnapshotId": "after_svc-a_missing",
		"timestamp": time.Now().UnixMilli(),
	})

	pending := waitForEvent(t, subscriber, dto.EventComparisonPending)
	var payload dto.ComparisonPendingPayload
	if err := json.Unmarshal(pending.Data, &payload); err != nil {
		t.Fatalf("decode comparisonPending: %v", err)
	}
	if payload.MissingSnapshots.Before || !payload.MissingSnapshots.After {
		t.Fatalf("unexpected missing flags %+v", payload.MissingSnapshots)
	}

	sess, ok := env.store.Session(payload.SessionID)
	if !ok || sess.Status != entity.SessionWaiting {
		t.Fatalf("session must stay waiting, got %+v ok=%v", sess, ok)
	}
}

func TestSynchronousCompareEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubAnalyzer{report: &entity.AnalysisReport{
		Summary: entity.AnalysisSummary{TotalGrowthMB: 2},
	}})

	beforeID := uploadSnapshot(t, env, "before", "aaa")
	afterID := uploadSnapshot(t, env, "after", "aaaa")

	var resp dto.CompareResponse
	status := env.postJSON(t, "/api/snapshots/compare", dto.CompareRequest{
		ServiceName:      "svc-a",
		BeforeSnapshotID: beforeID,
		AfterSnapshotID:  afterID,
	}, &resp)
	if status != http.StatusOK {
		t.Fatalf("compare status = %d", status)
	}
	if resp.Status != string(entity.SessionCompleted) || resp.Analysis == nil {
		t.Fatalf("unexpected compare response %+v", resp)
	}

	var fetched dto.SessionDTO
	if status := env.getJSON(t, "/api/snapshots/comparisons/"+resp.SessionID, &fetched); status != http.StatusOK {
		t.Fatalf("comparison fetch status = %d", status)
	}
	if fetched.Status != string(entity.SessionCompleted) {
		t.Fatalf("unexpected fetched session %+v", fetched)
	}
}

func TestLivenessTimeout(t *testing.T) {
	env := newTestEnv(t, nil)

	agent := env.dial(t, "/")
	registerAgent(t, env, agent, "svc-b")

	subscriber := env.dial(t, "/dashboard")
	if event := readEvent(t, subscriber); event.Type != dto.EventInitial {
		t.Fatalf("expected initial, got %s", event.Type)
	}

	// Сокет открыт, но сервис молчит дольше дедлайна
	affected := env.monitor.Sweep(time.Now().Add(2 * time.Minute))
	if len(affected) != 1 {
		t.Fatalf("expected one reaped service, got %d", len(affected))
	}

	update := waitForEvent(t, subscriber, dto.EventServiceUpdate)
	var payload dto.ServiceUpdatePayload
	if err := json.Unmarshal(update.Data, &payload); err != nil {
		t.Fatalf("decode serviceUpdate: %v", err)
	}
	if payload.Service != "svc-b" || payload.Status != "disconnected" {
		t.Fatalf("unexpected serviceUpdate %+v", payload)
	}

	var services []dto.ServiceDTO
	if status := env.getJSON(t, "/api/services", &services); status != http.StatusOK {
		t.Fatalf("services status = %d", status)
	}
	for _, svc := range services {
		if svc.Service == "svc-b" {
			t.Fatalf("svc-b must not be listed after timeout")
		}
	}
}

func TestAgentCloseReconciliation(t *testing.T) {
	env := newTestEnv(t, nil)

	agent := env.dial(t, "/")
	registerAgent(t, env, agent, "svc-a")

	subscriber := env.dial(t, "/dashboard")
	if event := readEvent(t, subscriber); event.Type != dto.EventInitial {
		t.Fatalf("expected initial, got %s", event.Type)
	}

	_ = agent.Close()

	update := waitForEvent(t, subscriber, dto.EventServiceUpdate)
	var payload dto.ServiceUpdatePayload
	if err := json.Unmarshal(update.Data, &payload); err != nil {
		t.Fatalf("decode serviceUpdate: %v", err)
	}
	if payload.Service != "svc-a" || payload.Status != "disconnected" {
		t.Fatalf("unexpected serviceUpdate %+v", payload)
	}
}

func TestInvalidFrameGetsErrorReply(t *testing.T) {
	env := newTestEnv(t, nil)

	agent := env.dial(t, "/")
	if err := agent.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = agent.SetReadDeadline(time.Now().Add(eventWait))
	var reply map[string]string
	if err := agent.ReadJSON(&reply); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if reply["error"] != "Invalid JSON message" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	// Соединение живо: валидный кадр после ошибки обрабатывается
	registerAgent(t, env, agent, "svc-after-error")
}

func TestUnknownEndpointReturns404JSON(t *testing.T) {
	env := newTestEnv(t, nil)

	var body map[string]string
	if status := env.getJSON(t, "/api/nope", &body); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if body["error"] == "" {
		t.Fatalf("expected JSON error body, got %+v", body)
	}
}

func TestUploadThenList(t *testing.T) {
	env := newTestEnv(t, nil)

	id := uploadSnapshot(t, env, "before", "snapshot-bytes")

	var list dto.SnapshotListDTO
	if status := env.getJSON(t, "/api/snapshots", &list); status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}

	found := false
	for _, snap := range list.Snapshots {
		if snap.ID == id {
			found = true
			if snap.Phase != "before" {
				t.Fatalf("phase not preserved: %+v", snap)
			}
			if snap.Size != int64(len("snapshot-bytes")) {
				t.Fatalf("size not byte-exact: %+v", snap)
			}
		}
	}
	if !found {
		t.Fatalf("uploaded snapshot missing from list")
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	var health dto.HealthDTO
	if status := env.getJSON(t, "/health", &health); status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected health %+v", health)
	}
}
