package dto

import (
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

// HealthDTO — ответ GET /health
type HealthDTO struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  int       `json:"services"`
	Alerts    int       `json:"alerts"`
}

// MetricsWindowDTO — ответ GET /api/services/{name}/metrics
type MetricsWindowDTO struct {
	Service string            `json:"service"`
	Metrics []MetricSampleDTO `json:"metrics"`
	Total   int               `json:"total"`
}

// MemoryUsageDTO — память процесса сервера для GET /api/stats
type MemoryUsageDTO struct {
	ProcessRSSMB    float64 `json:"processRssMB"`
	ProcessVMSMB    float64 `json:"processVmsMB"`
	GoHeapAllocMB   float64 `json:"goHeapAllocMB"`
	HostUsedPercent float64 `json:"hostUsedPercent"`
}

// StatsDTO — ответ GET /api/stats
type StatsDTO struct {
	Services          int            `json:"services"`
	ConnectedServices int            `json:"connectedServices"`
	MetricSamples     int            `json:"metricSamples"`
	Alerts            int            `json:"alerts"`
	Snapshots         int            `json:"snapshots"`
	Comparisons       int            `json:"comparisons"`
	Subscribers       int            `json:"subscribers"`
	UptimeSeconds     float64        `json:"uptimeSeconds"`
	Memory            MemoryUsageDTO `json:"memory"`
}

// AlertsResponseDTO — ответ GET /api/alerts
type AlertsResponseDTO struct {
	Alerts []AlertDTO `json:"alerts"`
	Total  int        `json:"total"`
}

// SnapshotSessionDTO — группировка снапшотов по префиксу имени файла.
// Сессия полна когда в ней есть и before-, и after-снапшот.
type SnapshotSessionDTO struct {
	SessionID   string        `json:"sessionId"`
	ServiceName string        `json:"serviceName"`
	Snapshots   []SnapshotDTO `json:"snapshots"`
	Complete    bool          `json:"complete"`
}

// SnapshotListDTO — ответ GET /api/snapshots
type SnapshotListDTO struct {
	Snapshots []SnapshotDTO        `json:"snapshots"`
	Sessions  []SnapshotSessionDTO `json:"sessions"`
}

// UploadSnapshotRequest — тело POST /api/snapshots/upload
type UploadSnapshotRequest struct {
	ServiceName  string `json:"serviceName"`
	ContainerID  string `json:"containerId"`
	Phase        string `json:"phase"`
	SnapshotData string `json:"snapshotData"`
	Filename     string `json:"filename"`
}

// UploadSnapshotResponse — ответ POST /api/snapshots/upload
type UploadSnapshotResponse struct {
	Snapshot SnapshotDTO `json:"snapshot"`
}

// CompareRequest — тело POST /api/snapshots/compare
type CompareRequest struct {
	ServiceName      string `json:"serviceName"`
	ContainerID      string `json:"containerId"`
	BeforeSnapshotID string `json:"beforeSnapshotId"`
	AfterSnapshotID  string `json:"afterSnapshotId"`
}

// CompareResponse — ответ POST /api/snapshots/compare
type CompareResponse struct {
	SessionID string                 `json:"sessionId"`
	Status    string                 `json:"status"`
	Analysis  *entity.AnalysisReport `json:"analysis,omitempty"`
	Missing   *MissingSnapshots      `json:"missingSnapshots,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
