package dto

import (
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

// Типы исходящих событий для dashboard-подписчиков
const (
	EventInitial                = "initial"
	EventServiceRegistered      = "serviceRegistered"
	EventServiceUpdate          = "serviceUpdate"
	EventMetricsUpdate          = "metricsUpdate"
	EventLeakAlert              = "leakAlert"
	EventSnapshotAlert          = "snapshotAlert"
	EventCaptureAgentRegistered = "captureAgentRegistered"
	EventSnapshotStarted        = "snapshotStarted"
	EventSnapshotProgress       = "snapshotProgress"
	EventSnapshotCompleted      = "snapshotCompleted"
	EventComparisonStarted      = "comparisonStarted"
	EventComparisonCompleted    = "comparisonCompleted"
	EventComparisonFailed       = "comparisonFailed"
	EventComparisonPending      = "comparisonPending"
)

// Event — исходящий кадр для подписчика: тег плюс полезная нагрузка
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// InitialPayload — первый кадр подписчика: срез текущего состояния
type InitialPayload struct {
	Services []ServiceDTO `json:"services"`
	Alerts   []AlertDTO   `json:"alerts"`
}

// ServiceUpdatePayload — переход статуса сервиса
type ServiceUpdatePayload struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureAgentPayload — регистрация capture-агента
type CaptureAgentPayload struct {
	ServiceName string `json:"serviceName"`
	ContainerID string `json:"containerId"`
	Timestamp   int64  `json:"timestamp"`
}

// SnapshotProgressPayload — прием одного чанка
type SnapshotProgressPayload struct {
	SnapshotID     string  `json:"snapshotId"`
	ReceivedChunks int     `json:"receivedChunks"`
	TotalChunks    int     `json:"totalChunks"`
	Progress       float64 `json:"progress"`
}

// SnapshotCompletedPayload — снапшот собран и сохранен на диск
type SnapshotCompletedPayload struct {
	SnapshotID  string `json:"snapshotId"`
	ServiceName string `json:"serviceName"`
	Phase       string `json:"phase"`
	Filename    string `json:"filename"`
	FilePath    string `json:"filePath"`
	Size        int64  `json:"size"`
}

// MissingSnapshots указывает какие снапшоты не готовы к сравнению
type MissingSnapshots struct {
	Before bool `json:"before"`
	After  bool `json:"after"`
}

// ComparisonPendingPayload — сравнение отложено: не хватает снапшотов
type ComparisonPendingPayload struct {
	SessionID        string           `json:"sessionId"`
	ServiceName      string           `json:"serviceName"`
	MissingSnapshots MissingSnapshots `json:"missingSnapshots"`
}

// ComparisonStartedPayload — анализ запущен
type ComparisonStartedPayload struct {
	SessionID        string `json:"sessionId"`
	ServiceName      string `json:"serviceName"`
	BeforeSnapshotID string `json:"beforeSnapshotId"`
	AfterSnapshotID  string `json:"afterSnapshotId"`
}

// ComparisonCompletedPayload — анализ завершен успешно
type ComparisonCompletedPayload struct {
	SessionID   string                 `json:"sessionId"`
	ServiceName string                 `json:"serviceName"`
	Analysis    *entity.AnalysisReport `json:"analysis"`
}

// ComparisonFailedPayload — оба анализатора завершились ошибкой
type ComparisonFailedPayload struct {
	SessionID   string `json:"sessionId"`
	ServiceName string `json:"serviceName"`
	Error       string `json:"error"`
}

func NewInitialEvent(services []ServiceDTO, alerts []AlertDTO) Event {
	if services == nil {
		services = []ServiceDTO{}
	}
	if alerts == nil {
		alerts = []AlertDTO{}
	}
	return Event{Type: EventInitial, Data: InitialPayload{Services: services, Alerts: alerts}}
}

func NewServiceRegisteredEvent(svc entity.Service) Event {
	return Event{Type: EventServiceRegistered, Data: FromService(svc, nil)}
}

func NewServiceUpdateEvent(svc entity.Service, now time.Time) Event {
	return Event{Type: EventServiceUpdate, Data: ServiceUpdatePayload{
		Service:   svc.Name,
		Status:    string(svc.Status),
		Timestamp: now,
	}}
}

func NewMetricsUpdateEvent(sample entity.MetricSample) Event {
	return Event{Type: EventMetricsUpdate, Data: FromSample(sample)}
}

func NewLeakAlertEvent(alert entity.Alert) Event {
	return Event{Type: EventLeakAlert, Data: FromAlert(alert)}
}

func NewSnapshotAlertEvent(alert entity.Alert) Event {
	return Event{Type: EventSnapshotAlert, Data: FromAlert(alert)}
}

func NewCaptureAgentRegisteredEvent(serviceName, containerID string, ts int64) Event {
	return Event{Type: EventCaptureAgentRegistered, Data: CaptureAgentPayload{
		ServiceName: serviceName,
		ContainerID: containerID,
		Timestamp:   ts,
	}}
}

func NewSnapshotStartedEvent(snap entity.Snapshot) Event {
	return Event{Type: EventSnapshotStarted, Data: FromSnapshot(snap)}
}

func NewSnapshotProgressEvent(snap entity.Snapshot) Event {
	progress := 0.0
	if snap.TotalChunks > 0 {
		progress = float64(snap.ReceivedChunks) / float64(snap.TotalChunks) * 100
	}
	return Event{Type: EventSnapshotProgress, Data: SnapshotProgressPayload{
		SnapshotID:     snap.ID,
		ReceivedChunks: snap.ReceivedChunks,
		TotalChunks:    snap.TotalChunks,
		Progress:       progress,
	}}
}

func NewSnapshotCompletedEvent(snap entity.Snapshot) Event {
	return Event{Type: EventSnapshotCompleted, Data: SnapshotCompletedPayload{
		SnapshotID:  snap.ID,
		ServiceName: snap.ServiceName,
		Phase:       string(snap.Phase),
		Filename:    snap.Filename,
		FilePath:    snap.FilePath,
		Size:        snap.Size,
	}}
}

func NewComparisonPendingEvent(sess entity.ComparisonSession, missing MissingSnapshots) Event {
	return Event{Type: EventComparisonPending, Data: ComparisonPendingPayload{
		SessionID:        sess.ID,
		ServiceName:      sess.ServiceName,
		MissingSnapshots: missing,
	}}
}

func NewComparisonStartedEvent(sess entity.ComparisonSession) Event {
	return Event{Type: EventComparisonStarted, Data: ComparisonStartedPayload{
		SessionID:        sess.ID,
		ServiceName:      sess.ServiceName,
		BeforeSnapshotID: sess.BeforeSnapshotID,
		AfterSnapshotID:  sess.AfterSnapshotID,
	}}
}

func NewComparisonCompletedEvent(sess entity.ComparisonSession) Event {
	return Event{Type: EventComparisonCompleted, Data: ComparisonCompletedPayload{
		SessionID:   sess.ID,
		ServiceName: sess.ServiceName,
		Analysis:    sess.Result,
	}}
}

func NewComparisonFailedEvent(sess entity.ComparisonSession) Event {
	return Event{Type: EventComparisonFailed, Data: ComparisonFailedPayload{
		SessionID:   sess.ID,
		ServiceName: sess.ServiceName,
		Error:       sess.Error,
	}}
}
