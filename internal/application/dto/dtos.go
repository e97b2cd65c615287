package dto

import (
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

// ServiceDTO — представление сервиса для подписчиков и query surface
type ServiceDTO struct {
	Service      string           `json:"service"`
	Status       string           `json:"status"`
	RegisteredAt time.Time        `json:"registeredAt"`
	LastSeen     time.Time        `json:"lastSeen"`
	TotalAlerts  int              `json:"totalAlerts"`
	LastMetric   *MetricSampleDTO `json:"lastMetric,omitempty"`
}

// MetricSampleDTO — замер памяти в wire-формате агентского протокола
type MetricSampleDTO struct {
	Service          string  `json:"service"`
	HeapUsedMB       float64 `json:"heapUsedMB"`
	HeapTotalMB      float64 `json:"heapTotalMB"`
	RSSMB            float64 `json:"rssMB"`
	ExternalMB       float64 `json:"externalMB"`
	EventLoopDelayMs float64 `json:"eventLoopDelayMs"`
	Timestamp        int64   `json:"timestamp"`
	LeakDetected     bool    `json:"leakDetected"`
	MemoryGrowthMB   float64 `json:"memoryGrowthMB"`
}

// AlertDTO — алерт для подписчиков и query surface
type AlertDTO struct {
	ID             int64     `json:"id"`
	Service        string    `json:"service"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	HeapUsedMB     float64   `json:"heapUsedMB,omitempty"`
	MemoryGrowthMB float64   `json:"memoryGrowthMB,omitempty"`
	Filename       string    `json:"filename,omitempty"`
	FilePath       string    `json:"filepath,omitempty"`
}

// SnapshotDTO — снапшот для query surface и событий
type SnapshotDTO struct {
	ID             string    `json:"id"`
	ServiceName    string    `json:"serviceName"`
	ContainerID    string    `json:"containerId,omitempty"`
	Phase          string    `json:"phase"`
	Timestamp      int64     `json:"timestamp,omitempty"`
	Size           int64     `json:"size"`
	Filename       string    `json:"filename"`
	TotalChunks    int       `json:"totalChunks,omitempty"`
	ReceivedChunks int       `json:"receivedChunks,omitempty"`
	Complete       bool      `json:"complete"`
	FilePath       string    `json:"filePath,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SessionDTO — сессия сравнения для query surface и событий
type SessionDTO struct {
	SessionID        string                 `json:"sessionId"`
	ServiceName      string                 `json:"serviceName"`
	ContainerID      string                 `json:"containerId,omitempty"`
	BeforeSnapshotID string                 `json:"beforeSnapshotId"`
	AfterSnapshotID  string                 `json:"afterSnapshotId"`
	Timeframe        string                 `json:"timeframe,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	Status           string                 `json:"status"`
	Error            string                 `json:"error,omitempty"`
	Analysis         *entity.AnalysisReport `json:"analysis,omitempty"`
}

// FromService конвертирует доменную запись сервиса
func FromService(svc entity.Service, lastMetric *entity.MetricSample) ServiceDTO {
	d := ServiceDTO{
		Service:      svc.Name,
		Status:       string(svc.Status),
		RegisteredAt: svc.RegisteredAt,
		LastSeen:     svc.LastSeen,
		TotalAlerts:  svc.TotalAlerts,
	}
	if lastMetric != nil {
		metric := FromSample(*lastMetric)
		d.LastMetric = &metric
	}
	return d
}

// FromSample конвертирует доменный замер
func FromSample(sample entity.MetricSample) MetricSampleDTO {
	return MetricSampleDTO{
		Service:          sample.Service,
		HeapUsedMB:       sample.HeapUsedMB,
		HeapTotalMB:      sample.HeapTotalMB,
		RSSMB:            sample.RSSMB,
		ExternalMB:       sample.ExternalMB,
		EventLoopDelayMs: sample.EventLoopDelayMs,
		Timestamp:        sample.Timestamp,
		LeakDetected:     sample.LeakDetected,
		MemoryGrowthMB:   sample.MemoryGrowthMB,
	}
}

// ToSamples конвертирует слайс замеров
func ToSamples(samples []entity.MetricSample) []MetricSampleDTO {
	result := make([]MetricSampleDTO, 0, len(samples))
	for _, sample := range samples {
		result = append(result, FromSample(sample))
	}
	return result
}

// FromAlert конвертирует доменный алерт
func FromAlert(alert entity.Alert) AlertDTO {
	return AlertDTO{
		ID:             alert.ID,
		Service:        alert.Service,
		Type:           string(alert.Kind),
		Severity:       string(alert.Severity),
		Message:        alert.Message,
		Timestamp:      alert.Timestamp,
		HeapUsedMB:     alert.HeapUsedMB,
		MemoryGrowthMB: alert.MemoryGrowthMB,
		Filename:       alert.Filename,
		FilePath:       alert.FilePath,
	}
}

// ToAlerts конвертирует слайс алертов
func ToAlerts(alerts []entity.Alert) []AlertDTO {
	result := make([]AlertDTO, 0, len(alerts))
	for _, alert := range alerts {
		result = append(result, FromAlert(alert))
	}
	return result
}

// FromSnapshot конвертирует доменный снапшот
func FromSnapshot(snap entity.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:             snap.ID,
		ServiceName:    snap.ServiceName,
		ContainerID:    snap.ContainerID,
		Phase:          string(snap.Phase),
		Timestamp:      snap.Timestamp,
		Size:           snap.Size,
		Filename:       snap.Filename,
		TotalChunks:    snap.TotalChunks,
		ReceivedChunks: snap.ReceivedChunks,
		Complete:       snap.Complete,
		FilePath:       snap.FilePath,
		CreatedAt:      snap.CreatedAt,
	}
}

// FromSession конвертирует доменную сессию сравнения
func FromSession(sess entity.ComparisonSession) SessionDTO {
	return SessionDTO{
		SessionID:        sess.ID,
		ServiceName:      sess.ServiceName,
		ContainerID:      sess.ContainerID,
		BeforeSnapshotID: sess.BeforeSnapshotID,
		AfterSnapshotID:  sess.AfterSnapshotID,
		Timeframe:        sess.Timeframe,
		CreatedAt:        sess.CreatedAt,
		Status:           string(sess.Status),
		Error:            sess.Error,
		Analysis:         sess.Result,
	}
}
