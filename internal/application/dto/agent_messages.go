package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Теги входящих сообщений агентов
const (
	MsgRegistration             = "registration"
	MsgMetrics                  = "metrics"
	MsgSnapshotNotice           = "snapshot"
	MsgCaptureAgentRegistration = "capture-agent-registration"
	MsgSnapshotMetadata         = "snapshot-metadata"
	MsgSnapshotChunk            = "snapshot-chunk"
	MsgSnapshotComplete         = "snapshot-complete"
	MsgComparisonReady          = "comparison-ready"
)

// ErrInvalidMessage возвращается когда кадр не является валидным
// тегированным сообщением. Ответ на такой кадр — inline error frame,
// соединение не закрывается.
var ErrInvalidMessage = errors.New("invalid agent message")

// AgentMessage — размеченный union входящего кадра: Type плюс ровно одно
// заполненное поле полезной нагрузки.
type AgentMessage struct {
	Type string

	Registration      *RegistrationMessage
	Metrics           *MetricsMessage
	SnapshotNotice    *SnapshotNoticeMessage
	CaptureAgent      *CaptureAgentRegistrationMessage
	SnapshotMetadata  *SnapshotMetadataMessage
	SnapshotChunk     *SnapshotChunkMessage
	SnapshotComplete  *SnapshotCompleteMessage
	ComparisonReady   *ComparisonReadyMessage
}

// RegistrationMessage — регистрация memory-агента сервиса
type RegistrationMessage struct {
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
}

// MetricsMessage — один замер памяти от memory-агента
type MetricsMessage struct {
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

// SnapshotNoticeMessage — legacy уведомление о готовом файле снапшота
type SnapshotNoticeMessage struct {
	Service   string `json:"service"`
	Filename  string `json:"filename"`
	Filepath  string `json:"filepath"`
	Timestamp int64  `json:"timestamp"`
}

// CaptureAgentRegistrationMessage — регистрация capture-агента
type CaptureAgentRegistrationMessage struct {
	ServiceName string `json:"serviceName"`
	ContainerID string `json:"containerId"`
	Timestamp   int64  `json:"timestamp"`
}

// SnapshotMetadata — анонс снапшота перед потоком чанков
type SnapshotMetadata struct {
	ID          string `json:"id"`
	ServiceName string `json:"serviceName"`
	ContainerID string `json:"containerId"`
	Phase       string `json:"phase"`
	Timestamp   int64  `json:"timestamp"`
	Size        int64  `json:"size"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"totalChunks,omitempty"`
}

type SnapshotMetadataMessage struct {
	Snapshot SnapshotMetadata `json:"snapshot"`
}

// SnapshotChunkMessage — один чанк снапшота; Data — base64 текст
type SnapshotChunkMessage struct {
	SnapshotID  string `json:"snapshotId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Data        string `json:"data"`
}

// SnapshotCompleteMessage — сигнал завершения передачи.
// Агенты присылают id как snapshotId либо как id.
type SnapshotCompleteMessage struct {
	SnapshotID string `json:"snapshotId"`
	ID         string `json:"id"`
}

// ResolveID возвращает идентификатор снапшота независимо от имени поля
func (m *SnapshotCompleteMessage) ResolveID() string {
	if m.SnapshotID != "" {
		return m.SnapshotID
	}
	return m.ID
}

// ComparisonReadyMessage — триггер before/after анализа
type ComparisonReadyMessage struct {
	ServiceName      string `json:"serviceName"`
	ContainerID      string `json:"containerId"`
	BeforeSnapshotID string `json:"beforeSnapshotId"`
	AfterSnapshotID  string `json:"afterSnapshotId"`
	Timeframe        string `json:"timeframe"`
	Timestamp        int64  `json:"timestamp"`
}

// ParseAgentMessage декодирует тегированный кадр агента.
// Кадр с невалидным JSON или без строкового тега дает ErrInvalidMessage.
// Неизвестный тег валиден: возвращается сообщение с пустой нагрузкой,
// решение о нем принимает диспетчер (лог + игнор).
func ParseAgentMessage(frame []byte) (*AgentMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if strings.TrimSpace(envelope.Type) == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	msg := &AgentMessage{Type: envelope.Type}

	var payloadErr error
	switch envelope.Type {
	case MsgRegistration:
		msg.Registration = &RegistrationMessage{}
		payloadErr = json.Unmarshal(frame, msg.Registration)
	case MsgMetrics:
		msg.Metrics = &MetricsMessage{}
		payloadErr = json.Unmarshal(frame, msg.Metrics)
	case MsgSnapshotNotice:
		msg.SnapshotNotice = &SnapshotNoticeMessage{}
		payloadErr = json.Unmarshal(frame, msg.SnapshotNotice)
	case MsgCaptureAgentRegistration:
		msg.CaptureAgent = &CaptureAgentRegistrationMessage{}
		payloadErr = json.Unmarshal(frame, msg.CaptureAgent)
	case MsgSnapshotMetadata:
		msg.SnapshotMetadata = &SnapshotMetadataMessage{}
		payloadErr = json.Unmarshal(frame, msg.SnapshotMetadata)
	case MsgSnapshotChunk:
		msg.SnapshotChunk = &SnapshotChunkMessage{}
		payloadErr = json.Unmarshal(frame, msg.SnapshotChunk)
	case MsgSnapshotComplete:
		msg.SnapshotComplete = &SnapshotCompleteMessage{}
		payloadErr = json.Unmarshal(frame, msg.SnapshotComplete)
	case MsgComparisonReady:
		msg.ComparisonReady = &ComparisonReadyMessage{}
		payloadErr = json.Unmarshal(frame, msg.ComparisonReady)
	default:
		// Неизвестный тег: логируется и игнорируется выше по стеку
	}

	if payloadErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, payloadErr)
	}

	return msg, nil
}

// ErrorFrame — inline-ответ на невалидный кадр
type ErrorFrame struct {
	Error string `json:"error"`
}

// NewInvalidMessageFrame возвращает сериализованный error frame
func NewInvalidMessageFrame() []byte {
	data, _ := json.Marshal(ErrorFrame{Error: "Invalid JSON message"})
	return data
}
