package entity

import "time"

// AlertKind различает источники алертов
type AlertKind string

const (
	AlertKindLeak     AlertKind = "leak"
	AlertKindSnapshot AlertKind = "snapshot"
)

// AlertSeverity — уровень важности алерта
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert представляет зафиксированное событие: утечка памяти или
// уведомление о снапшоте. Идентификатор монотонно растет в пределах процесса.
type Alert struct {
	ID        int64
	Service   string
	Kind      AlertKind
	Severity  AlertSeverity
	Message   string
	Timestamp time.Time

	// Поля для Kind == leak
	HeapUsedMB     float64
	MemoryGrowthMB float64

	// Поля для Kind == snapshot
	Filename string
	FilePath string
}
