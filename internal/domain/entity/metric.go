package entity

import "time"

// MetricSample представляет один замер памяти процесса.
// Неизменяемая запись; ключ — сервис + timestamp.
type MetricSample struct {
	Service          string
	HeapUsedMB       float64
	HeapTotalMB      float64
	RSSMB            float64
	ExternalMB       float64
	EventLoopDelayMs float64
	MemoryGrowthMB   float64
	LeakDetected     bool

	// Timestamp — отметка агента в миллисекундах epoch
	Timestamp int64

	// ReceivedAt — момент приема на сервере, задает порядок в кольце
	ReceivedAt time.Time
}
