package entity

import "time"

// SnapshotPhase — фаза захвата: до или после наблюдаемого периода
type SnapshotPhase string

const (
	PhaseBefore SnapshotPhase = "before"
	PhaseAfter  SnapshotPhase = "after"
)

// Snapshot представляет heap-снапшот, доставляемый чанками.
// Complete выставляется только когда получено completion-сообщение
// и все чанки на месте; после этого байты лежат в FilePath.
type Snapshot struct {
	ID             string
	ServiceName    string
	ContainerID    string
	Phase          SnapshotPhase
	Timestamp      int64
	Size           int64
	Filename       string
	TotalChunks    int
	ReceivedChunks int
	Complete       bool
	FilePath       string
	CreatedAt      time.Time
}
