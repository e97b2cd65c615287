package entity

import "time"

// SessionStatus — статус сессии сравнения.
// Допустимые переходы: waiting → analyzing → {completed, failed}.
// Терминальные состояния необратимы; analyzing достигается не более одного раза.
type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting"
	SessionAnalyzing SessionStatus = "analyzing"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ComparisonSession — координационная запись одного before/after анализа
type ComparisonSession struct {
	ID               string
	ServiceName      string
	ContainerID      string
	BeforeSnapshotID string
	AfterSnapshotID  string
	Timeframe        string
	CreatedAt        time.Time
	Status           SessionStatus
	Error            string
	Result           *AnalysisReport
}

// Terminal сообщает, достигла ли сессия конечного состояния
func (s *ComparisonSession) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}
