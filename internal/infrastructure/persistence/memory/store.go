package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
)

// Store — референсная in-memory реализация repository.StateRepository.
// Единственный владелец долгоживущих записей: сервисы, кольца метрик,
// кольцо алертов, снапшоты, сессии сравнения.
//
// Все методы выполняются целиком под одним мьютексом и не содержат точек
// приостановки: ни IO, ни сетевых вызовов под локом.
type Store struct {
	mu sync.RWMutex

	metricsCap int
	alertsCap  int

	services map[string]*entity.Service
	samples  map[string][]entity.MetricSample

	alerts      []entity.Alert
	nextAlertID int64

	snapshots map[string]*entity.Snapshot
	sessions  map[string]*entity.ComparisonSession
}

// NewStore создает пустое состояние с лимитами колец
func NewStore(metricsCap, alertsCap int) *Store {
	if metricsCap <= 0 {
		metricsCap = 1000
	}
	if alertsCap <= 0 {
		alertsCap = 100
	}
	return &Store{
		metricsCap: metricsCap,
		alertsCap:  alertsCap,
		services:   make(map[string]*entity.Service),
		samples:    make(map[string][]entity.MetricSample),
		snapshots:  make(map[string]*entity.Snapshot),
		sessions:   make(map[string]*entity.ComparisonSession),
	}
}

// --- Сервисы ---

// RegisterService создает сервис либо замещает его producer-соединение.
// Метрики и алерты прежней регистрации сохраняются.
func (s *Store) RegisterService(name string, ts time.Time, connID string) entity.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[name]
	if !ok {
		svc = &entity.Service{
			Name:         name,
			RegisteredAt: ts,
		}
		s.services[name] = svc
	}
	svc.Touch(ts)
	svc.AttachProducer(connID)
	return *svc
}

func (s *Store) DisconnectByConn(connID string) []entity.Service {
	if connID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []entity.Service
	for _, svc := range s.services {
		if svc.ProducerConnID == connID {
			svc.Disconnect()
			affected = append(affected, *svc)
		}
	}
	return affected
}

func (s *Store) SweepInactive(now time.Time, timeout time.Duration) []entity.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []entity.Service
	for _, svc := range s.services {
		if svc.Status != entity.StatusConnected {
			continue
		}
		if now.Sub(svc.LastSeen) > timeout {
			svc.Disconnect()
			affected = append(affected, *svc)
		}
	}
	return affected
}

func (s *Store) Service(name string) (entity.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[name]
	if !ok {
		return entity.Service{}, false
	}
	return *svc, true
}

func (s *Store) Services() []entity.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectServices(func(*entity.Service) bool { return true })
}

func (s *Store) ConnectedServices() []entity.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectServices(func(svc *entity.Service) bool {
		return svc.Status == entity.StatusConnected
	})
}

func (s *Store) collectServices(match func(*entity.Service) bool) []entity.Service {
	result := make([]entity.Service, 0, len(s.services))
	for _, svc := range s.services {
		if match(svc) {
			result = append(result, *svc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Метрики ---

// AppendSample добавляет замер в кольцо сервиса. Порядок — порядок прихода;
// при переполнении вытесняется ровно старейший замер.
func (s *Store) AppendSample(sample entity.MetricSample) entity.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[sample.Service]
	if !ok {
		svc = &entity.Service{
			Name:         sample.Service,
			RegisteredAt: sample.ReceivedAt,
		}
		s.services[sample.Service] = svc
	}
	svc.Touch(sample.ReceivedAt)

	ring := append(s.samples[sample.Service], sample)
	if len(ring) > s.metricsCap {
		ring = ring[len(ring)-s.metricsCap:]
	}
	s.samples[sample.Service] = ring

	return *svc
}

func (s *Store) SamplesWindow(service string, from, to int64, limit int) ([]entity.MetricSample, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.samples[service]
	matched := make([]entity.MetricSample, 0, len(ring))
	for _, sample := range ring {
		if from > 0 && sample.Timestamp < from {
			continue
		}
		if to > 0 && sample.Timestamp > to {
			continue
		}
		matched = append(matched, sample)
	}

	total := len(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, total
}

func (s *Store) LatestSample(service string) (entity.MetricSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.samples[service]
	if len(ring) == 0 {
		return entity.MetricSample{}, false
	}
	return ring[len(ring)-1], true
}

// --- Алерты ---

func (s *Store) RecordAlert(alert entity.Alert) entity.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAlertID++
	alert.ID = s.nextAlertID
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > s.alertsCap {
		s.alerts = s.alerts[len(s.alerts)-s.alertsCap:]
	}

	if svc, ok := s.services[alert.Service]; ok {
		svc.TotalAlerts++
	}
	return alert
}

func (s *Store) Alerts(service, severity string, limit int) []entity.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]entity.Alert, 0, len(s.alerts))
	for i := len(s.alerts) - 1; i >= 0; i-- {
		alert := s.alerts[i]
		if service != "" && alert.Service != service {
			continue
		}
		if severity != "" && string(alert.Severity) != severity {
			continue
		}
		result = append(result, alert)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

func (s *Store) RecentAlerts(n int) []entity.Alert {
	return s.Alerts("", "", n)
}

// --- Снапшоты ---

func (s *Store) PutSnapshot(snap entity.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := snap
	s.snapshots[snap.ID] = &stored
}

func (s *Store) SetSnapshotProgress(id string, received, total int) (entity.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return entity.Snapshot{}, false
	}
	snap.ReceivedChunks = received
	if total > 0 {
		snap.TotalChunks = total
	}
	return *snap, true
}

func (s *Store) CompleteSnapshot(id, filePath string) (entity.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return entity.Snapshot{}, false
	}
	snap.Complete = true
	snap.FilePath = filePath
	return *snap, true
}

func (s *Store) Snapshot(id string) (entity.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return entity.Snapshot{}, false
	}
	return *snap, true
}

func (s *Store) Snapshots() []entity.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]entity.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		result = append(result, *snap)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// --- Сессии сравнения ---

func (s *Store) PutSession(sess entity.ComparisonSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := sess
	s.sessions[sess.ID] = &stored
}

// BeginAnalysis — единственный путь в analyzing; повторный вход невозможен
func (s *Store) BeginAnalysis(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Status != entity.SessionWaiting {
		return false
	}
	sess.Status = entity.SessionAnalyzing
	return true
}

func (s *Store) CompleteSession(id string, report *entity.AnalysisReport) (entity.ComparisonSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Status != entity.SessionAnalyzing {
		return entity.ComparisonSession{}, false
	}
	sess.Status = entity.SessionCompleted
	sess.Result = report
	return *sess, true
}

func (s *Store) FailSession(id, errMsg string) (entity.ComparisonSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Status != entity.SessionAnalyzing {
		return entity.ComparisonSession{}, false
	}
	sess.Status = entity.SessionFailed
	sess.Error = errMsg
	return *sess, true
}

func (s *Store) Session(id string) (entity.ComparisonSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return entity.ComparisonSession{}, false
	}
	return *sess, true
}

func (s *Store) Sessions() []entity.ComparisonSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]entity.ComparisonSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, *sess)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// --- Статистика ---

func (s *Store) Stats() repository.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connected := 0
	for _, svc := range s.services {
		if svc.Status == entity.StatusConnected {
			connected++
		}
	}

	samples := 0
	for _, ring := range s.samples {
		samples += len(ring)
	}

	return repository.Stats{
		Services:          len(s.services),
		ConnectedServices: connected,
		MetricSamples:     samples,
		Alerts:            len(s.alerts),
		Snapshots:         len(s.snapshots),
		Comparisons:       len(s.sessions),
	}
}
