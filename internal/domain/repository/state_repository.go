package repository

import (
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/domain/entity"
)

// Stats — агрегированные счетчики состояния хаба
type Stats struct {
	Services          int
	ConnectedServices int
	MetricSamples     int
	Alerts            int
	Snapshots         int
	Comparisons       int
}

// StateRepository определяет интерфейс канонического состояния хаба (Port).
// Референсная реализация — in-memory c ограниченным удержанием;
// production-развертывание может подставить персистентный адаптер.
// Все методы неблокирующие и возвращают копии записей.
type StateRepository interface {
	// --- Сервисы ---

	// RegisterService создает или замещает регистрацию сервиса.
	// Новая регистрация вытесняет предыдущее producer-соединение.
	RegisterService(name string, ts time.Time, connID string) entity.Service

	// DisconnectByConn переводит в disconnected все сервисы,
	// ссылающиеся на соединение connID; возвращает затронутые сервисы.
	DisconnectByConn(connID string) []entity.Service

	// SweepInactive переводит в disconnected подключенные сервисы,
	// неактивные дольше timeout; возвращает затронутые сервисы.
	SweepInactive(now time.Time, timeout time.Duration) []entity.Service

	Service(name string) (entity.Service, bool)
	Services() []entity.Service
	ConnectedServices() []entity.Service

	// --- Метрики ---

	// AppendSample добавляет замер в кольцо сервиса (старейшие вытесняются)
	// и обновляет last-seen. Неизвестный сервис создается неявно.
	AppendSample(sample entity.MetricSample) entity.Service

	// SamplesWindow возвращает замеры сервиса в окне [from, to] (миллисекунды
	// epoch, 0 — без границы), не более limit последних, и общее число в окне.
	SamplesWindow(service string, from, to int64, limit int) ([]entity.MetricSample, int)

	LatestSample(service string) (entity.MetricSample, bool)

	// --- Алерты ---

	// RecordAlert присваивает монотонный ID, кладет алерт в глобальное кольцо
	// и инкрементирует счетчик алертов сервиса. Возвращает записанный алерт.
	RecordAlert(alert entity.Alert) entity.Alert

	// Alerts возвращает алерты в обратном хронологическом порядке
	// с фильтрами по сервису и severity (пустая строка — без фильтра).
	Alerts(service, severity string, limit int) []entity.Alert

	// RecentAlerts возвращает n последних алертов (новые первыми)
	RecentAlerts(n int) []entity.Alert

	// --- Снапшоты ---

	// PutSnapshot создает запись снапшота; повторный анонс того же id
	// замещает запись целиком.
	PutSnapshot(snap entity.Snapshot)

	// SetSnapshotProgress обновляет счетчики чанков
	SetSnapshotProgress(id string, received, total int) (entity.Snapshot, bool)

	// CompleteSnapshot помечает снапшот завершенным с путем к файлу
	CompleteSnapshot(id, filePath string) (entity.Snapshot, bool)

	Snapshot(id string) (entity.Snapshot, bool)
	Snapshots() []entity.Snapshot

	// --- Сессии сравнения ---

	PutSession(sess entity.ComparisonSession)
	Session(id string) (entity.ComparisonSession, bool)
	Sessions() []entity.ComparisonSession

	// BeginAnalysis атомарно переводит waiting → analyzing.
	// Возвращает false если сессия не найдена или уже покидала waiting.
	BeginAnalysis(id string) bool

	// CompleteSession фиксирует успешный результат (терминальное состояние)
	CompleteSession(id string, report *entity.AnalysisReport) (entity.ComparisonSession, bool)

	// FailSession фиксирует ошибку анализа (терминальное состояние)
	FailSession(id, errMsg string) (entity.ComparisonSession, bool)

	Stats() Stats
}
