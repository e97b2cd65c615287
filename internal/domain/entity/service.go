package entity

import "time"

// ServiceStatus представляет статус подключения сервиса
type ServiceStatus string

const (
	StatusConnected    ServiceStatus = "connected"
	StatusDisconnected ServiceStatus = "disconnected"
)

// Service представляет инструментированный сервис, приславший хотя бы одну
// регистрацию. Запись живет до конца процесса; при разрыве соединения
// очищается только ссылка на producer-соединение и статус.
type Service struct {
	Name         string
	RegisteredAt time.Time
	LastSeen     time.Time
	Status       ServiceStatus
	TotalAlerts  int

	// ProducerConnID — невладеющая ссылка на текущее соединение-источник.
	// Владельцем соединения остается connection handler.
	ProducerConnID string
}

// Touch обновляет отметку активности
func (s *Service) Touch(ts time.Time) {
	s.LastSeen = ts
	s.Status = StatusConnected
}

// AttachProducer заменяет producer-соединение (supersede-in-place)
func (s *Service) AttachProducer(connID string) {
	s.ProducerConnID = connID
	s.Status = StatusConnected
}

// Disconnect очищает ссылку на соединение и переводит сервис в disconnected
func (s *Service) Disconnect() {
	s.ProducerConnID = ""
	s.Status = StatusDisconnected
}
