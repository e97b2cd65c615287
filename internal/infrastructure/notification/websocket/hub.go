package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// InitialStateFunc строит первый кадр подписчика из текущего состояния.
// Вызывается в goroutine хаба; обязана быть неблокирующей.
type InitialStateFunc func() dto.Event

// preparedEvent — событие, сериализованное ровно один раз
type preparedEvent struct {
	eventType string
	frame     []byte
}

// Hub управляет dashboard-подписчиками и рассылает события.
// Реализует интерфейс port.EventNotifier.
//
// Членство в наборе подписчиков принадлежит goroutine Run; доставка идет
// через буферизованный канал каждого клиента. Подписчик, чей канал полон
// или чья запись упала, вытесняется из набора.
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Канал для broadcast событий
	broadcast chan preparedEvent

	// Каналы регистрации и удаления клиентов
	register   chan *Client
	unregister chan *Client

	// Mutex для защиты clients map
	mu sync.RWMutex

	// Снимок состояния для initial-кадра
	initialState InitialStateFunc

	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewHub создает новый WebSocket hub
func NewHub(initialState InitialStateFunc, m *metrics.Metrics, log *logger.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		broadcast:    make(chan preparedEvent, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		initialState: initialState,
		metrics:      m,
		logger:       log,
	}
}

// Run запускает hub (должен быть запущен в отдельной goroutine)
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.broadcast:
			h.fanOut(event)

		case <-ctx.Done():
			h.logger.Info("WebSocket hub stopped")
			return
		}
	}
}

// addClient добавляет подписчика и ставит initial первым кадром в его канал
func (h *Hub) addClient(client *Client) {
	initial := h.initialState()
	frame, err := json.Marshal(initial)
	if err != nil {
		h.logger.Error("Failed to marshal initial event", err)
		close(client.send)
		return
	}

	h.mu.Lock()
	h.clients[client] = true
	// Канал клиента пуст: initial гарантированно первый кадр
	client.send <- frame
	h.mu.Unlock()

	h.metrics.Subscribers.Set(float64(h.SubscriberCount()))
	h.logger.Debug("Subscriber registered", "total_subscribers", h.SubscriberCount())
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()

	h.metrics.Subscribers.Set(float64(h.SubscriberCount()))
	h.logger.Debug("Subscriber unregistered", "total_subscribers", h.SubscriberCount())
}

func (h *Hub) fanOut(event preparedEvent) {
	h.mu.Lock()
	for client := range h.clients {
		select {
		case client.send <- event.frame:
			// Кадр поставлен в очередь клиента
		default:
			// Канал клиента полон: подписчик отстал, вытесняем
			close(client.send)
			delete(h.clients, client)
			h.metrics.SubscribersEvicted.Inc()
			h.logger.Warn("Subscriber lagging, evicted", "event_type", event.eventType)
		}
	}
	h.mu.Unlock()

	h.metrics.Subscribers.Set(float64(h.SubscriberCount()))
}

// Register регистрирует нового подписчика
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет подписчика
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish сериализует событие один раз и рассылает всем подписчикам
// (реализация port.EventNotifier). Порядок публикаций сохраняется
// для каждого выжившего подписчика.
func (h *Hub) Publish(event dto.Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", err, "type", event.Type)
		return
	}

	h.metrics.EventsPublished.WithLabelValues(event.Type).Inc()
	h.broadcast <- preparedEvent{eventType: event.Type, frame: frame}
}

// SubscriberCount возвращает количество подписчиков (реализация port.EventNotifier)
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
