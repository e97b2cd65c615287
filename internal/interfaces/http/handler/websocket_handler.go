package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/ingest"
	wsInfra "github.com/dreschagin/memleak-dashboard/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
	"github.com/gorilla/websocket"
)

// WebSocketHandler классифицирует входящие websocket-соединения:
// путь содержащий "dashboard" — подписчик, остальные — агенты
type WebSocketHandler struct {
	hub             *wsInfra.Hub
	dispatcher      *ingest.Dispatcher
	metrics         *metrics.Metrics
	logger          *logger.Logger
	allowedOrigins  map[string]struct{}
	maxMessageBytes int64
	baseCtx         context.Context
	upgrader        websocket.Upgrader
}

// NewWebSocketHandler создает новый handler.
// baseCtx ограничивает время жизни read-циклов временем жизни сервера.
func NewWebSocketHandler(
	baseCtx context.Context,
	hub *wsInfra.Hub,
	dispatcher *ingest.Dispatcher,
	allowedOrigins []string,
	maxMessageBytes int64,
	m *metrics.Metrics,
	logger *logger.Logger,
) *WebSocketHandler {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	handler := &WebSocketHandler{
		hub:             hub,
		dispatcher:      dispatcher,
		metrics:         m,
		logger:          logger,
		allowedOrigins:  originMap,
		maxMessageBytes: maxMessageBytes,
		baseCtx:         baseCtx,
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     handler.checkOrigin,
	}

	return handler
}

// checkOrigin пропускает не-браузерные клиенты (без Origin) и браузерные
// origin'ы из разрешенного списка
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Агенты и CLI-клиенты не присылают Origin
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	if _, ok := h.allowedOrigins["*"]; ok {
		return true
	}
	normalized := parsed.Scheme + "://" + parsed.Host
	_, ok := h.allowedOrigins[normalized]
	return ok
}

// HandleConnection принимает websocket и классифицирует его по пути запроса
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	isDashboard := strings.Contains(r.URL.Path, "dashboard")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", err, "path", r.URL.Path)
		return
	}

	if isDashboard {
		h.handleSubscriber(conn)
		return
	}
	h.handleAgent(conn)
}

// handleSubscriber передает соединение хабу подписчиков
func (h *WebSocketHandler) handleSubscriber(conn *websocket.Conn) {
	client := wsInfra.NewClient(h.hub, conn, h.logger)
	h.hub.Register(client)

	// Запускаем pumps в отдельных goroutines
	go client.WritePump()
	go client.ReadPump()
}

// handleAgent запускает read-цикл агентского соединения
func (h *WebSocketHandler) handleAgent(conn *websocket.Conn) {
	agentConn := ingest.NewConnection(conn, h.dispatcher, h.metrics, h.logger, h.maxMessageBytes)
	h.logger.Debug("Agent connected", "conn", agentConn.ID)

	go agentConn.ReadLoop(h.baseCtx)
}
