package ingest

import (
	"context"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection — одно агентское соединение и его машина состояний.
// До первого тегированного сообщения соединение не классифицировано;
// registration делает его metrics-producer, capture-agent-registration —
// capture-агентом. Кадры обрабатываются строго в порядке прихода.
//
// Соединение принадлежит своему read-циклу; сервисные записи ссылаются
// на него только по ID.
type Connection struct {
	ID string

	conn       *websocket.Conn
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *logger.Logger

	// serviceName заполняется при классификации, только для логов
	serviceName  string
	captureAgent bool
}

// NewConnection оборачивает принятый websocket агента
func NewConnection(conn *websocket.Conn, dispatcher *Dispatcher, m *metrics.Metrics, log *logger.Logger, maxMessageBytes int64) *Connection {
	if maxMessageBytes > 0 {
		conn.SetReadLimit(maxMessageBytes)
	}
	return &Connection{
		ID:         uuid.NewString(),
		conn:       conn,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     log,
	}
}

// ReadLoop читает кадры до разрыва соединения.
// Запускается в отдельной goroutine; разрыв запускает reconciliation.
func (c *Connection) ReadLoop(ctx context.Context) {
	c.metrics.AgentsConnected.Inc()
	defer func() {
		c.metrics.AgentsConnected.Dec()
		c.dispatcher.OnClose(c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("Agent close error", "conn", c.ID, "error", err.Error())
		}
		c.logger.Info("Agent connection closed",
			"conn", c.ID,
			"service", c.serviceName,
			"capture_agent", c.captureAgent,
		)
	}()

	// Дедлайна чтения нет намеренно: молчащее соединение остается открытым,
	// сервис снимает с учета liveness monitor.
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Agent read error", "conn", c.ID, "error", err.Error())
			}
			return
		}

		msg, err := dto.ParseAgentMessage(frame)
		if err != nil {
			// Протокольная ошибка: inline error frame, соединение живет
			c.metrics.InvalidFrames.Inc()
			c.logger.Warn("Invalid agent frame", "conn", c.ID, "error", err.Error())
			if writeErr := c.conn.WriteMessage(websocket.TextMessage, dto.NewInvalidMessageFrame()); writeErr != nil {
				c.logger.Warn("Failed to send error frame", "conn", c.ID, "error", writeErr.Error())
				return
			}
			continue
		}

		c.dispatcher.Dispatch(ctx, c, msg)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Connection) markProducer(serviceName string) {
	c.serviceName = serviceName
	c.captureAgent = false
}

func (c *Connection) markCaptureAgent(serviceName string) {
	c.serviceName = serviceName
	c.captureAgent = true
}
