package http

import (
	"net/http"

	"github.com/dreschagin/memleak-dashboard/internal/interfaces/http/handler"
	"github.com/dreschagin/memleak-dashboard/internal/interfaces/http/middleware"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/config"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router настраивает маршруты приложения
type Router struct {
	mux                *http.ServeMux
	healthHandler      *handler.HealthHandler
	servicesAPIHandler *handler.ServicesAPIHandler
	alertsAPIHandler   *handler.AlertsAPIHandler
	statsAPIHandler    *handler.StatsAPIHandler
	snapshotAPIHandler *handler.SnapshotAPIHandler
	websocketHandler   *handler.WebSocketHandler
	registry           *prometheus.Registry
	metrics            *metrics.Metrics
	snapshotCfg        config.SnapshotConfig
	prometheusCfg      config.PrometheusConfig
	logger             *logger.Logger
}

// NewRouter создает новый router
func NewRouter(
	healthHandler *handler.HealthHandler,
	servicesAPIHandler *handler.ServicesAPIHandler,
	alertsAPIHandler *handler.AlertsAPIHandler,
	statsAPIHandler *handler.StatsAPIHandler,
	snapshotAPIHandler *handler.SnapshotAPIHandler,
	websocketHandler *handler.WebSocketHandler,
	registry *prometheus.Registry,
	m *metrics.Metrics,
	snapshotCfg config.SnapshotConfig,
	prometheusCfg config.PrometheusConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:                http.NewServeMux(),
		healthHandler:      healthHandler,
		servicesAPIHandler: servicesAPIHandler,
		alertsAPIHandler:   alertsAPIHandler,
		statsAPIHandler:    statsAPIHandler,
		snapshotAPIHandler: snapshotAPIHandler,
		websocketHandler:   websocketHandler,
		registry:           registry,
		metrics:            m,
		snapshotCfg:        snapshotCfg,
		prometheusCfg:      prometheusCfg,
		logger:             logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	rt.mux.HandleFunc("/health", rt.healthHandler.Health)

	// Query surface
	rt.mux.HandleFunc("/api/services", rt.servicesAPIHandler.ListServices)
	rt.mux.HandleFunc("/api/services/", rt.servicesAPIHandler.ServiceMetrics)
	rt.mux.HandleFunc("/api/alerts", rt.alertsAPIHandler.GetAlerts)
	rt.mux.HandleFunc("/api/stats", rt.statsAPIHandler.GetStats)

	// Snapshot surface; upload дополнительно ограничен по частоте
	uploadLimiter := middleware.NewIPRateLimiter(
		float64(rt.snapshotCfg.UploadRatePerMinute)/60.0,
		rt.snapshotCfg.UploadRatePerMinute,
	)
	rt.mux.Handle("/api/snapshots/upload",
		middleware.RateLimit(uploadLimiter)(http.HandlerFunc(rt.snapshotAPIHandler.Upload)))
	rt.mux.HandleFunc("/api/snapshots/compare", rt.snapshotAPIHandler.Compare)
	rt.mux.HandleFunc("/api/snapshots/comparisons", rt.snapshotAPIHandler.Comparisons)
	rt.mux.HandleFunc("/api/snapshots/comparisons/", rt.snapshotAPIHandler.ComparisonByID)
	rt.mux.HandleFunc("/api/snapshots", rt.snapshotAPIHandler.List)

	// Prometheus
	if rt.prometheusCfg.Enabled {
		rt.mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}

	// WebSocket: dashboard-подписчики — любой upgrade-путь, содержащий
	// "dashboard", агенты — прочие пути с upgrade; всё остальное — JSON 404
	rt.mux.HandleFunc("/dashboard", rt.websocketHandler.HandleConnection)
	rt.mux.HandleFunc("/", rt.rootHandler)

	// Применяем middleware
	var h http.Handler = rt.mux
	h = rt.metrics.Middleware(h)
	h = middleware.Logger(rt.logger)(h)
	h = middleware.Recovery(rt.logger)(h)

	return h
}

// rootHandler принимает агентские websocket-соединения на любом пути,
// не занятом API; обычные HTTP-запросы получают JSON 404
func (rt *Router) rootHandler(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		rt.websocketHandler.HandleConnection(w, r)
		return
	}
	handler.NotFound(w, r)
}
