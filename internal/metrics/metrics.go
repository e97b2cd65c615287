package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles prometheus collectors used by the hub.
type Metrics struct {
	AgentsConnected    prometheus.Gauge
	Subscribers        prometheus.Gauge
	FramesTotal        *prometheus.CounterVec
	InvalidFrames      prometheus.Counter
	ChunksReceived     prometheus.Counter
	SnapshotsCompleted prometheus.Counter
	EventsPublished    *prometheus.CounterVec
	SubscribersEvicted prometheus.Counter
	AnalysesTotal      *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		AgentsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memdash_connected_agents",
			Help: "Number of currently connected agent sockets.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memdash_subscribers",
			Help: "Number of currently connected dashboard subscribers.",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memdash_agent_frames_total",
			Help: "Total number of agent frames by message tag.",
		}, []string{"type"}),
		InvalidFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memdash_invalid_frames_total",
			Help: "Total number of agent frames rejected by the codec.",
		}),
		ChunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memdash_snapshot_chunks_total",
			Help: "Total number of snapshot chunks accepted.",
		}),
		SnapshotsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memdash_snapshots_completed_total",
			Help: "Total number of snapshots reassembled and persisted.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memdash_events_published_total",
			Help: "Total number of events fanned out to subscribers, by type.",
		}, []string{"type"}),
		SubscribersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memdash_subscribers_evicted_total",
			Help: "Total number of subscribers evicted for lag (full send buffer).",
		}),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memdash_analyses_total",
			Help: "Total number of comparison analyses by outcome.",
		}, []string{"outcome"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memdash_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memdash_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	registry.MustRegister(
		m.AgentsConnected,
		m.Subscribers,
		m.FramesTotal,
		m.InvalidFrames,
		m.ChunksReceived,
		m.SnapshotsCompleted,
		m.EventsPublished,
		m.SubscribersEvicted,
		m.AnalysesTotal,
		m.RequestsTotal,
		m.RequestDurationSec,
	)

	return m
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

func normalizeRoute(path string) string {
	switch {
	case path == "/health" || path == "/metrics" || path == "/dashboard":
		return path
	case strings.HasPrefix(path, "/api/services/"):
		return "/api/services/*"
	case strings.HasPrefix(path, "/api/snapshots/comparisons/"):
		return "/api/snapshots/comparisons/*"
	case strings.HasPrefix(path, "/api/"):
		return path
	default:
		return "/other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}
