package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dreschagin/memleak-dashboard/internal/application/usecase"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// defaultMetricsLimit ограничивает размер оконной выборки по умолчанию
const defaultMetricsLimit = 100

// ServicesAPIHandler обрабатывает запросы списка сервисов и их метрик
type ServicesAPIHandler struct {
	listServicesUC *usecase.ListServicesUseCase
	metricsUC      *usecase.GetServiceMetricsUseCase
	logger         *logger.Logger
}

// NewServicesAPIHandler создает новый handler
func NewServicesAPIHandler(
	listServicesUC *usecase.ListServicesUseCase,
	metricsUC *usecase.GetServiceMetricsUseCase,
	logger *logger.Logger,
) *ServicesAPIHandler {
	return &ServicesAPIHandler{
		listServicesUC: listServicesUC,
		metricsUC:      metricsUC,
		logger:         logger,
	}
}

// ListServices возвращает подключенные сервисы с последним замером
func (h *ServicesAPIHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.listServicesUC.Execute())
}

// ServiceMetrics возвращает оконную выборку замеров:
// GET /api/services/{name}/metrics?limit&from&to
func (h *ServicesAPIHandler) ServiceMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Путь: /api/services/{name}/metrics
	rest := strings.TrimPrefix(r.URL.Path, "/api/services/")
	name, ok := strings.CutSuffix(rest, "/metrics")
	if !ok || name == "" || strings.Contains(name, "/") {
		NotFound(w, r)
		return
	}

	limit := defaultMetricsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	from, err := parseEpochMillis(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from")
		return
	}
	to, err := parseEpochMillis(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to")
		return
	}

	window, found := h.metricsUC.Execute(r.Context(), name, from, to, limit)
	if !found {
		writeError(w, http.StatusNotFound, "Unknown service")
		return
	}

	writeJSON(w, http.StatusOK, window)
}

func parseEpochMillis(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
