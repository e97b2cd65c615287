package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dreschagin/memleak-dashboard/internal/application/usecase"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

const defaultAlertsLimit = 50

// AlertsAPIHandler обрабатывает GET /api/alerts
type AlertsAPIHandler struct {
	alertsUC *usecase.GetAlertsUseCase
	logger   *logger.Logger
}

// NewAlertsAPIHandler создает новый handler
func NewAlertsAPIHandler(alertsUC *usecase.GetAlertsUseCase, logger *logger.Logger) *AlertsAPIHandler {
	return &AlertsAPIHandler{
		alertsUC: alertsUC,
		logger:   logger,
	}
}

// GetAlerts возвращает алерты в обратном хронологическом порядке:
// GET /api/alerts?limit&service&severity
func (h *AlertsAPIHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultAlertsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	result, err := h.alertsUC.Execute(
		r.URL.Query().Get("service"),
		r.URL.Query().Get("severity"),
		limit,
	)
	if err != nil {
		if errors.Is(err, usecase.ErrValidation) {
			writeError(w, http.StatusBadRequest, "Invalid severity")
			return
		}
		h.logger.Error("Failed to fetch alerts", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch alerts")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
