package handler

import (
	"net/http"

	"github.com/dreschagin/memleak-dashboard/internal/application/usecase"
)

// StatsAPIHandler обрабатывает GET /api/stats
type StatsAPIHandler struct {
	statsUC *usecase.GetStatsUseCase
}

// NewStatsAPIHandler создает новый handler
func NewStatsAPIHandler(statsUC *usecase.GetStatsUseCase) *StatsAPIHandler {
	return &StatsAPIHandler{statsUC: statsUC}
}

func (h *StatsAPIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.statsUC.Execute())
}
