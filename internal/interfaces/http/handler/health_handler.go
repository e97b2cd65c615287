package handler

import (
	"net/http"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
)

// HealthHandler обрабатывает GET /health
type HealthHandler struct {
	store repository.StateRepository
}

// NewHealthHandler создает новый handler
func NewHealthHandler(store repository.StateRepository) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats := h.store.Stats()
	writeJSON(w, http.StatusOK, dto.HealthDTO{
		Status:    "ok",
		Timestamp: time.Now(),
		Services:  stats.Services,
		Alerts:    stats.Alerts,
	})
}
