package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/usecase"
	"github.com/dreschagin/memleak-dashboard/internal/comparison"
	"github.com/dreschagin/memleak-dashboard/internal/domain/repository"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// SnapshotAPIHandler обрабатывает snapshot-endpoints: upload, compare,
// список и сессии сравнения
type SnapshotAPIHandler struct {
	uploadUC       *usecase.UploadSnapshotUseCase
	listUC         *usecase.ListSnapshotsUseCase
	coordinator    *comparison.Coordinator
	store          repository.StateRepository
	maxUploadBytes int64
	logger         *logger.Logger
}

// NewSnapshotAPIHandler создает новый handler
func NewSnapshotAPIHandler(
	uploadUC *usecase.UploadSnapshotUseCase,
	listUC *usecase.ListSnapshotsUseCase,
	coordinator *comparison.Coordinator,
	store repository.StateRepository,
	maxUploadBytes int64,
	logger *logger.Logger,
) *SnapshotAPIHandler {
	return &SnapshotAPIHandler{
		uploadUC:       uploadUC,
		listUC:         listUC,
		coordinator:    coordinator,
		store:          store,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Upload принимает цельный снапшот одним POST:
// POST /api/snapshots/upload {serviceName, containerId, phase, snapshotData, filename}
func (h *SnapshotAPIHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req dto.UploadSnapshotRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := h.uploadUC.Execute(r.Context(), req)
	if err != nil {
		if errors.Is(err, usecase.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Snapshot upload failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to store snapshot")
		return
	}

	writeJSON(w, http.StatusCreated, dto.UploadSnapshotResponse{Snapshot: dto.FromSnapshot(snap)})
}

// Compare запускает синхронный анализ:
// POST /api/snapshots/compare {serviceName, containerId, beforeSnapshotId, afterSnapshotId}
func (h *SnapshotAPIHandler) Compare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req dto.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ServiceName) == "" ||
		strings.TrimSpace(req.BeforeSnapshotID) == "" ||
		strings.TrimSpace(req.AfterSnapshotID) == "" {
		writeError(w, http.StatusBadRequest, "serviceName, beforeSnapshotId and afterSnapshotId are required")
		return
	}

	sess, ready := h.coordinator.HandleComparisonReady(dto.ComparisonReadyMessage{
		ServiceName:      req.ServiceName,
		ContainerID:      req.ContainerID,
		BeforeSnapshotID: req.BeforeSnapshotID,
		AfterSnapshotID:  req.AfterSnapshotID,
	})

	if !ready {
		missing := h.missingSnapshots(req.BeforeSnapshotID, req.AfterSnapshotID)
		writeJSON(w, http.StatusOK, dto.CompareResponse{
			SessionID: sess.ID,
			Status:    string(sess.Status),
			Missing:   &missing,
		})
		return
	}

	// Анализ выполняется в goroutine этого запроса, accept loop не блокируется
	result, err := h.coordinator.Run(r.Context(), sess.ID)
	if err != nil {
		h.logger.Error("Synchronous comparison failed", err, "session_id", sess.ID)
		writeJSON(w, http.StatusInternalServerError, dto.CompareResponse{
			SessionID: sess.ID,
			Status:    string(result.Status),
			Error:     "Analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, dto.CompareResponse{
		SessionID: result.ID,
		Status:    string(result.Status),
		Analysis:  result.Result,
	})
}

// List возвращает плоский список снапшотов и группировку по сессиям:
// GET /api/snapshots
func (h *SnapshotAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.listUC.Execute())
}

// Comparisons возвращает все сессии сравнения:
// GET /api/snapshots/comparisons
func (h *SnapshotAPIHandler) Comparisons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessions := h.store.Sessions()
	result := make([]dto.SessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, dto.FromSession(sess))
	}
	writeJSON(w, http.StatusOK, map[string][]dto.SessionDTO{"comparisons": result})
}

// ComparisonByID возвращает одну сессию:
// GET /api/snapshots/comparisons/{sessionId}
func (h *SnapshotAPIHandler) ComparisonByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/snapshots/comparisons/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		NotFound(w, r)
		return
	}

	sess, ok := h.store.Session(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown comparison session")
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSession(sess))
}

func (h *SnapshotAPIHandler) missingSnapshots(beforeID, afterID string) dto.MissingSnapshots {
	var missing dto.MissingSnapshots
	if snap, ok := h.store.Snapshot(beforeID); !ok || !snap.Complete {
		missing.Before = true
	}
	if snap, ok := h.store.Snapshot(afterID); !ok || !snap.Complete {
		missing.After = true
	}
	return missing
}
