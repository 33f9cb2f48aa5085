// Package handlers provides HTTP handlers for portfolio snapshots.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptofolio/internal/modules/snapshots"
)

const (
	defaultLimit = 30
	maxLimit     = 500
)

// SnapshotLister reads stored snapshots
type SnapshotLister interface {
	List(ctx context.Context, portfolioID string, limit int) ([]snapshots.Snapshot, error)
}

// Handler handles snapshot HTTP requests
type Handler struct {
	repo SnapshotLister
	log  zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(repo SnapshotLister, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleListSnapshots handles GET /api/portfolios/{id}/snapshots?limit=N
func (h *Handler) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	list, err := h.repo.List(r.Context(), id, limit)
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", id).Msg("Failed to list snapshots")
		h.writeError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": list,
		"metadata": map[string]interface{}{
			"count": len(list),
			"limit": limit,
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
