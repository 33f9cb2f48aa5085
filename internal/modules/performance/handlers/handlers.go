// Package handlers provides HTTP handlers for portfolio performance.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptofolio/internal/domain"
	"github.com/aristath/cryptofolio/internal/modules/performance"
)

const defaultHistoryDays = 30

// PerformanceService is the subset of the performance service used over HTTP
type PerformanceService interface {
	CalculateAll(ctx context.Context) (map[string]*domain.PortfolioPerformance, error)
	CalculateByID(ctx context.Context, id string) (*domain.PortfolioPerformance, error)
	ApproximateHistoryByID(ctx context.Context, id string, days int) ([]domain.DataPoint, error)
}

// OverviewService provides the market overview
type OverviewService interface {
	GetOverview(ctx context.Context) (*performance.MarketOverview, error)
}

// Handler handles performance HTTP requests
type Handler struct {
	service        PerformanceService
	overview       OverviewService
	streamInterval time.Duration
	originPatterns []string
	log            zerolog.Logger
}

// NewHandler creates a new performance handler
func NewHandler(
	service PerformanceService,
	overview OverviewService,
	streamInterval time.Duration,
	log zerolog.Logger,
) *Handler {
	if streamInterval <= 0 {
		streamInterval = 30 * time.Second
	}
	return &Handler{
		service:        service,
		overview:       overview,
		streamInterval: streamInterval,
		log:            log.With().Str("handler", "performance").Logger(),
	}
}

// WithOriginPatterns sets the cross-origin hosts allowed to open the stream.
// Without patterns only same-origin pages may connect.
func (h *Handler) WithOriginPatterns(patterns []string) *Handler {
	h.originPatterns = patterns
	return h
}

// HistoryResponse is the approximated history with its summary
type HistoryResponse struct {
	PortfolioID string                     `json:"portfolio_id"`
	Points      []domain.DataPoint         `json:"points"`
	Summary     performance.HistorySummary `json:"summary"`
}

// HandleGetAllPerformance handles GET /api/performance
func (h *Handler) HandleGetAllPerformance(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.CalculateAll(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to calculate performance")
		h.writeError(w, http.StatusInternalServerError, "Failed to calculate performance")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(results))
}

// HandleGetPerformance handles GET /api/portfolios/{id}/performance
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	perf, err := h.service.CalculateByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, id, "Failed to calculate portfolio performance")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(perf))
}

// HandleGetHistory handles GET /api/portfolios/{id}/history?days=N
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = performance.ClampHistoryDays(n)
	}

	points, err := h.service.ApproximateHistoryByID(r.Context(), id, days)
	if err != nil {
		h.handleServiceError(w, err, id, "Failed to approximate portfolio history")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(HistoryResponse{
		PortfolioID: id,
		Points:      points,
		Summary:     performance.SummarizeHistory(points),
	}))
}

// HandleGetMarketOverview handles GET /api/market/overview
func (h *Handler) HandleGetMarketOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.overview.GetOverview(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Market overview unavailable")
		h.writeError(w, http.StatusServiceUnavailable, "Market overview unavailable")
		return
	}

	resp := envelope(overview)
	resp["metadata"].(map[string]interface{})["stale"] = overview.Stale()
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error, id, msg string) {
	switch {
	case performance.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, "Portfolio not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.log.Warn().Err(err).Str("portfolio_id", id).Msg("Request cancelled")
		h.writeError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		h.log.Error().Err(err).Str("portfolio_id", id).Msg(msg)
		h.writeError(w, http.StatusInternalServerError, msg)
	}
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
