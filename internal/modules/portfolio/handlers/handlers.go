// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptofolio/internal/domain"
	"github.com/aristath/cryptofolio/internal/modules/portfolio"
)

// PortfolioService is the portfolio management API used over HTTP
type PortfolioService interface {
	Create(ctx context.Context, req portfolio.CreateRequest) (*domain.Portfolio, error)
	Get(ctx context.Context, id string) (*domain.Portfolio, error)
	List(ctx context.Context) ([]domain.Portfolio, error)
	Delete(ctx context.Context, id string) error
	SetHolding(ctx context.Context, portfolioID, symbol string, amount decimal.Decimal) (*domain.Holding, error)
	RemoveHolding(ctx context.Context, portfolioID, symbol string) error
}

// Handler handles portfolio HTTP requests
type Handler struct {
	service PortfolioService
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service PortfolioService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// SetHoldingRequest is the body of PUT /api/portfolios/{id}/holdings/{symbol}
type SetHoldingRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// HandleListPortfolios handles GET /api/portfolios
func (h *Handler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.service.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		h.writeError(w, http.StatusInternalServerError, "Failed to list portfolios")
		return
	}
	if portfolios == nil {
		portfolios = []domain.Portfolio{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": portfolios})
}

// HandleCreatePortfolio handles POST /api/portfolios
func (h *Handler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolio.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.handleError(w, err, "Failed to create portfolio")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": p})
}

// HandleGetPortfolio handles GET /api/portfolios/{id}
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err, "Failed to get portfolio")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": p})
}

// HandleDeletePortfolio handles DELETE /api/portfolios/{id}
func (h *Handler) HandleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, err, "Failed to delete portfolio")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetHolding handles PUT /api/portfolios/{id}/holdings/{symbol}
func (h *Handler) HandleSetHolding(w http.ResponseWriter, r *http.Request) {
	var req SetHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount == nil {
		h.writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	holding, err := h.service.SetHolding(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "symbol"), *req.Amount)
	if err != nil {
		h.handleError(w, err, "Failed to set holding")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": holding})
}

// HandleRemoveHolding handles DELETE /api/portfolios/{id}/holdings/{symbol}
func (h *Handler) HandleRemoveHolding(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveHolding(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "symbol")); err != nil {
		h.handleError(w, err, "Failed to remove holding")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound):
		h.writeError(w, http.StatusNotFound, "Portfolio not found")
	case errors.Is(err, domain.ErrInvalidHolding), errors.Is(err, portfolio.ErrInvalidPortfolio):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusInternalServerError, msg)
	}
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
