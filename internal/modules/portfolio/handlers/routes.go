package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios", h.HandleListPortfolios)
	r.Post("/portfolios", h.HandleCreatePortfolio)
	r.Get("/portfolios/{id}", h.HandleGetPortfolio)
	r.Delete("/portfolios/{id}", h.HandleDeletePortfolio)

	r.Put("/portfolios/{id}/holdings/{symbol}", h.HandleSetHolding)
	r.Delete("/portfolios/{id}/holdings/{symbol}", h.HandleRemoveHolding)
}
