package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the request/response performance routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/performance", h.HandleGetAllPerformance)
	r.Get("/portfolios/{id}/performance", h.HandleGetPerformance)
	r.Get("/portfolios/{id}/history", h.HandleGetHistory)
	r.Get("/market/overview", h.HandleGetMarketOverview)
}

// RegisterStreamRoutes registers long-lived routes. They must not sit behind request timeouts.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/portfolios/{id}/stream", h.HandleStreamPerformance)
}
