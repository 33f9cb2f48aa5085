package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers snapshot routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{id}/snapshots", h.HandleListSnapshots)
}
