package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// handleHealth handles health check requests. Every database must answer a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.databases[name].QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Str("database", name).Msg("Health check failed")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":   "unhealthy",
				"service":  "cryptofolio",
				"database": name,
			})
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "cryptofolio",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
