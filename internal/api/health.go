package api

import (
	"context"
	"net/http"
	"time"
)

// Version is set at build time via -ldflags, mirroring the teacher's
// main.go Version var.
var Version = "dev"

// health handles GET /health: a liveness probe that also confirms the
// database connection pool can still reach Postgres.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// version handles GET /version.
func (h *Handler) version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"version": Version})
}

// root handles GET / for basic service identification.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"service": "accounting", "version": Version})
}
