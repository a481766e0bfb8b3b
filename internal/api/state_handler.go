package api

import (
	"net/http"
	"strconv"
)

// GetState handles GET /api/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// ListIncidents handles GET /api/incidents
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	h.respondJSON(w, http.StatusOK, h.sink.Incidents(limit))
}
