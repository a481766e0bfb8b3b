package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// runtimeConfig is the runtime-mutable configuration view
type runtimeConfig struct {
	Primary string `json:"primary,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// GetConfig handles GET /api/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, runtimeConfig{
		Primary: h.ctrl.Primary(),
		Mode:    h.ctrl.Mode(),
	})
}

// UpdateConfig handles POST /api/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req runtimeConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed config update: "+err.Error())
		return
	}

	if req.Primary != "" {
		if req.Primary != "edge" && req.Primary != "cloud" {
			h.respondError(w, http.StatusBadRequest, "primary must be edge or cloud")
			return
		}
		h.ctrl.SetPrimary(req.Primary)
	}

	if req.Mode != "" {
		switch req.Mode {
		case "reactive", "warm", "cold", "predictive":
			h.ctrl.SetMode(req.Mode)
		default:
			h.respondError(w, http.StatusBadRequest, "mode must be one of reactive, warm, cold, predictive")
			return
		}
	}

	h.logger.Info("runtime config updated",
		slog.String("primary", h.ctrl.Primary()),
		slog.String("mode", h.ctrl.Mode()),
	)
	h.respondJSON(w, http.StatusOK, runtimeConfig{
		Primary: h.ctrl.Primary(),
		Mode:    h.ctrl.Mode(),
	})
}
