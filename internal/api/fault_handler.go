package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// faultRequest targets a virtual topology node
type faultRequest struct {
	VirtualNodeID int     `json:"virtualNodeId"`
	LatencyMs     float64 `json:"latencyMs,omitempty"`
}

// InjectFault handles POST /api/faults/inject
func (h *Handler) InjectFault(w http.ResponseWriter, r *http.Request) {
	var req faultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed fault request: "+err.Error())
		return
	}
	if req.LatencyMs <= 0 {
		h.respondError(w, http.StatusBadRequest, "latencyMs must be positive")
		return
	}

	if err := h.graph.InjectNodeLatencyFault(req.VirtualNodeID, req.LatencyMs); err != nil {
		if errors.Is(err, model.ErrUnknownNode) {
			h.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("latency fault injected",
		slog.Int("node_id", req.VirtualNodeID),
		slog.Float64("latency_ms", req.LatencyMs),
	)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"node_id":    req.VirtualNodeID,
		"latency_ms": req.LatencyMs,
	})
}

// RemoveFault handles POST /api/faults/remove
func (h *Handler) RemoveFault(w http.ResponseWriter, r *http.Request) {
	var req faultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed fault request: "+err.Error())
		return
	}

	if err := h.graph.RemoveNodeLatencyFault(req.VirtualNodeID); err != nil {
		if errors.Is(err, model.ErrUnknownNode) {
			h.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("latency fault removed",
		slog.Int("node_id", req.VirtualNodeID),
	)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"node_id": req.VirtualNodeID,
	})
}
