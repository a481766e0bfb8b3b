package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// Ingest handles POST /api/ingest
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var batch model.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed batch: "+err.Error())
		return
	}

	if err := h.validate.Struct(&batch); err != nil {
		h.logger.Warn("batch validation failed",
			slog.String("error", err.Error()),
		)
		h.respondError(w, http.StatusBadRequest, "invalid batch: "+err.Error())
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), &batch)
	if err != nil {
		if errors.Is(err, model.ErrNoPathAvailable) {
			h.respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error("dispatch failed",
			slog.String("error", err.Error()),
		)
		h.respondError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}
