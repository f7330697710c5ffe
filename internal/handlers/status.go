package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/otcheredev/dicom-autosync/internal/cache"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/rs/zerolog/log"
)

// StatusReader loads the latest status snapshot
type StatusReader interface {
	Status(ctx context.Context) (*models.StatusSnapshot, error)
}

type StatusHandler struct {
	status StatusReader
}

func NewStatusHandler(status StatusReader) *StatusHandler {
	return &StatusHandler{status: status}
}

// Status returns the last cycle and the running totals
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.status.Status(r.Context())
	if errors.Is(err, cache.ErrCacheMiss) {
		http.Error(w, "No cycle completed yet", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load status")
		http.Error(w, "Failed to load status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
