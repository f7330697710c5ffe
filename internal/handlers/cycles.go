package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/internal/repository"
	"github.com/rs/zerolog/log"
)

const defaultPageSize = 50

// HistoryReader serves recorded cycles
type HistoryReader interface {
	ListCycles(ctx context.Context, node string, limit, offset int) ([]models.SyncCycle, error)
	GetCycle(ctx context.Context, id uuid.UUID) (*models.SyncCycle, error)
}

type CycleHandler struct {
	history HistoryReader
}

func NewCycleHandler(history HistoryReader) *CycleHandler {
	return &CycleHandler{history: history}
}

// ListCycles lists recorded cycles, newest first. Supports ?node=, ?limit= and ?offset=.
func (h *CycleHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultPageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		offset = n
	}

	cycles, err := h.history.ListCycles(r.Context(), q.Get("node"), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list cycles")
		http.Error(w, "Failed to list cycles", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cycles)
}

// GetTransfers returns one cycle's transfer records
func (h *CycleHandler) GetTransfers(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid cycle ID", http.StatusBadRequest)
		return
	}

	cycle, err := h.history.GetCycle(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Cycle not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("cycle_id", id.String()).Msg("Failed to get cycle")
		http.Error(w, "Failed to get cycle", http.StatusInternalServerError)
		return
	}

	transfers := cycle.Transfers
	if transfers == nil {
		transfers = []models.TransferRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transfers)
}
