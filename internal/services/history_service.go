package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/internal/repository"
	"github.com/rs/zerolog/log"
)

// HistoryService records cycles to the database and serves them back. History is audit only.
type HistoryService struct {
	repo *repository.CycleRepository
}

// NewHistoryService creates a new history service
func NewHistoryService(repo *repository.CycleRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

// ReportCycle persists one finished cycle
func (s *HistoryService) ReportCycle(ctx context.Context, stats *models.SyncCycleStats, _ models.Totals) error {
	row := models.NewSyncCycle(stats)
	if err := s.repo.Create(ctx, row); err != nil {
		return fmt.Errorf("failed to record cycle %d: %w", stats.Cycle, err)
	}

	log.Debug().
		Str("cycle_id", row.ID.String()).
		Int("cycle", stats.Cycle).
		Int("transfers", len(row.Transfers)).
		Msg("Cycle recorded")
	return nil
}

// ListCycles returns recent cycles, newest first
func (s *HistoryService) ListCycles(ctx context.Context, node string, limit, offset int) ([]models.SyncCycle, error) {
	cycles, err := s.repo.List(ctx, node, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	return cycles, nil
}

// GetCycle returns one cycle with its transfer records
func (s *HistoryService) GetCycle(ctx context.Context, id uuid.UUID) (*models.SyncCycle, error) {
	cycle, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	transfers, err := s.repo.GetTransfers(ctx, id)
	if err != nil {
		return nil, err
	}
	cycle.Transfers = transfers
	return cycle, nil
}
