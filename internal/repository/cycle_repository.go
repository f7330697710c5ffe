package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a cycle does not exist
var ErrNotFound = errors.New("record not found")

// CycleRepository handles sync history database operations
type CycleRepository struct {
	db *gorm.DB
}

// NewCycleRepository creates a new cycle repository
func NewCycleRepository(db *gorm.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// Create stores a cycle and its transfer records
func (r *CycleRepository) Create(ctx context.Context, cycle *models.SyncCycle) error {
	if err := r.db.WithContext(ctx).Create(cycle).Error; err != nil {
		return fmt.Errorf("failed to create sync cycle: %w", err)
	}
	return nil
}

// List retrieves cycles, newest first. An empty node lists every node.
func (r *CycleRepository) List(ctx context.Context, node string, limit, offset int) ([]models.SyncCycle, error) {
	var cycles []models.SyncCycle
	query := r.db.WithContext(ctx).Order("started_at DESC")

	if node != "" {
		query = query.Where("node = ?", node)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&cycles).Error; err != nil {
		return nil, fmt.Errorf("failed to get sync cycles: %w", err)
	}
	return cycles, nil
}

// GetByID retrieves one cycle
func (r *CycleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncCycle, error) {
	var cycle models.SyncCycle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&cycle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync cycle: %w", err)
	}
	return &cycle, nil
}

// GetTransfers retrieves the transfer records of a cycle in execution order
func (r *CycleRepository) GetTransfers(ctx context.Context, cycleID uuid.UUID) ([]models.TransferRecord, error) {
	var records []models.TransferRecord
	if err := r.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("started_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get transfer records: %w", err)
	}
	return records, nil
}

// GetTransfersBySeries retrieves every attempt made for one series, newest first
func (r *CycleRepository) GetTransfersBySeries(ctx context.Context, seriesUID string) ([]models.TransferRecord, error) {
	var records []models.TransferRecord
	if err := r.db.WithContext(ctx).
		Where("series_instance_uid = ?", seriesUID).
		Order("started_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get transfer records: %w", err)
	}
	return records, nil
}
