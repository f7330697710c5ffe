package services

import (
	"context"
	"fmt"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/cache"
	"github.com/otcheredev/dicom-autosync/internal/models"
)

// StatusService keeps the latest cycle and totals in the cache
type StatusService struct {
	cache cache.Cache
	node  string
	ttl   time.Duration
	now   func() time.Time
}

// NewStatusService creates a new status service
func NewStatusService(c cache.Cache, node string, ttl time.Duration) *StatusService {
	return &StatusService{cache: c, node: node, ttl: ttl, now: time.Now}
}

// Node returns the node the snapshot belongs to
func (s *StatusService) Node() string {
	return s.node
}

// ReportCycle stores the status snapshot
func (s *StatusService) ReportCycle(ctx context.Context, stats *models.SyncCycleStats, totals models.Totals) error {
	snapshot := models.StatusSnapshot{
		Node:      s.node,
		LastCycle: stats,
		Totals:    totals,
		UpdatedAt: s.now(),
	}
	if err := cache.SetJSON(ctx, s.cache, cache.StatusKey(s.node), snapshot, s.ttl); err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}
	return nil
}

// Status loads the snapshot. cache.ErrCacheMiss means no cycle has completed yet.
func (s *StatusService) Status(ctx context.Context) (*models.StatusSnapshot, error) {
	var snapshot models.StatusSnapshot
	if err := cache.GetJSON(ctx, s.cache, cache.StatusKey(s.node), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
