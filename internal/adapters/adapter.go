package adapters

import (
	"context"

	"github.com/otcheredev/dicom-autosync/internal/models"
)

// Directory answers study and series level queries against one store
type Directory interface {
	// FindStudies returns the studies whose StudyDate falls in [dateFrom, dateTo] (DA values)
	FindStudies(ctx context.Context, dateFrom, dateTo string) ([]models.StudyRecord, error)
	FindSeries(ctx context.Context, studyUID string) ([]models.SeriesRecord, error)

	// Ping verifies the store is reachable
	Ping(ctx context.Context) (*models.ConnectionStatus, error)
	Close() error

	Name() string
}

// Mover moves a series from the store it is bound to into the configured destination.
// The call blocks until the move is acknowledged complete or failed.
type Mover interface {
	MoveSeries(ctx context.Context, seriesUID, studyUID string) error
}

// BaseAdapter provides common functionality for all adapters
type BaseAdapter struct {
	node models.NodeConfig
}

func (b *BaseAdapter) Name() string {
	return b.node.Name
}
