package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/rs/zerolog/log"
)

// Uploader puts one object into the archive
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// ReportArchive uploads each cycle's stats as a JSON object
type ReportArchive struct {
	uploader Uploader
}

// NewReportArchive creates a report archive on uploader
func NewReportArchive(uploader Uploader) *ReportArchive {
	return &ReportArchive{uploader: uploader}
}

// ReportKey returns reports/<node>/<YYYY-MM-DD>/cycle-<n>-<id>.json
func ReportKey(stats *models.SyncCycleStats) string {
	return fmt.Sprintf("reports/%s/%s/cycle-%d-%s.json",
		stats.Node, stats.StartedAt.Format("2006-01-02"), stats.Cycle, stats.CycleID)
}

// ReportCycle uploads the cycle report together with the totals at that point
func (a *ReportArchive) ReportCycle(ctx context.Context, stats *models.SyncCycleStats, totals models.Totals) error {
	body, err := json.MarshalIndent(struct {
		*models.SyncCycleStats
		Totals models.Totals `json:"totals"`
	}{stats, totals}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cycle report: %w", err)
	}

	key := ReportKey(stats)
	if err := a.uploader.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return fmt.Errorf("failed to archive cycle report: %w", err)
	}

	log.Debug().
		Str("key", key).
		Int("cycle", stats.Cycle).
		Msg("Cycle report archived")
	return nil
}
