package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/dicom-autosync/internal/cache"
	"github.com/otcheredev/dicom-autosync/internal/database"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusServiceSnapshot(t *testing.T) {
	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })

	svc := NewStatusService(c, "gerald", time.Hour)
	svc.now = fixedClock
	ctx := context.Background()

	_, err := svc.Status(ctx)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	stats := &models.SyncCycleStats{Cycle: 2, Node: "gerald", State: models.StateDone, SeriesSelected: 4, SeriesTransferred: 3}
	totals := models.Totals{Cycles: 2, SeriesTransferred: 5}
	require.NoError(t, svc.ReportCycle(ctx, stats, totals))

	snap, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gerald", snap.Node)
	assert.Equal(t, totals, snap.Totals)
	assert.Equal(t, "3/4", snap.LastCycle.SuccessRatio())
	assert.True(t, snap.UpdatedAt.Equal(testNow))
}

func TestHistoryServiceRecordsCycle(t *testing.T) {
	db, err := database.Open(database.Config{Driver: "sqlite", Path: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	svc := NewHistoryService(repository.NewCycleRepository(db))
	ctx := context.Background()

	stats := &models.SyncCycleStats{
		CycleID:           uuid.New(),
		Cycle:             1,
		Node:              "gerald",
		State:             models.StateDone,
		SeriesSelected:    1,
		SeriesTransferred: 1,
		StartedAt:         testNow,
		FinishedAt:        testNow.Add(time.Minute),
		Jobs: []models.JobRecord{{
			StudyInstanceUID:  "1.1",
			SeriesInstanceUID: "1.1.1",
			Attempted:         true,
			Succeeded:         true,
			StartedAt:         testNow,
			CompletedAt:       testNow.Add(time.Minute),
		}},
	}
	require.NoError(t, svc.ReportCycle(ctx, stats, models.Totals{}))

	cycles, err := svc.ListCycles(ctx, "gerald", 10, 0)
	require.NoError(t, err)
	require.Len(t, cycles, 1)

	cycle, err := svc.GetCycle(ctx, stats.CycleID)
	require.NoError(t, err)
	require.Len(t, cycle.Transfers, 1)
	assert.Equal(t, "1.1.1", cycle.Transfers[0].SeriesInstanceUID)
}
