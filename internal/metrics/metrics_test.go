package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)
	ctx := context.Background()

	finished := time.Date(2024, 10, 18, 12, 5, 0, 0, time.UTC)
	require.NoError(t, m.ReportCycle(ctx, &models.SyncCycleStats{
		Node:              "gerald",
		State:             models.StateDone,
		SeriesEligible:    5,
		SeriesSelected:    4,
		SeriesTransferred: 3,
		SeriesFailed:      1,
		ImagesTransferred: 420,
		Elapsed:           2 * time.Minute,
		FinishedAt:        finished,
	}, models.Totals{}))
	require.NoError(t, m.ReportCycle(ctx, &models.SyncCycleStats{
		Node:  "gerald",
		State: models.StateCycleFailed,
	}, models.Totals{}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("gerald", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("gerald", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.transfers.WithLabelValues("gerald", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("gerald", "failed")))
	assert.Equal(t, 420.0, testutil.ToFloat64(m.images.WithLabelValues("gerald")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.seriesPending.WithLabelValues("gerald")), "failed cycle keeps the last pending count")
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastCycleEpoch.WithLabelValues("gerald")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.cycleDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	require.NoError(t, m.ReportCycle(context.Background(), &models.SyncCycleStats{Node: "main", State: models.StateDone}, models.Totals{}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `autosync_cycles_total{node="main",result="done"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
