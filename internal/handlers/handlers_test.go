package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/otcheredev/dicom-autosync/internal/cache"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	snapshot *models.StatusSnapshot
	err      error
}

func (f *fakeStatus) Status(ctx context.Context) (*models.StatusSnapshot, error) {
	return f.snapshot, f.err
}

type fakeHistory struct {
	cycles    []models.SyncCycle
	byID      map[uuid.UUID]*models.SyncCycle
	gotNode   string
	gotLimit  int
	gotOffset int
}

func (f *fakeHistory) ListCycles(ctx context.Context, node string, limit, offset int) ([]models.SyncCycle, error) {
	f.gotNode, f.gotLimit, f.gotOffset = node, limit, offset
	return f.cycles, nil
}

func (f *fakeHistory) GetCycle(ctx context.Context, id uuid.UUID) (*models.SyncCycle, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	healthy := NewRouter(RouterOptions{Health: NewHealthHandler(map[string]Check{
		"cache": func(context.Context) error { return nil },
	})})

	rec := serve(t, healthy, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Services["cache"])

	assert.Equal(t, http.StatusOK, serve(t, healthy, "/ready").Code)

	degraded := NewRouter(RouterOptions{Health: NewHealthHandler(map[string]Check{
		"database": func(context.Context) error { return errors.New("down") },
	})})
	rec = serve(t, degraded, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, degraded, "/ready").Code)
}

func TestStatus(t *testing.T) {
	status := &fakeStatus{err: cache.ErrCacheMiss}
	router := NewRouter(RouterOptions{Status: NewStatusHandler(status)})

	assert.Equal(t, http.StatusNotFound, serve(t, router, "/status").Code)

	status.err = nil
	status.snapshot = &models.StatusSnapshot{
		Node:      "gerald",
		LastCycle: &models.SyncCycleStats{Cycle: 3, State: models.StateDone},
		Totals:    models.Totals{Cycles: 3, ImagesTransferred: 900},
	}

	rec := serve(t, router, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 900, got.Totals.ImagesTransferred)
	assert.Equal(t, 3, got.LastCycle.Cycle)

	status.err = errors.New("redis down")
	assert.Equal(t, http.StatusInternalServerError, serve(t, router, "/status").Code)
}

func TestCycleRoutes(t *testing.T) {
	id := uuid.New()
	history := &fakeHistory{
		cycles: []models.SyncCycle{{ID: id, Node: "gerald", Cycle: 1}},
		byID: map[uuid.UUID]*models.SyncCycle{
			id: {ID: id, Transfers: []models.TransferRecord{{CycleID: id, SeriesInstanceUID: "1.2.3"}}},
		},
	}
	router := NewRouter(RouterOptions{Cycles: NewCycleHandler(history)})

	rec := serve(t, router, "/api/v1/cycles?node=gerald&limit=5&offset=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gerald", history.gotNode)
	assert.Equal(t, 5, history.gotLimit)
	assert.Equal(t, 10, history.gotOffset)

	var cycles []models.SyncCycle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cycles))
	require.Len(t, cycles, 1)

	serve(t, router, "/api/v1/cycles")
	assert.Equal(t, defaultPageSize, history.gotLimit)

	assert.Equal(t, http.StatusBadRequest, serve(t, router, "/api/v1/cycles?limit=-1").Code)

	rec = serve(t, router, "/api/v1/cycles/"+id.String()+"/transfers")
	require.Equal(t, http.StatusOK, rec.Code)
	var transfers []models.TransferRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transfers))
	require.Len(t, transfers, 1)
	assert.Equal(t, "1.2.3", transfers[0].SeriesInstanceUID)

	assert.Equal(t, http.StatusNotFound, serve(t, router, "/api/v1/cycles/"+uuid.NewString()+"/transfers").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, router, "/api/v1/cycles/not-a-uuid/transfers").Code)
}

func TestUnmountedRoutes(t *testing.T) {
	router := NewRouter(RouterOptions{})
	assert.Equal(t, http.StatusNotFound, serve(t, router, "/status").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, router, "/metrics").Code)
	assert.Equal(t, http.StatusOK, serve(t, router, "/health").Code)
}
