package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUploader struct {
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func (m *memUploader) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.contentTypes = map[string]string{}
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func TestReportArchive(t *testing.T) {
	id := uuid.MustParse("6f1c1d9e-1b7a-4c53-9a57-0d7f1f3c2b11")
	stats := &models.SyncCycleStats{
		CycleID:           id,
		Cycle:             7,
		Node:              "gerald",
		State:             models.StateDone,
		SeriesSelected:    4,
		SeriesTransferred: 3,
		StartedAt:         time.Date(2024, 10, 18, 23, 59, 0, 0, time.UTC),
	}

	up := &memUploader{}
	require.NoError(t, NewReportArchive(up).ReportCycle(context.Background(), stats, models.Totals{Cycles: 7}))

	key := "reports/gerald/2024-10-18/cycle-7-6f1c1d9e-1b7a-4c53-9a57-0d7f1f3c2b11.json"
	assert.Equal(t, key, ReportKey(stats))
	require.Contains(t, up.objects, key)
	assert.Equal(t, "application/json", up.contentTypes[key])

	var doc map[string]any
	require.NoError(t, json.Unmarshal(up.objects[key], &doc))
	assert.Equal(t, "gerald", doc["node"])
	assert.EqualValues(t, 3, doc["series_transferred"])
	assert.EqualValues(t, 7, doc["totals"].(map[string]any)["cycles"])
}

func TestReportArchiveUploadError(t *testing.T) {
	up := &memUploader{err: errors.New("bucket gone")}
	err := NewReportArchive(up).ReportCycle(context.Background(), &models.SyncCycleStats{Node: "n"}, models.Totals{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}
