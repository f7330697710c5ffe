package reconcile

import (
	"testing"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/stretchr/testify/assert"
)

func study(uid, da, tm string) models.StudyRecord {
	return models.StudyRecord{StudyInstanceUID: uid, StudyDate: da, StudyTime: tm}
}

func uids(studies []models.StudyRecord) []string {
	out := make([]string, 0, len(studies))
	for _, s := range studies {
		out = append(out, s.StudyInstanceUID)
	}
	return out
}

func TestFilterByWindowBoundary(t *testing.T) {
	now := time.Date(2024, 10, 18, 12, 0, 0, 0, time.UTC)

	studies := []models.StudyRecord{
		study("exact-start", "20241018", "090000"),
		study("one-second-early", "20241018", "085959"),
		study("now", "20241018", "120000"),
		study("future", "20241018", "120001"),
		study("inside", "20241018", "1030"),
	}

	got := FilterByWindow(studies, now, 3)
	assert.Equal(t, []string{"exact-start", "now", "inside"}, uids(got))
}

func TestFilterByWindowFailOpen(t *testing.T) {
	now := time.Date(2024, 10, 18, 12, 0, 0, 0, time.UTC)

	studies := []models.StudyRecord{
		study("no-time", "20241018", ""),
		study("no-date", "", "101500"),
		study("garbage", "2024-10-18", "ab"),
		study("old", "20240101", "101500"),
	}

	got := FilterByWindow(studies, now, 3)
	assert.Equal(t, []string{"no-time", "no-date", "garbage"}, uids(got))
}

func TestFilterByWindowAcrossMidnight(t *testing.T) {
	now := time.Date(2024, 10, 18, 1, 0, 0, 0, time.UTC)

	studies := []models.StudyRecord{
		study("yesterday-late", "20241017", "231500.123"),
		study("yesterday-early", "20241017", "20:00:00"),
		study("today", "20241018", "0030"),
	}

	got := FilterByWindow(studies, now, 3)
	assert.Equal(t, []string{"yesterday-late", "today"}, uids(got))
}

func TestFilterByWindowUsesNowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2024, 10, 18, 12, 0, 0, 0, loc)

	got := FilterByWindow([]models.StudyRecord{study("local", "20241018", "110000")}, now, 1)
	assert.Len(t, got, 1)
}

func TestWindowRange(t *testing.T) {
	now := time.Date(2024, 10, 18, 1, 0, 0, 0, time.UTC)

	from, to := WindowRange(now, 3)
	assert.Equal(t, "20241017", from)
	assert.Equal(t, "20241018", to)

	from, to = WindowRange(now, 1)
	assert.Equal(t, "20241018", from)
	assert.Equal(t, "20241018", to)
}
