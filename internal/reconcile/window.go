package reconcile

import (
	"time"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/pkg/dimse"
	"github.com/rs/zerolog/log"
)

// DefaultWindowHours is the look-back window used when none is configured
const DefaultWindowHours = 3

// FilterByWindow keeps the studies whose StudyDate+StudyTime lies in [now-windowHours, now].
// Studies with a missing or unparsable date or time are kept. Input order is preserved.
func FilterByWindow(studies []models.StudyRecord, now time.Time, windowHours int) []models.StudyRecord {
	start := now.Add(-time.Duration(windowHours) * time.Hour)

	out := make([]models.StudyRecord, 0, len(studies))
	for _, s := range studies {
		ts, err := dimse.ParseDateTime(s.StudyDate, s.StudyTime, now.Location())
		if err != nil {
			log.Debug().
				Str("study_uid", s.StudyInstanceUID).
				Str("study_date", s.StudyDate).
				Str("study_time", s.StudyTime).
				Msg("Study timestamp unparsable, keeping it in window")
			out = append(out, s)
			continue
		}
		if ts.Before(start) || ts.After(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// WindowRange returns the DA range covering [now-windowHours, now]
func WindowRange(now time.Time, windowHours int) (from, to string) {
	start := now.Add(-time.Duration(windowHours) * time.Hour)
	return dimse.FormatDate(start), dimse.FormatDate(now)
}
