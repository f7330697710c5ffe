package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/otcheredev/dicom-autosync/internal/models"
)

// Mode selects which eligible series become transfer jobs
type Mode string

const (
	// ModeSmallest transfers one series per study, the eligible one with the fewest images
	ModeSmallest Mode = "smallest"
	// ModeThreshold transfers every eligible series with fewer images than MinImages
	ModeThreshold Mode = "threshold"
	// ModeAll transfers every eligible series
	ModeAll Mode = "all"
)

// ParseMode maps flag text to a Mode. Empty text means ModeSmallest.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSmallest:
		return ModeSmallest, nil
	case ModeThreshold, "max-images":
		return ModeThreshold, nil
	case ModeAll, "all-series":
		return ModeAll, nil
	}
	return "", &models.ConfigurationError{Field: "sync.mode", Reason: fmt.Sprintf("unknown selection mode %q (smallest, threshold, all)", s)}
}

// Policy is chosen once per process
type Policy struct {
	Mode      Mode `json:"mode"`
	MinImages int  `json:"max_images,omitempty"` // threshold, exclusive
}

// Validate checks the policy before the first cycle
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeSmallest, ModeAll:
		return nil
	case ModeThreshold:
		if p.MinImages <= 0 {
			return &models.ConfigurationError{Field: "sync.max_images", Reason: "threshold mode needs a positive image count"}
		}
		return nil
	}
	return &models.ConfigurationError{Field: "sync.mode", Reason: fmt.Sprintf("unknown selection mode %q", p.Mode)}
}

func (p Policy) String() string {
	switch p.Mode {
	case ModeThreshold:
		return fmt.Sprintf("all series with < %d images", p.MinImages)
	case ModeAll:
		return "all series"
	}
	return "smallest series per study"
}

// Select turns completeness results into transfer jobs.
// Jobs are grouped by study in input order; within a study they are ordered by image count, series number and UID.
func (p Policy) Select(studies []models.StudyCompleteness) []*models.TransferJob {
	var jobs []*models.TransferJob
	for _, sc := range studies {
		eligible := sc.Eligible()
		if len(eligible) == 0 {
			continue
		}
		sortBySize(eligible)

		switch p.Mode {
		case ModeThreshold:
			for _, r := range eligible {
				if r.Remote.ImageCount < p.MinImages {
					jobs = append(jobs, models.NewTransferJob(sc.Study, r))
				}
			}
		case ModeAll:
			for _, r := range eligible {
				jobs = append(jobs, models.NewTransferJob(sc.Study, r))
			}
		default:
			jobs = append(jobs, models.NewTransferJob(sc.Study, eligible[0]))
		}
	}
	return jobs
}

func sortBySize(results []models.CompletenessResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Remote, results[j].Remote
		if a.ImageCount != b.ImageCount {
			return a.ImageCount < b.ImageCount
		}
		if a.SeriesNumber != b.SeriesNumber {
			return a.SeriesNumber < b.SeriesNumber
		}
		return a.SeriesInstanceUID < b.SeriesInstanceUID
	})
}
