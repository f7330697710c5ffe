package reconcile

import (
	"context"
	"sort"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"golang.org/x/sync/errgroup"
)

// SeriesFinder is the part of a directory the comparator needs
type SeriesFinder interface {
	FindSeries(ctx context.Context, studyUID string) ([]models.SeriesRecord, error)
	Name() string
}

// MissingStudies returns the remote studies whose UID is absent from local, in remote order
func MissingStudies(remote, local []models.StudyRecord) []models.StudyRecord {
	present := make(map[string]struct{}, len(local))
	for _, s := range local {
		present[s.StudyInstanceUID] = struct{}{}
	}

	out := make([]models.StudyRecord, 0)
	for _, s := range remote {
		if _, ok := present[s.StudyInstanceUID]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// Classify compares one remote series with its local counterpart.
// A local count above the remote count is treated as complete. A remote series
// reporting no images is complete too: moving it delivers nothing.
func Classify(remote models.SeriesRecord, local *models.SeriesRecord) models.CompletenessResult {
	result := models.CompletenessResult{Remote: remote, Local: local}
	switch {
	case remote.ImageCount <= 0:
		result.Classification = models.Complete
	case local == nil:
		result.Classification = models.Missing
	case local.ImageCount < remote.ImageCount:
		result.Classification = models.Incomplete
	default:
		result.Classification = models.Complete
	}
	return result
}

// ClassifySeries produces one result per remote series, ordered by SeriesInstanceUID
func ClassifySeries(remote, local []models.SeriesRecord) []models.CompletenessResult {
	byUID := make(map[string]*models.SeriesRecord, len(local))
	for i := range local {
		byUID[local[i].SeriesInstanceUID] = &local[i]
	}

	results := make([]models.CompletenessResult, 0, len(remote))
	for _, r := range remote {
		results = append(results, Classify(r, byUID[r.SeriesInstanceUID]))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Remote.SeriesInstanceUID < results[j].Remote.SeriesInstanceUID
	})
	return results
}

// Comparator drives the series level queries needed to classify studies
type Comparator struct {
	Remote SeriesFinder
	Local  SeriesFinder
}

// Compare classifies every remote study's series against the local store.
// Studies absent locally skip the local series query and all their series are Missing.
// The output keeps the order of remoteStudies. The first query error aborts the comparison.
func (c *Comparator) Compare(ctx context.Context, remoteStudies, localStudies []models.StudyRecord) ([]models.StudyCompleteness, error) {
	present := make(map[string]struct{}, len(localStudies))
	for _, s := range localStudies {
		present[s.StudyInstanceUID] = struct{}{}
	}

	out := make([]models.StudyCompleteness, 0, len(remoteStudies))
	for _, study := range remoteStudies {
		_, onLocal := present[study.StudyInstanceUID]

		var remoteSeries, localSeries []models.SeriesRecord
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			remoteSeries, err = c.Remote.FindSeries(gctx, study.StudyInstanceUID)
			if err != nil {
				return &models.QueryFailure{Node: c.Remote.Name(), Op: "find series " + study.StudyInstanceUID, Err: err}
			}
			return nil
		})
		if onLocal {
			g.Go(func() error {
				var err error
				localSeries, err = c.Local.FindSeries(gctx, study.StudyInstanceUID)
				if err != nil {
					return &models.QueryFailure{Node: c.Local.Name(), Op: "find series " + study.StudyInstanceUID, Err: err}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		out = append(out, models.StudyCompleteness{
			Study:   study,
			Series:  ClassifySeries(remoteSeries, localSeries),
			Missing: !onLocal,
		})
	}
	return out, nil
}
