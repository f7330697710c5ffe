package reconcile

import (
	"testing"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingStudy(uid string, counts ...int) models.StudyCompleteness {
	sc := models.StudyCompleteness{Study: models.StudyRecord{StudyInstanceUID: uid}, Missing: true}
	for i, n := range counts {
		sc.Series = append(sc.Series, models.CompletenessResult{
			Remote:         models.SeriesRecord{SeriesInstanceUID: uid + "." + string(rune('a'+i)), SeriesNumber: i + 1, ImageCount: n},
			Classification: models.Missing,
		})
	}
	return sc
}

func imageCounts(jobs []*models.TransferJob) []int {
	out := make([]int, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Series.ImageCount)
	}
	return out
}

func TestSelectSmallest(t *testing.T) {
	jobs := Policy{Mode: ModeSmallest}.Select([]models.StudyCompleteness{missingStudy("S", 120, 45, 267)})

	require.Len(t, jobs, 1)
	assert.Equal(t, 45, jobs[0].Series.ImageCount)
	assert.Equal(t, "New", jobs[0].Label())
}

func TestSelectSmallestTieBreak(t *testing.T) {
	sc := missingStudy("S", 50, 50)
	sc.Series[0].Remote.SeriesNumber = 7
	sc.Series[1].Remote.SeriesNumber = 2

	jobs := Policy{Mode: ModeSmallest}.Select([]models.StudyCompleteness{sc})
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].Series.SeriesNumber)
}

func TestSelectThresholdIsStrict(t *testing.T) {
	sc := missingStudy("S", 120, 45, 267, 310, 300)

	jobs := Policy{Mode: ModeThreshold, MinImages: 300}.Select([]models.StudyCompleteness{sc})
	assert.Equal(t, []int{45, 120, 267}, imageCounts(jobs))
}

func TestSelectAll(t *testing.T) {
	sc := missingStudy("S", 120, 45, 267, 310)

	jobs := Policy{Mode: ModeAll}.Select([]models.StudyCompleteness{sc})
	assert.Equal(t, []int{45, 120, 267, 310}, imageCounts(jobs))
}

func TestSelectNeverPicksComplete(t *testing.T) {
	sc := missingStudy("S", 10, 20, 30)
	sc.Series[0].Classification = models.Complete
	local := models.SeriesRecord{ImageCount: 5}
	sc.Series[1].Classification = models.Incomplete
	sc.Series[1].Local = &local

	for _, mode := range []Mode{ModeSmallest, ModeThreshold, ModeAll} {
		jobs := Policy{Mode: mode, MinImages: 1000}.Select([]models.StudyCompleteness{sc})
		require.NotEmpty(t, jobs, mode)
		for _, j := range jobs {
			assert.NotEqual(t, models.Complete, j.Classification, mode)
		}
		assert.Equal(t, 20, jobs[0].Series.ImageCount, mode)
		assert.Equal(t, "Completing 5/20 images", jobs[0].Label(), mode)
	}
}

func TestSelectSmallestSkipsEmptySeries(t *testing.T) {
	sc := models.StudyCompleteness{
		Study:   models.StudyRecord{StudyInstanceUID: "S"},
		Series:  ClassifySeries([]models.SeriesRecord{series("S.0", 1, 0), series("S.1", 2, 10)}, nil),
		Missing: true,
	}

	jobs := Policy{Mode: ModeSmallest}.Select([]models.StudyCompleteness{sc})
	require.Len(t, jobs, 1)
	assert.Equal(t, "S.1", jobs[0].Series.SeriesInstanceUID)
	assert.Equal(t, 10, jobs[0].Series.ImageCount)
}

func TestSelectKeepsStudyOrder(t *testing.T) {
	studies := []models.StudyCompleteness{
		missingStudy("B", 300, 100),
		missingStudy("A", 5),
		{Study: models.StudyRecord{StudyInstanceUID: "C"}},
	}

	jobs := Policy{Mode: ModeAll}.Select(studies)
	require.Len(t, jobs, 3)
	assert.Equal(t, "B", jobs[0].Study.StudyInstanceUID)
	assert.Equal(t, 100, jobs[0].Series.ImageCount)
	assert.Equal(t, "B", jobs[1].Study.StudyInstanceUID)
	assert.Equal(t, "A", jobs[2].Study.StudyInstanceUID)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeSmallest, false},
		{"Smallest", ModeSmallest, false},
		{"threshold", ModeThreshold, false},
		{"max-images", ModeThreshold, false},
		{"all", ModeAll, false},
		{"all-series", ModeAll, false},
		{"largest", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, Policy{Mode: ModeSmallest}.Validate())
	assert.NoError(t, Policy{Mode: ModeAll}.Validate())
	assert.NoError(t, Policy{Mode: ModeThreshold, MinImages: 1}.Validate())
	assert.Error(t, Policy{Mode: ModeThreshold}.Validate())
	assert.Error(t, Policy{Mode: "bogus"}.Validate())
}
