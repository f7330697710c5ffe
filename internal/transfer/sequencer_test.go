package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type moveCall struct {
	series    string
	cancelled bool
}

type fakeMover struct {
	fail   map[string]error
	calls  []moveCall
	during func(seriesUID string)
}

func (m *fakeMover) MoveSeries(ctx context.Context, seriesUID, studyUID string) error {
	if m.during != nil {
		m.during(seriesUID)
	}
	m.calls = append(m.calls, moveCall{series: seriesUID, cancelled: ctx.Err() != nil})
	return m.fail[seriesUID]
}

// stepClock advances by step on every call
func stepClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 10, 18, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func makeJobs(n int) []*models.TransferJob {
	jobs := make([]*models.TransferJob, 0, n)
	for i := 1; i <= n; i++ {
		jobs = append(jobs, &models.TransferJob{
			Study:          models.StudyRecord{StudyInstanceUID: "1.2", PatientName: "DOE^JANE", StudyDate: "20241018"},
			Series:         models.SeriesRecord{SeriesInstanceUID: fmt.Sprintf("1.2.%d", i), SeriesNumber: i, Modality: "CT", ImageCount: 100},
			Classification: models.Missing,
		})
	}
	return jobs
}

func TestSequencerPartialFailure(t *testing.T) {
	mover := &fakeMover{fail: map[string]error{"1.2.2": errors.New("C-MOVE refused")}}
	var events []models.ProgressEvent

	seq := NewSequencer(mover,
		WithClock(stepClock(time.Second)),
		WithProgress(ProgressFunc(func(e models.ProgressEvent) { events = append(events, e) })),
	)

	jobs := makeJobs(4)
	summary := seq.Run(context.Background(), jobs)

	require.Len(t, mover.calls, 4, "every job is attempted after a failure")
	assert.Equal(t, 4, summary.Attempted)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 300, summary.ImagesTransferred)

	assert.False(t, jobs[1].Succeeded)
	assert.EqualError(t, jobs[1].Err, "C-MOVE refused")
	for _, i := range []int{0, 2, 3} {
		assert.True(t, jobs[i].Succeeded)
		assert.NoError(t, jobs[i].Err)
		assert.Equal(t, time.Second, jobs[i].Duration())
	}

	require.Len(t, events, 8)
	assert.Equal(t, models.ProgressStarted, events[0].Kind)
	assert.Equal(t, models.ProgressFinished, events[1].Kind)
	assert.Equal(t, 1, events[1].Index)
	assert.Equal(t, 4, events[1].Total)
	assert.Equal(t, "New", events[1].Label)
	assert.InDelta(t, 100.0, events[1].SeriesRate, 0.001)
	assert.False(t, events[3].Succeeded)
	assert.Zero(t, events[3].SeriesRate)
}

func TestSequencerSerializesMoves(t *testing.T) {
	inFlight := 0
	maxInFlight := 0
	mover := &fakeMover{during: func(string) {
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		inFlight--
	}}

	NewSequencer(mover).Run(context.Background(), makeJobs(5))

	assert.Equal(t, 1, maxInFlight)
	require.Len(t, mover.calls, 5)
	for i, c := range mover.calls {
		assert.Equal(t, fmt.Sprintf("1.2.%d", i+1), c.series, "jobs run in order")
	}
}

func TestSequencerCancelBetweenJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mover := &fakeMover{during: func(seriesUID string) {
		if seriesUID == "1.2.2" {
			cancel()
		}
	}}

	jobs := makeJobs(4)
	summary := NewSequencer(mover).Run(ctx, jobs)

	require.Len(t, mover.calls, 2)
	assert.False(t, mover.calls[1].cancelled, "in-flight move keeps an uncancelled context")
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)
	assert.True(t, jobs[1].Succeeded)
	assert.False(t, jobs[2].Attempted)
	assert.False(t, jobs[3].Attempted)
}

func TestSequencerThroughput(t *testing.T) {
	summary := NewSequencer(&fakeMover{}, WithClock(stepClock(30*time.Second))).Run(context.Background(), makeJobs(2))

	// batch start, start+finish per job, batch end: five 30s steps
	assert.Equal(t, 2*time.Minute+30*time.Second, summary.Elapsed)
	assert.InDelta(t, 80.0, summary.ImagesPerMinute(), 0.001)
}

func TestSequencerEmptyBatch(t *testing.T) {
	summary := NewSequencer(&fakeMover{}).Run(context.Background(), nil)
	assert.Zero(t, summary.Attempted)
	assert.Zero(t, summary.ImagesPerMinute())
}
