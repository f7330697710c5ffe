package transfer

import (
	"context"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/rs/zerolog/log"
)

// Mover performs one synchronous series move
type Mover interface {
	MoveSeries(ctx context.Context, seriesUID, studyUID string) error
}

// ProgressSink receives start and finish events as jobs run
type ProgressSink interface {
	OnProgress(event models.ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(models.ProgressEvent)

func (f ProgressFunc) OnProgress(event models.ProgressEvent) { f(event) }

// Summary aggregates the outcome of one batch
type Summary struct {
	Attempted         int
	Succeeded         int
	Failed            int
	Skipped           int
	ImagesTransferred int
	Elapsed           time.Duration
}

// ImagesPerMinute returns the batch throughput
func (s Summary) ImagesPerMinute() float64 {
	minutes := s.Elapsed.Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(s.ImagesTransferred) / minutes
}

// Sequencer runs transfer jobs strictly one at a time
type Sequencer struct {
	mover    Mover
	progress ProgressSink
	now      func() time.Time
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithProgress registers a progress sink
func WithProgress(sink ProgressSink) Option {
	return func(s *Sequencer) { s.progress = sink }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// NewSequencer creates a sequencer moving series through mover
func NewSequencer(mover Mover, opts ...Option) *Sequencer {
	s := &Sequencer{mover: mover, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes jobs in order and mutates their runtime fields.
// Cancellation of ctx is honoured between jobs only: a move in flight always runs to completion.
// A failed job never stops the batch; remaining jobs after a cancellation are counted as skipped.
func (s *Sequencer) Run(ctx context.Context, jobs []*models.TransferJob) Summary {
	var summary Summary
	moveCtx := context.WithoutCancel(ctx)
	batchStart := s.now()

	for i, job := range jobs {
		if ctx.Err() != nil {
			summary.Skipped = len(jobs) - i
			log.Warn().
				Int("remaining", summary.Skipped).
				Msg("Transfer batch cancelled, remaining jobs left for the next run")
			break
		}

		job.Attempted = true
		job.StartedAt = s.now()
		s.emit(models.ProgressEvent{
			Kind:        models.ProgressStarted,
			Index:       i + 1,
			Total:       len(jobs),
			Timestamp:   job.StartedAt,
			PatientName: job.Study.PatientName,
			StudyDate:   job.Study.StudyDate,
			Series:      job.SeriesLabel(),
			Description: job.Series.SeriesDescription,
			Label:       job.Label(),
		})

		err := s.mover.MoveSeries(moveCtx, job.Series.SeriesInstanceUID, job.Study.StudyInstanceUID)

		job.CompletedAt = s.now()
		job.Succeeded = err == nil
		job.Err = err
		summary.Attempted++

		if err != nil {
			summary.Failed++
			log.Error().
				Err(err).
				Str("study_uid", job.Study.StudyInstanceUID).
				Str("series_uid", job.Series.SeriesInstanceUID).
				Int("series_number", job.Series.SeriesNumber).
				Str("modality", job.Series.Modality).
				Msg("Series transfer failed, continuing with next job")
		} else {
			summary.Succeeded++
			summary.ImagesTransferred += job.Series.ImageCount
		}

		elapsed := job.Duration()
		summary.Elapsed = job.CompletedAt.Sub(batchStart)
		s.emit(models.ProgressEvent{
			Kind:        models.ProgressFinished,
			Index:       i + 1,
			Total:       len(jobs),
			Timestamp:   job.CompletedAt,
			PatientName: job.Study.PatientName,
			StudyDate:   job.Study.StudyDate,
			Series:      job.SeriesLabel(),
			Description: job.Series.SeriesDescription,
			Label:       job.Label(),
			Succeeded:   job.Succeeded,
			Err:         err,
			Elapsed:     elapsed,
			SeriesRate:  rate(jobImages(job), elapsed),
			AverageRate: rate(summary.ImagesTransferred, summary.Elapsed),
		})
	}

	summary.Elapsed = s.now().Sub(batchStart)
	return summary
}

func (s *Sequencer) emit(event models.ProgressEvent) {
	if s.progress != nil {
		s.progress.OnProgress(event)
	}
}

func jobImages(job *models.TransferJob) int {
	if !job.Succeeded {
		return 0
	}
	return job.Series.ImageCount
}

// rate returns images per second
func rate(images int, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(images) / secs
}
