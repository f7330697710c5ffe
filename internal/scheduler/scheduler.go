package scheduler

import (
	"context"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the pause between cycles
const DefaultInterval = 60 * time.Second

// Runner executes one sync cycle
type Runner interface {
	RunCycle(ctx context.Context, cycle int) (*models.SyncCycleStats, error)
	Plan(cycle int, now time.Time) models.CyclePlan
}

// Reporter receives every finished cycle together with the running totals
type Reporter interface {
	ReportCycle(ctx context.Context, stats *models.SyncCycleStats, totals models.Totals) error
}

// CycleStartReporter is implemented by reporters that announce a cycle before it runs
type CycleStartReporter interface {
	CycleStarted(plan models.CyclePlan)
}

// Config tunes the loop
type Config struct {
	Interval time.Duration

	// FastFollow, when positive, replaces Interval after a cycle that transferred images
	FastFollow time.Duration

	Clock func() time.Time
}

// Scheduler runs cycles back to back and owns the cumulative totals
type Scheduler struct {
	runner    Runner
	reporters []Reporter
	cfg       Config

	cycle  int
	totals models.Totals
}

// New creates a scheduler
func New(runner Runner, cfg Config, reporters ...Reporter) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Scheduler{
		runner:    runner,
		reporters: reporters,
		cfg:       cfg,
	}
}

// Totals returns the cumulative counters. Call only from the goroutine running the loop or after it returned.
func (s *Scheduler) Totals() models.Totals {
	return s.totals
}

// Run loops until ctx is cancelled. Cancellation is observed before a cycle starts,
// during the sleep and between transfer jobs. Cycle failures never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", s.cfg.Interval).
		Dur("fast_follow", s.cfg.FastFollow).
		Msg("Scheduler started")

	for {
		if ctx.Err() != nil {
			break
		}

		stats, _ := s.RunOnce(ctx)

		wait := s.cfg.Interval
		if s.cfg.FastFollow > 0 && stats != nil && stats.ImagesTransferred > 0 {
			wait = s.cfg.FastFollow
		}

		if !sleep(ctx, wait) {
			break
		}
	}

	log.Info().
		Int("cycles", s.totals.Cycles).
		Int("series_transferred", s.totals.SeriesTransferred).
		Int("images_transferred", s.totals.ImagesTransferred).
		Msg("Scheduler stopped")

	return nil
}

// RunOnce runs and reports a single cycle
func (s *Scheduler) RunOnce(ctx context.Context) (*models.SyncCycleStats, error) {
	s.cycle++

	plan := s.runner.Plan(s.cycle, s.cfg.Clock())
	for _, r := range s.reporters {
		if starter, ok := r.(CycleStartReporter); ok {
			starter.CycleStarted(plan)
		}
	}

	stats, err := s.runner.RunCycle(ctx, s.cycle)
	if stats == nil {
		stats = &models.SyncCycleStats{Cycle: s.cycle, State: models.StateCycleFailed}
		if err != nil {
			stats.Error = err.Error()
		}
	}
	if err != nil {
		log.Error().
			Err(err).
			Int("cycle", s.cycle).
			Msg("Cycle failed, next cycle will retry")
	}

	s.totals.Add(stats)
	s.report(ctx, stats)

	return stats, err
}

func (s *Scheduler) report(ctx context.Context, stats *models.SyncCycleStats) {
	// Reporting runs even when ctx is cancelled so the last cycle is not lost.
	reportCtx := context.WithoutCancel(ctx)
	for _, r := range s.reporters {
		if err := r.ReportCycle(reportCtx, stats, s.totals); err != nil {
			log.Warn().
				Err(err).
				Int("cycle", stats.Cycle).
				Msgf("Reporter %T failed", r)
		}
	}
}

// sleep waits for d and reports false when ctx was cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
