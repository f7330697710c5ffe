package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/dicom-autosync/internal/adapters"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/internal/reconcile"
	"github.com/otcheredev/dicom-autosync/internal/transfer"
	"github.com/otcheredev/dicom-autosync/pkg/dimse"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SyncOptions configures the cycle orchestrator
type SyncOptions struct {
	Node        string
	WindowHours int
	Policy      reconcile.Policy

	// DownloadDay targets one day ("today", "yesterday" or YYYYMMDD) and disables the window filter
	DownloadDay string

	Progress transfer.ProgressSink
	Clock    func() time.Time

	// OnState is called on every state transition, in order
	OnState func(cycle int, state models.CycleState)
}

// SyncService runs one reconciliation cycle between a remote and a local store
type SyncService struct {
	remote    adapters.Directory
	local     adapters.Directory
	sequencer *transfer.Sequencer
	opts      SyncOptions
}

// NewSyncService creates the orchestrator. mover moves series from remote into local.
func NewSyncService(remote, local adapters.Directory, mover adapters.Mover, opts SyncOptions) *SyncService {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.WindowHours <= 0 {
		opts.WindowHours = reconcile.DefaultWindowHours
	}
	if opts.Policy.Mode == "" {
		opts.Policy.Mode = reconcile.ModeSmallest
	}

	seqOpts := []transfer.Option{transfer.WithClock(opts.Clock)}
	if opts.Progress != nil {
		seqOpts = append(seqOpts, transfer.WithProgress(opts.Progress))
	}

	return &SyncService{
		remote:    remote,
		local:     local,
		sequencer: transfer.NewSequencer(mover, seqOpts...),
		opts:      opts,
	}
}

// DownloadDayMode reports whether cycles target a single explicit day
func (s *SyncService) DownloadDayMode() bool {
	return s.opts.DownloadDay != ""
}

// Policy returns the selection policy in use
func (s *SyncService) Policy() reconcile.Policy {
	return s.opts.Policy
}

// DateRange returns the StudyDate range the next cycle will query
func (s *SyncService) DateRange(now time.Time) (from, to string, err error) {
	if s.DownloadDayMode() {
		day, err := dimse.ResolveDay(s.opts.DownloadDay, now)
		if err != nil {
			return "", "", &models.ConfigurationError{Field: "sync.download_day", Reason: err.Error()}
		}
		return day, day, nil
	}
	from, to = reconcile.WindowRange(now, s.opts.WindowHours)
	return from, to, nil
}

// Plan describes the cycle that would start at now
func (s *SyncService) Plan(cycle int, now time.Time) models.CyclePlan {
	plan := models.CyclePlan{
		Cycle:       cycle,
		WindowHours: s.opts.WindowHours,
		DownloadDay: s.DownloadDayMode(),
		StartedAt:   now,
	}
	plan.DateFrom, plan.DateTo, _ = s.DateRange(now)
	return plan
}

// RunCycle executes one full cycle. The returned stats are always non-nil; on failure
// their State is CycleFailed and the error is also returned.
func (s *SyncService) RunCycle(ctx context.Context, cycle int) (*models.SyncCycleStats, error) {
	now := s.opts.Clock()
	stats := &models.SyncCycleStats{
		CycleID:     uuid.New(),
		Cycle:       cycle,
		Node:        s.opts.Node,
		WindowHours: s.opts.WindowHours,
		DownloadDay: s.DownloadDayMode(),
		StartedAt:   now,
	}

	from, to, err := s.DateRange(now)
	if err != nil {
		return s.fail(stats, err)
	}
	stats.DateFrom, stats.DateTo = from, to

	log.Info().
		Int("cycle", cycle).
		Str("node", s.opts.Node).
		Str("date_from", from).
		Str("date_to", to).
		Int("window_hours", s.opts.WindowHours).
		Bool("download_day", stats.DownloadDay).
		Msg("Starting sync cycle")

	// Directory queries are never interrupted mid-flight; cancellation is observed between jobs.
	queryCtx := context.WithoutCancel(ctx)

	var (
		remoteStudies, localStudies []models.StudyRecord
		remoteErr, localErr         error
		g                           errgroup.Group
	)
	s.enter(stats, models.StateQueryingRemote)
	g.Go(func() error {
		var err error
		remoteStudies, err = s.remote.FindStudies(queryCtx, from, to)
		if err != nil {
			remoteErr = &models.QueryFailure{Node: s.remote.Name(), Op: "find studies", Err: err}
		}
		return remoteErr
	})
	s.enter(stats, models.StateQueryingLocal)
	g.Go(func() error {
		var err error
		localStudies, err = s.local.FindStudies(queryCtx, from, to)
		if err != nil {
			localErr = &models.QueryFailure{Node: s.local.Name(), Op: "find studies", Err: err}
		}
		return localErr
	})
	_ = g.Wait()

	// Report the failing step, preferring the remote when both failed.
	if remoteErr != nil {
		stats.State = models.StateQueryingRemote
		return s.fail(stats, remoteErr)
	}
	if localErr != nil {
		return s.fail(stats, localErr)
	}
	stats.RemoteStudies = len(remoteStudies)
	stats.LocalStudies = len(localStudies)

	if len(remoteStudies) == 0 {
		log.Info().Int("cycle", cycle).Msg("No studies found on remote")
		return s.finish(stats), nil
	}

	s.enter(stats, models.StateFiltering)
	inWindow := remoteStudies
	if !stats.DownloadDay {
		inWindow = reconcile.FilterByWindow(remoteStudies, now, s.opts.WindowHours)
	}
	stats.RemoteStudiesInWindow = len(inWindow)
	stats.MissingStudies = len(reconcile.MissingStudies(inWindow, localStudies))

	if len(inWindow) == 0 {
		log.Info().
			Int("cycle", cycle).
			Int("remote_studies", stats.RemoteStudies).
			Msg("No studies within the time window")
		return s.finish(stats), nil
	}

	s.enter(stats, models.StateComparing)
	comparator := &reconcile.Comparator{Remote: s.remote, Local: s.local}
	completeness, err := comparator.Compare(queryCtx, inWindow, localStudies)
	if err != nil {
		return s.fail(stats, err)
	}
	for _, sc := range completeness {
		stats.SeriesConsidered += len(sc.Series)
		stats.SeriesEligible += len(sc.Eligible())
	}

	s.enter(stats, models.StateSelecting)
	jobs := s.opts.Policy.Select(completeness)
	stats.SeriesSelected = len(jobs)
	for _, j := range jobs {
		stats.ImagesSelected += j.Series.ImageCount
	}

	log.Info().
		Int("cycle", cycle).
		Int("studies_in_window", stats.RemoteStudiesInWindow).
		Int("missing_studies", stats.MissingStudies).
		Int("series_eligible", stats.SeriesEligible).
		Int("series_selected", stats.SeriesSelected).
		Msg("Comparison complete")

	if len(jobs) == 0 {
		return s.finish(stats), nil
	}

	s.enter(stats, models.StateTransferring)
	summary := s.sequencer.Run(ctx, jobs)
	stats.SeriesTransferred = summary.Succeeded
	stats.SeriesFailed = summary.Failed
	stats.SeriesSkipped = summary.Skipped
	stats.ImagesTransferred = summary.ImagesTransferred
	stats.TransferTime = summary.Elapsed
	stats.Jobs = make([]models.JobRecord, 0, len(jobs))
	for _, j := range jobs {
		stats.Jobs = append(stats.Jobs, j.Record())
	}

	return s.finish(stats), nil
}

func (s *SyncService) enter(stats *models.SyncCycleStats, state models.CycleState) {
	stats.State = state
	log.Debug().
		Int("cycle", stats.Cycle).
		Str("state", string(state)).
		Msg("Cycle state")
	if s.opts.OnState != nil {
		s.opts.OnState(stats.Cycle, state)
	}
}

func (s *SyncService) finish(stats *models.SyncCycleStats) *models.SyncCycleStats {
	s.enter(stats, models.StateReporting)
	stats.FinishedAt = s.opts.Clock()
	stats.Elapsed = stats.FinishedAt.Sub(stats.StartedAt)
	s.enter(stats, models.StateDone)

	log.Info().
		Int("cycle", stats.Cycle).
		Str("transferred", stats.SuccessRatio()).
		Int("images", stats.ImagesTransferred).
		Dur("duration", stats.Elapsed).
		Msg("Sync cycle complete")

	return stats
}

func (s *SyncService) fail(stats *models.SyncCycleStats, err error) (*models.SyncCycleStats, error) {
	failedIn := stats.State
	stats.Error = err.Error()
	stats.FinishedAt = s.opts.Clock()
	stats.Elapsed = stats.FinishedAt.Sub(stats.StartedAt)
	s.enter(stats, models.StateCycleFailed)

	log.Error().
		Err(err).
		Int("cycle", stats.Cycle).
		Str("state", string(failedIn)).
		Msg("Sync cycle failed")

	return stats, fmt.Errorf("cycle %d failed in %s: %w", stats.Cycle, failedIn, err)
}
