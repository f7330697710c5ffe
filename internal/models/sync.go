package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransferJob is one series move scheduled within a cycle
type TransferJob struct {
	Study           StudyRecord
	Series          SeriesRecord
	Classification  Classification
	LocalImageCount int

	// Runtime fields, written only by the transfer sequencer
	Attempted   bool
	StartedAt   time.Time
	CompletedAt time.Time
	Succeeded   bool
	Err         error
}

// NewTransferJob builds a job from a completeness result
func NewTransferJob(study StudyRecord, result CompletenessResult) *TransferJob {
	return &TransferJob{
		Study:           study,
		Series:          result.Remote,
		Classification:  result.Classification,
		LocalImageCount: result.LocalImageCount(),
	}
}

// Label returns "New" for missing series and "Completing N/M images" otherwise
func (j *TransferJob) Label() string {
	if j.Classification == Incomplete {
		return fmt.Sprintf("Completing %d/%d images", j.LocalImageCount, j.Series.ImageCount)
	}
	return "New"
}

// SeriesLabel returns a short human readable series identity
func (j *TransferJob) SeriesLabel() string {
	return fmt.Sprintf("%d (%s)", j.Series.SeriesNumber, j.Series.Modality)
}

// Duration returns the time spent in the move call
func (j *TransferJob) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}

// ProgressKind distinguishes start and finish events
type ProgressKind string

const (
	ProgressStarted  ProgressKind = "started"
	ProgressFinished ProgressKind = "finished"
)

// ProgressEvent is emitted by the sequencer for real-time display
type ProgressEvent struct {
	Kind        ProgressKind
	Index       int // 1-based position in the batch
	Total       int
	Timestamp   time.Time
	PatientName string
	StudyDate   string
	Series      string
	Description string
	Label       string
	Succeeded   bool
	Err         error
	Elapsed     time.Duration // time spent on this job
	SeriesRate  float64       // images per second for this job
	AverageRate float64       // images per second across the batch so far
}

// CycleState is a step of the sync cycle state machine
type CycleState string

const (
	StateQueryingRemote CycleState = "querying_remote"
	StateQueryingLocal  CycleState = "querying_local"
	StateFiltering      CycleState = "filtering"
	StateComparing      CycleState = "comparing"
	StateSelecting      CycleState = "selecting"
	StateTransferring   CycleState = "transferring"
	StateReporting      CycleState = "reporting"
	StateDone           CycleState = "done"
	StateCycleFailed    CycleState = "cycle_failed"
)

// CyclePlan describes a cycle about to start
type CyclePlan struct {
	Cycle       int
	DateFrom    string
	DateTo      string
	WindowHours int
	DownloadDay bool
	StartedAt   time.Time
}

// JobRecord is the immutable outcome of a transfer job kept in the cycle stats
type JobRecord struct {
	StudyInstanceUID  string         `json:"study_instance_uid"`
	SeriesInstanceUID string         `json:"series_instance_uid"`
	PatientName       string         `json:"patient_name"`
	StudyDate         string         `json:"study_date"`
	SeriesNumber      int            `json:"series_number"`
	Modality          string         `json:"modality"`
	Description       string         `json:"description"`
	Classification    Classification `json:"classification"`
	LocalImageCount   int            `json:"local_image_count"`
	RemoteImageCount  int            `json:"remote_image_count"`
	Attempted         bool           `json:"attempted"`
	Succeeded         bool           `json:"succeeded"`
	Error             string         `json:"error,omitempty"`
	StartedAt         time.Time      `json:"started_at,omitempty"`
	CompletedAt       time.Time      `json:"completed_at,omitempty"`
}

// Record snapshots the job outcome
func (j *TransferJob) Record() JobRecord {
	rec := JobRecord{
		StudyInstanceUID:  j.Study.StudyInstanceUID,
		SeriesInstanceUID: j.Series.SeriesInstanceUID,
		PatientName:       j.Study.PatientName,
		StudyDate:         j.Study.StudyDate,
		SeriesNumber:      j.Series.SeriesNumber,
		Modality:          j.Series.Modality,
		Description:       j.Series.SeriesDescription,
		Classification:    j.Classification,
		LocalImageCount:   j.LocalImageCount,
		RemoteImageCount:  j.Series.ImageCount,
		Attempted:         j.Attempted,
		Succeeded:         j.Succeeded,
		StartedAt:         j.StartedAt,
		CompletedAt:       j.CompletedAt,
	}
	if j.Err != nil {
		rec.Error = j.Err.Error()
	}
	return rec
}

// SyncCycleStats aggregates the counters of one cycle
type SyncCycleStats struct {
	CycleID     uuid.UUID  `json:"cycle_id"`
	Cycle       int        `json:"cycle"`
	Node        string     `json:"node"`
	State       CycleState `json:"state"`
	Error       string     `json:"error,omitempty"`
	DateFrom    string     `json:"date_from"`
	DateTo      string     `json:"date_to"`
	WindowHours int        `json:"window_hours"`
	DownloadDay bool       `json:"download_day"`

	RemoteStudies         int `json:"remote_studies"`
	RemoteStudiesInWindow int `json:"remote_studies_in_window"`
	LocalStudies          int `json:"local_studies"`
	MissingStudies        int `json:"missing_studies"`
	SeriesConsidered      int `json:"series_considered"`
	SeriesEligible        int `json:"series_eligible"`
	SeriesSelected        int `json:"series_selected"`
	SeriesTransferred     int `json:"series_transferred"`
	SeriesFailed          int `json:"series_failed"`
	SeriesSkipped         int `json:"series_skipped"`
	ImagesTransferred     int `json:"images_transferred"`
	ImagesSelected        int `json:"images_selected"`

	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Elapsed      time.Duration `json:"elapsed"`
	TransferTime time.Duration `json:"transfer_time"`
	Jobs         []JobRecord   `json:"jobs,omitempty"`
}

// Failed reports whether the cycle aborted
func (s *SyncCycleStats) Failed() bool {
	return s.State == StateCycleFailed
}

// ImagesPerMinute returns the transfer throughput over the transfer phase
func (s *SyncCycleStats) ImagesPerMinute() float64 {
	minutes := s.TransferTime.Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(s.ImagesTransferred) / minutes
}

// SuccessRatio renders transferred/selected, e.g. "3/4"
func (s *SyncCycleStats) SuccessRatio() string {
	return fmt.Sprintf("%d/%d", s.SeriesTransferred, s.SeriesSelected)
}

// Totals are cumulative counters for display, owned by the scheduler loop
type Totals struct {
	Cycles            int `json:"cycles"`
	FailedCycles      int `json:"failed_cycles"`
	SeriesTransferred int `json:"series_transferred"`
	SeriesFailed      int `json:"series_failed"`
	ImagesTransferred int `json:"images_transferred"`
}

// Add folds one cycle into the running totals
func (t *Totals) Add(s *SyncCycleStats) {
	t.Cycles++
	if s.Failed() {
		t.FailedCycles++
	}
	t.SeriesTransferred += s.SeriesTransferred
	t.SeriesFailed += s.SeriesFailed
	t.ImagesTransferred += s.ImagesTransferred
}

// StatusSnapshot is the latest known state of a sync process
type StatusSnapshot struct {
	Node      string          `json:"node"`
	LastCycle *SyncCycleStats `json:"last_cycle"`
	Totals    Totals          `json:"totals"`
	UpdatedAt time.Time       `json:"updated_at"`
}
