package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncCycle is the persisted summary of one cycle
type SyncCycle struct {
	ID                    uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	Node                  string    `gorm:"type:varchar(100);not null;index" json:"node"`
	Cycle                 int       `gorm:"not null" json:"cycle"`
	State                 string    `gorm:"type:varchar(30);not null;index" json:"state"`
	ErrorMessage          string    `gorm:"type:text" json:"error_message,omitempty"`
	DateFrom              string    `gorm:"type:varchar(8)" json:"date_from"`
	DateTo                string    `gorm:"type:varchar(8)" json:"date_to"`
	WindowHours           int       `json:"window_hours"`
	DownloadDay           bool      `json:"download_day"`
	RemoteStudies         int       `json:"remote_studies"`
	RemoteStudiesInWindow int       `json:"remote_studies_in_window"`
	LocalStudies          int       `json:"local_studies"`
	MissingStudies        int       `json:"missing_studies"`
	SeriesEligible        int       `json:"series_eligible"`
	SeriesSelected        int       `json:"series_selected"`
	SeriesTransferred     int       `json:"series_transferred"`
	SeriesFailed          int       `json:"series_failed"`
	SeriesSkipped         int       `json:"series_skipped"`
	ImagesTransferred     int       `json:"images_transferred"`
	Duration              int64     `json:"duration_ms"` // milliseconds
	StartedAt             time.Time `gorm:"index" json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
	CreatedAt             time.Time `json:"created_at"`

	Transfers []TransferRecord `gorm:"foreignKey:CycleID;constraint:OnDelete:CASCADE" json:"transfers,omitempty"`
}

// TableName overrides the table name
func (SyncCycle) TableName() string {
	return "sync_cycles"
}

// BeforeCreate hook
func (c *SyncCycle) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TransferRecord is one attempted series move
type TransferRecord struct {
	ID                uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	CycleID           uuid.UUID      `gorm:"type:varchar(36);not null;index" json:"cycle_id"`
	StudyInstanceUID  string         `gorm:"type:varchar(64);not null;index" json:"study_instance_uid"`
	SeriesInstanceUID string         `gorm:"type:varchar(64);not null;index" json:"series_instance_uid"`
	PatientName       string         `gorm:"type:varchar(255)" json:"patient_name"`
	StudyDate         string         `gorm:"type:varchar(8)" json:"study_date"`
	SeriesNumber      int            `json:"series_number"`
	Modality          string         `gorm:"type:varchar(16)" json:"modality"`
	Classification    Classification `gorm:"type:varchar(20)" json:"classification"`
	LocalImageCount   int            `json:"local_image_count"`
	RemoteImageCount  int            `json:"remote_image_count"`
	Succeeded         bool           `gorm:"index" json:"succeeded"`
	ErrorMessage      string         `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       time.Time      `json:"completed_at"`
	Duration          int64          `json:"duration_ms"` // milliseconds
	CreatedAt         time.Time      `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (TransferRecord) TableName() string {
	return "transfer_records"
}

// BeforeCreate hook
func (t *TransferRecord) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// NewSyncCycle maps cycle stats to a history row. Only attempted jobs become transfer records.
func NewSyncCycle(stats *SyncCycleStats) *SyncCycle {
	row := &SyncCycle{
		ID:                    stats.CycleID,
		Node:                  stats.Node,
		Cycle:                 stats.Cycle,
		State:                 string(stats.State),
		ErrorMessage:          stats.Error,
		DateFrom:              stats.DateFrom,
		DateTo:                stats.DateTo,
		WindowHours:           stats.WindowHours,
		DownloadDay:           stats.DownloadDay,
		RemoteStudies:         stats.RemoteStudies,
		RemoteStudiesInWindow: stats.RemoteStudiesInWindow,
		LocalStudies:          stats.LocalStudies,
		MissingStudies:        stats.MissingStudies,
		SeriesEligible:        stats.SeriesEligible,
		SeriesSelected:        stats.SeriesSelected,
		SeriesTransferred:     stats.SeriesTransferred,
		SeriesFailed:          stats.SeriesFailed,
		SeriesSkipped:         stats.SeriesSkipped,
		ImagesTransferred:     stats.ImagesTransferred,
		Duration:              stats.Elapsed.Milliseconds(),
		StartedAt:             stats.StartedAt,
		FinishedAt:            stats.FinishedAt,
	}

	for _, j := range stats.Jobs {
		if !j.Attempted {
			continue
		}
		row.Transfers = append(row.Transfers, TransferRecord{
			StudyInstanceUID:  j.StudyInstanceUID,
			SeriesInstanceUID: j.SeriesInstanceUID,
			PatientName:       j.PatientName,
			StudyDate:         j.StudyDate,
			SeriesNumber:      j.SeriesNumber,
			Modality:          j.Modality,
			Classification:    j.Classification,
			LocalImageCount:   j.LocalImageCount,
			RemoteImageCount:  j.RemoteImageCount,
			Succeeded:         j.Succeeded,
			ErrorMessage:      j.Error,
			StartedAt:         j.StartedAt,
			CompletedAt:       j.CompletedAt,
			Duration:          j.CompletedAt.Sub(j.StartedAt).Milliseconds(),
		})
	}
	return row
}
