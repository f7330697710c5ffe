package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/dictionary/tags"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/media"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/network"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/services"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/pkg/dimse"
	"github.com/rs/zerolog/log"
)

// DIMSE timeout defaults (in seconds)
const (
	TimeoutCEcho = 10  // 10 seconds for C-ECHO
	TimeoutCFind = 120 // 120 seconds for C-FIND (can return many results)
	TimeoutCMove = 600 // 600 seconds for C-MOVE (large series take time)
)

// DefaultCallingAETitle is used when no calling AE title is configured
const DefaultCallingAETitle = "AUTOSYNC"

// DIMSEOptions tunes a DIMSE adapter
type DIMSEOptions struct {
	CallingAE   string
	FindTimeout int
	MoveTimeout int
	EchoTimeout int

	// MoveDestination is the AE the node sends images to on C-MOVE.
	// Nil disables MoveSeries.
	MoveDestination *models.Destination
}

// DIMSEAdapter implements Directory and Mover over DIMSE using the SDK
type DIMSEAdapter struct {
	BaseAdapter
	opts        DIMSEOptions
	destination *network.Destination
}

// NewDIMSEAdapter creates a new DIMSE adapter
func NewDIMSEAdapter(node models.NodeConfig, opts DIMSEOptions) (*DIMSEAdapter, error) {
	if node.AETitle == "" {
		return nil, fmt.Errorf("AE Title (Called AE) is required for DIMSE connection")
	}
	if node.Host == "" {
		return nil, fmt.Errorf("ip_address (hostname) is required for DIMSE connection")
	}
	if node.Port == 0 {
		return nil, fmt.Errorf("port is required for DIMSE connection")
	}

	if opts.CallingAE == "" {
		opts.CallingAE = DefaultCallingAETitle
	}
	if opts.FindTimeout <= 0 {
		opts.FindTimeout = TimeoutCFind
	}
	if opts.MoveTimeout <= 0 {
		opts.MoveTimeout = TimeoutCMove
	}
	if opts.EchoTimeout <= 0 {
		opts.EchoTimeout = TimeoutCEcho
	}

	destination := &network.Destination{
		HostName:  node.Host,
		Port:      node.Port,
		CalledAE:  node.AETitle,
		CallingAE: opts.CallingAE,
		IsCFind:   true,
		IsCMove:   opts.MoveDestination != nil,
		IsCStore:  false,
	}

	log.Info().
		Str("node", node.Name).
		Str("endpoint", node.Host).
		Int("port", node.Port).
		Str("called_ae", node.AETitle).
		Str("calling_ae", opts.CallingAE).
		Bool("move_enabled", opts.MoveDestination != nil).
		Msg("Created DIMSE adapter")

	return &DIMSEAdapter{
		BaseAdapter: BaseAdapter{node: node},
		opts:        opts,
		destination: destination,
	}, nil
}

func (d *DIMSEAdapter) Capabilities() []string {
	caps := []string{"C-FIND", "C-ECHO"}
	if d.opts.MoveDestination != nil {
		caps = append(caps, "C-MOVE")
	}
	return caps
}

// Ping tests the node using C-ECHO
func (d *DIMSEAdapter) Ping(ctx context.Context) (*models.ConnectionStatus, error) {
	start := time.Now()
	status := &models.ConnectionStatus{
		LastChecked: start,
		IsConnected: false,
	}

	scu := services.NewSCU(d.destination)
	err := scu.EchoSCU(d.opts.EchoTimeout)

	status.ResponseTime = time.Since(start).Milliseconds()

	if err != nil {
		status.ErrorMessage = fmt.Sprintf("C-ECHO failed: %v", err)
		log.Warn().
			Err(err).
			Str("node", d.node.Name).
			Int64("response_time_ms", status.ResponseTime).
			Msg("DIMSE C-ECHO failed")
		return status, err
	}

	status.IsConnected = true
	status.Capabilities = d.Capabilities()

	log.Info().
		Str("node", d.node.Name).
		Int64("response_time_ms", status.ResponseTime).
		Msg("DIMSE C-ECHO successful")

	return status, nil
}

// FindStudies queries for studies using C-FIND at STUDY level over a StudyDate range
func (d *DIMSEAdapter) FindStudies(ctx context.Context, dateFrom, dateTo string) ([]models.StudyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dateRange := dimse.DateRange(dateFrom, dateTo)
	log.Debug().
		Str("node", d.node.Name).
		Str("date_range", dateRange).
		Msg("Executing C-FIND for studies")

	query := media.NewEmptyDCMObj()
	query.WriteString(tags.QueryRetrieveLevel, "STUDY")
	query.WriteString(tags.StudyDate, dateRange)

	// Return keys
	query.WriteString(tags.StudyInstanceUID, "")
	query.WriteString(tags.PatientID, "")
	query.WriteString(tags.PatientName, "")
	query.WriteString(tags.StudyTime, "")
	query.WriteString(tags.StudyDescription, "")
	query.WriteString(tags.NumberOfStudyRelatedInstances, "")

	var studies []models.StudyRecord

	scu := services.NewSCU(d.destination)
	scu.SetOnCFindResult(func(result media.DcmObj) {
		studies = append(studies, dicomToStudy(result))
	})

	start := time.Now()
	numResults, status, err := scu.FindSCU(query, d.opts.FindTimeout)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("node", d.node.Name).
			Dur("duration", duration).
			Msg("C-FIND for studies failed")
		return nil, fmt.Errorf("C-FIND failed: %w", err)
	}

	if dimse.Classify(status) != dimse.ClassSuccess {
		log.Warn().
			Uint16("status", status).
			Str("node", d.node.Name).
			Msg("C-FIND completed with non-success status")
		return nil, fmt.Errorf("C-FIND completed with status: 0x%04X (%s)", status, dimse.Describe(status))
	}

	log.Debug().
		Int("num_results", numResults).
		Int("num_studies", len(studies)).
		Dur("duration", duration).
		Str("node", d.node.Name).
		Msg("C-FIND for studies completed successfully")

	return studies, nil
}

// FindSeries queries for series using C-FIND at SERIES level
func (d *DIMSEAdapter) FindSeries(ctx context.Context, studyUID string) ([]models.SeriesRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("study_uid", studyUID).
		Str("node", d.node.Name).
		Msg("Executing C-FIND for series")

	query := media.NewEmptyDCMObj()
	query.WriteString(tags.QueryRetrieveLevel, "SERIES")
	query.WriteString(tags.StudyInstanceUID, studyUID)
	query.WriteString(tags.SeriesInstanceUID, "")
	query.WriteString(tags.SeriesNumber, "")
	query.WriteString(tags.Modality, "")
	query.WriteString(tags.SeriesDescription, "")
	query.WriteString(tags.NumberOfSeriesRelatedInstances, "")

	var series []models.SeriesRecord

	scu := services.NewSCU(d.destination)
	scu.SetOnCFindResult(func(result media.DcmObj) {
		s := dicomToSeries(result)
		if s.StudyInstanceUID == "" {
			s.StudyInstanceUID = studyUID
		}
		series = append(series, s)
	})

	start := time.Now()
	numResults, status, err := scu.FindSCU(query, d.opts.FindTimeout)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("study_uid", studyUID).
			Str("node", d.node.Name).
			Dur("duration", duration).
			Msg("C-FIND for series failed")
		return nil, fmt.Errorf("C-FIND failed: %w", err)
	}

	if dimse.Classify(status) != dimse.ClassSuccess {
		log.Warn().
			Uint16("status", status).
			Str("study_uid", studyUID).
			Msg("C-FIND completed with non-success status")
		return nil, fmt.Errorf("C-FIND completed with status: 0x%04X (%s)", status, dimse.Describe(status))
	}

	log.Debug().
		Int("num_results", numResults).
		Int("num_series", len(series)).
		Str("study_uid", studyUID).
		Dur("duration", duration).
		Msg("C-FIND for series completed successfully")

	return series, nil
}

// MoveSeries issues a SERIES level C-MOVE to the configured destination and waits for the final response
func (d *DIMSEAdapter) MoveSeries(ctx context.Context, seriesUID, studyUID string) error {
	if d.opts.MoveDestination == nil {
		return &models.TransferFailure{
			SeriesInstanceUID: seriesUID,
			StudyInstanceUID:  studyUID,
			Err:               fmt.Errorf("no C-MOVE destination configured for %s", d.node.Name),
		}
	}

	dest := d.opts.MoveDestination
	log.Debug().
		Str("node", d.node.Name).
		Str("study_uid", studyUID).
		Str("series_uid", seriesUID).
		Str("destination", dest.String()).
		Str("transfer_syntax", d.node.TransferSyntax).
		Msg("Executing C-MOVE for series")

	query := media.NewEmptyDCMObj()
	query.WriteString(tags.QueryRetrieveLevel, "SERIES")
	query.WriteString(tags.StudyInstanceUID, studyUID)
	query.WriteString(tags.SeriesInstanceUID, seriesUID)

	scu := services.NewSCU(d.destination)

	start := time.Now()
	status, err := scu.MoveSCU(dest.AETitle, query, d.opts.MoveTimeout)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("series_uid", seriesUID).
			Dur("duration", duration).
			Msg("C-MOVE failed")
		return &models.TransferFailure{
			SeriesInstanceUID: seriesUID,
			StudyInstanceUID:  studyUID,
			Status:            status,
			Err:               err,
		}
	}

	if dimse.Classify(status) != dimse.ClassSuccess {
		return &models.TransferFailure{
			SeriesInstanceUID: seriesUID,
			StudyInstanceUID:  studyUID,
			Status:            status,
			Err:               fmt.Errorf("C-MOVE %s", dimse.Describe(status)),
		}
	}

	log.Debug().
		Str("series_uid", seriesUID).
		Dur("duration", duration).
		Msg("C-MOVE completed successfully")

	return nil
}

// Close closes the adapter (associations are per operation)
func (d *DIMSEAdapter) Close() error {
	log.Debug().
		Str("node", d.node.Name).
		Msg("Closing DIMSE adapter (no persistent connections)")
	return nil
}

func dicomToStudy(dcmObj media.DcmObj) models.StudyRecord {
	return models.StudyRecord{
		StudyInstanceUID:  dcmObj.GetString(tags.StudyInstanceUID),
		PatientID:         dcmObj.GetString(tags.PatientID),
		PatientName:       dcmObj.GetString(tags.PatientName),
		StudyDate:         dcmObj.GetString(tags.StudyDate),
		StudyTime:         dcmObj.GetString(tags.StudyTime),
		StudyDescription:  dcmObj.GetString(tags.StudyDescription),
		NumberOfInstances: dimse.IntValue(dcmObj.GetString(tags.NumberOfStudyRelatedInstances)),
	}
}

func dicomToSeries(dcmObj media.DcmObj) models.SeriesRecord {
	return models.SeriesRecord{
		SeriesInstanceUID: dcmObj.GetString(tags.SeriesInstanceUID),
		StudyInstanceUID:  dcmObj.GetString(tags.StudyInstanceUID),
		Modality:          dcmObj.GetString(tags.Modality),
		SeriesNumber:      dimse.IntValue(dcmObj.GetString(tags.SeriesNumber)),
		SeriesDescription: dcmObj.GetString(tags.SeriesDescription),
		ImageCount:        dimse.IntValue(dcmObj.GetString(tags.NumberOfSeriesRelatedInstances)),
	}
}
