package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/pkg/dimse"
	"github.com/rs/zerolog/log"
)

// DefaultDICOMWebPath is appended to the node address when no base path is configured
const DefaultDICOMWebPath = "/dicom-web"

var studyIncludeFields = []string{
	tagStudyTime,
	tagStudyDescription,
	tagNumberOfStudyRelatedInstances,
}

var seriesIncludeFields = []string{
	tagSeriesDescription,
	tagNumberOfSeriesRelatedInstances,
}

// DICOMWebAdapter implements Directory over QIDO-RS. It cannot move images.
type DICOMWebAdapter struct {
	BaseAdapter
	client  *resty.Client
	baseURL string
}

// NewDICOMWebAdapter creates a new DICOMweb adapter
func NewDICOMWebAdapter(node models.NodeConfig, timeout time.Duration) (*DICOMWebAdapter, error) {
	if node.Host == "" {
		return nil, fmt.Errorf("ip_address (hostname) is required for DICOMweb connection")
	}
	if timeout <= 0 {
		timeout = TimeoutCFind * time.Second
	}

	baseURL := dicomWebBaseURL(node)
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid DICOMweb URL %q: %w", baseURL, err)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/dicom+json")

	if node.APIKey != "" {
		client.SetAuthToken(node.APIKey)
	} else if node.Username != "" && node.Password != "" {
		client.SetBasicAuth(node.Username, node.Password)
	}

	log.Info().
		Str("node", node.Name).
		Str("base_url", baseURL).
		Msg("Created DICOMweb adapter")

	return &DICOMWebAdapter{
		BaseAdapter: BaseAdapter{node: node},
		client:      client,
		baseURL:     baseURL,
	}, nil
}

func dicomWebBaseURL(node models.NodeConfig) string {
	path := node.BasePath
	if path == "" {
		path = DefaultDICOMWebPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimSuffix(path, "/")

	if strings.HasPrefix(node.Host, "http://") || strings.HasPrefix(node.Host, "https://") {
		return strings.TrimSuffix(node.Host, "/") + path
	}

	scheme := "http"
	if node.Port == 443 {
		scheme = "https"
	}
	if node.Port == 0 {
		return fmt.Sprintf("%s://%s%s", scheme, node.Host, path)
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, node.Host, node.Port, path)
}

func (d *DICOMWebAdapter) Capabilities() []string {
	return []string{"QIDO-RS"}
}

// FindStudies queries for studies using QIDO-RS with a StudyDate range
func (d *DICOMWebAdapter) FindStudies(ctx context.Context, dateFrom, dateTo string) ([]models.StudyRecord, error) {
	params := url.Values{}
	params.Set("StudyDate", dimse.DateRange(dateFrom, dateTo))
	for _, f := range studyIncludeFields {
		params.Add("includefield", f)
	}

	objects, err := d.query(ctx, "/studies", params)
	if err != nil {
		return nil, err
	}

	studies := make([]models.StudyRecord, 0, len(objects))
	for _, o := range objects {
		studies = append(studies, jsonToStudy(o))
	}

	log.Debug().
		Str("node", d.node.Name).
		Int("num_studies", len(studies)).
		Msg("QIDO-RS study search completed")

	return studies, nil
}

// FindSeries queries for series using QIDO-RS
func (d *DICOMWebAdapter) FindSeries(ctx context.Context, studyUID string) ([]models.SeriesRecord, error) {
	params := url.Values{}
	for _, f := range seriesIncludeFields {
		params.Add("includefield", f)
	}

	objects, err := d.query(ctx, "/studies/"+url.PathEscape(studyUID)+"/series", params)
	if err != nil {
		return nil, err
	}

	series := make([]models.SeriesRecord, 0, len(objects))
	for _, o := range objects {
		s := jsonToSeries(o)
		if s.StudyInstanceUID == "" {
			s.StudyInstanceUID = studyUID
		}
		series = append(series, s)
	}

	log.Debug().
		Str("node", d.node.Name).
		Str("study_uid", studyUID).
		Int("num_series", len(series)).
		Msg("QIDO-RS series search completed")

	return series, nil
}

func (d *DICOMWebAdapter) query(ctx context.Context, path string, params url.Values) ([]dicomJSONObject, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("PACS returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	objects, err := decodeDICOMJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return objects, nil
}

// Ping tests the connection with a one-result study search
func (d *DICOMWebAdapter) Ping(ctx context.Context) (*models.ConnectionStatus, error) {
	start := time.Now()
	status := &models.ConnectionStatus{
		LastChecked: start,
	}

	_, err := d.query(ctx, "/studies", url.Values{"limit": []string{"1"}})

	status.ResponseTime = time.Since(start).Milliseconds()

	if err != nil {
		status.IsConnected = false
		status.ErrorMessage = err.Error()
		return status, err
	}

	status.IsConnected = true
	status.Capabilities = d.Capabilities()
	return status, nil
}

// Close closes the adapter
func (d *DICOMWebAdapter) Close() error {
	d.client.GetClient().CloseIdleConnections()
	return nil
}
