package adapters

import (
	"encoding/json"
	"strings"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/pkg/dimse"
)

// DICOM JSON model tags (PS3.18 F.2) read by the QIDO-RS adapter
const (
	tagStudyDate                      = "00080020"
	tagStudyTime                      = "00080030"
	tagModality                       = "00080060"
	tagStudyDescription               = "00081030"
	tagSeriesDescription              = "0008103E"
	tagPatientName                    = "00100010"
	tagPatientID                      = "00100020"
	tagStudyInstanceUID               = "0020000D"
	tagSeriesInstanceUID              = "0020000E"
	tagSeriesNumber                   = "00200011"
	tagNumberOfStudyRelatedInstances  = "00201208"
	tagNumberOfSeriesRelatedInstances = "00201209"
)

type dicomJSONAttribute struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value,omitempty"`
}

type dicomJSONObject map[string]dicomJSONAttribute

// String returns the first value of tag as text. PN values return the Alphabetic group.
func (o dicomJSONObject) String(tag string) string {
	attr, ok := o[tag]
	if !ok || len(attr.Value) == 0 {
		return ""
	}
	raw := attr.Value[0]

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var pn struct {
		Alphabetic string `json:"Alphabetic"`
	}
	if err := json.Unmarshal(raw, &pn); err == nil && pn.Alphabetic != "" {
		return pn.Alphabetic
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Int returns the first value of an IS/US/UL attribute, 0 when absent or malformed
func (o dicomJSONObject) Int(tag string) int {
	return dimse.IntValue(o.String(tag))
}

func decodeDICOMJSON(body []byte) ([]dicomJSONObject, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var objects []dicomJSONObject
	if err := json.Unmarshal(body, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func jsonToStudy(o dicomJSONObject) models.StudyRecord {
	return models.StudyRecord{
		StudyInstanceUID:  o.String(tagStudyInstanceUID),
		PatientID:         o.String(tagPatientID),
		PatientName:       o.String(tagPatientName),
		StudyDate:         o.String(tagStudyDate),
		StudyTime:         o.String(tagStudyTime),
		StudyDescription:  o.String(tagStudyDescription),
		NumberOfInstances: o.Int(tagNumberOfStudyRelatedInstances),
	}
}

func jsonToSeries(o dicomJSONObject) models.SeriesRecord {
	return models.SeriesRecord{
		SeriesInstanceUID: o.String(tagSeriesInstanceUID),
		StudyInstanceUID:  o.String(tagStudyInstanceUID),
		Modality:          o.String(tagModality),
		SeriesNumber:      o.Int(tagSeriesNumber),
		SeriesDescription: o.String(tagSeriesDescription),
		ImageCount:        o.Int(tagNumberOfSeriesRelatedInstances),
	}
}
