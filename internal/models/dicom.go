package models

// StudyRecord represents a DICOM study as reported by a store's C-FIND or QIDO-RS response
type StudyRecord struct {
	StudyInstanceUID  string `json:"0020000D"`
	PatientID         string `json:"00100020"`
	PatientName       string `json:"00100010"`
	StudyDate         string `json:"00080020"`
	StudyTime         string `json:"00080030"`
	StudyDescription  string `json:"00081030"`
	NumberOfInstances int    `json:"00201208"`
}

// SeriesRecord represents a DICOM series within a study
type SeriesRecord struct {
	SeriesInstanceUID string `json:"0020000E"`
	StudyInstanceUID  string `json:"0020000D"`
	Modality          string `json:"00080060"`
	SeriesNumber      int    `json:"00200011"`
	SeriesDescription string `json:"0008103E"`
	ImageCount        int    `json:"00201209"`
}

// Classification is the completeness state of a remote series on the local store
type Classification string

const (
	Missing    Classification = "missing"
	Incomplete Classification = "incomplete"
	Complete   Classification = "complete"
)

// CompletenessResult pairs a remote series with its local counterpart, if any
type CompletenessResult struct {
	Remote         SeriesRecord
	Local          *SeriesRecord
	Classification Classification
}

// Eligible reports whether the series may be transferred
func (c CompletenessResult) Eligible() bool {
	return c.Classification == Missing || c.Classification == Incomplete
}

// LocalImageCount returns the observed local image count, zero when absent
func (c CompletenessResult) LocalImageCount() int {
	if c.Local == nil {
		return 0
	}
	return c.Local.ImageCount
}

// StudyCompleteness holds the per-series results for one remote study
type StudyCompleteness struct {
	Study   StudyRecord
	Series  []CompletenessResult
	Missing bool // study absent on the local store
}

// Eligible returns the results that are Missing or Incomplete
func (s StudyCompleteness) Eligible() []CompletenessResult {
	out := make([]CompletenessResult, 0, len(s.Series))
	for _, r := range s.Series {
		if r.Eligible() {
			out = append(out, r)
		}
	}
	return out
}
