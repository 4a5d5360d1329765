package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Facet names one of the three independent analysis dimensions
type Facet string

const (
	FacetOCR       Facet = "ocr"
	FacetMetadata  Facet = "metadata"
	FacetForensics Facet = "forensics"
)

// Facets lists every facet in the order they are requested and rendered
var Facets = []Facet{FacetOCR, FacetMetadata, FacetForensics}

// Path returns the backend endpoint path serving the facet
func (f Facet) Path() string {
	return "/api/" + string(f)
}

// Severity classifies a signal or finding for display
type Severity string

const (
	SeverityDanger  Severity = "danger"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Signal is a classified observation surfaced by a facet.
// Confidence is on a 0-100 scale.
type Signal struct {
	Type       Severity `json:"type"`
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
}

// Finding is the forensics flavour of a Signal; the wire shape is identical
type Finding = Signal

// OCRPayload is the body returned by /api/ocr.
// Every field is optional and decodes to its zero value when absent.
type OCRPayload struct {
	Text       string   `json:"text"`
	Signals    []Signal `json:"signals"`
	Confidence float64  `json:"confidence"`
	Language   string   `json:"language"`

	// Raw is the verbatim response body
	Raw json.RawMessage `json:"-"`
}

// ImageSize holds pixel dimensions reported by the metadata facet
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MetadataWarning is either a bare string or a {type, message} object on the wire
type MetadataWarning struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// UnmarshalJSON accepts both warning encodings. Any other JSON value is kept
// as its printed form so one odd warning never fails the whole payload.
func (w *MetadataWarning) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*w = MetadataWarning{Message: text}
		return nil
	}

	type plain MetadataWarning
	var obj plain
	if err := json.Unmarshal(data, &obj); err == nil {
		*w = MetadataWarning(obj)
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*w = MetadataWarning{}
	if v != nil {
		w.Message = fmt.Sprint(v)
	}
	return nil
}

// MetadataPayload is the body returned by /api/metadata
type MetadataPayload struct {
	EXIF     map[string]any    `json:"exif,omitempty"`
	Size     *ImageSize        `json:"size,omitempty"`
	FileSize float64           `json:"file_size,omitempty"`
	Format   string            `json:"format,omitempty"`
	Warnings []MetadataWarning `json:"warnings,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ForensicsAnalysis holds the raw scores computed by the forensics facet
type ForensicsAnalysis struct {
	BlurScore        float64 `json:"blur_score"`
	BlurDetected     bool    `json:"blur_detected"`
	EdgeDensity      float64 `json:"edge_density"`
	HistogramEntropy float64 `json:"histogram_entropy"`
}

// Hashes are file digests reported by the forensics facet
type Hashes struct {
	SHA256 string `json:"sha256,omitempty"`
	MD5    string `json:"md5,omitempty"`
}

// ForensicsPayload is the body returned by /api/forensics
type ForensicsPayload struct {
	Analysis               ForensicsAnalysis `json:"analysis"`
	Findings               []Finding         `json:"findings"`
	ManipulationLikelihood string            `json:"manipulation_likelihood"`
	Hashes                 *Hashes           `json:"hashes,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ErrIncompleteResult is returned when an AnalysisResult is built without all facets
var ErrIncompleteResult = errors.New("analysis result requires all three facets")

// AnalysisResult aggregates the three independently fetched payloads.
// It only exists once every facet call has settled successfully.
type AnalysisResult struct {
	OCR       *OCRPayload       `json:"ocr"`
	Metadata  *MetadataPayload  `json:"metadata"`
	Forensics *ForensicsPayload `json:"forensics"`
}

// NewAnalysisResult builds an AnalysisResult, refusing partial input
func NewAnalysisResult(ocr *OCRPayload, metadata *MetadataPayload, forensics *ForensicsPayload) (*AnalysisResult, error) {
	if ocr == nil || metadata == nil || forensics == nil {
		return nil, ErrIncompleteResult
	}
	return &AnalysisResult{OCR: ocr, Metadata: metadata, Forensics: forensics}, nil
}

// TextVerification compares user-supplied expected text with the OCR output
type TextVerification struct {
	ExpectedText string  `json:"expected_text"`
	MatchScore   float64 `json:"match_score"`
	CER          float64 `json:"character_error_rate"`
	WER          float64 `json:"word_error_rate"`
}

// Report is the exportable form of a completed analysis.
// The facet payloads are the backend bodies decoded without a schema.
type Report struct {
	ID          string    `json:"id" msgpack:"id"`
	GeneratedAt time.Time `json:"generated_at" msgpack:"generated_at"`
	FileName    string    `json:"file_name" msgpack:"file_name"`
	OCR         any       `json:"ocr" msgpack:"ocr"`
	Metadata    any       `json:"metadata" msgpack:"metadata"`
	Forensics   any       `json:"forensics" msgpack:"forensics"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
