package render

import (
	"time"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/intake"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/orchestrator"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

const CompleteBadge = "Analysis Complete"

// ProcessingSteps are shown while the facet calls are in flight
var ProcessingSteps = []string{
	"Extracting text and content signals",
	"Reading EXIF metadata",
	"Running forensic analysis",
}

// Dashboard is the results panel
type Dashboard struct {
	FileName string
	ImageURI string
	Badge    string

	OCR          OCRCard
	Manipulation ManipulationCard
	Metadata     MetadataCard
	Location     LocationCard
}

// Page is everything the single-page view needs for one state.
// Exactly one of the panels is shown, chosen by State.
type Page struct {
	State    orchestrator.StateName
	FileName string
	ImageURI string

	Steps   []string
	Elapsed string

	Error string

	Dashboard *Dashboard
}

// BuildDashboard renders a complete result
func BuildDashboard(image *intake.ImageHandle, result *models.AnalysisResult, v *models.TextVerification) Dashboard {
	d := Dashboard{Badge: CompleteBadge}
	if image != nil {
		d.ImageURI = image.DataURI
		if image.File != nil {
			d.FileName = image.File.Name
		}
	}
	if result == nil {
		result = &models.AnalysisResult{}
	}

	d.OCR = BuildOCRCard(result.OCR, v)
	d.Manipulation = BuildManipulationCard(result.Forensics)
	d.Metadata = BuildMetadataCard(result.Metadata, result.Forensics)

	var exif map[string]any
	if result.Metadata != nil {
		exif = result.Metadata.EXIF
	}
	d.Location = BuildLocationCard(exif)
	return d
}

// BuildPage maps an orchestrator state to its panel. startedAt is used for
// the elapsed time of a submission in progress.
func BuildPage(state orchestrator.UploadState, startedAt time.Time) Page {
	if state == nil {
		state = orchestrator.Idle{}
	}
	page := Page{State: state.Name()}

	if image := orchestrator.ImageOf(state); image != nil {
		page.ImageURI = image.DataURI
		if image.File != nil {
			page.FileName = image.File.Name
		}
	}

	switch st := state.(type) {
	case orchestrator.Processing:
		page.Steps = ProcessingSteps
		if !startedAt.IsZero() {
			page.Elapsed = time.Since(startedAt).Round(100 * time.Millisecond).String()
		}
	case orchestrator.Complete:
		d := BuildDashboard(st.Image, st.Result, st.Verification)
		page.Dashboard = &d
	case orchestrator.Failed:
		page.Error = apperrors.UserMessage(st.Err)
	}
	return page
}
