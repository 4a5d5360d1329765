package orchestrator

import (
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/intake"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

// StateName is the tag of an UploadState variant
type StateName string

const (
	StateIdle       StateName = "idle"
	StateProcessing StateName = "processing"
	StateComplete   StateName = "complete"
	StateFailed     StateName = "failed"
)

// UploadState is one of Idle, Processing, Complete or Failed.
// Values are never mutated after being installed; a transition replaces them.
type UploadState interface {
	Name() StateName
	isUploadState()
}

// Idle is the initial state. It retains nothing.
type Idle struct{}

// Processing holds the submission while the three facet calls are in flight.
// Image.DataURI is empty until encoding finishes.
type Processing struct {
	Image *intake.ImageHandle
}

// Complete holds the aggregated result of a fully successful submission
type Complete struct {
	Image        *intake.ImageHandle
	Result       *models.AnalysisResult
	Verification *models.TextVerification
}

// Failed holds the error that ended a submission
type Failed struct {
	Image *intake.ImageHandle
	Err   error
}

func (Idle) Name() StateName       { return StateIdle }
func (Processing) Name() StateName { return StateProcessing }
func (Complete) Name() StateName   { return StateComplete }
func (Failed) Name() StateName     { return StateFailed }

func (Idle) isUploadState()       {}
func (Processing) isUploadState() {}
func (Complete) isUploadState()   {}
func (Failed) isUploadState()     {}

// ImageOf returns the image handle carried by a state, if any
func ImageOf(s UploadState) *intake.ImageHandle {
	switch st := s.(type) {
	case Processing:
		return st.Image
	case Complete:
		return st.Image
	case Failed:
		return st.Image
	default:
		return nil
	}
}
