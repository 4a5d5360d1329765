// Package orchestrator owns the upload state machine of one dashboard session.
//
// A submission moves Idle|Failed -> Processing -> Complete|Failed. The three
// facet calls are issued together and joined with wait-all semantics: the state
// leaves Processing only after every call has settled, and any failure fails
// the whole submission. Reset returns to Idle from any state and invalidates
// whatever is still in flight.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anushkaa29gupta/ByteCoders2.0/internal/backend"
	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/intake"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/observer"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/textmatch"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

// ErrStaleSubmission is returned when a settlement belongs to a submission
// that has since been reset or superseded.
var ErrStaleSubmission = errors.New("settlement belongs to a superseded submission")

// Settlement is everything one submission produced once all its work finished
type Settlement struct {
	Generation uint64
	Image      *intake.ImageHandle
	EncodeErr  error

	OCR       *models.OCRPayload
	Metadata  *models.MetadataPayload
	Forensics *models.ForensicsPayload

	// Failures holds the facet errors in facet order
	Failures []error

	Duration time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithSessionID tags published events with a session id
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// WithPublisher sends transition events to a publisher
func WithPublisher(p observer.Subject) Option {
	return func(o *Orchestrator) {
		o.events = p
	}
}

// Orchestrator is safe for concurrent use
type Orchestrator struct {
	client    backend.Client
	events    observer.Subject
	sessionID string

	mu         sync.Mutex
	state      UploadState
	generation uint64
	upload     *intake.Upload
	started    time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates an orchestrator in the Idle state
func New(client backend.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		state:  Idle{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state
func (o *Orchestrator) State() UploadState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Generation returns the id of the latest submission
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// StartedAt returns when the latest submission began
func (o *Orchestrator) StartedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// Submit starts a submission. It is valid only from Idle or Failed and returns
// the generation assigned to it. The work outlives ctx's cancellation but keeps
// its values; only Reset or a later submission cancels it.
func (o *Orchestrator) Submit(ctx context.Context, upload *intake.Upload) (uint64, error) {
	if upload == nil {
		return 0, apperrors.NewValidationError("exactly one file is required", nil)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state.(type) {
	case Idle, Failed:
	default:
		return 0, apperrors.NewInvalidStateError(
			"cannot submit while state is "+string(o.state.Name()), nil)
	}

	if o.cancel != nil {
		o.cancel()
	}
	o.generation++
	gen := o.generation

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.done = make(chan struct{})
	o.upload = upload
	o.started = time.Now()
	o.state = Processing{Image: &intake.ImageHandle{File: upload}}

	o.publish(ctx, observer.SubmissionEvent{
		EventType:  observer.SubmissionStarted,
		Generation: gen,
		FileName:   upload.Name,
		Success:    true,
	})

	// the in-flight work reads its own copy so a reset never races it
	job := *upload
	go o.run(runCtx, gen, &job)

	return gen, nil
}

// run encodes the image and calls the three facets, then settles
func (o *Orchestrator) run(ctx context.Context, gen uint64, upload *intake.Upload) {
	s := Settlement{Generation: gen}
	start := time.Now()

	encoded := make(chan struct{})
	go func() {
		defer close(encoded)
		handle, err := intake.Encode(upload)
		if err != nil {
			s.EncodeErr = err
			return
		}
		s.Image = handle
		o.attachImage(gen, handle)
	}()

	failures := make([]error, len(models.Facets))
	var g errgroup.Group

	g.Go(func() error {
		p, err := o.client.RunOCR(ctx, upload)
		s.OCR, failures[0] = p, err
		o.facetSettled(ctx, gen, models.FacetOCR, start, err)
		return nil
	})
	g.Go(func() error {
		p, err := o.client.RunMetadata(ctx, upload)
		s.Metadata, failures[1] = p, err
		o.facetSettled(ctx, gen, models.FacetMetadata, start, err)
		return nil
	})
	g.Go(func() error {
		p, err := o.client.RunForensics(ctx, upload)
		s.Forensics, failures[2] = p, err
		o.facetSettled(ctx, gen, models.FacetForensics, start, err)
		return nil
	})

	_ = g.Wait()
	<-encoded

	for _, err := range failures {
		if err != nil {
			s.Failures = append(s.Failures, err)
		}
	}
	s.Duration = time.Since(start)

	// a stale settlement is simply dropped
	_ = o.OnAllSettled(ctx, s)
}

// OnAllSettled installs the outcome of a submission. It is valid only while
// the submission it belongs to is still Processing; otherwise the settlement
// is discarded and ErrStaleSubmission is returned.
func (o *Orchestrator) OnAllSettled(ctx context.Context, s Settlement) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, processing := o.state.(Processing); !processing || s.Generation != o.generation {
		o.publish(ctx, observer.SubmissionEvent{
			EventType:      observer.SubmissionSuperseded,
			Generation:     s.Generation,
			ProcessingTime: s.Duration,
		})
		return ErrStaleSubmission
	}

	image := s.Image
	if image == nil {
		image = &intake.ImageHandle{File: o.upload}
	}

	event := observer.SubmissionEvent{
		Generation:     s.Generation,
		ProcessingTime: s.Duration,
	}
	if o.upload != nil {
		event.FileName = o.upload.Name
	}

	var failure error
	switch {
	case len(s.Failures) > 0:
		failure = apperrors.NewAggregationError(s.Failures...)
	case s.EncodeErr != nil:
		failure = s.EncodeErr
	}

	var result *models.AnalysisResult
	if failure == nil {
		var err error
		result, err = models.NewAnalysisResult(s.OCR, s.Metadata, s.Forensics)
		if err != nil {
			failure = apperrors.NewInternalError("incomplete analysis result", err)
		}
	}

	if failure != nil {
		o.state = Failed{Image: image, Err: failure}
		event.EventType = observer.SubmissionFailed
		event.ErrorMessage = apperrors.UserMessage(failure)
	} else {
		expected := ""
		if o.upload != nil {
			expected = o.upload.ExpectedText
		}
		o.state = Complete{
			Image:        image,
			Result:       result,
			Verification: textmatch.Verify(expected, result.OCR.Text),
		}
		event.EventType = observer.SubmissionCompleted
		event.Success = true
	}

	o.finish()
	o.publish(ctx, event)
	return nil
}

// Reset returns to Idle from any state, cancelling in-flight work and
// dropping the image and result. Resetting an idle orchestrator is a no-op.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, idle := o.state.(Idle); idle {
		return
	}

	if _, processing := o.state.(Processing); processing {
		// settlements of the cancelled submission become stale
		o.generation++
	}
	o.state = Idle{}
	o.finish()
	o.upload = nil

	o.publish(ctx, observer.SubmissionEvent{
		EventType:  observer.SessionReset,
		Generation: o.generation,
		Success:    true,
	})
}

// Wait blocks until the current submission leaves Processing or ctx is done,
// then returns the state.
func (o *Orchestrator) Wait(ctx context.Context) (UploadState, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return o.State(), ctx.Err()
		}
	}
	return o.State(), nil
}

// attachImage swaps the placeholder handle once encoding completes
func (o *Orchestrator) attachImage(gen uint64, handle *intake.ImageHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, processing := o.state.(Processing); processing && gen == o.generation {
		o.state = Processing{Image: handle}
	}
}

// facetSettled reports one facet call. Calls of a cancelled or superseded
// submission are not reported; their errors come from the cancellation.
func (o *Orchestrator) facetSettled(ctx context.Context, gen uint64, facet models.Facet, start time.Time, err error) {
	if ctx.Err() != nil || !o.isCurrent(gen) {
		return
	}
	event := observer.SubmissionEvent{
		EventType:      observer.FacetSettled,
		Generation:     gen,
		Facet:          string(facet),
		ProcessingTime: time.Since(start),
		Success:        err == nil,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	o.publish(ctx, event)
}

// isCurrent reports whether gen is the submission still Processing
func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, processing := o.state.(Processing)
	return processing && gen == o.generation
}

// finish releases the submission's context and wakes waiters. Caller holds mu.
func (o *Orchestrator) finish() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.done != nil {
		close(o.done)
		o.done = nil
	}
}

func (o *Orchestrator) publish(ctx context.Context, event observer.SubmissionEvent) {
	if o.events == nil {
		return
	}
	event.SessionID = o.sessionID
	o.events.NotifyObservers(ctx, event)
}
