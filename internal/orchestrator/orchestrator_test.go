package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/intake"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/observer"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

// fakeClient returns canned payloads; gate, when set, holds every call until closed
type fakeClient struct {
	ocr       *models.OCRPayload
	metadata  *models.MetadataPayload
	forensics *models.ForensicsPayload
	fail      map[models.Facet]error
	gate      chan struct{}
	calls     int32
}

func successClient() *fakeClient {
	return &fakeClient{
		ocr:      &models.OCRPayload{Text: "", Language: "en"},
		metadata: &models.MetadataPayload{},
		forensics: &models.ForensicsPayload{
			Analysis: models.ForensicsAnalysis{
				BlurScore: 450, EdgeDensity: 0.05, HistogramEntropy: 7.2,
			},
			ManipulationLikelihood: "low",
		},
		fail: map[models.Facet]error{},
	}
}

func (f *fakeClient) wait(ctx context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeClient) RunOCR(ctx context.Context, _ *intake.Upload) (*models.OCRPayload, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if err := f.fail[models.FacetOCR]; err != nil {
		return nil, err
	}
	return f.ocr, nil
}

func (f *fakeClient) RunMetadata(ctx context.Context, _ *intake.Upload) (*models.MetadataPayload, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if err := f.fail[models.FacetMetadata]; err != nil {
		return nil, err
	}
	return f.metadata, nil
}

func (f *fakeClient) RunForensics(ctx context.Context, _ *intake.Upload) (*models.ForensicsPayload, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if err := f.fail[models.FacetForensics]; err != nil {
		return nil, err
	}
	return f.forensics, nil
}

type recorder struct {
	mu     sync.Mutex
	events []observer.SubmissionEvent
}

func (r *recorder) Subscribe(observer.Observer)   {}
func (r *recorder) Unsubscribe(observer.Observer) {}
func (r *recorder) NotifyObservers(_ context.Context, e observer.SubmissionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) has(t observer.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventType == t {
			return true
		}
	}
	return false
}

func (r *recorder) failedFacets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var facets []string
	for _, e := range r.events {
		if e.EventType == observer.FacetSettled && !e.Success {
			facets = append(facets, e.Facet)
		}
	}
	return facets
}

func photo() *intake.Upload {
	return &intake.Upload{Name: "photo.jpg", ContentType: "image/jpeg", Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}}
}

func waitSettled(t *testing.T, o *Orchestrator) UploadState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := o.Wait(ctx)
	require.NoError(t, err)
	return state
}

func TestNew_StartsIdle(t *testing.T) {
	o := New(successClient())
	assert.Equal(t, StateIdle, o.State().Name())
	assert.Nil(t, ImageOf(o.State()))
}

func TestSubmit_AllSucceed(t *testing.T) {
	client := successClient()
	events := &recorder{}
	o := New(client, WithSessionID("s1"), WithPublisher(events))

	gen, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	state := waitSettled(t, o)
	complete, ok := state.(Complete)
	require.True(t, ok, "expected Complete, got %s", state.Name())

	// payloads are carried verbatim
	assert.Same(t, client.ocr, complete.Result.OCR)
	assert.Same(t, client.metadata, complete.Result.Metadata)
	assert.Same(t, client.forensics, complete.Result.Forensics)
	assert.Equal(t, "data:image/jpeg;base64,/9j/4A==", complete.Image.DataURI)
	assert.Nil(t, complete.Verification)
	assert.Equal(t, int32(3), atomic.LoadInt32(&client.calls))

	assert.True(t, events.has(observer.SubmissionStarted))
	assert.True(t, events.has(observer.FacetSettled))
	assert.True(t, events.has(observer.SubmissionCompleted))
}

func TestSubmit_ExpectedTextIsVerified(t *testing.T) {
	client := successClient()
	client.ocr = &models.OCRPayload{Text: "Call now"}
	o := New(client)

	upload := photo()
	upload.ExpectedText = "call now"
	_, err := o.Submit(context.Background(), upload)
	require.NoError(t, err)

	complete, ok := waitSettled(t, o).(Complete)
	require.True(t, ok)
	require.NotNil(t, complete.Verification)
	assert.Equal(t, 100.0, complete.Verification.MatchScore)
}

func TestSubmit_AnyFailureFails(t *testing.T) {
	for _, facet := range models.Facets {
		t.Run(string(facet), func(t *testing.T) {
			client := successClient()
			client.fail[facet] = apperrors.NewBackendError(string(facet), string(facet)+" request failed", 500, nil)
			o := New(client)

			_, err := o.Submit(context.Background(), photo())
			require.NoError(t, err)

			state := waitSettled(t, o)
			failed, ok := state.(Failed)
			require.True(t, ok, "expected Failed, got %s", state.Name())
			assert.True(t, apperrors.IsType(failed.Err, apperrors.ErrorTypeAggregation))
			assert.Contains(t, apperrors.UserMessage(failed.Err), string(facet))
			// all three calls ran even though one failed
			assert.Equal(t, int32(3), atomic.LoadInt32(&client.calls))
		})
	}
}

func TestSubmit_AllFailuresAreCollected(t *testing.T) {
	client := successClient()
	client.fail[models.FacetOCR] = apperrors.NewBackendError("ocr", "ocr request failed", 500, nil)
	client.fail[models.FacetForensics] = apperrors.NewBackendError("forensics", "forensics request failed", 503, nil)
	o := New(client)

	_, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)

	failed, ok := waitSettled(t, o).(Failed)
	require.True(t, ok)
	assert.Equal(t, "analysis failed for ocr, forensics (2 of 3 facet calls failed)", apperrors.UserMessage(failed.Err))
}

func TestSubmit_RetryAfterFailure(t *testing.T) {
	client := successClient()
	client.fail[models.FacetMetadata] = apperrors.NewBackendError("metadata", "metadata request failed", 500, nil)
	o := New(client)

	_, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)
	_, ok := waitSettled(t, o).(Failed)
	require.True(t, ok)

	delete(client.fail, models.FacetMetadata)
	gen, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	_, ok = waitSettled(t, o).(Complete)
	assert.True(t, ok)
	assert.Equal(t, int32(6), atomic.LoadInt32(&client.calls))
}

func TestSubmit_RejectedWhileProcessingOrComplete(t *testing.T) {
	client := successClient()
	client.gate = make(chan struct{})
	o := New(client)

	_, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)

	_, err = o.Submit(context.Background(), photo())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))

	close(client.gate)
	_, ok := waitSettled(t, o).(Complete)
	require.True(t, ok)

	_, err = o.Submit(context.Background(), photo())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
}

func TestSubmit_NilUpload(t *testing.T) {
	o := New(successClient())
	_, err := o.Submit(context.Background(), nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, StateIdle, o.State().Name())
}

func TestSubmit_OutlivesRequestContext(t *testing.T) {
	o := New(successClient())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := o.Submit(ctx, photo())
	require.NoError(t, err)
	cancel()

	_, ok := waitSettled(t, o).(Complete)
	assert.True(t, ok)
}

func TestReset_FromEveryState(t *testing.T) {
	ctx := context.Background()

	t.Run("idle", func(t *testing.T) {
		o := New(successClient())
		o.Reset(ctx)
		assert.Equal(t, Idle{}, o.State())
	})

	t.Run("complete", func(t *testing.T) {
		o := New(successClient())
		_, err := o.Submit(ctx, photo())
		require.NoError(t, err)
		waitSettled(t, o)

		o.Reset(ctx)
		assert.Equal(t, Idle{}, o.State())
		assert.Nil(t, ImageOf(o.State()))
	})

	t.Run("failed", func(t *testing.T) {
		client := successClient()
		client.fail[models.FacetOCR] = apperrors.NewBackendError("ocr", "ocr request failed", 500, nil)
		o := New(client)
		_, err := o.Submit(ctx, photo())
		require.NoError(t, err)
		waitSettled(t, o)

		o.Reset(ctx)
		assert.Equal(t, Idle{}, o.State())
	})
}

func TestReset_Idempotent(t *testing.T) {
	events := &recorder{}
	o := New(successClient(), WithPublisher(events))
	_, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)
	waitSettled(t, o)

	o.Reset(context.Background())
	gen := o.Generation()
	o.Reset(context.Background())

	assert.Equal(t, Idle{}, o.State())
	assert.Equal(t, gen, o.Generation())
}

func TestReset_DiscardsInFlightSubmission(t *testing.T) {
	client := successClient()
	client.gate = make(chan struct{})
	events := &recorder{}
	o := New(client, WithPublisher(events))

	_, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, o.State().Name())

	o.Reset(context.Background())
	assert.Equal(t, Idle{}, o.State())

	// cancelled calls settle with context errors, which must not surface
	assert.Eventually(t, func() bool { return events.has(observer.SubmissionSuperseded) },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Idle{}, o.State())
	assert.Empty(t, events.failedFacets(), "cancelled calls are not reported as facet failures")
}

func TestFacetSettled_FailuresOfCurrentSubmissionAreReported(t *testing.T) {
	client := successClient()
	client.fail[models.FacetMetadata] = apperrors.NewBackendError("metadata", "metadata request failed", 500, nil)
	events := &recorder{}
	o := New(client, WithPublisher(events))

	_, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)
	waitSettled(t, o)

	assert.Equal(t, []string{"metadata"}, events.failedFacets())
}

func TestOnAllSettled_StaleGenerationIsDiscarded(t *testing.T) {
	client := successClient()
	client.gate = make(chan struct{})
	o := New(client)
	ctx := context.Background()

	first, err := o.Submit(ctx, photo())
	require.NoError(t, err)
	o.Reset(ctx)

	second, err := o.Submit(ctx, photo())
	require.NoError(t, err)
	assert.Greater(t, second, first)

	stale := Settlement{Generation: first, OCR: client.ocr, Metadata: client.metadata, Forensics: client.forensics}
	assert.ErrorIs(t, o.OnAllSettled(ctx, stale), ErrStaleSubmission)
	assert.Equal(t, StateProcessing, o.State().Name())

	close(client.gate)
	_, ok := waitSettled(t, o).(Complete)
	assert.True(t, ok)
}

func TestOnAllSettled_NotProcessing(t *testing.T) {
	o := New(successClient())
	err := o.OnAllSettled(context.Background(), Settlement{Generation: 0})
	assert.ErrorIs(t, err, ErrStaleSubmission)
	assert.Equal(t, Idle{}, o.State())
}

func TestOnAllSettled_MissingPayloadNeverCompletes(t *testing.T) {
	client := successClient()
	client.gate = make(chan struct{})
	o := New(client)
	ctx := context.Background()

	gen, err := o.Submit(ctx, photo())
	require.NoError(t, err)

	require.NoError(t, o.OnAllSettled(ctx, Settlement{Generation: gen, OCR: client.ocr}))
	failed, ok := o.State().(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, models.ErrIncompleteResult)
	close(client.gate)
}

func TestWait_RespectsContext(t *testing.T) {
	client := successClient()
	client.gate = make(chan struct{})
	defer close(client.gate)
	o := New(client)

	_, err := o.Submit(context.Background(), photo())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	state, err := o.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateProcessing, state.Name())
}
