package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anushkaa29gupta/ByteCoders2.0/internal/backend"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/config"
	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/observer"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/orchestrator"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/service"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/session"
)

var backendBodies = map[string]string{
	"/api/ocr":       `{"text":"","signals":[],"confidence":0,"language":"en"}`,
	"/api/metadata":  `{}`,
	"/api/forensics": `{"analysis":{"blur_score":450,"blur_detected":false,"edge_density":0.05,"histogram_entropy":7.2},"findings":[],"manipulation_likelihood":"low"}`,
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, status map[string]int, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := http.StatusOK
		if s, ok := status[r.URL.Path]; ok {
			code = s
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		io.WriteString(w, backendBodies[r.URL.Path])
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.BackendURL = upstream.URL
	if mutate != nil {
		mutate(cfg)
	}

	client := backend.NewHTTPClient(cfg.BackendURL, backend.DefaultOptions().WithTimeout(5*time.Second))
	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(metrics)

	sessions := session.NewManager(cfg.SessionTTL, cfg.MaxSessions, func(id string) *orchestrator.Orchestrator {
		return orchestrator.New(client, orchestrator.WithSessionID(id), orchestrator.WithPublisher(publisher))
	})
	svc := service.NewDashboardService(sessions, nil, metrics)

	server := httptest.NewServer(NewHandler(svc, cfg))
	t.Cleanup(server.Close)
	return server
}

// browser keeps the session cookie and never follows redirects
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
	cookie *http.Cookie
}

func newBrowser(t *testing.T, base string) *browser {
	return &browser{
		t:    t,
		base: base,
		client: &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}},
	}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			b.cookie = c
		}
	}
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path, accept string) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodPost, b.base+path, nil)
	require.NoError(b.t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return b.do(req)
}

func (b *browser) upload(name string, data []byte, accept string) (*http.Response, string) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(b.t, err)
	part.Write(data)
	require.NoError(b.t, w.WriteField("expected_text", ""))
	require.NoError(b.t, w.Close())

	req, err := http.NewRequest(http.MethodPost, b.base+"/upload", &body)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return b.do(req)
}

func (b *browser) waitFor(state orchestrator.StateName) service.StateView {
	b.t.Helper()
	var view service.StateView
	require.Eventually(b.t, func() bool {
		_, body := b.get("/state")
		require.NoError(b.t, json.Unmarshal([]byte(body), &view))
		return view.State == state
	}, 3*time.Second, 20*time.Millisecond)
	return view
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(t, nil, nil)
	resp, body := newBrowser(t, server.URL).get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"available"`)
}

func TestDashboard_IdleShowsUploadZone(t *testing.T) {
	server := newTestServer(t, nil, nil)
	b := newBrowser(t, server.URL)

	resp, body := b.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/upload"`)
	assert.Nil(t, b.cookie, "viewing the dashboard does not open a session")

	resp, body = b.get("/state")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"state":"idle"`)

	resp, body = b.get("/report")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "report unavailable: no analysis session")

	resp, _ = b.post("/reset", "")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Nil(t, b.cookie)
}

func TestUpload_IssuesSessionCookie(t *testing.T) {
	server := newTestServer(t, nil, nil)
	b := newBrowser(t, server.URL)

	resp, _ := b.upload("photo.jpg", []byte("img"), "application/json")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotNil(t, b.cookie, "an upload opens a session")
	assert.True(t, b.cookie.HttpOnly)

	view := b.waitFor(orchestrator.StateComplete)
	assert.Equal(t, b.cookie.Value, view.SessionID)
}

func TestStaleSessionCookieIsCleared(t *testing.T) {
	server := newTestServer(t, nil, nil)
	b := newBrowser(t, server.URL)
	b.cookie = &http.Cookie{Name: sessionCookie, Value: "expired-session"}

	resp, body := b.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/upload"`)

	var cleared bool
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			cleared = c.MaxAge < 0 && c.Value == ""
		}
	}
	assert.True(t, cleared, "stale cookie is deleted")
}

func TestCookielessVisitorsDoNotDisplaceSessions(t *testing.T) {
	server := newTestServer(t, nil, func(cfg *config.Config) {
		cfg.MaxSessions = 2
	})
	user := newBrowser(t, server.URL)
	user.upload("photo.jpg", []byte("img"), "")
	before := user.waitFor(orchestrator.StateComplete)

	for i := 0; i < 100; i++ {
		crawler := newBrowser(t, server.URL)
		path := []string{"/", "/state", "/report"}[i%3]
		crawler.get(path)
		assert.Nil(t, crawler.cookie, "GET %s opens no session", path)
	}

	after := user.waitFor(orchestrator.StateComplete)
	assert.Equal(t, before.SessionID, after.SessionID)
	require.NotNil(t, after.Result)

	_, body := user.get("/metrics")
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	assert.Equal(t, float64(1), m["active_sessions"])
}

func TestUpload_FormRejectionRendersPanel(t *testing.T) {
	server := newTestServer(t, nil, nil)
	b := newBrowser(t, server.URL)
	b.upload("photo.jpg", []byte("img"), "")
	b.waitFor(orchestrator.StateComplete)

	// a second form post while a result is shown
	resp, body := b.upload("photo.jpg", []byte("img"), "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Upload rejected: cannot submit while state is complete")
	assert.Contains(t, body, "Analysis Complete")

	resp, body = b.upload("photo.jpg", []byte("img"), "application/json")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Contains(t, body, "upload rejected")
}

func TestUploadToResults(t *testing.T) {
	server := newTestServer(t, nil, nil)
	b := newBrowser(t, server.URL)
	b.get("/")

	resp, _ := b.upload("photo.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	view := b.waitFor(orchestrator.StateComplete)
	assert.Equal(t, "photo.jpg", view.FileName)
	require.NotNil(t, view.Result)
	assert.Equal(t, "low", view.Result.Forensics.ManipulationLikelihood)

	_, page := b.get("/")
	assert.Contains(t, page, "Analysis Complete")
	assert.Contains(t, page, "No text detected in image")
	assert.Contains(t, page, "No significant manipulation indicators detected")
	assert.Contains(t, page, "No EXIF metadata found")
	assert.Contains(t, page, "data:image/jpeg;base64,")

	resp, report := b.get("/report")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(report), &decoded))
	assert.Equal(t, "photo.jpg", decoded["file_name"])
	assert.Equal(t, map[string]any{}, decoded["metadata"])

	resp, _ = b.get("/report?format=msgpack")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-msgpack", resp.Header.Get("Content-Type"))

	resp, _ = b.post("/report/archive", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = b.post("/reset", "")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	b.waitFor(orchestrator.StateIdle)

	resp, _ = b.get("/report")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpload_BackendFailureThenRetry(t *testing.T) {
	status := map[string]int{"/api/metadata": http.StatusInternalServerError}
	server := newTestServer(t, status, nil)
	b := newBrowser(t, server.URL)

	resp, _ := b.upload("photo.jpg", []byte("img"), "application/json")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	view := b.waitFor(orchestrator.StateFailed)
	assert.Contains(t, view.Error, "metadata")
	assert.Nil(t, view.Result)

	_, page := b.get("/")
	assert.Contains(t, page, "Analysis failed")

	// retry is accepted from Failed and re-runs all three calls
	resp, _ = b.upload("photo.jpg", []byte("img"), "application/json")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	view = b.waitFor(orchestrator.StateFailed)
	assert.Equal(t, uint64(2), view.Generation)
}

func TestUpload_RequiresExactlyOneFile(t *testing.T) {
	server := newTestServer(t, nil, nil)
	b := newBrowser(t, server.URL)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("expected_text", "hi"))
	require.NoError(t, w.Close())
	req, err := http.NewRequest(http.MethodPost, server.URL+"/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, msg := b.do(req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, msg, "exactly one file is required")

	resp, _ = b.post("/upload", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_TooLarge(t *testing.T) {
	server := newTestServer(t, nil, func(cfg *config.Config) {
		cfg.MaxRequestBodySize = 1024
	})
	b := newBrowser(t, server.URL)

	resp, _ := b.upload("big.png", bytes.Repeat([]byte("x"), 4096), "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUpload_RateLimited(t *testing.T) {
	server := newTestServer(t, nil, func(cfg *config.Config) {
		cfg.UploadRate = 0.001
		cfg.UploadBurst = 1
	})
	b := newBrowser(t, server.URL)

	resp, _ := b.upload("a.png", []byte("img"), "application/json")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := b.upload("a.png", []byte("img"), "application/json")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.True(t, strings.Contains(body, "too many uploads"))
}

func TestMetrics(t *testing.T) {
	server := newTestServer(t, nil, nil)
	b := newBrowser(t, server.URL)
	b.upload("photo.jpg", []byte("img"), "application/json")
	b.waitFor(orchestrator.StateComplete)

	var m map[string]any
	require.Eventually(t, func() bool {
		_, body := b.get("/metrics")
		require.NoError(t, json.Unmarshal([]byte(body), &m))
		return m["completed_submissions"] == float64(1)
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, float64(1), m["active_sessions"])
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	l := newIPRateLimiter(1, 1, time.Millisecond)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	time.Sleep(5 * time.Millisecond)
	l.cleanup()
	assert.True(t, l.Allow("10.0.0.1"), "a fresh bucket is issued after cleanup")
}

func TestDetermineStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", apperrors.NewNotFoundError("no analysis session", nil), http.StatusNotFound},
		{"wrapped app error", fmt.Errorf("wrapped: %w", apperrors.NewUnavailableError("off", nil)), http.StatusServiceUnavailable},
		{"body too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineStatusCode(tt.err))
		})
	}
}
