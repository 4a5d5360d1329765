package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/intake"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/logger"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"

	"github.com/sirupsen/logrus"
)

// Client issues one analysis request per facet
type Client interface {
	RunOCR(ctx context.Context, upload *intake.Upload) (*models.OCRPayload, error)
	RunMetadata(ctx context.Context, upload *intake.Upload) (*models.MetadataPayload, error)
	RunForensics(ctx context.Context, upload *intake.Upload) (*models.ForensicsPayload, error)
}

// HTTPClient implements Client against the analysis backend's HTTP API.
// Every call is a single attempt; there is no retry or backoff.
type HTTPClient struct {
	baseURL string
	opts    Options
	client  *http.Client
}

// NewHTTPClient creates a client for the backend rooted at baseURL
func NewHTTPClient(baseURL string, opts Options) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 16 * 1024,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
	}
}

// BaseURL returns the backend root the facet paths are appended to
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) RunOCR(ctx context.Context, upload *intake.Upload) (*models.OCRPayload, error) {
	var payload models.OCRPayload
	raw, err := c.call(ctx, models.FacetOCR, upload, &payload)
	if err != nil {
		return nil, err
	}
	payload.Raw = raw
	return &payload, nil
}

func (c *HTTPClient) RunMetadata(ctx context.Context, upload *intake.Upload) (*models.MetadataPayload, error) {
	var payload models.MetadataPayload
	raw, err := c.call(ctx, models.FacetMetadata, upload, &payload)
	if err != nil {
		return nil, err
	}
	payload.Raw = raw
	return &payload, nil
}

func (c *HTTPClient) RunForensics(ctx context.Context, upload *intake.Upload) (*models.ForensicsPayload, error) {
	var payload models.ForensicsPayload
	raw, err := c.call(ctx, models.FacetForensics, upload, &payload)
	if err != nil {
		return nil, err
	}
	payload.Raw = raw
	return &payload, nil
}

// call posts the upload to the facet endpoint and decodes the JSON object body into out
func (c *HTTPClient) call(ctx context.Context, facet models.Facet, upload *intake.Upload, out any) (json.RawMessage, error) {
	start := time.Now()
	fields := logrus.Fields{
		"facet": facet,
		"url":   c.baseURL + facet.Path(),
	}

	if upload == nil {
		return nil, apperrors.NewBackendError(string(facet), "no file to send", 0, nil)
	}

	body, contentType, err := multipartBody(upload)
	if err != nil {
		return nil, apperrors.NewBackendError(string(facet), "could not build request body", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+facet.Path(), body)
	if err != nil {
		return nil, apperrors.NewBackendError(string(facet), "invalid backend URL", 0, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	logger.WithFields(fields).Debug("Calling analysis backend")

	resp, err := c.client.Do(req)
	if err != nil {
		msg := fmt.Sprintf("%s request failed", facet)
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("%s request timed out", facet)
		}
		logger.WithError(err).WithFields(fields).Error("Analysis backend unreachable")
		return nil, apperrors.NewBackendError(string(facet), msg, 0, err)
	}
	defer resp.Body.Close()

	fields["status_code"] = resp.StatusCode
	fields["duration_ms"] = time.Since(start).Milliseconds()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxResponseBytes+1))
	if err != nil {
		logger.WithError(err).WithFields(fields).Error("Failed to read backend response")
		return nil, apperrors.NewBackendError(string(facet), fmt.Sprintf("%s response could not be read", facet), resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.WithFields(fields).Error("Analysis backend returned an error status")
		return nil, apperrors.NewBackendError(string(facet), fmt.Sprintf("%s request failed", facet), resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, snippet(data)))
	}

	if int64(len(data)) > c.opts.MaxResponseBytes {
		return nil, apperrors.NewBackendError(string(facet), fmt.Sprintf("%s response too large", facet), resp.StatusCode,
			fmt.Errorf("body exceeds %d bytes", c.opts.MaxResponseBytes))
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		logger.WithFields(fields).Error("Analysis backend returned a non-object body")
		return nil, apperrors.NewBackendError(string(facet), fmt.Sprintf("%s response is not a JSON object", facet), resp.StatusCode,
			fmt.Errorf("body: %s", snippet(data)))
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		logger.WithError(err).WithFields(fields).Error("Failed to decode backend response")
		return nil, apperrors.NewBackendError(string(facet), fmt.Sprintf("%s response could not be parsed", facet), resp.StatusCode, err)
	}

	logger.WithFields(fields).Info("Analysis backend call completed")
	return json.RawMessage(trimmed), nil
}

func multipartBody(upload *intake.Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := upload.Name
	if name == "" {
		name = "upload"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, intake.FormField, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func snippet(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
