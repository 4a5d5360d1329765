package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/anushkaa29gupta/ByteCoders2.0/internal/archive"
	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/intake"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/logger"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/observer"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/orchestrator"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/render"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/session"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

// Report export formats
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// StateView is the JSON shape of a session's state
type StateView struct {
	SessionID    string                   `json:"session_id"`
	State        orchestrator.StateName   `json:"state"`
	Generation   uint64                   `json:"generation"`
	FileName     string                   `json:"file_name,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Result       *models.AnalysisResult   `json:"result,omitempty"`
	Verification *models.TextVerification `json:"verification,omitempty"`
}

// DashboardService is the application layer behind the dashboard routes
type DashboardService interface {
	// Session resolves a session id without creating one. A nil orchestrator
	// stands for a visitor without a session and reads as Idle everywhere.
	Session(id string) (*orchestrator.Orchestrator, bool)
	// NewSession registers a session; only an upload needs one
	NewSession() (string, *orchestrator.Orchestrator, error)

	Submit(ctx context.Context, o *orchestrator.Orchestrator, upload *intake.Upload) (uint64, error)
	Reset(ctx context.Context, o *orchestrator.Orchestrator)

	Page(o *orchestrator.Orchestrator) render.Page
	State(sessionID string, o *orchestrator.Orchestrator) StateView

	Report(o *orchestrator.Orchestrator) (*models.Report, error)
	EncodeReport(report *models.Report, format string) ([]byte, string, error)
	Archive(ctx context.Context, o *orchestrator.Orchestrator) (string, error)
	ArchiveEnabled() bool

	Metrics() map[string]interface{}
}

type dashboardService struct {
	sessions *session.Manager
	archive  archive.ReportArchive
	metrics  *observer.MetricsObserver
	now      func() time.Time
}

// NewDashboardService creates the dashboard service
func NewDashboardService(
	sessions *session.Manager,
	reportArchive archive.ReportArchive,
	metrics *observer.MetricsObserver,
) DashboardService {
	if reportArchive == nil {
		reportArchive = archive.Disabled()
	}
	return &dashboardService{
		sessions: sessions,
		archive:  reportArchive,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (s *dashboardService) Session(id string) (*orchestrator.Orchestrator, bool) {
	return s.sessions.Get(id)
}

func (s *dashboardService) NewSession() (string, *orchestrator.Orchestrator, error) {
	return s.sessions.Create()
}

func (s *dashboardService) Submit(ctx context.Context, o *orchestrator.Orchestrator, upload *intake.Upload) (uint64, error) {
	if o == nil {
		return 0, apperrors.NewNotFoundError("no analysis session", nil)
	}
	gen, err := o.Submit(ctx, upload)
	if err != nil {
		return 0, err
	}
	logger.WithFields(logrus.Fields{
		"file_name":    upload.Name,
		"size":         upload.Size(),
		"content_type": upload.ContentType,
		"generation":   gen,
	}).Info("Submission accepted")
	return gen, nil
}

func (s *dashboardService) Reset(ctx context.Context, o *orchestrator.Orchestrator) {
	if o != nil {
		o.Reset(ctx)
	}
}

func (s *dashboardService) Page(o *orchestrator.Orchestrator) render.Page {
	if o == nil {
		return render.BuildPage(orchestrator.Idle{}, time.Time{})
	}
	return render.BuildPage(o.State(), o.StartedAt())
}

func (s *dashboardService) State(sessionID string, o *orchestrator.Orchestrator) StateView {
	if o == nil {
		return StateView{State: orchestrator.StateIdle}
	}
	state := o.State()
	view := StateView{
		SessionID:  sessionID,
		State:      state.Name(),
		Generation: o.Generation(),
	}
	if image := orchestrator.ImageOf(state); image != nil && image.File != nil {
		view.FileName = image.File.Name
	}

	switch st := state.(type) {
	case orchestrator.Complete:
		view.Result = st.Result
		view.Verification = st.Verification
	case orchestrator.Failed:
		view.Error = apperrors.UserMessage(st.Err)
	}
	return view
}

// Report builds the export of a completed analysis. The facet sections are
// the backend bodies as received.
func (s *dashboardService) Report(o *orchestrator.Orchestrator) (*models.Report, error) {
	if o == nil {
		return nil, apperrors.NewNotFoundError("no analysis session", nil)
	}
	complete, ok := o.State().(orchestrator.Complete)
	if !ok {
		return nil, apperrors.NewInvalidStateError("no completed analysis to export", nil)
	}
	return BuildReport(complete, uuid.NewString(), s.now().UTC())
}

// BuildReport assembles a report from a Complete state
func BuildReport(complete orchestrator.Complete, id string, generatedAt time.Time) (*models.Report, error) {
	r := complete.Result
	if r == nil || r.OCR == nil || r.Metadata == nil || r.Forensics == nil {
		return nil, apperrors.NewInternalError("completed state without a result", models.ErrIncompleteResult)
	}

	report := &models.Report{ID: id, GeneratedAt: generatedAt}
	if complete.Image != nil && complete.Image.File != nil {
		report.FileName = complete.Image.File.Name
	}

	var err error
	if report.OCR, err = section(complete.Result.OCR.Raw, complete.Result.OCR); err != nil {
		return nil, err
	}
	if report.Metadata, err = section(complete.Result.Metadata.Raw, complete.Result.Metadata); err != nil {
		return nil, err
	}
	if report.Forensics, err = section(complete.Result.Forensics.Raw, complete.Result.Forensics); err != nil {
		return nil, err
	}
	return report, nil
}

// section decodes a raw body without a schema so both encoders see plain
// maps; typed payloads without a raw body are used as they are
func section(raw json.RawMessage, typed any) (any, error) {
	if len(raw) == 0 {
		return typed, nil
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apperrors.NewInternalError("stored backend body is not valid JSON", err)
	}
	return v, nil
}

func (s *dashboardService) EncodeReport(report *models.Report, format string) ([]byte, string, error) {
	return EncodeReport(report, format)
}

// EncodeReport serializes a report and returns the content type to serve it with
func EncodeReport(report *models.Report, format string) ([]byte, string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, "", apperrors.NewInternalError("failed to encode report", err)
		}
		return data, "application/json", nil
	case FormatMsgpack:
		data, err := msgpack.Marshal(report)
		if err != nil {
			return nil, "", apperrors.NewInternalError("failed to encode report", err)
		}
		return data, "application/x-msgpack", nil
	default:
		return nil, "", apperrors.NewValidationError("unsupported report format: "+format, nil)
	}
}

func (s *dashboardService) Archive(ctx context.Context, o *orchestrator.Orchestrator) (string, error) {
	if !s.archive.Enabled() {
		return "", apperrors.NewUnavailableError("report archive is not configured", nil)
	}
	report, err := s.Report(o)
	if err != nil {
		return "", err
	}
	data, _, err := s.EncodeReport(report, FormatJSON)
	if err != nil {
		return "", err
	}
	return s.archive.Save(ctx, report, data)
}

func (s *dashboardService) ArchiveEnabled() bool {
	return s.archive.Enabled()
}

func (s *dashboardService) Metrics() map[string]interface{} {
	m := map[string]interface{}{}
	if s.metrics != nil {
		m = s.metrics.GetMetrics()
	}
	m["active_sessions"] = s.sessions.Len()
	return m
}
