package transport

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anushkaa29gupta/ByteCoders2.0/internal/config"
	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/intake"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/logger"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/render"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/service"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Handler is the dashboard's HTTP surface
type Handler struct {
	http.Handler
	limiter *ipRateLimiter
}

// Run performs background housekeeping until ctx is done
func (h *Handler) Run(ctx context.Context) {
	h.limiter.Run(ctx)
}

func NewHandler(svc service.DashboardService, cfg *config.Config) *Handler {
	r := gin.Default()
	r.SetHTMLTemplate(template.Must(
		template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html"),
	))
	r.MaxMultipartMemory = cfg.MaxRequestBodySize

	limiter := newIPRateLimiter(cfg.UploadRate, cfg.UploadBurst, 10*time.Minute)

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", metrics(svc))

	s := r.Group("/", sessionMiddleware(svc, cfg.SessionTTL))
	s.GET("/", dashboard(svc))
	s.POST("/upload", uploadRateLimiter(limiter, svc), upload(svc, cfg.SessionTTL))
	s.POST("/reset", reset(svc))
	s.GET("/state", state(svc))
	s.GET("/report", report(svc))
	s.POST("/report/archive", archiveReport(svc, cfg.RequestTimeout))

	return &Handler{Handler: r, limiter: limiter}
}

var templateFuncs = template.FuncMap{
	// data URIs are produced by intake and always carry an image media type
	"imageURL": func(uri string) template.URL {
		if strings.HasPrefix(uri, "data:image/") {
			return template.URL(uri)
		}
		return ""
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
	"meters": func(c render.ManipulationCard) []render.Meter {
		return []render.Meter{c.Blur, c.Edge, c.Entropy}
	},
}

// notices are the fixed messages cards show when there is nothing to flag
var notices = map[string]string{
	"NoSignals":      render.NoContentSignals,
	"HighRiskTitle":  render.HighRiskTitle,
	"HighRisk":       render.HighRiskMessage,
	"NoManipulation": render.NoManipulationIndicators,
	"NoEXIF":         render.NoEXIFNotice,
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

func pageData(svc service.DashboardService, c *gin.Context, notice string) gin.H {
	_, orch := sessionFrom(c)
	return gin.H{
		"Page":           svc.Page(orch),
		"ArchiveEnabled": svc.ArchiveEnabled(),
		"Text":           notices,
		"Notice":         notice,
	}
}

func dashboard(svc service.DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", pageData(svc, c, ""))
	}
}

// rejectUpload answers API clients with a JSON error and browsers with the
// current panel plus the reason
func rejectUpload(c *gin.Context, svc service.DashboardService, code int, err error) {
	if wantsJSON(c) {
		respondError(c, code, "upload rejected", err)
		return
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"ip":          c.ClientIP(),
	}).Warn("Upload rejected")

	c.Abort()
	c.HTML(code, "index.html", pageData(svc, c, "Upload rejected: "+apperrors.UserMessage(err)))
}

func upload(svc service.DashboardService, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, orch := sessionFrom(c)

		form, err := c.MultipartForm()
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				rejectUpload(c, svc, http.StatusRequestEntityTooLarge, err)
				return
			}
			rejectUpload(c, svc, http.StatusBadRequest,
				apperrors.NewValidationError("expected a multipart form with one file", err))
			return
		}
		defer form.RemoveAll()

		file, err := intake.FromMultipart(form)
		if err != nil {
			rejectUpload(c, svc, apperrors.GetStatusCode(err), err)
			return
		}

		if orch == nil {
			if id, orch, err = svc.NewSession(); err != nil {
				rejectUpload(c, svc, apperrors.GetStatusCode(err), err)
				return
			}
			setSessionCookie(c, id, ttl)
			c.Set(ctxSessionID, id)
			c.Set(ctxOrchestrator, orch)
		}

		gen, err := svc.Submit(c.Request.Context(), orch, file)
		if err != nil {
			rejectUpload(c, svc, apperrors.GetStatusCode(err), err)
			return
		}

		logger.WithFields(logrus.Fields{
			"session_id": id,
			"generation": gen,
			"ip":         c.ClientIP(),
		}).Debug("Upload submitted")

		if wantsJSON(c) {
			c.JSON(http.StatusAccepted, svc.State(id, orch))
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	}
}

func reset(svc service.DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, orch := sessionFrom(c)
		svc.Reset(c.Request.Context(), orch)

		if wantsJSON(c) {
			c.JSON(http.StatusOK, svc.State(id, orch))
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	}
}

func state(svc service.DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, orch := sessionFrom(c)
		c.JSON(http.StatusOK, svc.State(id, orch))
	}
}

func report(svc service.DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, orch := sessionFrom(c)

		rep, err := svc.Report(orch)
		if err != nil {
			_ = c.Error(err).SetMeta("report unavailable")
			return
		}

		format := c.DefaultQuery("format", service.FormatJSON)
		data, contentType, err := svc.EncodeReport(rep, format)
		if err != nil {
			_ = c.Error(err).SetMeta("report unavailable")
			return
		}

		ext := service.FormatJSON
		if contentType != "application/json" {
			ext = service.FormatMsgpack
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="osint-report-%s.%s"`, rep.ID, ext))
		c.Data(http.StatusOK, contentType, data)
	}
}

func archiveReport(svc service.DashboardService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, orch := sessionFrom(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		location, err := svc.Archive(ctx, orch)
		if err != nil {
			_ = c.Error(err).SetMeta("archive failed")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"location": location})
	}
}

func metrics(svc service.DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Metrics())
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
