package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/logger"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/orchestrator"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/service"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

const (
	sessionCookie = "osint_session"

	ctxSessionID    = "session_id"
	ctxOrchestrator = "orchestrator"
)

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// sessionMiddleware resolves the session cookie to its orchestrator. Visitors
// without a live session get a nil orchestrator, which reads as Idle; only an
// upload registers a session. A stale cookie is cleared.
func sessionMiddleware(svc service.DashboardService, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented, _ := c.Cookie(sessionCookie)
		orch, ok := svc.Session(presented)
		switch {
		case ok:
			setSessionCookie(c, presented, ttl)
		case presented != "":
			setSessionCookie(c, "", -1)
			presented = ""
		}
		c.Set(ctxSessionID, presented)
		c.Set(ctxOrchestrator, orch)
		c.Next()
	}
}

func setSessionCookie(c *gin.Context, id string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, maxAge, "/", "", false, true)
}

// sessionFrom returns the request's session; the orchestrator is nil when
// the visitor has none yet
func sessionFrom(c *gin.Context) (string, *orchestrator.Orchestrator) {
	orch, _ := c.MustGet(ctxOrchestrator).(*orchestrator.Orchestrator)
	return c.GetString(ctxSessionID), orch
}

// ipRateLimiter hands out one token bucket per client IP
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(perSecond float64, burst int, idle time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
	}
}

// Allow reports whether ip may make a request now
func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// cleanup drops buckets that have not been used for the idle period
func (l *ipRateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.limiters {
		if time.Since(v.lastSeen) > l.idle {
			delete(l.limiters, ip)
		}
	}
}

// Run cleans up idle buckets until ctx is done
func (l *ipRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func uploadRateLimiter(l *ipRateLimiter, svc service.DashboardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			rejectUpload(c, svc, http.StatusTooManyRequests,
				apperrors.NewRateLimitedError("too many uploads, slow down"))
			return
		}
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			last := c.Errors.Last()
			message, ok := last.Meta.(string)
			if !ok {
				message = "request processing failed"
			}
			respondError(c, determineStatusCode(last.Err), message, last.Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %s", message, apperrors.UserMessage(err)),
	})
}
