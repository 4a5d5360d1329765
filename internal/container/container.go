package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anushkaa29gupta/ByteCoders2.0/internal/archive"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/backend"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/config"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/logger"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/observer"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/orchestrator"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/service"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/session"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/transport"
)

const sweepInterval = time.Minute

// Container holds all application dependencies
type Container struct {
	config           *config.Config
	backendClient    backend.Client
	publisher        *observer.EventPublisher
	metrics          *observer.MetricsObserver
	sessions         *session.Manager
	reportArchive    archive.ReportArchive
	dashboardService service.DashboardService
	handler          *transport.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger.SetLevel(cfg.LogLevel)

	// Build dependency graph
	backendClient := backend.NewHTTPClient(cfg.BackendURL,
		backend.DefaultOptions().WithTimeout(cfg.BackendTimeout))

	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	sessions := session.NewManager(cfg.SessionTTL, cfg.MaxSessions, func(id string) *orchestrator.Orchestrator {
		return orchestrator.New(backendClient,
			orchestrator.WithSessionID(id),
			orchestrator.WithPublisher(publisher),
		)
	})

	reportArchive := archive.Disabled()
	if cfg.ArchiveEnabled() {
		a, err := archive.NewAzureArchive(cfg.AzureAccount, cfg.AzureKey, cfg.ReportContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to create report archive: %w", err)
		}
		reportArchive = a
	}

	dashboardService := service.NewDashboardService(sessions, reportArchive, metrics)
	handler := transport.NewHandler(dashboardService, cfg)

	return &Container{
		config:           cfg,
		backendClient:    backendClient,
		publisher:        publisher,
		metrics:          metrics,
		sessions:         sessions,
		reportArchive:    reportArchive,
		dashboardService: dashboardService,
		handler:          handler,
	}, nil
}

// Run starts background housekeeping (session expiry, limiter cleanup)
// and blocks until ctx is done
func (c *Container) Run(ctx context.Context) {
	go c.handler.Run(ctx)
	c.sessions.Run(ctx, sweepInterval)
}

// Close resets every live session so in-flight analyses are discarded
func (c *Container) Close() {
	c.sessions.Close()
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the dashboard service
func (c *Container) Service() service.DashboardService {
	return c.dashboardService
}
