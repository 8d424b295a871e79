package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/slok/infraware/internal/app/confirm"
	"github.com/slok/infraware/internal/app/create"
	"github.com/slok/infraware/internal/app/status"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
)

// CreateService creates jobs.
type CreateService interface {
	Run(ctx context.Context, req create.Request) (*model.Job, error)
}

// StatusService returns job statuses.
type StatusService interface {
	Run(ctx context.Context, req status.Request) (*status.Result, error)
}

// ConfirmService applies user decisions.
type ConfirmService interface {
	Run(ctx context.Context, req confirm.Request) (*model.Job, error)
}

// ArtifactService resolves job artifact listings.
type ArtifactService interface {
	Diagrams(ctx context.Context, jobID string) ([]model.Artifact, error)
	Final(ctx context.Context, jobID string) (*model.FinalArtifacts, error)
	Artifact(ctx context.Context, key model.ArtifactKey) (*model.Artifact, error)
}

// ArtifactReader reads stored artifact contents.
type ArtifactReader interface {
	Get(ctx context.Context, loc model.Locator) ([]byte, error)
	Locate(key model.ArtifactKey) (model.Locator, error)
}

// HandlerConfig is the configuration of the HTTP API handler.
type HandlerConfig struct {
	CreateService   CreateService
	StatusService   StatusService
	ConfirmService  ConfirmService
	ArtifactService ArtifactService
	// ArtifactReader is optional, when set the artifact contents are served.
	ArtifactReader ArtifactReader
	Version        string
	TimeNow        func() time.Time
	Logger         log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.CreateService == nil {
		return fmt.Errorf("create service is required")
	}
	if c.StatusService == nil {
		return fmt.Errorf("status service is required")
	}
	if c.ConfirmService == nil {
		return fmt.Errorf("confirm service is required")
	}
	if c.ArtifactService == nil {
		return fmt.Errorf("artifact service is required")
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "httpapi.Handler"})
	return nil
}

type handler struct {
	create    CreateService
	status    StatusService
	confirm   ConfirmService
	artifacts ArtifactService
	reader    ArtifactReader
	version   string
	timeNow   func() time.Time
	logger    log.Logger
}

// NewHandler returns the HTTP API handler.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{
		create:    cfg.CreateService,
		status:    cfg.StatusService,
		confirm:   cfg.ConfirmService,
		artifacts: cfg.ArtifactService,
		reader:    cfg.ArtifactReader,
		version:   cfg.Version,
		timeNow:   cfg.TimeNow,
		logger:    cfg.Logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = h.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			h.logger.WithValues(log.Kv{
				"method":  v.Method,
				"path":    v.URIPath,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}).Debugf("HTTP request served")
			return nil
		},
	}))

	e.GET("/", h.health)
	e.GET("/health", h.health)

	api := e.Group("/api")
	api.POST("/process", h.process)
	api.GET("/status/:id", h.jobStatus)
	api.GET("/diagrams/:id", h.diagrams)
	api.POST("/confirm/:id", h.confirmJob)
	api.GET("/generate/:id", h.generate)
	if h.reader != nil {
		api.GET("/static/*", h.static)
	}

	return e, nil
}
