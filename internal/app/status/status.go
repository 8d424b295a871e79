package status

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	Ledger storage.JobRepository
	// Steps is optional, when missing the status has no steps.
	Steps  storage.StepRepository
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Ledger == nil {
		return fmt.Errorf("ledger is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Status"})

	return nil
}

// Service retrieves detailed job status.
type Service struct {
	ledger storage.JobRepository
	steps  storage.StepRepository
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		ledger: cfg.Ledger,
		steps:  cfg.Steps,
		logger: cfg.Logger,
	}, nil
}

// Request represents the status request parameters.
type Request struct {
	JobID string
}

// Result is the status of a job.
type Result struct {
	Job   model.Job
	Steps []model.Step
}

// Run retrieves the status of a job. Steps are best effort, a failure
// listing them doesn't fail the status.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	id := strings.TrimSpace(req.JobID)
	if id == "" {
		return nil, fmt.Errorf("job id is required: %w", model.ErrNotValid)
	}

	s.logger.Debugf("getting status for job: %s", id)

	job, err := s.ledger.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get job status: %w", err)
	}

	res := &Result{Job: *job}
	if s.steps == nil {
		return res, nil
	}

	steps, err := s.steps.ListSteps(ctx, id)
	if err != nil {
		s.logger.Warningf("Could not list steps of job %s: %s", id, err)
		return res, nil
	}
	res.Steps = steps

	return res, nil
}
