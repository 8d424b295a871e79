package list

import (
	"context"
	"fmt"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Ledger storage.JobRepository
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Ledger == nil {
		return fmt.Errorf("ledger is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.List"})

	return nil
}

// Service lists jobs with optional filtering.
type Service struct {
	ledger storage.JobRepository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		ledger: cfg.Ledger,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// Statuses is an optional filter to only show jobs with any of these statuses.
	Statuses []model.JobStatus
	// Limit limits the number of jobs, 0 means all.
	Limit int
}

// Run lists jobs, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Job, error) {
	s.logger.Debugf("listing jobs with filter: %v", req.Statuses)

	for _, st := range req.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("unknown job status %q: %w", st, model.ErrNotValid)
		}
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	jobs, err := s.ledger.ListJobs(ctx, model.JobListOptions{
		Statuses: req.Statuses,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("could not list jobs: %w", err)
	}

	s.logger.Debugf("found %d jobs", len(jobs))
	return jobs, nil
}
