package create

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage"
)

// JobStarter starts the first stage of a pending job.
type JobStarter interface {
	StartStage1(ctx context.Context, jobID string) (*model.Job, error)
}

// RequestLoader loads job inputs from request files.
type RequestLoader interface {
	GetJobInput(ctx context.Context, path string) (model.JobInput, error)
}

// ServiceConfig is the configuration for the create service.
type ServiceConfig struct {
	Ledger  storage.JobRepository
	Starter JobStarter
	// Loader is optional, it's required to create jobs from request files.
	Loader RequestLoader
	IDGen  func() string
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Ledger == nil {
		return fmt.Errorf("ledger is required")
	}
	if c.Starter == nil {
		return fmt.Errorf("starter is required")
	}
	if c.IDGen == nil {
		c.IDGen = uuid.NewString
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Create"})
	return nil
}

// Service handles job creation.
type Service struct {
	ledger  storage.JobRepository
	starter JobStarter
	loader  RequestLoader
	idGen   func() string
	logger  log.Logger
}

// NewService creates a new create service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		ledger:  cfg.Ledger,
		starter: cfg.Starter,
		loader:  cfg.Loader,
		idGen:   cfg.IDGen,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the create request parameters.
type Request struct {
	Input model.JobInput
	// File loads the input from a request file instead.
	File string
	// Deferred leaves the job pending, a recovery sweep will start it.
	Deferred bool
}

// Run creates a job and starts its first stage. The returned job is the
// created one, stage failures are reported on the job status.
func (s *Service) Run(ctx context.Context, req Request) (*model.Job, error) {
	input, err := s.input(ctx, req)
	if err != nil {
		return nil, err
	}

	id := s.idGen()
	job, err := s.ledger.CreateJob(ctx, id, input)
	if err != nil {
		return nil, fmt.Errorf("could not create job: %w", err)
	}
	s.logger.Infof("Created job %s for project %s on %s", job.ID, input.ProjectName, input.Provider)

	if req.Deferred {
		return job, nil
	}

	started, err := s.starter.StartStage1(ctx, job.ID)
	if err != nil {
		// Another process already started it.
		if errors.Is(err, model.ErrPreconditionFailed) {
			s.logger.Debugf("Job %s already started: %s", job.ID, err)
			return job, nil
		}
		s.logger.Errorf("Could not start job %s: %s", job.ID, err)
		return job, nil
	}
	job.Message = started.Message

	return job, nil
}

func (s *Service) input(ctx context.Context, req Request) (model.JobInput, error) {
	if req.File == "" {
		input := req.Input
		input.Defaults()
		if err := input.Validate(); err != nil {
			return model.JobInput{}, fmt.Errorf("invalid job input: %w", err)
		}
		return input, nil
	}

	if s.loader == nil {
		return model.JobInput{}, fmt.Errorf("request files are not supported: %w", model.ErrNotValid)
	}

	input, err := s.loader.GetJobInput(ctx, req.File)
	if err != nil {
		if errors.Is(err, model.ErrNotValid) {
			return model.JobInput{}, err
		}
		return model.JobInput{}, fmt.Errorf("could not load job request %q: %w: %w", req.File, model.ErrNotValid, err)
	}

	return input, nil
}
