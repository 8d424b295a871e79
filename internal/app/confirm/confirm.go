package confirm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/orchestrator"
)

// MaxFeedbackLength is the maximum number of characters of the user feedback.
const MaxFeedbackLength = 2000

// Confirmer applies user decisions on jobs waiting for confirmation.
type Confirmer interface {
	Confirm(ctx context.Context, jobID string, d orchestrator.Decision) (*model.Job, error)
}

// ServiceConfig is the configuration for the confirm service.
type ServiceConfig struct {
	Confirmer Confirmer
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Confirmer == nil {
		return fmt.Errorf("confirmer is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Confirm"})
	return nil
}

// Service handles the user decision on the job diagrams.
type Service struct {
	confirmer Confirmer
	logger    log.Logger
}

// NewService creates a new confirm service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		confirmer: cfg.Confirmer,
		logger:    cfg.Logger,
	}, nil
}

// Request represents the confirm request parameters.
type Request struct {
	JobID     string
	Confirmed bool
	// Feedback is the optional rejection reason, it's ignored on confirmations.
	Feedback string
}

// Run confirms or rejects the diagrams of a job. Only one decision is
// accepted per job, the rest fail with model.ErrPreconditionFailed.
func (s *Service) Run(ctx context.Context, req Request) (*model.Job, error) {
	id := strings.TrimSpace(req.JobID)
	if id == "" {
		return nil, fmt.Errorf("job id is required: %w", model.ErrNotValid)
	}

	feedback := strings.TrimSpace(req.Feedback)
	if utf8.RuneCountInString(feedback) > MaxFeedbackLength {
		return nil, fmt.Errorf("feedback can't have more than %d characters: %w", MaxFeedbackLength, model.ErrNotValid)
	}
	if req.Confirmed {
		feedback = ""
	}

	job, err := s.confirmer.Confirm(ctx, id, orchestrator.Decision{Confirmed: req.Confirmed, Feedback: feedback})
	if err != nil {
		return nil, fmt.Errorf("could not apply decision: %w", err)
	}

	if req.Confirmed {
		s.logger.Infof("Job %s confirmed", id)
	} else {
		s.logger.Infof("Job %s rejected", id)
	}

	return job, nil
}
