package artifacts

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage"
)

// ServiceConfig is the configuration for the artifacts service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Artifacts"})
	return nil
}

// Service resolves the artifact listings of jobs. Listings are built only
// from the locators recorded on the job, artifacts stored by a failed
// attempt are never listed.
type Service struct {
	ledger storage.JobRepository
	logger log.Logger
}

// NewService creates a new artifacts service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		ledger: cfg.Ledger,
		logger: cfg.Logger,
	}, nil
}

var diagramStatuses = map[model.JobStatus]bool{
	model.JobStatusAwaitingConfirmation: true,
	model.JobStatusConfirmed:            true,
	model.JobStatusStage2Running:        true,
	model.JobStatusCompleted:            true,
}

// Diagrams returns the reviewable diagrams of a job, the job must have finished its first stage.
func (s *Service) Diagrams(ctx context.Context, jobID string) ([]model.Artifact, error) {
	job, err := s.ledger.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("could not get job: %w", err)
	}

	if !diagramStatuses[job.Status] {
		return nil, fmt.Errorf("diagrams not available, job %s is %s: %w", jobID, job.Status, model.ErrPreconditionFailed)
	}

	return toArtifacts(job.DiagramLocators), nil
}

// Final returns the artifacts of a completed job.
func (s *Service) Final(ctx context.Context, jobID string) (*model.FinalArtifacts, error) {
	job, err := s.ledger.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("could not get job: %w", err)
	}

	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("artifacts not available, job %s is %s: %w", jobID, job.Status, model.ErrPreconditionFailed)
	}

	return &model.FinalArtifacts{
		JobID:            job.ID,
		CodeFiles:        toArtifacts(job.CodeLocators),
		DocumentationURL: string(job.DocLocator),
		Diagrams:         toArtifacts(job.DiagramLocators),
	}, nil
}

// Artifact returns the artifact of a job addressed by the key. Only artifacts
// recorded on the job are returned, and only once the job status exposes their
// category, partial writes of running or failed stages are never returned.
func (s *Service) Artifact(ctx context.Context, key model.ArtifactKey) (*model.Artifact, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	job, err := s.ledger.GetJob(ctx, key.JobID)
	if err != nil {
		return nil, fmt.Errorf("could not get job: %w", err)
	}

	var recorded []model.Locator
	switch key.Category {
	case model.ArtifactCategorySpec, model.ArtifactCategoryDiagrams:
		if !diagramStatuses[job.Status] {
			return nil, fmt.Errorf("%s not available, job %s is %s: %w", key.Category, job.ID, job.Status, model.ErrPreconditionFailed)
		}
		recorded = job.DiagramLocators
		if key.Category == model.ArtifactCategorySpec {
			recorded = []model.Locator{job.SpecLocator}
		}
	case model.ArtifactCategoryCode, model.ArtifactCategoryDocs:
		if job.Status != model.JobStatusCompleted {
			return nil, fmt.Errorf("%s not available, job %s is %s: %w", key.Category, job.ID, job.Status, model.ErrPreconditionFailed)
		}
		recorded = job.CodeLocators
		if key.Category == model.ArtifactCategoryDocs {
			recorded = []model.Locator{job.DocLocator}
		}
	}

	for _, loc := range recorded {
		if locatorHasKey(loc, key) {
			art := toArtifacts([]model.Locator{loc})[0]
			return &art, nil
		}
	}

	return nil, fmt.Errorf("artifact %s: %w", key.Path(), model.ErrNotFound)
}

// locatorHasKey returns true if the locator addresses the key, whatever the
// base URL it was created with.
func locatorHasKey(loc model.Locator, key model.ArtifactKey) bool {
	l := string(loc)
	return l != "" && (l == key.Path() || strings.HasSuffix(l, "/"+key.Path()))
}

func toArtifacts(locs []model.Locator) []model.Artifact {
	arts := make([]model.Artifact, 0, len(locs))
	for _, loc := range locs {
		name := path.Base(string(loc))
		arts = append(arts, model.Artifact{
			Name: name,
			URL:  string(loc),
			Type: model.ContentTypeFor(name),
		})
	}
	return arts
}
