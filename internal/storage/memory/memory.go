package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	// TimeNow is used to stamp job mutations, defaults to time.Now.
	TimeNow func() time.Time
	Logger  log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.JobRepository and storage.StepRepository.
type Repository struct {
	jobs    map[string]model.Job
	steps   map[string]model.Step
	mu      sync.RWMutex
	timeNow func() time.Time
	logger  log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		jobs:    make(map[string]model.Job),
		steps:   make(map[string]model.Step),
		timeNow: cfg.TimeNow,
		logger:  cfg.Logger,
	}, nil
}

// CreateJob creates a new pending job in the repository.
func (r *Repository) CreateJob(ctx context.Context, id string, input model.JobInput) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; ok {
		return nil, fmt.Errorf("job with id %s: %w", id, model.ErrAlreadyExists)
	}

	now := r.timeNow().UTC()
	job := model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Input:     input,
		Version:   1,
	}
	r.jobs[id] = job
	r.logger.Debugf("Created job in repository: %s", id)

	c := job.Copy()
	return &c, nil
}

// GetJob retrieves a job by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}

	c := job.Copy()
	return &c, nil
}

// CompareAndUpdateJob updates a job only if its status is the expected one.
func (r *Repository) CompareAndUpdateJob(ctx context.Context, id string, expected model.JobStatus, patch model.JobPatch) (*model.Job, error) {
	if err := patch.ValidateTransition(expected); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	if err := patch.CheckPrecondition(job, expected); err != nil {
		return nil, err
	}

	patch.Apply(&job, r.timeNow())
	r.jobs[id] = job
	r.logger.Debugf("Updated job %s from %s to %s", id, expected, job.Status)

	c := job.Copy()
	return &c, nil
}

// UpdateJob applies an advisory update on a job.
func (r *Repository) UpdateJob(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	if !patch.IsAdvisory() {
		return nil, fmt.Errorf("status can't be updated without a precondition: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}

	patch.Apply(&job, r.timeNow())
	r.jobs[id] = job

	c := job.Copy()
	return &c, nil
}

// ListJobs returns the jobs matching the options, newest first.
func (r *Repository) ListJobs(ctx context.Context, opts model.JobListOptions) ([]model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]model.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if opts.Matches(job) {
			jobs = append(jobs, job.Copy())
		}
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}

	return jobs, nil
}

// AddSteps adds multiple steps to a job stage in order.
func (r *Repository) AddSteps(ctx context.Context, jobID string, stage model.Stage, names []string) error {
	if len(names) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	maxSeq := 0
	for _, s := range r.steps {
		if s.JobID == jobID && s.Stage == stage && s.Sequence > maxSeq {
			maxSeq = s.Sequence
		}
	}

	now := r.timeNow().UTC()
	for i, name := range names {
		id := ulid.Make().String()
		r.steps[id] = model.Step{
			ID:        id,
			JobID:     jobID,
			Stage:     stage,
			Sequence:  maxSeq + i + 1,
			Name:      name,
			Status:    model.StepStatusPending,
			CreatedAt: now,
		}
	}

	r.logger.Debugf("Added %d steps for job %s stage %s", len(names), jobID, stage)
	return nil
}

// NextStep returns the next pending step of a stage, or nil if all done.
func (r *Repository) NextStep(ctx context.Context, jobID string, stage model.Stage) (*model.Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var next *model.Step
	for _, s := range r.steps {
		if s.JobID != jobID || s.Stage != stage || s.Status != model.StepStatusPending {
			continue
		}
		if next == nil || s.Sequence < next.Sequence {
			step := s
			next = &step
		}
	}

	return next, nil
}

// CompleteStep marks a step as completed.
func (r *Repository) CompleteStep(ctx context.Context, stepID string) error {
	return r.setStepStatus(stepID, model.StepStatusDone, "")
}

// FailStep marks a step as failed with an error message.
func (r *Repository) FailStep(ctx context.Context, stepID string, stepErr error) error {
	errMsg := ""
	if stepErr != nil {
		errMsg = stepErr.Error()
	}
	return r.setStepStatus(stepID, model.StepStatusFailed, errMsg)
}

func (r *Repository) setStepStatus(stepID string, status model.StepStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.steps[stepID]
	if !ok {
		return fmt.Errorf("step %s: %w", stepID, model.ErrNotFound)
	}
	s.Status = status
	s.Error = errMsg
	r.steps[stepID] = s

	return nil
}

// Progress returns the completion progress of a stage.
func (r *Repository) Progress(ctx context.Context, jobID string, stage model.Stage) (*model.StepProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := &model.StepProgress{}
	for _, s := range r.steps {
		if s.JobID != jobID || s.Stage != stage {
			continue
		}
		p.Total++
		if s.Status == model.StepStatusDone {
			p.Done++
		}
	}

	return p, nil
}

// ListSteps returns all the steps of a job.
func (r *Repository) ListSteps(ctx context.Context, jobID string) ([]model.Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := []model.Step{}
	for _, s := range r.steps {
		if s.JobID == jobID {
			steps = append(steps, s)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		if steps[i].Stage != steps[j].Stage {
			return stageOrder(steps[i].Stage) < stageOrder(steps[j].Stage)
		}
		return steps[i].Sequence < steps[j].Sequence
	})

	return steps, nil
}

// ClearStage removes all steps of a stage.
func (r *Repository) ClearStage(ctx context.Context, jobID string, stage model.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.steps {
		if s.JobID == jobID && s.Stage == stage {
			delete(r.steps, id)
		}
	}

	return nil
}

func stageOrder(s model.Stage) int {
	if s == model.StageDesign {
		return 0
	}
	return 1
}
