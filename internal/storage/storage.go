package storage

import (
	"context"

	"github.com/slok/infraware/internal/model"
)

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name JobRepository
//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name StepRepository

// JobRepository is the job ledger, the single writer of job records.
type JobRepository interface {
	// CreateJob stores a new pending job, fails with model.ErrAlreadyExists if the ID is reused.
	CreateJob(ctx context.Context, id string, input model.JobInput) (*model.Job, error)
	// GetJob returns a job or model.ErrNotFound.
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// CompareAndUpdateJob applies the patch atomically only if the stored status is the
	// expected one, otherwise it fails with model.ErrPreconditionFailed.
	CompareAndUpdateJob(ctx context.Context, id string, expected model.JobStatus, patch model.JobPatch) (*model.Job, error)
	// UpdateJob applies an advisory patch (progress, current step...), it can't change the status.
	UpdateJob(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error)
	// ListJobs lists jobs ordered by creation time, newest first.
	ListJobs(ctx context.Context, opts model.JobListOptions) ([]model.Job, error)
}

// StepRepository tracks the steps of job stages.
type StepRepository interface {
	// AddSteps adds multiple steps to a job stage in order.
	AddSteps(ctx context.Context, jobID string, stage model.Stage, names []string) error
	// NextStep returns the next pending step of a stage, or nil if all done.
	NextStep(ctx context.Context, jobID string, stage model.Stage) (*model.Step, error)
	// CompleteStep marks a step as completed.
	CompleteStep(ctx context.Context, stepID string) error
	// FailStep marks a step as failed with an error message.
	FailStep(ctx context.Context, stepID string, err error) error
	// Progress returns the completion progress of a stage.
	Progress(ctx context.Context, jobID string, stage model.Stage) (*model.StepProgress, error)
	// ListSteps returns all the steps of a job ordered by stage and sequence.
	ListSteps(ctx context.Context, jobID string) ([]model.Step, error)
	// ClearStage removes all steps of a stage.
	ClearStage(ctx context.Context, jobID string, stage model.Stage) error
}
