package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/slok/infraware/internal/artifact"
	"github.com/slok/infraware/internal/engine"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage"
)

// Scheduler runs stage tasks in the background. Tasks receive a context that
// is independent from the request that scheduled them.
type Scheduler interface {
	Schedule(name string, task func(ctx context.Context)) error
}

// Config is the configuration for the orchestrator.
type Config struct {
	Ledger storage.JobRepository
	// Steps is optional, when set the stage steps are tracked on it.
	Steps     storage.StepRepository
	Store     artifact.Store
	Engine    engine.Engine
	Scheduler Scheduler
	// EngineTimeout bounds every generation engine call.
	EngineTimeout time.Duration
	// LedgerRetries is the number of retries of a status transition when the ledger is unavailable.
	LedgerRetries uint64
	// LedgerBackoff is the initial wait between ledger retries.
	LedgerBackoff time.Duration
	// FailureWriteTimeout bounds the write that marks a job as failed.
	FailureWriteTimeout time.Duration
	// StallTimeout is the time a running job can go without updates before recovery fails it.
	StallTimeout time.Duration
	// PendingGrace is the time a pending job waits before recovery starts it.
	PendingGrace time.Duration
	TimeNow      func() time.Time
	Logger       log.Logger
}

func (c *Config) defaults() error {
	if c.Ledger == nil {
		return fmt.Errorf("ledger is required")
	}
	if c.Store == nil {
		return fmt.Errorf("artifact store is required")
	}
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Scheduler == nil {
		return fmt.Errorf("scheduler is required")
	}
	if c.EngineTimeout <= 0 {
		c.EngineTimeout = 5 * time.Minute
	}
	if c.LedgerRetries == 0 {
		c.LedgerRetries = 3
	}
	if c.LedgerBackoff <= 0 {
		c.LedgerBackoff = 200 * time.Millisecond
	}
	if c.FailureWriteTimeout <= 0 {
		c.FailureWriteTimeout = 10 * time.Second
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 3 * c.EngineTimeout
	}
	if c.StallTimeout <= c.EngineTimeout {
		return fmt.Errorf("stall timeout must be greater than the engine timeout")
	}
	if c.PendingGrace <= 0 {
		c.PendingGrace = time.Minute
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Orchestrator"})
	return nil
}

// Orchestrator drives jobs through their two stages. All the status changes
// go through the ledger compare and update, so it's safe to run multiple
// orchestrators sharing a ledger.
type Orchestrator struct {
	ledger              storage.JobRepository
	steps               storage.StepRepository
	store               artifact.Store
	engine              engine.Engine
	scheduler           Scheduler
	engineTimeout       time.Duration
	ledgerRetries       uint64
	ledgerBackoff       time.Duration
	failureWriteTimeout time.Duration
	stallTimeout        time.Duration
	pendingGrace        time.Duration
	timeNow             func() time.Time
	logger              log.Logger
}

// New creates a new orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Orchestrator{
		ledger:              cfg.Ledger,
		steps:               cfg.Steps,
		store:               cfg.Store,
		engine:              cfg.Engine,
		scheduler:           cfg.Scheduler,
		engineTimeout:       cfg.EngineTimeout,
		ledgerRetries:       cfg.LedgerRetries,
		ledgerBackoff:       cfg.LedgerBackoff,
		failureWriteTimeout: cfg.FailureWriteTimeout,
		stallTimeout:        cfg.StallTimeout,
		pendingGrace:        cfg.PendingGrace,
		timeNow:             cfg.TimeNow,
		logger:              cfg.Logger,
	}, nil
}

// Job messages.
const (
	MessageStage1Started = "Job created and processing started"
	MessageDiagramsReady = "Diagrams are ready for review"
	MessageAwaiting      = "Waiting for user confirmation"
	MessageRejected      = "Diagrams rejected by user"
	MessageStage2Started = "User confirmed diagrams, generating Terraform..."
	MessageCompleted     = "Infrastructure as Code generation complete"
	MessageStage1Failed  = "Job processing failed"
	MessageStage2Failed  = "Terraform generation failed"
	MessageStalled       = "Job stalled"
)

// Decision is the user decision on the diagrams of a job.
type Decision struct {
	Confirmed bool
	Feedback  string
}

// StartStage1 moves a pending job to stage 1 and schedules the spec and diagrams generation.
func (o *Orchestrator) StartStage1(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.transition(ctx, jobID, model.JobStatusPending, model.JobPatch{
		Status:      ptr(model.JobStatusStage1Running),
		Progress:    ptr(stage1InitialProgress),
		CurrentStep: ptr(designSteps[0].description),
		Message:     ptr(MessageStage1Started),
	})
	if err != nil {
		return nil, fmt.Errorf("could not start stage 1: %w", err)
	}

	input := job.Input
	err = o.scheduler.Schedule("stage1/"+jobID, func(ctx context.Context) {
		o.runStage1(ctx, jobID, input)
	})
	if err != nil {
		o.fail(ctx, jobID, model.JobStatusStage1Running, newStageError(model.FailureReasonUnschedulable, "the job could not be scheduled", err), MessageStage1Failed)
		return nil, fmt.Errorf("could not schedule stage 1: %w", err)
	}

	o.logger.Infof("Stage 1 of job %s scheduled", jobID)
	return job, nil
}

// Confirm applies the user decision on a job waiting for confirmation. A
// confirmation schedules the code and documentation generation, a rejection
// fails the job.
func (o *Orchestrator) Confirm(ctx context.Context, jobID string, d Decision) (*model.Job, error) {
	job, err := o.ledger.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("could not get job: %w", err)
	}
	if job.Status != model.JobStatusAwaitingConfirmation {
		return nil, fmt.Errorf("job %s is %s, it can't be confirmed: %w", jobID, job.Status, model.ErrPreconditionFailed)
	}

	if !d.Confirmed {
		msg := d.Feedback
		if msg == "" {
			msg = MessageRejected
		}
		job, err := o.transition(ctx, jobID, model.JobStatusAwaitingConfirmation, model.JobPatch{
			Status:  ptr(model.JobStatusFailed),
			Error:   ptr(model.FailureReasonRejected),
			Message: ptr(msg),
		})
		if err != nil {
			return nil, fmt.Errorf("could not reject job: %w", err)
		}

		o.logger.Infof("Job %s rejected", jobID)
		return job, nil
	}

	// The spec is read before the transition, stage 2 only depends on it.
	spec, err := o.store.Get(ctx, job.SpecLocator)
	if err != nil {
		return nil, fmt.Errorf("could not read job spec: %w", err)
	}

	job, err = o.transition(ctx, jobID, model.JobStatusAwaitingConfirmation, model.JobPatch{
		Status:      ptr(model.JobStatusStage2Running),
		Progress:    ptr(stage1FinalProgress),
		CurrentStep: ptr(generateSteps[0].description),
		Message:     ptr(MessageStage2Started),
	})
	if err != nil {
		return nil, fmt.Errorf("could not confirm job: %w", err)
	}

	err = o.scheduler.Schedule("stage2/"+jobID, func(ctx context.Context) {
		o.runStage2(ctx, jobID, spec)
	})
	if err != nil {
		o.fail(ctx, jobID, model.JobStatusStage2Running, newStageError(model.FailureReasonUnschedulable, "the job could not be scheduled", err), MessageStage2Failed)
		return nil, fmt.Errorf("could not schedule stage 2: %w", err)
	}

	o.logger.Infof("Job %s confirmed, stage 2 scheduled", jobID)
	return job, nil
}

// transition changes the status of a job retrying while the ledger is
// unavailable. Every transition carries its own fence, a retry is only treated
// as applied when the stored fence is this transition's one.
func (o *Orchestrator) transition(ctx context.Context, jobID string, expected model.JobStatus, patch model.JobPatch) (*model.Job, error) {
	fence := uuid.NewString()
	patch.Fence = &fence

	attempt := 0
	op := func() (*model.Job, error) {
		attempt++
		job, err := o.ledger.CompareAndUpdateJob(ctx, jobID, expected, patch)
		switch {
		case err == nil:
			return job, nil
		case errors.Is(err, model.ErrLedgerUnavailable):
			o.logger.Warningf("Ledger unavailable on job %s transition (attempt %d): %s", jobID, attempt, err)
			return nil, err
		case errors.Is(err, model.ErrPreconditionFailed) && attempt > 1:
			current, gerr := o.ledger.GetJob(ctx, jobID)
			if gerr == nil && current.Fence == fence {
				return current, nil
			}
			return nil, backoff.Permanent(err)
		default:
			return nil, backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.ledgerBackoff
	b.MaxElapsedTime = 0

	return backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, o.ledgerRetries), ctx))
}

// fail moves a job to failed. The write is done even if the stage context
// has been cancelled, if it can't be persisted the job is left stalled on its
// last status.
func (o *Orchestrator) fail(ctx context.Context, jobID string, from model.JobStatus, err error, message string) {
	se := asStageError(err)
	logger := o.logger.WithValues(log.Kv{"job-id": jobID, "status": from, "reason": se.reason})

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.failureWriteTimeout)
	defer cancel()

	_, ferr := o.transition(ctx, jobID, from, model.JobPatch{
		Status:  ptr(model.JobStatusFailed),
		Error:   ptr(se.reason),
		Message: ptr(message + ": " + se.message),
	})
	if ferr != nil {
		if errors.Is(ferr, model.ErrPreconditionFailed) {
			logger.Warningf("Job %s changed before it could be failed: %s", jobID, ferr)
			return
		}
		logger.Errorf("job stalled: could not persist the failure of job %s: %s (cause: %s)", jobID, ferr, err)
		return
	}

	logger.Warningf("Job %s failed: %s", jobID, err)
}

// advise applies an advisory update, failures are only logged.
func (o *Orchestrator) advise(ctx context.Context, jobID string, patch model.JobPatch) {
	if _, err := o.ledger.UpdateJob(ctx, jobID, patch); err != nil {
		o.logger.Warningf("Could not update job %s progress: %s", jobID, err)
	}
}

// callEngine runs an engine call bounded by the engine timeout.
func (o *Orchestrator) callEngine(ctx context.Context, what string, f func(ctx context.Context) error) error {
	ectx, cancel := context.WithTimeout(ctx, o.engineTimeout)
	defer cancel()

	err := f(ectx)
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return newStageError(model.FailureReasonInterrupted, "the job was interrupted", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ectx.Err(), context.DeadlineExceeded):
		return newStageError(model.FailureReasonEngineTimeout, what+" timed out", err)
	default:
		return newStageError(model.FailureReasonEngineFailure, what+" failed", err)
	}
}

// storeFiles stores the files of a job category and returns their locators.
func (o *Orchestrator) storeFiles(ctx context.Context, jobID string, category model.ArtifactCategory, files []model.File) ([]model.Locator, error) {
	locs := make([]model.Locator, 0, len(files))
	for _, f := range files {
		key := model.ArtifactKey{JobID: jobID, Category: category, Filename: f.Name}
		loc, err := o.store.Put(ctx, key, f.Content)
		if err != nil {
			if errors.Is(err, model.ErrNotValid) {
				return nil, newStageError(model.FailureReasonEngineFailure, fmt.Sprintf("invalid %s file name %q", category, f.Name), err)
			}
			return nil, newStageError(model.FailureReasonStoreFailure, fmt.Sprintf("could not store %s", category), err)
		}
		locs = append(locs, loc)
	}

	return locs, nil
}

// stageError is a stage failure with its job failure reason.
type stageError struct {
	reason  string
	message string
	err     error
}

func newStageError(reason, message string, err error) *stageError {
	return &stageError{reason: reason, message: message, err: err}
}

func (e *stageError) Error() string { return e.message + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func asStageError(err error) *stageError {
	var se *stageError
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, model.ErrLedgerUnavailable):
		return newStageError(model.FailureReasonLedgerUnavailable, "the job ledger is unavailable", err)
	case errors.Is(err, model.ErrStoreFailure):
		return newStageError(model.FailureReasonStoreFailure, "the artifact store failed", err)
	default:
		return newStageError(model.FailureReasonEngineFailure, "unexpected error", err)
	}
}

func ptr[T any](v T) *T { return &v }
