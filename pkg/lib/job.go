package lib

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slok/infraware/internal/app/confirm"
	"github.com/slok/infraware/internal/app/create"
	"github.com/slok/infraware/internal/app/list"
	"github.com/slok/infraware/internal/app/status"
	"github.com/slok/infraware/internal/artifact"
	"github.com/slok/infraware/internal/httpapi"
	"github.com/slok/infraware/internal/model"
)

// CreateJob creates a job and starts generating its spec and diagrams in the
// background. The returned job is pending, use [Client.WaitJob] to wait until
// the diagrams are ready for confirmation.
func (c *Client) CreateJob(ctx context.Context, opts CreateJobOpts) (*Job, error) {
	j, err := c.createSvc.Run(ctx, create.Request{
		Input: model.JobInput{
			Prompt:      opts.Prompt,
			Provider:    model.Provider(opts.Provider),
			ProjectName: opts.ProjectName,
		},
		Deferred: opts.Deferred,
	})
	if err != nil {
		return nil, mapError(err)
	}

	job := fromInternalJob(*j, nil)
	return &job, nil
}

// GetJob returns a job with its stage steps.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	res, err := c.statusSvc.Run(ctx, status.Request{JobID: jobID})
	if err != nil {
		return nil, mapError(err)
	}

	job := fromInternalJob(res.Job, res.Steps)
	return &job, nil
}

// ListJobs returns the jobs sorted by creation time, newest first.
// Pass nil opts to list all jobs.
func (c *Client) ListJobs(ctx context.Context, opts *ListJobsOpts) ([]Job, error) {
	req := list.Request{}
	if opts != nil {
		req.Statuses = toInternalStatuses(opts.Statuses)
		req.Limit = opts.Limit
	}

	jobs, err := c.listSvc.Run(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalJobList(jobs), nil
}

// ConfirmJob accepts the diagrams of a job awaiting confirmation and starts
// generating its code and documentation in the background.
func (c *Client) ConfirmJob(ctx context.Context, jobID string) (*Job, error) {
	return c.decide(ctx, confirm.Request{JobID: jobID, Confirmed: true})
}

// RejectJob rejects the diagrams of a job awaiting confirmation, the job fails
// with the "rejected" error and the feedback as message.
func (c *Client) RejectJob(ctx context.Context, jobID, feedback string) (*Job, error) {
	return c.decide(ctx, confirm.Request{JobID: jobID, Confirmed: false, Feedback: feedback})
}

func (c *Client) decide(ctx context.Context, req confirm.Request) (*Job, error) {
	j, err := c.confirmSvc.Run(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	job := fromInternalJob(*j, nil)
	return &job, nil
}

// WaitJobOpts are the options of [Client.WaitJob].
type WaitJobOpts struct {
	// PollInterval is the time between job reads.
	// Default: 100ms.
	PollInterval time.Duration
}

var errJobNotSettled = errors.New("job not settled")

// WaitJob blocks until the job stops running: it's awaiting confirmation,
// completed or failed. Use a context with deadline to bound the wait.
func (c *Client) WaitJob(ctx context.Context, jobID string, opts *WaitJobOpts) (*Job, error) {
	interval := 100 * time.Millisecond
	if opts != nil && opts.PollInterval > 0 {
		interval = opts.PollInterval
	}

	var job *Job
	op := func() error {
		j, err := c.GetJob(ctx, jobID)
		if err != nil {
			return backoff.Permanent(err)
		}
		job = j

		switch j.Status {
		case JobStatusAwaitingConfirmation, JobStatusCompleted, JobStatusFailed:
			return nil
		}
		return errJobNotSettled
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	if err != nil {
		if job != nil && ctx.Err() != nil {
			return job, fmt.Errorf("job %s still %s: %w", jobID, job.Status, ctx.Err())
		}
		return nil, err
	}

	return job, nil
}

// Diagrams returns the diagrams of a job. The job must be awaiting confirmation
// or past it, otherwise [ErrPreconditionFailed] is returned.
func (c *Client) Diagrams(ctx context.Context, jobID string) ([]Artifact, error) {
	arts, err := c.artifactsSvc.Diagrams(ctx, jobID)
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalArtifacts(arts), nil
}

// FinalArtifacts returns the code, documentation and diagrams of a completed
// job, otherwise [ErrPreconditionFailed] is returned.
func (c *Client) FinalArtifacts(ctx context.Context, jobID string) (*FinalArtifacts, error) {
	final, err := c.artifactsSvc.Final(ctx, jobID)
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalFinalArtifacts(*final), nil
}

// ReadArtifact returns the content of an artifact by its URL. Like the
// listings, artifacts are only readable once the job exposes them.
func (c *Client) ReadArtifact(ctx context.Context, url string) ([]byte, error) {
	loc := model.Locator(url)
	key, err := artifact.KeyFor(c.artifactsBaseURL, loc)
	if err != nil {
		return nil, mapError(err)
	}
	if _, err := c.artifactsSvc.Artifact(ctx, key); err != nil {
		return nil, mapError(err)
	}

	data, err := c.store.Get(ctx, loc)
	if err != nil {
		return nil, mapError(err)
	}

	return data, nil
}

// Recover starts the first stage of the pending jobs and fails the jobs whose
// stage stopped progressing, e.g. because the process running it died.
func (c *Client) Recover(ctx context.Context) (*RecoverResult, error) {
	res, err := c.orch.Recover(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	return &RecoverResult{Started: res.Started, Stalled: res.Stalled}, nil
}

// HTTPHandler returns the HTTP API handler of the client jobs, it serves the
// artifact contents too.
func (c *Client) HTTPHandler(version string) (http.Handler, error) {
	h, err := httpapi.NewHandler(httpapi.HandlerConfig{
		CreateService:   c.createSvc,
		StatusService:   c.statusSvc,
		ConfirmService:  c.confirmSvc,
		ArtifactService: c.artifactsSvc,
		ArtifactReader:  c.store,
		Version:         version,
		Logger:          c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create http handler: %w", err)
	}

	return h, nil
}
