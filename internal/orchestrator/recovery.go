package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/infraware/internal/model"
)

// RecoveryResult is the outcome of a recovery sweep.
type RecoveryResult struct {
	// Started are the pending jobs whose stage 1 was started.
	Started []string
	// Stalled are the running jobs that were failed.
	Stalled []string
}

// Recover resumes the jobs left behind by a stopped process. Pending jobs
// older than the grace period get their stage 1 started and running jobs
// without updates for longer than the stall timeout are failed, a stage is
// never resumed halfway.
func (o *Orchestrator) Recover(ctx context.Context) (*RecoveryResult, error) {
	now := o.timeNow()
	res := &RecoveryResult{}

	pending, err := o.ledger.ListJobs(ctx, model.JobListOptions{
		Statuses:      []model.JobStatus{model.JobStatusPending},
		UpdatedBefore: now.Add(-o.pendingGrace),
	})
	if err != nil {
		return nil, fmt.Errorf("could not list pending jobs: %w", err)
	}

	for _, j := range pending {
		if _, err := o.StartStage1(ctx, j.ID); err != nil {
			if errors.Is(err, model.ErrPreconditionFailed) {
				continue
			}
			o.logger.Errorf("Could not start pending job %s: %s", j.ID, err)
			continue
		}
		res.Started = append(res.Started, j.ID)
	}

	running, err := o.ledger.ListJobs(ctx, model.JobListOptions{
		Statuses:      []model.JobStatus{model.JobStatusStage1Running, model.JobStatusStage2Running},
		UpdatedBefore: now.Add(-o.stallTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("could not list running jobs: %w", err)
	}

	for _, j := range running {
		// Pinned to the listed version, a job updated since then is not stalled.
		_, err := o.transition(ctx, j.ID, j.Status, model.JobPatch{
			IfVersion: j.Version,
			Status:    ptr(model.JobStatusFailed),
			Error:     ptr(model.FailureReasonStalled),
			Message:   ptr(fmt.Sprintf("%s: no progress since %s", MessageStalled, j.UpdatedAt.Format(time.RFC3339))),
		})
		if err != nil {
			if errors.Is(err, model.ErrPreconditionFailed) {
				continue
			}
			o.logger.Errorf("Could not fail stalled job %s: %s", j.ID, err)
			continue
		}
		o.logger.Warningf("Job %s stalled on %s, marked as failed", j.ID, j.Status)
		res.Stalled = append(res.Stalled, j.ID)
	}

	if len(res.Started) > 0 || len(res.Stalled) > 0 {
		o.logger.Infof("Recovery started %d pending jobs and failed %d stalled jobs", len(res.Started), len(res.Stalled))
	}

	return res, nil
}

// RunRecovery runs a recovery sweep now and then every interval until the context is cancelled.
func (o *Orchestrator) RunRecovery(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := o.Recover(ctx); err != nil && ctx.Err() == nil {
			o.logger.Errorf("Recovery sweep failed: %s", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
