package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/slok/infraware/internal/model"
)

// AddSteps adds multiple steps to a job stage in order.
func (r *Repository) AddSteps(ctx context.Context, jobID string, stage model.Stage, names []string) error {
	if len(names) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w: %w", model.ErrLedgerUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize sequence allocation per job.
	if _, err := tx.Exec(ctx, `SELECT id FROM jobs WHERE id = $1 FOR UPDATE`, jobID); err != nil {
		return fmt.Errorf("could not lock job: %w: %w", model.ErrLedgerUnavailable, err)
	}

	var maxSeq int
	query := `SELECT COALESCE(MAX(sequence), 0) FROM job_steps WHERE job_id = $1 AND stage = $2`
	if err := tx.QueryRow(ctx, query, jobID, string(stage)).Scan(&maxSeq); err != nil {
		return fmt.Errorf("could not get max sequence: %w: %w", model.ErrLedgerUnavailable, err)
	}

	batch := &pgx.Batch{}
	now := r.now()
	for i, name := range names {
		batch.Queue(`
			INSERT INTO job_steps (id, job_id, stage, sequence, name, status, error, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, '', $7)
		`, ulid.Make().String(), jobID, string(stage), maxSeq+i+1, name, string(model.StepStatusPending), now)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("could not insert steps: %w: %w", model.ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit transaction: %w: %w", model.ErrLedgerUnavailable, err)
	}

	r.logger.Debugf("Added %d steps for job %s stage %s", len(names), jobID, stage)
	return nil
}

const stepColumns = `id, job_id, stage, sequence, name, status, error, created_at`

// NextStep returns the next pending step of a stage, or nil if all done.
func (r *Repository) NextStep(ctx context.Context, jobID string, stage model.Stage) (*model.Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM job_steps
		WHERE job_id = $1 AND stage = $2 AND status = $3
		ORDER BY sequence ASC
		LIMIT 1
	`

	s, err := scanStep(r.pool.QueryRow(ctx, query, jobID, string(stage), string(model.StepStatusPending)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not query next step: %w: %w", model.ErrLedgerUnavailable, err)
	}

	return &s, nil
}

// CompleteStep marks a step as completed.
func (r *Repository) CompleteStep(ctx context.Context, stepID string) error {
	return r.setStepStatus(ctx, stepID, model.StepStatusDone, "")
}

// FailStep marks a step as failed with an error message.
func (r *Repository) FailStep(ctx context.Context, stepID string, stepErr error) error {
	errMsg := ""
	if stepErr != nil {
		errMsg = stepErr.Error()
	}
	return r.setStepStatus(ctx, stepID, model.StepStatusFailed, errMsg)
}

func (r *Repository) setStepStatus(ctx context.Context, stepID string, status model.StepStatus, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE job_steps SET status = $1, error = $2 WHERE id = $3`, string(status), errMsg, stepID)
	if err != nil {
		return fmt.Errorf("could not update step: %w: %w", model.ErrLedgerUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("step %s: %w", stepID, model.ErrNotFound)
	}

	return nil
}

// Progress returns the completion progress of a stage.
func (r *Repository) Progress(ctx context.Context, jobID string, stage model.Stage) (*model.StepProgress, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1)
		FROM job_steps
		WHERE job_id = $2 AND stage = $3
	`

	var p model.StepProgress
	err := r.pool.QueryRow(ctx, query, string(model.StepStatusDone), jobID, string(stage)).Scan(&p.Total, &p.Done)
	if err != nil {
		return nil, fmt.Errorf("could not query progress: %w: %w", model.ErrLedgerUnavailable, err)
	}

	return &p, nil
}

// ListSteps returns all the steps of a job, design stage first.
func (r *Repository) ListSteps(ctx context.Context, jobID string) ([]model.Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM job_steps
		WHERE job_id = $1
		ORDER BY CASE stage WHEN $2 THEN 0 ELSE 1 END, sequence ASC
	`

	rows, err := r.pool.Query(ctx, query, jobID, string(model.StageDesign))
	if err != nil {
		return nil, fmt.Errorf("could not query steps: %w: %w", model.ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	steps := []model.Step{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w: %w", model.ErrLedgerUnavailable, err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w: %w", model.ErrLedgerUnavailable, err)
	}

	return steps, nil
}

// ClearStage removes all steps of a stage.
func (r *Repository) ClearStage(ctx context.Context, jobID string, stage model.Stage) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM job_steps WHERE job_id = $1 AND stage = $2`, jobID, string(stage))
	if err != nil {
		return fmt.Errorf("could not delete steps: %w: %w", model.ErrLedgerUnavailable, err)
	}

	r.logger.Debugf("Cleared %d steps for job %s stage %s", tag.RowsAffected(), jobID, stage)
	return nil
}

func scanStep(row pgx.Row) (model.Step, error) {
	var (
		s             model.Step
		stage, status string
		createdAt     time.Time
	)

	err := row.Scan(&s.ID, &s.JobID, &stage, &s.Sequence, &s.Name, &status, &s.Error, &createdAt)
	if err != nil {
		return model.Step{}, err
	}

	s.Stage = model.Stage(stage)
	s.Status = model.StepStatus(status)
	s.CreatedAt = createdAt.UTC()
	return s, nil
}
