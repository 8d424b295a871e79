package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/slok/infraware/internal/model"
)

// AddSteps adds multiple steps to a job stage in order.
func (r *Repository) AddSteps(ctx context.Context, jobID string, stage model.Stage, names []string) error {
	if len(names) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w: %w", model.ErrLedgerUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq int
	query := `SELECT COALESCE(MAX(sequence), 0) FROM job_steps WHERE job_id = ? AND stage = ?`
	if err := tx.QueryRowContext(ctx, query, jobID, stage).Scan(&maxSeq); err != nil {
		return fmt.Errorf("could not get max sequence: %w: %w", model.ErrLedgerUnavailable, err)
	}

	insertQuery := `
		INSERT INTO job_steps (id, job_id, stage, sequence, name, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?)
	`
	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w: %w", model.ErrLedgerUnavailable, err)
	}
	defer stmt.Close()

	now := r.timeNow().UTC()
	for i, name := range names {
		_, err := stmt.ExecContext(ctx, ulid.Make().String(), jobID, stage, maxSeq+i+1, name, model.StepStatusPending, now.UnixNano())
		if err != nil {
			return fmt.Errorf("could not insert step: %w: %w", model.ErrLedgerUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
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
		WHERE job_id = ? AND stage = ? AND status = ?
		ORDER BY sequence ASC
		LIMIT 1
	`

	s, err := scanStep(r.db.QueryRowContext(ctx, query, jobID, stage, model.StepStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	result, err := r.db.ExecContext(ctx, `UPDATE job_steps SET status = ?, error = ? WHERE id = ?`, status, errMsg, stepID)
	if err != nil {
		return fmt.Errorf("could not update step: %w: %w", model.ErrLedgerUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w: %w", model.ErrLedgerUnavailable, err)
	}
	if rows == 0 {
		return fmt.Errorf("step %s: %w", stepID, model.ErrNotFound)
	}

	r.logger.Debugf("Step %s is %s", stepID, status)
	return nil
}

// Progress returns the completion progress of a stage.
func (r *Repository) Progress(ctx context.Context, jobID string, stage model.Stage) (*model.StepProgress, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS done
		FROM job_steps
		WHERE job_id = ? AND stage = ?
	`

	var p model.StepProgress
	err := r.db.QueryRowContext(ctx, query, model.StepStatusDone, jobID, stage).Scan(&p.Total, &p.Done)
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
		WHERE job_id = ?
		ORDER BY CASE stage WHEN ? THEN 0 ELSE 1 END, sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, jobID, model.StageDesign)
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
	result, err := r.db.ExecContext(ctx, `DELETE FROM job_steps WHERE job_id = ? AND stage = ?`, jobID, stage)
	if err != nil {
		return fmt.Errorf("could not delete steps: %w: %w", model.ErrLedgerUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w: %w", model.ErrLedgerUnavailable, err)
	}

	r.logger.Debugf("Cleared %d steps for job %s stage %s", rows, jobID, stage)
	return nil
}

func scanStep(s scanner) (model.Step, error) {
	var (
		step      model.Step
		createdAt int64
	)

	err := s.Scan(
		&step.ID,
		&step.JobID,
		&step.Stage,
		&step.Sequence,
		&step.Name,
		&step.Status,
		&step.Error,
		&createdAt,
	)
	if err != nil {
		return model.Step{}, err
	}

	step.CreatedAt = timeFromUnixNano(createdAt)
	return step, nil
}
