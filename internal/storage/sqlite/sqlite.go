package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	// MaxUpdateRetries is the number of times a write is retried when another
	// writer changed the job between the read and the write.
	MaxUpdateRetries int
	TimeNow          func() time.Time
	Logger           log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.MaxUpdateRetries <= 0 {
		c.MaxUpdateRetries = 5
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.JobRepository and storage.StepRepository.
type Repository struct {
	db               *sql.DB
	maxUpdateRetries int
	timeNow          func() time.Time
	logger           log.Logger
}

// NewRepository creates a new SQLite repository, the schema is migrated on creation.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{
		db:               db,
		maxUpdateRetries: cfg.MaxUpdateRetries,
		timeNow:          cfg.TimeNow,
		logger:           cfg.Logger,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateJob creates a new pending job in the repository.
func (r *Repository) CreateJob(ctx context.Context, id string, input model.JobInput) (*model.Job, error) {
	now := r.timeNow().UTC()
	job := model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Input:     input,
		Version:   1,
	}

	query := `
		INSERT INTO jobs (
			id, status,
			prompt, provider, project_name,
			version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.Input.Prompt,
		job.Input.Provider,
		job.Input.ProjectName,
		job.Version,
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: jobs.") {
			return nil, fmt.Errorf("job with id %s: %w", id, model.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("could not insert job: %w: %w", model.ErrLedgerUnavailable, err)
	}

	r.logger.Debugf("Created job in repository: %s", id)
	return &job, nil
}

const jobColumns = `
	id, status,
	prompt, provider, project_name,
	progress, current_step, message, error,
	spec_locator, diagram_locators, code_locators, doc_locator,
	version, created_at, updated_at,
	fence
`

// GetJob retrieves a job by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query job: %w: %w", model.ErrLedgerUnavailable, err)
	}

	return &job, nil
}

// CompareAndUpdateJob updates a job only if its status is the expected one.
// The write is guarded by the job version so concurrent writers from any
// process sharing the database can't both succeed.
func (r *Repository) CompareAndUpdateJob(ctx context.Context, id string, expected model.JobStatus, patch model.JobPatch) (*model.Job, error) {
	if err := patch.ValidateTransition(expected); err != nil {
		return nil, err
	}

	job, err := r.updateJob(ctx, id, patch, func(j model.Job) error {
		return patch.CheckPrecondition(j, expected)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debugf("Updated job %s from %s to %s", id, expected, job.Status)
	return job, nil
}

// UpdateJob applies an advisory update on a job.
func (r *Repository) UpdateJob(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	if !patch.IsAdvisory() {
		return nil, fmt.Errorf("status can't be updated without a precondition: %w", model.ErrNotValid)
	}

	return r.updateJob(ctx, id, patch, func(model.Job) error { return nil })
}

func (r *Repository) updateJob(ctx context.Context, id string, patch model.JobPatch, check func(model.Job) error) (*model.Job, error) {
	for attempt := 0; ; attempt++ {
		job, err := r.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := check(*job); err != nil {
			return nil, err
		}

		prevVersion := job.Version
		patch.Apply(job, r.timeNow())

		ok, err := r.writeJob(ctx, *job, prevVersion)
		if err != nil {
			return nil, err
		}
		if ok {
			return job, nil
		}

		if attempt >= r.maxUpdateRetries {
			return nil, fmt.Errorf("job %s kept changing during the update: %w", id, model.ErrLedgerUnavailable)
		}
		r.logger.Debugf("Job %s version %d changed concurrently, retrying", id, prevVersion)
	}
}

// writeJob stores the job only if the stored version is still `prevVersion`.
func (r *Repository) writeJob(ctx context.Context, j model.Job, prevVersion int64) (bool, error) {
	diagrams, err := encodeLocators(j.DiagramLocators)
	if err != nil {
		return false, err
	}
	code, err := encodeLocators(j.CodeLocators)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE jobs
		SET
			status = ?,
			progress = ?,
			current_step = ?,
			message = ?,
			error = ?,
			spec_locator = ?,
			diagram_locators = ?,
			code_locators = ?,
			doc_locator = ?,
			version = ?,
			updated_at = ?,
			fence = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		j.Status,
		j.Progress,
		j.CurrentStep,
		j.Message,
		j.Error,
		j.SpecLocator,
		diagrams,
		code,
		j.DocLocator,
		j.Version,
		j.UpdatedAt.UnixNano(),
		j.Fence,
		j.ID,
		prevVersion,
	)
	if err != nil {
		return false, fmt.Errorf("could not update job: %w: %w", model.ErrLedgerUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w: %w", model.ErrLedgerUnavailable, err)
	}

	return rows == 1, nil
}

// ListJobs returns the jobs matching the options, newest first.
func (r *Repository) ListJobs(ctx context.Context, opts model.JobListOptions) ([]model.Job, error) {
	var (
		where []string
		args  []any
	)

	if len(opts.Statuses) > 0 {
		marks := make([]string, 0, len(opts.Statuses))
		for _, st := range opts.Statuses {
			marks = append(marks, "?")
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if !opts.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < ?")
		args = append(args, opts.UpdatedBefore.UnixNano())
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query jobs: %w: %w", model.ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w: %w", model.ErrLedgerUnavailable, err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w: %w", model.ErrLedgerUnavailable, err)
	}

	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (model.Job, error) {
	var (
		j                   model.Job
		diagrams, code      string
		createdAt, updateAt int64
	)

	err := s.Scan(
		&j.ID,
		&j.Status,
		&j.Input.Prompt,
		&j.Input.Provider,
		&j.Input.ProjectName,
		&j.Progress,
		&j.CurrentStep,
		&j.Message,
		&j.Error,
		&j.SpecLocator,
		&diagrams,
		&code,
		&j.DocLocator,
		&j.Version,
		&createdAt,
		&updateAt,
		&j.Fence,
	)
	if err != nil {
		return model.Job{}, err
	}

	if j.DiagramLocators, err = decodeLocators(diagrams); err != nil {
		return model.Job{}, err
	}
	if j.CodeLocators, err = decodeLocators(code); err != nil {
		return model.Job{}, err
	}
	j.CreatedAt = timeFromUnixNano(createdAt)
	j.UpdatedAt = timeFromUnixNano(updateAt)

	return j, nil
}

func encodeLocators(ls []model.Locator) (string, error) {
	if len(ls) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ls)
	if err != nil {
		return "", fmt.Errorf("could not encode locators: %w", err)
	}
	return string(b), nil
}

func decodeLocators(s string) ([]model.Locator, error) {
	var ls []model.Locator
	if err := json.Unmarshal([]byte(s), &ls); err != nil {
		return nil, fmt.Errorf("could not decode locators: %w", err)
	}
	if len(ls) == 0 {
		return nil, nil
	}
	return ls, nil
}

func timeFromUnixNano(ns int64) time.Time { return time.Unix(0, ns).UTC() }
