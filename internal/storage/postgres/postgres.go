package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/storage/postgres/migrations"
)

// RepositoryConfig is the configuration for the Postgres repository.
type RepositoryConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
	// MaxUpdateRetries is the number of times a write is retried when another
	// writer changed the job between the read and the write.
	MaxUpdateRetries int
	TimeNow          func() time.Time
	Logger           log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Postgres"})
	return nil
}

// Repository is a Postgres implementation of storage.JobRepository and storage.StepRepository.
type Repository struct {
	pool             *pgxpool.Pool
	maxUpdateRetries int
	timeNow          func() time.Time
	logger           log.Logger
}

// NewRepository connects to Postgres and migrates the schema.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid dsn: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.ConnConfig.RuntimeParams["application_name"] = "infraware"

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not ping database: %w", err)
	}

	migrator, err := migrations.NewMigrator(pool, cfg.Logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("Postgres repository initialized")

	return &Repository{
		pool:             pool,
		maxUpdateRetries: cfg.MaxUpdateRetries,
		timeNow:          cfg.TimeNow,
		logger:           cfg.Logger,
	}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// now returns the current time with the precision Postgres stores.
func (r *Repository) now() time.Time { return r.timeNow().UTC().Truncate(time.Microsecond) }

// CreateJob creates a new pending job in the repository.
func (r *Repository) CreateJob(ctx context.Context, id string, input model.JobInput) (*model.Job, error) {
	now := r.now()
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		job.ID,
		string(job.Status),
		job.Input.Prompt,
		string(job.Input.Provider),
		job.Input.ProjectName,
		job.Version,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
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
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query job: %w: %w", model.ErrLedgerUnavailable, err)
	}

	return &job, nil
}

// CompareAndUpdateJob updates a job only if its status is the expected one.
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
		patch.Apply(job, r.now())

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

func (r *Repository) writeJob(ctx context.Context, j model.Job, prevVersion int64) (bool, error) {
	query := `
		UPDATE jobs
		SET
			status = $1,
			progress = $2,
			current_step = $3,
			message = $4,
			error = $5,
			spec_locator = $6,
			diagram_locators = $7,
			code_locators = $8,
			doc_locator = $9,
			version = $10,
			updated_at = $11,
			fence = $12
		WHERE id = $13 AND version = $14
		RETURNING version
	`

	var version int64
	err := r.pool.QueryRow(ctx, query,
		string(j.Status),
		j.Progress,
		j.CurrentStep,
		j.Message,
		j.Error,
		string(j.SpecLocator),
		fromLocators(j.DiagramLocators),
		fromLocators(j.CodeLocators),
		string(j.DocLocator),
		j.Version,
		j.UpdatedAt,
		j.Fence,
		j.ID,
		prevVersion,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("could not update job: %w: %w", model.ErrLedgerUnavailable, err)
	}

	return true, nil
}

// ListJobs returns the jobs matching the options, newest first.
func (r *Repository) ListJobs(ctx context.Context, opts model.JobListOptions) ([]model.Job, error) {
	var (
		where []string
		args  []any
	)

	if len(opts.Statuses) > 0 {
		statuses := make([]string, 0, len(opts.Statuses))
		for _, st := range opts.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !opts.UpdatedBefore.IsZero() {
		args = append(args, opts.UpdatedBefore.UTC())
		where = append(where, fmt.Sprintf("updated_at < $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
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

func scanJob(row pgx.Row) (model.Job, error) {
	var (
		j                    model.Job
		status, provider     string
		specLoc, docLoc      string
		diagrams, code       []string
		createdAt, updatedAt time.Time
	)

	err := row.Scan(
		&j.ID,
		&status,
		&j.Input.Prompt,
		&provider,
		&j.Input.ProjectName,
		&j.Progress,
		&j.CurrentStep,
		&j.Message,
		&j.Error,
		&specLoc,
		&diagrams,
		&code,
		&docLoc,
		&j.Version,
		&createdAt,
		&updatedAt,
		&j.Fence,
	)
	if err != nil {
		return model.Job{}, err
	}

	j.Status = model.JobStatus(status)
	j.Input.Provider = model.Provider(provider)
	j.SpecLocator = model.Locator(specLoc)
	j.DocLocator = model.Locator(docLoc)
	j.DiagramLocators = toLocators(diagrams)
	j.CodeLocators = toLocators(code)
	j.CreatedAt = createdAt.UTC()
	j.UpdatedAt = updatedAt.UTC()

	return j, nil
}

func fromLocators(ls []model.Locator) []string {
	ss := make([]string, 0, len(ls))
	for _, l := range ls {
		ss = append(ss, string(l))
	}
	return ss
}

func toLocators(ss []string) []model.Locator {
	if len(ss) == 0 {
		return nil
	}
	ls := make([]model.Locator, 0, len(ss))
	for _, s := range ss {
		ls = append(ls, model.Locator(s))
	}
	return ls
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
