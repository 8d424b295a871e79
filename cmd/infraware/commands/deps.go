package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slok/infraware/internal/artifact"
	artifactfs "github.com/slok/infraware/internal/artifact/fs"
	"github.com/slok/infraware/internal/engine"
	"github.com/slok/infraware/internal/engine/local"
	"github.com/slok/infraware/internal/engine/remote"
	"github.com/slok/infraware/internal/model"
	"github.com/slok/infraware/internal/orchestrator"
	"github.com/slok/infraware/internal/storage"
	"github.com/slok/infraware/internal/storage/postgres"
	"github.com/slok/infraware/internal/storage/sqlite"
)

// ledger groups the job ledger repositories of a single backend.
type ledger struct {
	jobs  storage.JobRepository
	steps storage.StepRepository
	close func() error
}

func (r RootCommand) newLedger(ctx context.Context) (*ledger, error) {
	switch r.Ledger {
	case ledgerPostgres:
		if r.PostgresDSN == "" {
			return nil, fmt.Errorf("--postgres-dsn is required when using the postgres ledger")
		}
		repo, err := postgres.NewRepository(ctx, postgres.RepositoryConfig{
			DSN:    r.PostgresDSN,
			Logger: r.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create postgres repository: %w", err)
		}
		return &ledger{jobs: repo, steps: repo, close: repo.Close}, nil
	default:
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: r.DBPath,
			Logger: r.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create sqlite repository: %w", err)
		}
		return &ledger{jobs: repo, steps: repo, close: repo.Close}, nil
	}
}

func (r RootCommand) newArtifactStore(baseURL string) (artifact.Store, error) {
	store, err := artifactfs.NewStore(artifactfs.StoreConfig{
		Root:    r.ArtifactsDir,
		BaseURL: baseURL,
		Logger:  r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create artifact store: %w", err)
	}
	return store, nil
}

func (r RootCommand) newEngine() (engine.Engine, error) {
	switch r.Engine {
	case engineRemote:
		if r.EngineURL == "" {
			return nil, fmt.Errorf("--engine-url is required when using the remote engine")
		}
		return remote.NewEngine(remote.EngineConfig{
			BaseURL: r.EngineURL,
			Logger:  r.Logger,
		})
	default:
		return local.NewEngine(local.EngineConfig{Logger: r.Logger})
	}
}

// runnerConfig is the configuration of the in-process stage runner.
type runnerConfig struct {
	ledger       *ledger
	store        artifact.Store
	workers      int
	stallTimeout time.Duration
	pendingGrace time.Duration
}

// runner runs job stages in the current process.
type runner struct {
	orch *orchestrator.Orchestrator
	pool *orchestrator.Pool
}

func (r RootCommand) newRunner(cfg runnerConfig) (*runner, error) {
	eng, err := r.newEngine()
	if err != nil {
		return nil, fmt.Errorf("could not create engine: %w", err)
	}

	pool, err := orchestrator.NewPool(orchestrator.PoolConfig{
		Workers: cfg.workers,
		Logger:  r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Ledger:        cfg.ledger.jobs,
		Steps:         cfg.ledger.steps,
		Store:         cfg.store,
		Engine:        eng,
		Scheduler:     pool,
		EngineTimeout: r.EngineTimeout,
		StallTimeout:  cfg.stallTimeout,
		PendingGrace:  cfg.pendingGrace,
		Logger:        r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}

	return &runner{orch: orch, pool: pool}, nil
}

// runWhile runs the worker pool while f runs, stages still running when f
// returns are interrupted.
func (r *runner) runWhile(ctx context.Context, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	poolErr := make(chan error, 1)
	go func() { poolErr <- r.pool.Run(ctx) }()

	err := f(ctx)
	cancel()
	if perr := <-poolErr; perr != nil && err == nil && !errors.Is(perr, context.Canceled) {
		err = fmt.Errorf("worker pool failed: %w", perr)
	}

	return err
}

var errJobNotSettled = errors.New("job not settled")

// waitJob polls the ledger until no stage of the job is running.
func waitJob(ctx context.Context, jobs storage.JobRepository, jobID string) (*model.Job, error) {
	var job *model.Job
	op := func() error {
		j, err := jobs.GetJob(ctx, jobID)
		if err != nil {
			return backoff.Permanent(err)
		}
		job = j

		if j.Status.IsRunning() {
			return errJobNotSettled
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(200*time.Millisecond), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not wait for job %s: %w", jobID, err)
	}

	return job, nil
}
