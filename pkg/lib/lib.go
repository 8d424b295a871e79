package lib

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/infraware/internal/app/artifacts"
	"github.com/slok/infraware/internal/app/confirm"
	"github.com/slok/infraware/internal/app/create"
	"github.com/slok/infraware/internal/app/list"
	"github.com/slok/infraware/internal/app/status"
	"github.com/slok/infraware/internal/artifact"
	artifactfs "github.com/slok/infraware/internal/artifact/fs"
	artifactmemory "github.com/slok/infraware/internal/artifact/memory"
	"github.com/slok/infraware/internal/conventions"
	"github.com/slok/infraware/internal/engine"
	"github.com/slok/infraware/internal/engine/local"
	"github.com/slok/infraware/internal/engine/remote"
	"github.com/slok/infraware/internal/log"
	"github.com/slok/infraware/internal/orchestrator"
	"github.com/slok/infraware/internal/storage"
	"github.com/slok/infraware/internal/storage/memory"
	"github.com/slok/infraware/internal/storage/postgres"
	"github.com/slok/infraware/internal/storage/sqlite"
)

// Config configures the SDK client.
//
// All fields are optional and have sensible defaults. At minimum, an empty
// Config{} will use ~/.infraware/infraware.db as the ledger, ~/.infraware/artifacts
// as the artifact store and the local generation engine.
type Config struct {
	// DataDir is the base directory for infraware data.
	// Default: ~/.infraware.
	DataDir string

	// Ledger selects the job ledger backend.
	// Default: [LedgerSQLite].
	Ledger LedgerType
	// DBPath is the SQLite database path.
	// Default: {DataDir}/infraware.db.
	DBPath string
	// PostgresDSN is the Postgres connection string, required with [LedgerPostgres].
	PostgresDSN string

	// ArtifactStore selects the artifact store backend.
	// Default: [ArtifactStoreFS].
	ArtifactStore ArtifactStoreType
	// ArtifactsDir is the file system artifact store root.
	// Default: {DataDir}/artifacts.
	ArtifactsDir string
	// ArtifactsBaseURL is the prefix of the artifact URLs.
	// Default: "/api/static".
	ArtifactsBaseURL string

	// Engine selects the generation engine.
	// Default: [EngineLocal].
	Engine EngineType
	// EngineURL is the generation service URL, required with [EngineRemote].
	EngineURL string
	// EngineTimeout bounds every generation engine call.
	// Default: 5m.
	EngineTimeout time.Duration

	// PendingGrace is the time a pending job waits before [Client.Recover] starts it.
	// Default: 1m.
	PendingGrace time.Duration

	// Workers is the number of job stages that can run at the same time.
	// Default: 4.
	Workers int

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		c.DataDir = conventions.DataDir()
	}

	if c.Ledger == "" {
		c.Ledger = LedgerSQLite
	}
	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}
	if c.Ledger == LedgerPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("postgres dsn is required: %w", ErrNotValid)
	}

	if c.ArtifactStore == "" {
		c.ArtifactStore = ArtifactStoreFS
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = conventions.ArtifactsPath(c.DataDir)
	}
	if c.ArtifactsBaseURL == "" {
		c.ArtifactsBaseURL = artifact.DefaultBaseURL
	}

	if c.Engine == "" {
		c.Engine = EngineLocal
	}
	if c.Engine == EngineRemote && c.EngineURL == "" {
		return fmt.Errorf("engine url is required: %w", ErrNotValid)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point for managing jobs programmatically.
//
// The client runs the job stages in background workers until [Client.Close]
// is called. A Client is safe for concurrent use.
type Client struct {
	ledger           storage.JobRepository
	store            artifact.Store
	artifactsBaseURL string
	orch             *orchestrator.Orchestrator
	logger           log.Logger

	createSvc    *create.Service
	statusSvc    *status.Service
	listSvc      *list.Service
	confirmSvc   *confirm.Service
	artifactsSvc *artifacts.Service

	stopWorkers func()
	closeFn     func() error
}

// New creates a new SDK client and starts its stage workers.
//
// The caller must call [Client.Close] when done to stop the workers and
// release the ledger connection. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ledger, steps, closeLedger, err := newLedger(ctx, cfg)
	if err != nil {
		return nil, mapError(fmt.Errorf("could not create ledger: %w", err))
	}

	c, err := newClient(cfg, ledger, steps)
	if err != nil {
		_ = closeLedger()
		return nil, err
	}
	c.closeFn = closeLedger

	return c, nil
}

func newClient(cfg Config, ledger storage.JobRepository, steps storage.StepRepository) (*Client, error) {
	store, err := newArtifactStore(cfg)
	if err != nil {
		return nil, mapError(fmt.Errorf("could not create artifact store: %w", err))
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return nil, mapError(fmt.Errorf("could not create engine: %w", err))
	}

	pool, err := orchestrator.NewPool(orchestrator.PoolConfig{
		Workers: cfg.Workers,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Ledger:        ledger,
		Steps:         steps,
		Store:         store,
		Engine:        eng,
		Scheduler:     pool,
		EngineTimeout: cfg.EngineTimeout,
		PendingGrace:  cfg.PendingGrace,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}

	c := &Client{
		ledger:           ledger,
		store:            store,
		artifactsBaseURL: cfg.ArtifactsBaseURL,
		orch:             orch,
		logger:           cfg.Logger,
	}

	if c.createSvc, err = create.NewService(create.ServiceConfig{Ledger: ledger, Starter: orch, Logger: cfg.Logger}); err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}
	if c.statusSvc, err = status.NewService(status.ServiceConfig{Ledger: ledger, Steps: steps, Logger: cfg.Logger}); err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}
	if c.listSvc, err = list.NewService(list.ServiceConfig{Ledger: ledger, Logger: cfg.Logger}); err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}
	if c.confirmSvc, err = confirm.NewService(confirm.ServiceConfig{Confirmer: orch, Logger: cfg.Logger}); err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}
	if c.artifactsSvc, err = artifacts.NewService(artifacts.ServiceConfig{Ledger: ledger, Logger: cfg.Logger}); err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pool.Run(ctx); err != nil {
			c.logger.Errorf("Worker pool stopped: %s", err)
		}
	}()
	c.stopWorkers = func() {
		cancel()
		<-done
	}

	return c, nil
}

// Close stops the stage workers and releases the client resources. Stages
// still running are interrupted and their jobs fail.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.stopWorkers != nil {
		c.stopWorkers()
	}
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

func newLedger(ctx context.Context, cfg Config) (storage.JobRepository, storage.StepRepository, func() error, error) {
	switch cfg.Ledger {
	case LedgerSQLite:
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: cfg.DBPath,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo, repo.Close, nil
	case LedgerPostgres:
		repo, err := postgres.NewRepository(ctx, postgres.RepositoryConfig{
			DSN:    cfg.PostgresDSN,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo, repo.Close, nil
	case LedgerMemory:
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo, func() error { return nil }, nil
	}

	return nil, nil, nil, fmt.Errorf("unsupported ledger type: %s: %w", cfg.Ledger, ErrNotValid)
}

func newArtifactStore(cfg Config) (artifact.Store, error) {
	switch cfg.ArtifactStore {
	case ArtifactStoreFS:
		return artifactfs.NewStore(artifactfs.StoreConfig{
			Root:    cfg.ArtifactsDir,
			BaseURL: cfg.ArtifactsBaseURL,
			Logger:  cfg.Logger,
		})
	case ArtifactStoreMemory:
		return artifactmemory.NewStore(cfg.ArtifactsBaseURL), nil
	}

	return nil, fmt.Errorf("unsupported artifact store type: %s: %w", cfg.ArtifactStore, ErrNotValid)
}

func newEngine(cfg Config) (engine.Engine, error) {
	switch cfg.Engine {
	case EngineLocal:
		return local.NewEngine(local.EngineConfig{Logger: cfg.Logger})
	case EngineRemote:
		return remote.NewEngine(remote.EngineConfig{
			BaseURL: cfg.EngineURL,
			Logger:  cfg.Logger,
		})
	}

	return nil, fmt.Errorf("unsupported engine type: %s: %w", cfg.Engine, ErrNotValid)
}
