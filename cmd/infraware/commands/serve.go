package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/slok/infraware/internal/app/artifacts"
	"github.com/slok/infraware/internal/app/confirm"
	"github.com/slok/infraware/internal/app/create"
	"github.com/slok/infraware/internal/app/status"
	"github.com/slok/infraware/internal/artifact"
	"github.com/slok/infraware/internal/conventions"
	"github.com/slok/infraware/internal/httpapi"
)

const serverShutdownTimeout = 15 * time.Second

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
	version string

	listenAddress    string
	workers          int
	recoveryInterval time.Duration
	stallTimeout     time.Duration
	pendingGrace     time.Duration
	staticBaseURL    string
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application, version string) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd, version: version}

	c.Cmd = app.Command("serve", "Run the HTTP API and the job stage workers.")
	c.Cmd.Flag("listen", "HTTP API listen address.").Default(conventions.DefaultListenAddress).StringVar(&c.listenAddress)
	c.Cmd.Flag("workers", "Number of job stages that can run at the same time.").Default("4").IntVar(&c.workers)
	c.Cmd.Flag("recovery-interval", "Interval between recovery sweeps of pending and stalled jobs.").Default("1m").DurationVar(&c.recoveryInterval)
	c.Cmd.Flag("stall-timeout", "Time a running job can go without updates before being failed (default: 3x engine timeout).").DurationVar(&c.stallTimeout)
	c.Cmd.Flag("pending-grace", "Time a pending job waits before a recovery sweep starts it.").Default("1m").DurationVar(&c.pendingGrace)
	c.Cmd.Flag("static-base-url", "Prefix of the artifact URLs.").Default(artifact.DefaultBaseURL).StringVar(&c.staticBaseURL)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	ldg, err := c.rootCmd.newLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ldg.close() }()

	store, err := c.rootCmd.newArtifactStore(c.staticBaseURL)
	if err != nil {
		return err
	}

	rn, err := c.rootCmd.newRunner(runnerConfig{
		ledger:       ldg,
		store:        store,
		workers:      c.workers,
		stallTimeout: c.stallTimeout,
		pendingGrace: c.pendingGrace,
	})
	if err != nil {
		return err
	}

	createSvc, err := create.NewService(create.ServiceConfig{Ledger: ldg.jobs, Starter: rn.orch, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	statusSvc, err := status.NewService(status.ServiceConfig{Ledger: ldg.jobs, Steps: ldg.steps, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	confirmSvc, err := confirm.NewService(confirm.ServiceConfig{Confirmer: rn.orch, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	artifactsSvc, err := artifacts.NewService(artifacts.ServiceConfig{Ledger: ldg.jobs, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	handler, err := httpapi.NewHandler(httpapi.HandlerConfig{
		CreateService:   createSvc,
		StatusService:   statusSvc,
		ConfirmService:  confirmSvc,
		ArtifactService: artifactsSvc,
		ArtifactReader:  store,
		Version:         c.version,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create http handler: %w", err)
	}

	var g run.Group

	// Stage workers.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return rn.pool.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Recovery sweeps.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				err := rn.orch.RunRecovery(ctx, c.recoveryInterval)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// HTTP API.
	{
		server := &http.Server{
			Addr:              c.listenAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Add(
			func() error {
				logger.Infof("HTTP API listening on %s", c.listenAddress)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					logger.Errorf("Could not shut down HTTP server: %s", err)
				}
			},
		)
	}

	// Command context cancellation (signals).
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}
