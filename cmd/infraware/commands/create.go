package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/infraware/internal/app/create"
	"github.com/slok/infraware/internal/model"
	storageio "github.com/slok/infraware/internal/storage/io"
)

type CreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	prompt   string
	provider string
	project  string
	file     string
	wait     bool
	format   string
}

// NewCreateCommand returns the create command.
func NewCreateCommand(rootCmd *RootCommand, app *kingpin.Application) *CreateCommand {
	c := &CreateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("create", "Create a new job from an infrastructure description.")
	c.Cmd.Flag("prompt", "Natural language infrastructure description.").Short('p').StringVar(&c.prompt)
	c.Cmd.Flag("provider", "Cloud provider (gcp, aws, azure).").Default(string(model.ProviderGCP)).EnumVar(&c.provider, string(model.ProviderGCP), string(model.ProviderAWS), string(model.ProviderAzure))
	c.Cmd.Flag("project", "Project name.").StringVar(&c.project)
	c.Cmd.Flag("file", "YAML job request file, replaces the prompt, provider and project flags.").Short('f').StringVar(&c.file)
	c.Cmd.Flag("wait", "Generate the diagrams now and wait for them, otherwise the job waits for a server to pick it up.").Default("true").BoolVar(&c.wait)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c CreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c CreateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	if c.file == "" && c.prompt == "" {
		return fmt.Errorf("--prompt or --file is required")
	}

	ldg, err := c.rootCmd.newLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ldg.close() }()

	store, err := c.rootCmd.newArtifactStore("")
	if err != nil {
		return err
	}

	rn, err := c.rootCmd.newRunner(runnerConfig{ledger: ldg, store: store, workers: 1})
	if err != nil {
		return err
	}

	// Request files are loaded relative to their own directory.
	fileDir := "."
	if c.file != "" {
		fileDir = filepath.Dir(c.file)
	}
	svc, err := create.NewService(create.ServiceConfig{
		Ledger:  ldg.jobs,
		Starter: rn.orch,
		Loader:  storageio.NewJobRequestYAMLRepository(os.DirFS(fileDir)),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	req := create.Request{
		Input: model.JobInput{
			Prompt:      c.prompt,
			Provider:    model.Provider(c.provider),
			ProjectName: c.project,
		},
		Deferred: !c.wait,
	}
	if c.file != "" {
		req.File = filepath.Base(c.file)
	}

	var job *model.Job
	err = rn.runWhile(ctx, func(ctx context.Context) error {
		j, err := svc.Run(ctx, req)
		if err != nil {
			return fmt.Errorf("could not create job: %w", err)
		}
		job = j

		if !c.wait {
			return nil
		}

		logger.Infof("Job %s created, generating the spec and diagrams", j.ID)
		job, err = waitJob(ctx, ldg.jobs, j.ID)
		if err != nil {
			return err
		}
		if job.Status == model.JobStatusPending {
			logger.Warningf("Job %s could not be started, it waits for a server recovery sweep", j.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p := c.rootCmd.printer(c.format)
	if err := p.PrintJob(*job); err != nil {
		return fmt.Errorf("could not print job: %w", err)
	}

	return nil
}
