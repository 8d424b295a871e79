package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/infraware/internal/app/artifacts"
)

type ArtifactsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	jobID  string
	final  bool
	format string
}

// NewArtifactsCommand returns the artifacts command.
func NewArtifactsCommand(rootCmd *RootCommand, app *kingpin.Application) *ArtifactsCommand {
	c := &ArtifactsCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("artifacts", "List the diagrams of a job, or all its artifacts once completed.")
	c.Cmd.Arg("job-id", "Job ID.").Required().StringVar(&c.jobID)
	c.Cmd.Flag("final", "List the code, docs and diagrams of a completed job.").BoolVar(&c.final)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c ArtifactsCommand) Name() string { return c.Cmd.FullCommand() }

func (c ArtifactsCommand) Run(ctx context.Context) error {
	ldg, err := c.rootCmd.newLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ldg.close() }()

	svc, err := artifacts.NewService(artifacts.ServiceConfig{
		Ledger: ldg.jobs,
		Logger: c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	p := c.rootCmd.printer(c.format)

	if c.final {
		final, err := svc.Final(ctx, c.jobID)
		if err != nil {
			return fmt.Errorf("could not get final artifacts: %w", err)
		}
		if err := p.PrintFinal(*final); err != nil {
			return fmt.Errorf("could not print artifacts: %w", err)
		}
		return nil
	}

	diagrams, err := svc.Diagrams(ctx, c.jobID)
	if err != nil {
		return fmt.Errorf("could not get diagrams: %w", err)
	}
	if err := p.PrintDiagrams(c.jobID, diagrams); err != nil {
		return fmt.Errorf("could not print artifacts: %w", err)
	}

	return nil
}
