package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/infraware/internal/app/status"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	jobID  string
	format string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Get detailed status of a job.")
	c.Cmd.Arg("job-id", "Job ID.").Required().StringVar(&c.jobID)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	ldg, err := c.rootCmd.newLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ldg.close() }()

	svc, err := status.NewService(status.ServiceConfig{
		Ledger: ldg.jobs,
		Steps:  ldg.steps,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, status.Request{JobID: c.jobID})
	if err != nil {
		return fmt.Errorf("could not get job status: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintStatus(res.Job, res.Steps); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
