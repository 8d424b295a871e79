package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/infraware/internal/app/list"
	"github.com/slok/infraware/internal/model"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statuses []string
	limit    int
	format   string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List jobs, newest first.")
	c.Cmd.Flag("status", "Filter by status, can be repeated (e.g. awaiting_confirmation, failed).").StringsVar(&c.statuses)
	c.Cmd.Flag("limit", "Max number of jobs, 0 lists all.").Default("0").IntVar(&c.limit)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	statuses := make([]model.JobStatus, 0, len(c.statuses))
	for _, s := range c.statuses {
		statuses = append(statuses, model.JobStatus(strings.ToLower(strings.TrimSpace(s))))
	}

	ldg, err := c.rootCmd.newLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ldg.close() }()

	svc, err := list.NewService(list.ServiceConfig{
		Ledger: ldg.jobs,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	jobs, err := svc.Run(ctx, list.Request{
		Statuses: statuses,
		Limit:    c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list jobs: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintList(jobs); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
