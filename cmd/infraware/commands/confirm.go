package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/infraware/internal/app/confirm"
	"github.com/slok/infraware/internal/model"
)

type ConfirmCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	jobID    string
	reject   bool
	feedback string
	format   string
}

// NewConfirmCommand returns the confirm command.
func NewConfirmCommand(rootCmd *RootCommand, app *kingpin.Application) *ConfirmCommand {
	c := &ConfirmCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("confirm", "Confirm the diagrams of a job and generate its code and docs, or reject them.")
	c.Cmd.Arg("job-id", "Job ID.").Required().StringVar(&c.jobID)
	c.Cmd.Flag("reject", "Reject the diagrams, the job fails.").BoolVar(&c.reject)
	c.Cmd.Flag("feedback", "Rejection feedback, stored as the job message.").StringVar(&c.feedback)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c ConfirmCommand) Name() string { return c.Cmd.FullCommand() }

func (c ConfirmCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	if c.feedback != "" && !c.reject {
		return fmt.Errorf("--feedback can only be used with --reject")
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

	svc, err := confirm.NewService(confirm.ServiceConfig{
		Confirmer: rn.orch,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	var job *model.Job
	err = rn.runWhile(ctx, func(ctx context.Context) error {
		j, err := svc.Run(ctx, confirm.Request{
			JobID:     c.jobID,
			Confirmed: !c.reject,
			Feedback:  c.feedback,
		})
		if err != nil {
			return fmt.Errorf("could not confirm job: %w", err)
		}
		job = j

		if c.reject {
			return nil
		}

		// The code generation runs in this process.
		logger.Infof("Job %s confirmed, generating the code and docs", j.ID)
		job, err = waitJob(ctx, ldg.jobs, j.ID)
		return err
	})
	if err != nil {
		return err
	}

	if err := c.rootCmd.printer(c.format).PrintJob(*job); err != nil {
		return fmt.Errorf("could not print job: %w", err)
	}

	return nil
}
