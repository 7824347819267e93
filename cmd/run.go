package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/vedasoham/dtdp/internal/core/orchestrator"
	"github.com/vedasoham/dtdp/internal/core/session"
)

var followFlag = &cli.BoolFlag{
	Name:    "follow",
	Aliases: []string{"f"},
	Usage:   "Wait until the started job finishes",
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run all steps, or resume a failed pipeline",
		Flags: []cli.Flag{followFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			follow := cmd.Bool("follow")
			a, err := newApp(ctx, cmd, follow)
			if err != nil {
				return err
			}
			if err := a.requireProject(); err != nil {
				return err
			}
			if err := a.sess.Refresh(ctx); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}

			c := a.sess.Control()
			if c.Action != orchestrator.ActionStart {
				fmt.Println(c.Label)
				return nil
			}
			launch, err := a.sess.RunAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s: started %s (%s)\n", c.Label, launch.JobID, launch.MonitorURL)
			if !follow {
				return nil
			}
			return a.follow(ctx, launch.JobID)
		},
	}
}

// follow runs the session until jobID is terminal.
func (a *app) follow(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = a.sess.Run(ctx) }()

	j, err := a.sess.WaitTerminal(ctx, jobID)
	if err != nil {
		return err
	}
	log.Info().Str("job_id", j.ID).Str("status", j.Status.String()).Msg("job finished")
	fmt.Println(a.draw())
	return session.Outcome(j)
}
