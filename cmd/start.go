package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/vedasoham/dtdp/internal/core/job"
)

func startCmd() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a single stage",
		ArgsUsage: "<human|deg|vfdb|eskape>",
		Flags:     []cli.Flag{followFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stage, ok := job.ParseStage(cmd.Args().First())
			if !ok {
				return fmt.Errorf("unknown stage %q", cmd.Args().First())
			}
			follow := cmd.Bool("follow")
			a, err := newApp(ctx, cmd, follow)
			if err != nil {
				return err
			}
			if err := a.requireProject(); err != nil {
				return err
			}

			launch, err := a.sess.StartStage(ctx, stage)
			if err != nil {
				return err
			}
			fmt.Printf("%s: started %s (%s)\n", stage.Label(), launch.JobID, launch.MonitorURL)
			if !follow {
				return nil
			}
			return a.follow(ctx, launch.JobID)
		},
	}
}
