package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/vedasoham/dtdp/internal/render"
)

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Fetch the project's jobs once and print the stage cards",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(ctx, cmd, false)
			if err != nil {
				return err
			}
			if err := a.requireProject(); err != nil {
				return err
			}
			if err := a.sess.Refresh(ctx); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			fmt.Println(a.draw())
			return nil
		},
	}
}

func (a *app) draw() string {
	return render.Pipeline(a.sess.Project(), a.sess.Stages(), a.sess.Control())
}
