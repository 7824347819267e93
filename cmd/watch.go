package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/vedasoham/dtdp/internal/core/event"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow the project live and redraw the cards on every change",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "logs",
				Usage: "Print job log lines as they are pushed",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(ctx, cmd, true)
			if err != nil {
				return err
			}
			if err := a.requireProject(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			redraw := make(chan struct{}, 1)
			unsub := a.sess.Bus().Subscribe(func(context.Context, event.Event) error {
				select {
				case redraw <- struct{}{}:
				default:
				}
				return nil
			}, event.EventJobsChanged, event.EventProjectSwitched)
			defer unsub()

			if cmd.Bool("logs") {
				unsubLogs := a.sess.Bus().Subscribe(func(_ context.Context, e event.Event) error {
					if l, ok := e.Payload.(event.JobLog); ok {
						log.Info().Str("job_id", l.JobID).Str("level", l.Level).Msg(l.Message)
					}
					return nil
				}, event.EventJobLog)
				defer unsubLogs()
			}

			done := make(chan error, 1)
			go func() { done <- a.sess.Run(ctx) }()

			for {
				select {
				case <-ctx.Done():
					return <-done
				case <-redraw:
					fmt.Println(a.draw())
				}
			}
		},
	}
}
