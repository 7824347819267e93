package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v3"
	"github.com/vedasoham/dtdp/internal/api"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Keep a live session and expose it over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Listen host",
				Sources: cli.EnvVars("DTDP_LISTEN_HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Listen port",
				Sources: cli.EnvVars("DTDP_LISTEN_PORT"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(ctx, cmd, true)
			if err != nil {
				return err
			}
			if v := cmd.String("host"); v != "" {
				a.cfg.Listen.Host = v
			}
			if v := cmd.Int("port"); v != 0 {
				a.cfg.Listen.Port = int(v)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = a.sess.Run(ctx)
			}()
			defer wg.Wait()

			err = api.Serve(ctx, a.cfg.Listen.Addr(), api.RouterConfig{
				Session: a.sess,
				Version: version,
			})
			stop()
			return err
		},
	}
}
