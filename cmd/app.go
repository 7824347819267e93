package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/vedasoham/dtdp/internal/config"
	"github.com/vedasoham/dtdp/internal/core/session"
	"github.com/vedasoham/dtdp/internal/transport"
	"github.com/vedasoham/dtdp/internal/transport/httpapi"
	"github.com/vedasoham/dtdp/internal/transport/socketio"
)

type app struct {
	cfg  *config.Config
	sess *session.Session
}

// newApp loads config, applies the global flags over it and builds a session.
// push controls whether the session gets a push stream.
func newApp(ctx context.Context, cmd *cli.Command, push bool) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := cmd.String("server"); v != "" {
		cfg.Server.URL = v
	}
	if v := cmd.String("project"); v != "" {
		cfg.Project = v
	}
	if v := cmd.String("stages-file"); v != "" {
		cfg.Stages.File = v
	}
	setupLogging(cfg.Logging)

	local, err := config.LoadStageParams(cfg.Stages.File)
	if err != nil {
		return nil, err
	}

	client, err := httpapi.New(cfg.Server.URL, cfg.Server.Timeout)
	if err != nil {
		return nil, fmt.Errorf("pipeline client: %w", err)
	}

	var stream transport.Stream
	if push && cfg.Push.Enabled {
		s, err := socketio.New(cfg.Server.URL, socketio.Options{
			Path:       cfg.Push.Path,
			Jar:        client.HTTPClient().Jar,
			MaxBackoff: cfg.Push.MaxBackoff,
		})
		if err != nil {
			return nil, fmt.Errorf("push stream: %w", err)
		}
		stream = s
	}

	sess := session.New(client, stream, nil, session.Options{
		PollInterval: cfg.Poll.Interval,
		LocalConfigs: local,
	})
	if cfg.Project != "" {
		sess.SetProject(ctx, cfg.Project)
	}
	return &app{cfg: cfg, sess: sess}, nil
}

// requireProject fails early for commands that only make sense for a project.
func (a *app) requireProject() error {
	if a.cfg.Project == "" {
		return fmt.Errorf("no project selected (use --project or DTDP_PROJECT)")
	}
	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx := log.Logger.With()
	if cfg.Format == "json" {
		ctx = zerolog.New(os.Stderr).With().Timestamp()
	}
	log.Logger = ctx.Str("session", uuid.NewString()[:8]).Logger()
	log.Debug().Str("level", cfg.Level).Msg("log level configured")
}
