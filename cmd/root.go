package cmd

import (
	"github.com/urfave/cli/v3"
)

var version = "dev"

// App builds the dtdp command tree.
func App() *cli.Command {
	return &cli.Command{
		Name:    "dtdp",
		Version: version,
		Usage:   "Track and drive the human, deg, vfdb and eskape filter stages of a pipeline server.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("DTDP_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Pipeline server base URL",
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project to work on",
			},
			&cli.StringFlag{
				Name:  "stages-file",
				Usage: "YAML file with per-stage parameters layered over the saved ones",
			},
		},
		Commands: []*cli.Command{
			statusCmd(),
			watchCmd(),
			runCmd(),
			startCmd(),
			serveCmd(),
		},
	}
}
