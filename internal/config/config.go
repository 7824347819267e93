package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "DTDP_"

// Config is the merged client configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Project string        `koanf:"project"`
	Poll    PollConfig    `koanf:"poll"`
	Push    PushConfig    `koanf:"push"`
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
	Stages  StagesConfig  `koanf:"stages"`
}

// ServerConfig points at the job-execution service.
type ServerConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// PollConfig controls the status loop.
type PollConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// PushConfig controls the Socket.IO push stream.
type PushConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Path       string        `koanf:"path"`
	MaxBackoff time.Duration `koanf:"max_backoff"`
}

// ListenConfig is the address of the local HTTP facade.
type ListenConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Addr returns host:port for the API listener.
func (l ListenConfig) Addr() string { return fmt.Sprintf("%s:%d", l.Host, l.Port) }

// LoggingConfig selects zerolog level and output format (pretty or json).
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StagesConfig points at the optional YAML file of local stage parameters.
type StagesConfig struct {
	File string `koanf:"file"`
}

// Load reads config from TOML file (if provided) then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	// 2. Load TOML config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", configPath, err)
		}
	}

	// 3. Env vars: DTDP_POLL_INTERVAL -> poll.interval. Only the first
	// underscore after the section splits, so DTDP_PUSH_MAX_BACKOFF maps to
	// push.max_backoff.
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return envKey(key), value
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// Validate checks the values the client cannot run without.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	return nil
}
