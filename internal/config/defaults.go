package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.url":     "http://localhost:5000",
		"server.timeout": "30s",

		"project": "",

		"poll.interval": "5s",

		"push.enabled":     true,
		"push.path":        "/socket.io/",
		"push.max_backoff": "30s",

		"listen.host": "127.0.0.1",
		"listen.port": 8090,

		"logging.level":  "info",
		"logging.format": "pretty",

		"stages.file": "",
	}

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}
