package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedasoham/dtdp/internal/core/job"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Server.URL)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.True(t, cfg.Push.Enabled)
	assert.Equal(t, "/socket.io/", cfg.Push.Path)
	assert.Equal(t, "127.0.0.1:8090", cfg.Listen.Addr())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Project)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtdp.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
project = "alpha"

[server]
url = "http://pipeline:5000"

[poll]
interval = "2s"

[push]
max_backoff = "1m"
`), 0o600))

	t.Setenv("DTDP_PROJECT", "beta")
	t.Setenv("DTDP_PUSH_ENABLED", "false")
	t.Setenv("DTDP_LOGGING_LEVEL", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://pipeline:5000", cfg.Server.URL)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, time.Minute, cfg.Push.MaxBackoff)
	assert.Equal(t, "beta", cfg.Project, "env overrides file")
	assert.False(t, cfg.Push.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level, "empty env values are ignored")
}

func TestLoad_RejectsBadInterval(t *testing.T) {
	t.Setenv("DTDP_POLL_INTERVAL", "0s")
	_, err := Load("")
	assert.ErrorContains(t, err, "poll.interval")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "push.max_backoff", envKey("DTDP_PUSH_MAX_BACKOFF"))
	assert.Equal(t, "project", envKey("DTDP_PROJECT"))
	assert.Equal(t, "stages.file", envKey("DTDP_STAGES_FILE"))
}

func TestParseStageParams(t *testing.T) {
	cfg, err := ParseStageParams([]byte(`
human:
  threads: 18
  identity: 35
  coverage: 90
  cache: true
ESKAPE:
  threads: 4
  skip_blast: true
`))
	require.NoError(t, err)

	assert.Equal(t, job.Params{Threads: 18, Identity: 35, Coverage: 90, Cache: true}, cfg[job.StageHuman])
	assert.True(t, cfg[job.StageESKAPE].SkipBlast)
	assert.Equal(t, []job.Stage{job.StageDEG, job.StageVFDB}, cfg.Missing(job.Pipeline()))

	_, err = ParseStageParams([]byte("card:\n  threads: 1\n"))
	assert.ErrorContains(t, err, `unknown stage "card"`)
}

func TestLoadStageParams_EmptyPath(t *testing.T) {
	cfg, err := LoadStageParams("")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
