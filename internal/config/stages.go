package config

import (
	"fmt"
	"os"

	"github.com/vedasoham/dtdp/internal/core/job"
	"gopkg.in/yaml.v3"
)

// LoadStageParams reads per-stage parameters from a YAML file keyed by stage
// name:
//
//	human:
//	  threads: 18
//	  identity: 35
//	  coverage: 90
//
// An empty path yields no overrides.
func LoadStageParams(path string) (job.Configs, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage params: %w", err)
	}
	return ParseStageParams(data)
}

// ParseStageParams decodes YAML stage parameters and rejects unknown stage names.
func ParseStageParams(data []byte) (job.Configs, error) {
	var raw map[string]job.Params
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse stage params: %w", err)
	}
	out := make(job.Configs, len(raw))
	for name, p := range raw {
		st, ok := job.ParseStage(name)
		if !ok {
			return nil, fmt.Errorf("parse stage params: unknown stage %q", name)
		}
		out[st] = p
	}
	return out, nil
}
