// Package transport is the boundary between the reconciliation core and the
// job-execution service.
package transport

import (
	"context"

	"github.com/vedasoham/dtdp/internal/core/job"
)

// Client is the request/response side of the execution service.
type Client interface {
	// ListJobs returns every job of project.
	ListJobs(ctx context.Context, project string) ([]job.Job, error)
	StartStage(ctx context.Context, req StartStageRequest) (string, error)
	StartAggregate(ctx context.Context, project string, configs job.Configs) (string, error)
	PipelineStats(ctx context.Context, project string) (PipelineStats, error)
	LoadConfigs(ctx context.Context, project string) (job.Configs, error)
}

// Stream is the push side. Run delivers updates to h until ctx is done.
type Stream interface {
	Run(ctx context.Context, h StreamHandler) error
	// Watch asks the service to replay the current state of jobID.
	Watch(ctx context.Context, jobID string) error
}

// StreamHandler receives decoded push events.
type StreamHandler interface {
	HandleJobUpdate(ctx context.Context, u JobUpdate)
	HandleJobLog(ctx context.Context, l JobLog)
}

// StartStageRequest starts one stage with its parameters.
type StartStageRequest struct {
	Stage   job.Stage
	Project string
	Params  job.Params
}

// JobUpdate is a single-job delta pushed by the service.
type JobUpdate struct {
	JobID string  `json:"job_id"`
	Data  job.Job `json:"data"`
}

// JobLog is one log line pushed for a job.
type JobLog struct {
	JobID string `json:"job_id"`
	Log   struct {
		Timestamp string `json:"timestamp"`
		Level     string `json:"level"`
		Message   string `json:"message"`
	} `json:"log"`
}

// PipelineStats is the persisted-results summary of a project.
type PipelineStats struct {
	Project      string      `json:"project"`
	InitialInput int         `json:"initial_input"`
	TotalRuntime string      `json:"total_runtime"`
	Steps        []StepStats `json:"steps"`
}

// StepStats is one stage row of PipelineStats.
type StepStats struct {
	Database string `json:"database"`
	Status   string `json:"status"`
	Runtime  string `json:"runtime,omitempty"`
	Input    int    `json:"input,omitempty"`
	Output   int    `json:"output,omitempty"`
}

// Completed lists the stages the stats report as finished.
func (p PipelineStats) Completed() map[job.Stage]bool {
	out := make(map[job.Stage]bool, len(p.Steps))
	for _, s := range p.Steps {
		st, ok := job.ParseStage(s.Database)
		if !ok {
			continue
		}
		if job.ParseStatus(s.Status) == job.StatusCompleted {
			out[st] = true
		}
	}
	return out
}
