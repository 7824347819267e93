package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/vedasoham/dtdp/internal/core/job"
	"github.com/vedasoham/dtdp/internal/core/orchestrator"
	"github.com/vedasoham/dtdp/internal/core/reconcile"
)

// Session is the part of a client session the API drives.
type Session interface {
	Project() string
	SetProject(ctx context.Context, project string)
	Refresh(ctx context.Context) error
	Jobs() []job.Job
	Stages() []reconcile.StageStatus
	Control() orchestrator.Control
	RunAll(ctx context.Context) (orchestrator.Launch, error)
	StartStage(ctx context.Context, stage job.Stage) (orchestrator.Launch, error)
	WaitTerminal(ctx context.Context, jobID string) (job.Job, error)
}

// PipelineHandler serves the pipeline status and control operations.
type PipelineHandler struct {
	sess Session
}

func NewPipelineHandler(sess Session) *PipelineHandler {
	return &PipelineHandler{sess: sess}
}

// StageDTO is one reconciled stage card.
type StageDTO struct {
	Stage       string `json:"stage"`
	Label       string `json:"label"`
	State       string `json:"state" doc:"not-started, queued, running, completed, failed or cancelled"`
	Display     string `json:"display" doc:"not-started, on-going or complete"`
	Failed      bool   `json:"failed"`
	JobID       string `json:"job_id,omitempty"`
	Origin      string `json:"origin"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step,omitempty"`
	Output      *int   `json:"output,omitempty" doc:"Passing sequences, when known"`
}

// ControlDTO is the Run All / Resume control.
type ControlDTO struct {
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
	Action  string `json:"action"`
}

// PipelineDTO is every stage of the active project plus the control.
type PipelineDTO struct {
	Project string     `json:"project"`
	Stages  []StageDTO `json:"stages"`
	Control ControlDTO `json:"control"`
}

// JobDTO is a cached job record.
type JobDTO struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Project     string      `json:"project"`
	Status      string      `json:"status"`
	Progress    int         `json:"progress"`
	CurrentStep string      `json:"current_step,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	Results     job.Results `json:"results"`
}

// LaunchDTO identifies the job a start request created.
type LaunchDTO struct {
	JobID      string `json:"job_id"`
	MonitorURL string `json:"monitor_url"`
}

func toStageDTO(s reconcile.StageStatus) StageDTO {
	return StageDTO{
		Stage:       string(s.Stage),
		Label:       s.Stage.Label(),
		State:       s.State.String(),
		Display:     string(s.State.Display()),
		Failed:      s.State.Failed(),
		JobID:       s.JobID,
		Origin:      string(s.Origin),
		Progress:    s.Progress,
		CurrentStep: s.CurrentStep,
		Output:      s.Output,
	}
}

func toControlDTO(c orchestrator.Control) ControlDTO {
	return ControlDTO{Label: c.Label, Enabled: c.Enabled, Action: c.Action.String()}
}

func toJobDTO(j job.Job) JobDTO {
	dto := JobDTO{
		ID:          j.ID,
		Type:        string(j.Type),
		Project:     j.Project,
		Status:      j.Status.String(),
		Progress:    int(j.Progress),
		CurrentStep: j.CurrentStep,
		Results:     j.Results,
	}
	if !j.CreatedAt.IsZero() {
		t := j.CreatedAt.Time
		dto.CreatedAt = &t
	}
	return dto
}

func (h *PipelineHandler) pipeline() PipelineDTO {
	statuses := h.sess.Stages()
	dto := PipelineDTO{
		Project: h.sess.Project(),
		Stages:  make([]StageDTO, len(statuses)),
		Control: toControlDTO(h.sess.Control()),
	}
	for i, s := range statuses {
		dto.Stages[i] = toStageDTO(s)
	}
	return dto
}

func (h *PipelineHandler) Stages(_ context.Context, _ *EmptyInput) (*DataOutput[PipelineDTO], error) {
	return OK(h.pipeline()), nil
}

func (h *PipelineHandler) Control(_ context.Context, _ *EmptyInput) (*DataOutput[ControlDTO], error) {
	return OK(toControlDTO(h.sess.Control())), nil
}

func (h *PipelineHandler) Jobs(_ context.Context, _ *EmptyInput) (*DataOutput[[]JobDTO], error) {
	jobs := h.sess.Jobs()
	out := make([]JobDTO, len(jobs))
	for i, j := range jobs {
		out[i] = toJobDTO(j)
	}
	return OK(out), nil
}

// Run starts or resumes the full pipeline.
func (h *PipelineHandler) Run(ctx context.Context, _ *EmptyInput) (*DataOutput[LaunchDTO], error) {
	launch, err := h.sess.RunAll(ctx)
	if err != nil {
		return nil, statusError(err)
	}
	return OK(LaunchDTO(launch)), nil
}

type StageInput struct {
	Stage string `path:"stage" enum:"human,deg,vfdb,eskape" doc:"Pipeline stage"`
}

func (h *PipelineHandler) StartStage(ctx context.Context, input *StageInput) (*DataOutput[LaunchDTO], error) {
	stage, ok := job.ParseStage(input.Stage)
	if !ok {
		return nil, huma.Error404NotFound("unknown stage " + input.Stage)
	}
	launch, err := h.sess.StartStage(ctx, stage)
	if err != nil {
		return nil, statusError(err)
	}
	return OK(LaunchDTO(launch)), nil
}

type SetProjectInput struct {
	Body struct {
		Project string `json:"project" minLength:"1" doc:"Project to activate"`
	}
}

// SetProject switches the session and loads the new project's jobs before
// answering, so the response already reflects it.
func (h *PipelineHandler) SetProject(ctx context.Context, input *SetProjectInput) (*DataOutput[PipelineDTO], error) {
	h.sess.SetProject(ctx, input.Body.Project)
	if err := h.sess.Refresh(ctx); err != nil {
		return nil, statusError(err)
	}
	return OK(h.pipeline()), nil
}

type WaitInput struct {
	ID      string `path:"id" doc:"Job ID"`
	Timeout int    `query:"timeout" default:"60" minimum:"1" maximum:"3600" doc:"Seconds to wait"`
}

// Wait blocks until the job is terminal or the timeout elapses (504).
func (h *PipelineHandler) Wait(ctx context.Context, input *WaitInput) (*DataOutput[JobDTO], error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(input.Timeout)*time.Second)
	defer cancel()

	j, err := h.sess.WaitTerminal(ctx, input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	return OK(toJobDTO(j)), nil
}
