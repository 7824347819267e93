// Package orchestrator decides what the Run All / Resume control does and
// issues the corresponding start requests.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vedasoham/dtdp/internal/core/job"
	"github.com/vedasoham/dtdp/internal/core/reconcile"
	"github.com/vedasoham/dtdp/internal/transport"
)

const (
	LabelRun      = "Run All Steps"
	LabelRunning  = "Pipeline Running…"
	LabelComplete = "All Steps Complete"
	LabelResume   = "Resume Pipeline"
)

// ErrNoAction is returned when the control has nothing to do.
var ErrNoAction = errors.New("pipeline is already running or complete")

// ValidationError lists stages without a saved configuration.
type ValidationError struct {
	Missing []job.Stage
}

func (e *ValidationError) Error() string {
	labels := make([]string, len(e.Missing))
	for i, s := range e.Missing {
		labels[i] = s.Label()
	}
	return "missing configuration for " + strings.Join(labels, ", ")
}

// Action is what pressing the control does.
type Action int

const (
	ActionNone Action = iota
	ActionStart
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStart:
		return "start"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Control describes the Run All button.
type Control struct {
	Label   string
	Enabled bool
	Action  Action
}

// Decide maps the latest aggregate job onto the control.
func Decide(agg job.Job, ok bool) Control {
	if !ok {
		return Control{Label: LabelRun, Enabled: true, Action: ActionStart}
	}
	switch agg.Status {
	case job.StatusQueued, job.StatusRunning:
		return Control{Label: LabelRunning}
	case job.StatusCompleted:
		return Control{Label: LabelComplete}
	case job.StatusFailed, job.StatusCancelled, job.StatusUnknown:
		return Control{Label: LabelResume, Enabled: true, Action: ActionStart}
	}
	return Control{Label: LabelResume, Enabled: true, Action: ActionStart}
}

// Starter issues start requests to the execution service.
type Starter interface {
	StartStage(ctx context.Context, req transport.StartStageRequest) (string, error)
	StartAggregate(ctx context.Context, project string, configs job.Configs) (string, error)
}

// View is the read side of the job store.
type View interface {
	Latest(t job.Type) (job.Job, bool)
	Get(id string) (job.Job, bool)
}

// Launch is the outcome of a successful start request.
type Launch struct {
	JobID      string `json:"job_id"`
	MonitorURL string `json:"monitor_url"`
}

func newLaunch(id string) Launch {
	return Launch{JobID: id, MonitorURL: "/monitor/" + id}
}

// Orchestrator issues start requests and tracks them until the job store
// has seen the job they created.
type Orchestrator struct {
	starter Starter
	view    View
	stages  []job.Stage

	mu            sync.Mutex
	epoch         uint64
	runPending    bool
	stagesPending map[job.Stage]struct{}
	// launched holds job IDs returned by the service but not yet ingested,
	// keyed by job type.
	launched map[job.Type]string
}

// New returns an orchestrator that starts the given stages through starter.
func New(starter Starter, view View, stages []job.Stage) *Orchestrator {
	return &Orchestrator{
		starter:       starter,
		view:          view,
		stages:        stages,
		stagesPending: make(map[job.Stage]struct{}),
		launched:      make(map[job.Type]string),
	}
}

// Reset forgets launches that have not been ingested yet. Called on project
// switch; requests still in flight will not record their launch.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epoch++
	o.launched = make(map[job.Type]string)
}

// awaitingLocked reports whether a launch of type t is still waiting for its
// job to appear in the store. Launches that have appeared are dropped.
func (o *Orchestrator) awaitingLocked(t job.Type) bool {
	id, ok := o.launched[t]
	if !ok {
		return false
	}
	if _, seen := o.view.Get(id); seen {
		delete(o.launched, t)
		return false
	}
	return true
}

func (o *Orchestrator) recordLocked(epoch uint64, t job.Type, id string) {
	if epoch == o.epoch {
		o.launched[t] = id
	}
}

// Control is the current button state. A start that is in flight, or whose
// job the store has not seen yet, keeps it disabled.
func (o *Orchestrator) Control() Control {
	agg, ok := o.view.Latest(job.TypeAggregate)
	c := Decide(agg, ok)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runPending {
		c.Enabled = false
		c.Action = ActionNone
	} else if o.awaitingLocked(job.TypeAggregate) {
		c = Control{Label: LabelRunning}
	}
	return c
}

// RunAll starts, or resumes, the full pipeline for project. Resume is the
// same request as start; the service skips stages whose output exists.
func (o *Orchestrator) RunAll(ctx context.Context, project string, configs job.Configs) (Launch, error) {
	if c := o.Control(); c.Action != ActionStart {
		return Launch{}, ErrNoAction
	}
	if missing := configs.Missing(o.stages); len(missing) > 0 {
		return Launch{}, &ValidationError{Missing: missing}
	}

	o.mu.Lock()
	if o.runPending {
		o.mu.Unlock()
		return Launch{}, ErrNoAction
	}
	o.runPending = true
	epoch := o.epoch
	o.mu.Unlock()

	var id string
	defer func() {
		o.mu.Lock()
		o.runPending = false
		if id != "" {
			o.recordLocked(epoch, job.TypeAggregate, id)
		}
		o.mu.Unlock()
	}()

	send := make(job.Configs, len(o.stages))
	for _, s := range o.stages {
		send[s] = configs[s]
	}

	id, err := o.starter.StartAggregate(ctx, project, send)
	if err != nil {
		id = ""
		log.Warn().Err(err).Str("project", project).Msg("pipeline start failed")
		return Launch{}, fmt.Errorf("start pipeline: %w", err)
	}
	log.Info().Str("project", project).Str("job_id", id).Msg("pipeline started")
	return newLaunch(id), nil
}

// StartStage starts a single stage. The stage shows as queued until its job is
// ingested; a failed request drops that overlay so the card reverts.
func (o *Orchestrator) StartStage(ctx context.Context, project string, stage job.Stage, configs job.Configs) (Launch, error) {
	params, ok := configs[stage]
	if !ok {
		return Launch{}, &ValidationError{Missing: []job.Stage{stage}}
	}

	o.mu.Lock()
	if _, busy := o.stagesPending[stage]; busy || o.awaitingLocked(job.Type(stage)) {
		o.mu.Unlock()
		return Launch{}, ErrNoAction
	}
	o.stagesPending[stage] = struct{}{}
	epoch := o.epoch
	o.mu.Unlock()

	var id string
	defer func() {
		o.mu.Lock()
		delete(o.stagesPending, stage)
		if id != "" {
			o.recordLocked(epoch, job.Type(stage), id)
		}
		o.mu.Unlock()
	}()

	id, err := o.starter.StartStage(ctx, transport.StartStageRequest{
		Stage:   stage,
		Project: project,
		Params:  params,
	})
	if err != nil {
		id = ""
		log.Warn().Err(err).Str("project", project).Str("stage", string(stage)).Msg("stage start failed")
		return Launch{}, fmt.Errorf("start %s: %w", stage, err)
	}
	log.Info().Str("project", project).Str("stage", string(stage)).Str("job_id", id).Msg("stage started")
	return newLaunch(id), nil
}

// Overlay marks stages with a start request in flight, or a launched job not
// yet in the store, as queued.
func (o *Orchestrator) Overlay(in []reconcile.StageStatus) []reconcile.StageStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.stagesPending) == 0 && len(o.launched) == 0 {
		return in
	}
	out := make([]reconcile.StageStatus, len(in))
	copy(out, in)
	for i, s := range out {
		_, pending := o.stagesPending[s.Stage]
		if (pending || o.awaitingLocked(job.Type(s.Stage))) && s.State.Resumable() {
			out[i].State = reconcile.StateQueued
		}
	}
	return out
}
