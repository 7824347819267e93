// Package reconcile derives one display status per pipeline stage from a
// project's job history.
package reconcile

import (
	"fmt"

	"github.com/vedasoham/dtdp/internal/core/job"
)

// State is the reconciled status of a single stage.
type State int

const (
	StateNotStarted State = iota
	StateQueued
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Display is the three-valued card state.
type Display string

const (
	DisplayNotStarted Display = "not-started"
	DisplayOnGoing    Display = "on-going"
	DisplayComplete   Display = "complete"
)

// Display maps the state onto a card. Failed and cancelled stages render as
// not-started with the failure flag set.
func (s State) Display() Display {
	switch s {
	case StateQueued, StateRunning:
		return DisplayOnGoing
	case StateCompleted:
		return DisplayComplete
	case StateNotStarted, StateFailed, StateCancelled:
		return DisplayNotStarted
	}
	return DisplayNotStarted
}

// Failed reports whether the stage ended in failure or cancellation.
func (s State) Failed() bool {
	switch s {
	case StateFailed, StateCancelled:
		return true
	case StateNotStarted, StateQueued, StateRunning, StateCompleted:
		return false
	}
	return false
}

// Resumable reports whether starting the stage again makes sense.
func (s State) Resumable() bool { return s.Display() == DisplayNotStarted }

// FromStatus maps a job status verbatim.
func FromStatus(st job.Status) State {
	switch st {
	case job.StatusQueued:
		return StateQueued
	case job.StatusRunning:
		return StateRunning
	case job.StatusCompleted:
		return StateCompleted
	case job.StatusFailed:
		return StateFailed
	case job.StatusCancelled:
		return StateCancelled
	case job.StatusUnknown:
		return StateNotStarted
	}
	return StateNotStarted
}

// Origin records which rule produced a stage status.
type Origin string

const (
	OriginAggregate Origin = "aggregate"
	OriginStage     Origin = "stage"
	OriginHistory   Origin = "history"
	OriginNone      Origin = "none"
)

// StageStatus is the reconciled view of one stage card.
type StageStatus struct {
	Stage       job.Stage
	State       State
	JobID       string
	Origin      Origin
	Progress    int
	CurrentStep string
	Output      *int
}

// Fallback marks stages whose output exists from an earlier run.
type Fallback map[job.Stage]bool

// Reconcile computes the status of every stage in order from jobs. It does not
// look at the store and never mutates its inputs.
func Reconcile(jobs []job.Job, stages []job.Stage, fallback Fallback) []StageStatus {
	if agg, ok := job.MostRecent(jobs, job.TypeAggregate); ok {
		return fromAggregate(agg, stages)
	}

	out := make([]StageStatus, len(stages))
	for i, st := range stages {
		out[i] = StageStatus{Stage: st, State: StateNotStarted, Origin: OriginNone}

		if j, ok := job.MostRecent(jobs, job.Type(st)); ok {
			out[i].State = FromStatus(j.Status)
			out[i].JobID = j.ID
			out[i].Origin = OriginStage
			out[i].Progress = int(j.Progress)
			out[i].CurrentStep = j.CurrentStep
			if j.Results.Summary != nil && out[i].State == StateCompleted {
				n := j.Results.Summary.PassingSequences
				out[i].Output = &n
			}
			continue
		}
		if fallback[st] {
			out[i].State = StateCompleted
			out[i].Origin = OriginHistory
		}
	}
	return out
}

func fromAggregate(agg job.Job, stages []job.Stage) []StageStatus {
	done := agg.Results.Completed()
	out := make([]StageStatus, len(stages))
	for i, st := range stages {
		s := StageStatus{
			Stage:  st,
			State:  aggregateStageState(agg.Status, i, done),
			JobID:  agg.ID,
			Origin: OriginAggregate,
		}
		if n, ok := agg.Results.Output(st); ok {
			s.Output = &n
		}
		if s.State == StateRunning {
			s.Progress = int(agg.Progress)
			s.CurrentStep = agg.CurrentStep
		}
		out[i] = s
	}
	return out
}

// aggregateStageState treats the results count as a cursor into the pipeline.
func aggregateStageState(st job.Status, i, done int) State {
	if i < done {
		return StateCompleted
	}
	switch st {
	case job.StatusRunning:
		if i == done {
			return StateRunning
		}
	case job.StatusFailed:
		if i == done {
			return StateFailed
		}
	case job.StatusCompleted:
		return StateCompleted
	case job.StatusQueued, job.StatusCancelled, job.StatusUnknown:
	}
	return StateNotStarted
}
