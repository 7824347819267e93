package job

import (
	"encoding/json"
	"sort"
	"strings"
)

// Stage is one of the filter steps of the pipeline.
type Stage string

const (
	StageHuman  Stage = "human"
	StageDEG    Stage = "deg"
	StageVFDB   Stage = "vfdb"
	StageESKAPE Stage = "eskape"
)

var pipeline = []Stage{StageHuman, StageDEG, StageVFDB, StageESKAPE}

// Pipeline returns the stages in execution order.
func Pipeline() []Stage {
	out := make([]Stage, len(pipeline))
	copy(out, pipeline)
	return out
}

// ParseStage maps a case-insensitive stage name to a Stage.
func ParseStage(s string) (Stage, bool) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Index() >= 0
}

// Index is the position of the stage in the pipeline, -1 if unknown.
func (s Stage) Index() int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

// Label is the upper-case name used in user-facing messages.
func (s Stage) Label() string { return strings.ToUpper(string(s)) }

// StageOutput is the output sequence count of one completed stage.
type StageOutput struct {
	Stage  Stage `json:"stage"`
	Output int   `json:"output"`
}

// StepSummary is the results object of a single-stage job.
type StepSummary struct {
	InputSequences   int `json:"input_sequences,omitempty"`
	PassingSequences int `json:"passing_sequences,omitempty"`
	FilteredHits     int `json:"filtered_hits,omitempty"`
}

// Results holds what a job has produced so far. Aggregate jobs fill Stages in
// pipeline order as each stage finishes; single-stage jobs fill Summary.
type Results struct {
	Stages  []StageOutput
	Summary *StepSummary
}

// Completed is the number of stages an aggregate run has finished.
func (r Results) Completed() int { return len(r.Stages) }

// Output returns the passing-sequence count recorded for s.
func (r Results) Output(s Stage) (int, bool) {
	for _, o := range r.Stages {
		if o.Stage == s {
			return o.Output, true
		}
	}
	return 0, false
}

func (r *Results) UnmarshalJSON(b []byte) error {
	*r = Results{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		// null, or a shape this client does not read
		return nil
	}

	summary := false
	for k, raw := range fields {
		stage, ok := ParseStage(k)
		if !ok {
			summary = true
			continue
		}
		r.Stages = append(r.Stages, StageOutput{Stage: stage, Output: outputCount(raw)})
	}
	sort.Slice(r.Stages, func(i, j int) bool {
		return r.Stages[i].Stage.Index() < r.Stages[j].Stage.Index()
	})

	if summary && len(r.Stages) == 0 {
		var s StepSummary
		if err := json.Unmarshal(b, &s); err == nil {
			r.Summary = &s
		}
	}
	return nil
}

func (r Results) MarshalJSON() ([]byte, error) {
	if len(r.Stages) == 0 {
		if r.Summary != nil {
			return json.Marshal(r.Summary)
		}
		return []byte("null"), nil
	}
	out := make(map[string]int, len(r.Stages))
	for _, o := range r.Stages {
		out[string(o.Stage)] = o.Output
	}
	return json.Marshal(out)
}

// outputCount reads either a bare count or a step summary object.
func outputCount(raw json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var s StepSummary
	if err := json.Unmarshal(raw, &s); err == nil {
		return s.PassingSequences
	}
	return 0
}
