package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Job is one pipeline execution attempt as reported by the execution service.
type Job struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Project     string    `json:"project"`
	Status      Status    `json:"status"`
	Progress    Percent   `json:"progress"`
	CurrentStep string    `json:"current_step,omitempty"`
	CreatedAt   Timestamp `json:"created_at"`
	StartedAt   Timestamp `json:"started_at"`
	Results     Results   `json:"results"`
}

// Key identifies the authority slot a job competes for.
type Key struct {
	Type    Type
	Project string
}

// Key is the (type, project) slot of j.
func (j Job) Key() Key { return Key{Type: j.Type, Project: j.Project} }

// NewerThan reports whether j is more recent than o. created_at decides,
// started_at and then id break ties so the ordering is total.
func (j Job) NewerThan(o Job) bool {
	if !j.CreatedAt.Equal(o.CreatedAt.Time) {
		return j.CreatedAt.After(o.CreatedAt.Time)
	}
	if !j.StartedAt.Equal(o.StartedAt.Time) {
		return j.StartedAt.After(o.StartedAt.Time)
	}
	return j.ID > o.ID
}

// Equal reports whether two records carry the same observable state.
func (j Job) Equal(o Job) bool {
	return j.ID == o.ID &&
		j.Type == o.Type &&
		j.Project == o.Project &&
		j.Status == o.Status &&
		j.Progress == o.Progress &&
		j.CurrentStep == o.CurrentStep &&
		j.CreatedAt.Equal(o.CreatedAt.Time) &&
		j.StartedAt.Equal(o.StartedAt.Time) &&
		reflect.DeepEqual(j.Results, o.Results)
}

// MostRecent returns the newest job of type t.
func MostRecent(jobs []Job, t Type) (Job, bool) {
	var (
		best  Job
		found bool
	)
	for _, j := range jobs {
		if j.Type != t {
			continue
		}
		if !found || j.NewerThan(best) {
			best, found = j, true
		}
	}
	return best, found
}

// Type is a stage name or the aggregate type.
type Type string

// TypeAggregate is how the execution service labels a full pipeline run.
const TypeAggregate Type = "Full Pipeline"

func (t Type) IsAggregate() bool { return t == TypeAggregate }

// Stage returns the stage a per-stage job runs.
func (t Type) Stage() (Stage, bool) { return ParseStage(string(t)) }

func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "pipeline_all", string(TypeAggregate):
		*t = TypeAggregate
	default:
		*t = Type(s)
	}
	return nil
}

// Status is the lifecycle state of a job.
type Status int

const (
	StatusUnknown Status = iota
	StatusQueued
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

// ParseStatus maps a service status string to a Status. Unrecognised values
// become StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued":
		return StatusQueued
	case "running":
		return StatusRunning
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	}
	return StatusUnknown
}

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusUnknown:
		return "unknown"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	case StatusQueued, StatusRunning, StatusUnknown:
		return false
	}
	return false
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	*s = ParseStatus(string(b))
	return nil
}

// Percent is a progress value clamped to 0..100.
type Percent int

func (p *Percent) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	switch {
	case f < 0:
		f = 0
	case f > 100:
		f = 100
	}
	*p = Percent(f)
	return nil
}

// Timestamp accepts RFC 3339 and the naive ISO-8601 form the service writes.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 and the service's naive ISO timestamps (UTC).
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
