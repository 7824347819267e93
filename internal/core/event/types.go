package event

import "time"

// EventType names an event kind.
type EventType string

const (
	// Store
	EventJobsChanged EventType = "jobs.changed"

	// Push channel
	EventJobUpdate EventType = "job.update"
	EventJobLog    EventType = "job.log"

	// Session
	EventProjectSwitched EventType = "project.switched"
)

// Event is one message on the bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// Source names where a store change came from.
type Source string

const (
	SourcePoll  Source = "poll"
	SourcePush  Source = "push"
	SourceLocal Source = "local"
)

// JobsChanged lists the job IDs an ingest changed.
type JobsChanged struct {
	Project string
	Source  Source
	JobIDs  []string
}

type JobLog struct {
	JobID     string
	Level     string
	Message   string
	Timestamp string
}

// ProjectSwitched is published after the active project changes.
type ProjectSwitched struct {
	Previous   string
	Project    string
	Generation uint64
}
