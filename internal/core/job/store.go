package job

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vedasoham/dtdp/internal/core/event"
)

// Store is the in-memory job set of the active project. All mutation goes
// through IngestSnapshot and IngestEvent; observers are told about changes
// through the bus, once per ingest that changed something.
type Store struct {
	bus event.Bus

	mu      sync.RWMutex
	project string
	jobs    map[string]Job
}

// NewStore returns an empty store publishing changes on bus. bus may be nil.
func NewStore(bus event.Bus) *Store {
	return &Store{
		bus:  bus,
		jobs: make(map[string]Job),
	}
}

// Reset drops every cached job and scopes the store to project.
func (s *Store) Reset(ctx context.Context, project string) {
	s.mu.Lock()
	had := len(s.jobs) > 0
	s.project = project
	s.jobs = make(map[string]Job)
	s.mu.Unlock()

	if had {
		s.publish(ctx, project, event.SourceLocal, nil)
	}
}

// Project is the project the store is scoped to.
func (s *Store) Project() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project
}

// IngestSnapshot replaces the job set of project with jobs. A snapshot for a
// project other than the active one is ignored, as are individual jobs
// belonging to another project. Returns whether the cached set changed.
func (s *Store) IngestSnapshot(ctx context.Context, project string, jobs []Job) bool {
	s.mu.Lock()
	if project != s.project {
		s.mu.Unlock()
		return false
	}
	next := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		if j.ID == "" || j.Project != s.project {
			continue
		}
		if prev, ok := next[j.ID]; ok && prev.NewerThan(j) {
			continue
		}
		next[j.ID] = j
	}

	var changed []string
	for id, j := range next {
		if prev, ok := s.jobs[id]; !ok || !prev.Equal(j) {
			changed = append(changed, id)
		}
	}
	for id := range s.jobs {
		if _, ok := next[id]; !ok {
			changed = append(changed, id)
		}
	}
	if len(changed) > 0 {
		s.jobs = next
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return false
	}
	sort.Strings(changed)
	s.publish(ctx, project, event.SourcePoll, changed)
	return true
}

// IngestEvent upserts a single job. It is accepted when its (type, project)
// slot is empty, when it is a later record of the slot's current job, or when
// it was created strictly after the slot's current job. Returns whether the
// cached set changed.
func (s *Store) IngestEvent(ctx context.Context, j Job) bool {
	s.mu.Lock()
	if j.ID == "" || j.Project != s.project {
		s.mu.Unlock()
		log.Debug().Str("job_id", j.ID).Str("project", j.Project).Msg("ignoring job outside active project")
		return false
	}

	if cur, ok := s.latestLocked(j.Key()); ok && cur.ID != j.ID {
		if !j.CreatedAt.After(cur.CreatedAt.Time) {
			s.mu.Unlock()
			log.Debug().
				Str("job_id", j.ID).
				Str("current", cur.ID).
				Msg("dropping job superseded in its slot")
			return false
		}
	}
	if prev, ok := s.jobs[j.ID]; ok {
		if j.CreatedAt.Before(prev.CreatedAt.Time) || prev.Equal(j) {
			s.mu.Unlock()
			return false
		}
	}
	s.jobs[j.ID] = j
	project := s.project
	s.mu.Unlock()

	s.publish(ctx, project, event.SourcePush, []string{j.ID})
	return true
}

// Jobs returns every cached job, oldest first.
func (s *Store) Jobs() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[k].NewerThan(out[i]) })
	return out
}

// Get returns the cached job with id.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Latest returns the authoritative job of type t in the active project.
func (s *Store) Latest(t Type) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLocked(Key{Type: t, Project: s.project})
}

func (s *Store) latestLocked(k Key) (Job, bool) {
	var (
		best  Job
		found bool
	)
	for _, j := range s.jobs {
		if j.Key() != k {
			continue
		}
		if !found || j.NewerThan(best) {
			best, found = j, true
		}
	}
	return best, found
}

func (s *Store) publish(ctx context.Context, project string, src event.Source, ids []string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, event.Event{
		Type: event.EventJobsChanged,
		Payload: event.JobsChanged{
			Project: project,
			Source:  src,
			JobIDs:  ids,
		},
	})
}
