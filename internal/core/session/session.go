// Package session owns the live state of one client session: the active
// project, its job store, the race guard and the poll and push loops that
// feed the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vedasoham/dtdp/internal/core/event"
	"github.com/vedasoham/dtdp/internal/core/job"
	"github.com/vedasoham/dtdp/internal/core/orchestrator"
	"github.com/vedasoham/dtdp/internal/core/raceguard"
	"github.com/vedasoham/dtdp/internal/core/reconcile"
	"github.com/vedasoham/dtdp/internal/core/statusloop"
	"github.com/vedasoham/dtdp/internal/transport"
)

// ErrNoProject is returned by operations that need an active project.
var ErrNoProject = errors.New("no project selected")

// Options tunes a Session.
type Options struct {
	PollInterval time.Duration
	Stages       []job.Stage
	// LocalConfigs are layered over the configurations saved on the server.
	LocalConfigs job.Configs
}

// Session ties the job store, reconciler, orchestrator and transports to one
// active project.
type Session struct {
	client transport.Client
	stream transport.Stream
	bus    event.Bus
	stages []job.Stage
	local  job.Configs

	store *job.Store
	guard *raceguard.Guard
	orch  *orchestrator.Orchestrator
	loop  *statusloop.Loop

	mu       sync.Mutex
	fallback reconcile.Fallback
	statsGen uint64
	stale    bool
	waiters  map[string][]*waiter
}

// New builds a session. stream may be nil when push is disabled; a nil bus
// gets an in-process one.
func New(client transport.Client, stream transport.Stream, bus event.Bus, opts Options) *Session {
	if bus == nil {
		bus = event.NewBus()
	}
	stages := opts.Stages
	if len(stages) == 0 {
		stages = job.Pipeline()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	s := &Session{
		client:  client,
		stream:  stream,
		bus:     bus,
		stages:  stages,
		local:   opts.LocalConfigs,
		store:   job.NewStore(bus),
		guard:   raceguard.New(),
		waiters: make(map[string][]*waiter),
	}
	s.orch = orchestrator.New(client, s.store, stages)
	s.loop = statusloop.New(s, interval)
	bus.Subscribe(s.onJobsChanged, event.EventJobsChanged)
	return s
}

func (s *Session) Bus() event.Bus { return s.bus }

func (s *Session) Project() string { return s.guard.Project() }

func (s *Session) Jobs() []job.Job { return s.store.Jobs() }

func (s *Session) Job(id string) (job.Job, bool) { return s.store.Get(id) }

// SetProject activates project. Responses to requests issued for the previous
// project are discarded from now on.
func (s *Session) SetProject(ctx context.Context, project string) {
	prev := s.guard.Project()
	gen := s.guard.Switch(project)
	s.store.Reset(ctx, project)
	s.orch.Reset()

	s.mu.Lock()
	s.fallback = nil
	s.stale = true
	s.mu.Unlock()

	log.Info().Str("project", project).Uint64("generation", gen).Msg("project switched")
	s.bus.Publish(ctx, event.Event{
		Type: event.EventProjectSwitched,
		Payload: event.ProjectSwitched{
			Previous:   prev,
			Project:    project,
			Generation: gen,
		},
	})
	s.loop.Kick()
}

// Run drives the poll loop and, if configured, the push stream until ctx is
// done.
func (s *Session) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop.Run(ctx)
	}()
	if s.stream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.stream.Run(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("push stream stopped")
			}
		}()
	}
	wg.Wait()
	return nil
}

// Poll fetches one snapshot for the active project.
func (s *Session) Poll(ctx context.Context) error {
	tok := s.guard.Issue()
	if tok.Project == "" {
		return statusloop.ErrIdle
	}

	jobs, err := s.client.ListJobs(ctx, tok.Project)
	if err != nil {
		return fmt.Errorf("poll jobs: %w", err)
	}
	if err := s.guard.Check(tok); err != nil {
		return err
	}
	s.store.IngestSnapshot(ctx, tok.Project, jobs)
	for _, j := range jobs {
		if j.Project == tok.Project && j.Status.IsTerminal() {
			s.fire(j)
		}
	}

	if s.statsNeeded(tok) {
		if err := s.loadFallback(ctx, tok); err != nil {
			return err
		}
	}
	return nil
}

// Refresh is a synchronous Poll that also reloads the historical stats.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
	err := s.Poll(ctx)
	if errors.Is(err, statusloop.ErrIdle) {
		return ErrNoProject
	}
	return err
}

func (s *Session) statsNeeded(tok raceguard.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale || s.statsGen != tok.Generation
}

func (s *Session) loadFallback(ctx context.Context, tok raceguard.Token) error {
	stats, err := s.client.PipelineStats(ctx, tok.Project)
	if err != nil {
		return fmt.Errorf("pipeline stats: %w", err)
	}
	if err := s.guard.Check(tok); err != nil {
		return err
	}
	s.mu.Lock()
	s.fallback = stats.Completed()
	s.statsGen = tok.Generation
	s.stale = false
	s.mu.Unlock()
	return nil
}

// onJobsChanged marks the stats stale when a job finished, since the stats
// are derived from stage output on disk.
func (s *Session) onJobsChanged(_ context.Context, e event.Event) error {
	ch, ok := e.Payload.(event.JobsChanged)
	if !ok {
		return nil
	}
	for _, id := range ch.JobIDs {
		if j, ok := s.store.Get(id); ok && j.Status == job.StatusCompleted {
			s.mu.Lock()
			s.stale = true
			s.mu.Unlock()
			return nil
		}
	}
	return nil
}

// HandleJobUpdate ingests a pushed delta.
func (s *Session) HandleJobUpdate(ctx context.Context, u transport.JobUpdate) {
	s.store.IngestEvent(ctx, u.Data)
	s.bus.Publish(ctx, event.Event{Type: event.EventJobUpdate, Payload: u.Data})
	if u.Data.Status.IsTerminal() {
		s.fire(u.Data)
	}
}

// HandleJobLog republishes a pushed log line on the bus.
func (s *Session) HandleJobLog(ctx context.Context, l transport.JobLog) {
	log.Debug().
		Str("job_id", l.JobID).
		Str("level", l.Log.Level).
		Msg(l.Log.Message)
	s.bus.Publish(ctx, event.Event{
		Type: event.EventJobLog,
		Payload: event.JobLog{
			JobID:     l.JobID,
			Level:     l.Log.Level,
			Message:   l.Log.Message,
			Timestamp: l.Log.Timestamp,
		},
	})
}

// Stages is the reconciled status of every stage, including stages with a
// start request in flight.
func (s *Session) Stages() []reconcile.StageStatus {
	s.mu.Lock()
	fb := s.fallback
	s.mu.Unlock()
	return s.orch.Overlay(reconcile.Reconcile(s.store.Jobs(), s.stages, fb))
}

func (s *Session) Control() orchestrator.Control { return s.orch.Control() }

// Configs returns the stage configurations saved for the active project with
// the local overrides applied.
func (s *Session) Configs(ctx context.Context) (job.Configs, error) {
	project := s.guard.Project()
	if project == "" {
		return nil, ErrNoProject
	}
	saved, err := s.client.LoadConfigs(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("load configs: %w", err)
	}
	return saved.Merge(s.local), nil
}

// RunAll is the action behind the Run All / Resume control.
func (s *Session) RunAll(ctx context.Context) (orchestrator.Launch, error) {
	tok := s.guard.Issue()
	if tok.Project == "" {
		return orchestrator.Launch{}, ErrNoProject
	}
	if s.orch.Control().Action != orchestrator.ActionStart {
		return orchestrator.Launch{}, orchestrator.ErrNoAction
	}
	configs, err := s.Configs(ctx)
	if err != nil {
		return orchestrator.Launch{}, err
	}
	if err := s.guard.Check(tok); err != nil {
		return orchestrator.Launch{}, err
	}
	launch, err := s.orch.RunAll(ctx, tok.Project, configs)
	if err != nil {
		return launch, err
	}
	s.loop.Kick()
	return launch, nil
}

// StartStage starts a single stage of the active project.
func (s *Session) StartStage(ctx context.Context, stage job.Stage) (orchestrator.Launch, error) {
	tok := s.guard.Issue()
	if tok.Project == "" {
		return orchestrator.Launch{}, ErrNoProject
	}
	configs, err := s.Configs(ctx)
	if err != nil {
		return orchestrator.Launch{}, err
	}
	if err := s.guard.Check(tok); err != nil {
		return orchestrator.Launch{}, err
	}
	launch, err := s.orch.StartStage(ctx, tok.Project, stage, configs)
	if err != nil {
		return launch, err
	}
	s.loop.Kick()
	return launch, nil
}
