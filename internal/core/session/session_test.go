package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedasoham/dtdp/internal/core/event"
	"github.com/vedasoham/dtdp/internal/core/job"
	"github.com/vedasoham/dtdp/internal/core/orchestrator"
	"github.com/vedasoham/dtdp/internal/core/raceguard"
	"github.com/vedasoham/dtdp/internal/core/reconcile"
	"github.com/vedasoham/dtdp/internal/transport"
)

type fakeClient struct {
	mu      sync.Mutex
	jobs    map[string][]job.Job
	stats   map[string]transport.PipelineStats
	configs job.Configs
	started []string
	listErr error

	// gate, when set for a project, holds ListJobs until closed
	gate    map[string]chan struct{}
	entered chan string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		jobs:  make(map[string][]job.Job),
		stats: make(map[string]transport.PipelineStats),
		gate:  make(map[string]chan struct{}),
	}
}

func (f *fakeClient) ListJobs(_ context.Context, project string) ([]job.Job, error) {
	f.mu.Lock()
	gate := f.gate[project]
	f.mu.Unlock()
	if gate != nil {
		if f.entered != nil {
			f.entered <- project
		}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]job.Job(nil), f.jobs[project]...), nil
}

func (f *fakeClient) StartStage(_ context.Context, req transport.StartStageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, string(req.Stage))
	return string(req.Stage) + "_9", nil
}

func (f *fakeClient) StartAggregate(_ context.Context, _ string, _ job.Configs) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, "pipeline_all")
	return "pipeline_all_9", nil
}

func (f *fakeClient) PipelineStats(_ context.Context, project string) (transport.PipelineStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[project], nil
}

func (f *fakeClient) LoadConfigs(context.Context, string) (job.Configs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs, nil
}

func ts(minute int) job.Timestamp {
	return job.Timestamp{Time: time.Date(2024, 5, 1, 10, minute, 0, 0, time.UTC)}
}

func newTestSession(t *testing.T, c *fakeClient) *Session {
	t.Helper()
	return New(c, nil, nil, Options{PollInterval: time.Hour})
}

func TestSession_PollWithoutProjectIsIdle(t *testing.T) {
	s := newTestSession(t, newFakeClient())
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrNoProject)
}

func TestSession_PollReconcilesStages(t *testing.T) {
	c := newFakeClient()
	c.jobs["alpha"] = []job.Job{{
		ID: "pipeline_all_1", Type: job.TypeAggregate, Project: "alpha",
		Status: job.StatusRunning, CreatedAt: ts(0),
		Results: job.Results{Stages: []job.StageOutput{{Stage: job.StageHuman, Output: 10}, {Stage: job.StageDEG, Output: 8}}},
	}}
	s := newTestSession(t, c)
	ctx := context.Background()

	s.SetProject(ctx, "alpha")
	require.NoError(t, s.Refresh(ctx))

	got := s.Stages()
	require.Len(t, got, 4)
	assert.Equal(t, reconcile.StateCompleted, got[0].State)
	assert.Equal(t, reconcile.StateCompleted, got[1].State)
	assert.Equal(t, reconcile.StateRunning, got[2].State)
	assert.Equal(t, reconcile.StateNotStarted, got[3].State)
	assert.Equal(t, orchestrator.LabelRunning, s.Control().Label)
}

func TestSession_HistoricalFallback(t *testing.T) {
	c := newFakeClient()
	c.stats["alpha"] = transport.PipelineStats{
		Project: "alpha",
		Steps:   []transport.StepStats{{Database: "human", Status: "completed"}},
	}
	s := newTestSession(t, c)
	ctx := context.Background()

	s.SetProject(ctx, "alpha")
	require.NoError(t, s.Refresh(ctx))

	got := s.Stages()
	assert.Equal(t, reconcile.StateCompleted, got[0].State)
	assert.Equal(t, reconcile.OriginHistory, got[0].Origin)
	assert.Equal(t, reconcile.StateNotStarted, got[1].State)
}

func TestSession_LateResponseForPreviousProjectIsDiscarded(t *testing.T) {
	c := newFakeClient()
	c.jobs["alpha"] = []job.Job{{ID: "deg_1", Type: "deg", Project: "alpha", Status: job.StatusCompleted, CreatedAt: ts(0)}}
	c.jobs["beta"] = []job.Job{{ID: "human_2", Type: "human", Project: "beta", Status: job.StatusRunning, CreatedAt: ts(1)}}
	c.gate["alpha"] = make(chan struct{})
	c.entered = make(chan string, 1)

	s := newTestSession(t, c)
	ctx := context.Background()
	s.SetProject(ctx, "alpha")

	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()
	assert.Equal(t, "alpha", <-c.entered)

	s.SetProject(ctx, "beta")
	require.NoError(t, s.Poll(ctx))

	close(c.gate["alpha"])
	assert.ErrorIs(t, <-done, raceguard.ErrStale)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "human_2", jobs[0].ID)
	assert.Equal(t, "beta", s.Project())
}

func TestSession_FailedPollKeepsLastKnownState(t *testing.T) {
	c := newFakeClient()
	c.jobs["alpha"] = []job.Job{
		{ID: "human_1", Type: "human", Project: "alpha", Status: job.StatusCompleted, CreatedAt: ts(0)},
		{ID: "deg_1", Type: "deg", Project: "alpha", Status: job.StatusRunning, CreatedAt: ts(1)},
	}
	s := newTestSession(t, c)
	ctx := context.Background()
	s.SetProject(ctx, "alpha")
	require.NoError(t, s.Refresh(ctx))
	before := s.Stages()

	c.mu.Lock()
	c.listErr = &transport.TransportError{Op: "list jobs", Err: errors.New("connection refused")}
	c.jobs["alpha"] = nil
	c.mu.Unlock()

	err := s.Poll(ctx)
	var terr *transport.TransportError
	require.True(t, errors.As(err, &terr))

	assert.Len(t, s.Jobs(), 2)
	assert.Equal(t, before, s.Stages())
	assert.Equal(t, reconcile.StateRunning, s.Stages()[1].State)
}

func TestSession_SnapshotAndPushMerge(t *testing.T) {
	c := newFakeClient()
	s := newTestSession(t, c)
	ctx := context.Background()
	s.SetProject(ctx, "alpha")

	s.HandleJobUpdate(ctx, transport.JobUpdate{JobID: "vfdb_2", Data: job.Job{
		ID: "vfdb_2", Type: "vfdb", Project: "alpha", Status: job.StatusRunning, CreatedAt: ts(5),
	}})
	c.jobs["alpha"] = []job.Job{{ID: "vfdb_1", Type: "vfdb", Project: "alpha", Status: job.StatusFailed, CreatedAt: ts(1)}}
	require.NoError(t, s.Refresh(ctx))

	got := s.Stages()
	assert.Equal(t, reconcile.StateFailed, got[2].State, "snapshot replaces the set wholesale")

	s.HandleJobUpdate(ctx, transport.JobUpdate{JobID: "vfdb_3", Data: job.Job{
		ID: "vfdb_3", Type: "vfdb", Project: "alpha", Status: job.StatusRunning, CreatedAt: ts(9),
	}})
	got = s.Stages()
	assert.Equal(t, reconcile.StateRunning, got[2].State)
	assert.Equal(t, "vfdb_3", got[2].JobID)
}

func TestSession_WaitTerminalFromPush(t *testing.T) {
	s := newTestSession(t, newFakeClient())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.SetProject(ctx, "alpha")

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.HandleJobUpdate(ctx, transport.JobUpdate{JobID: "eskape_1", Data: job.Job{
			ID: "eskape_1", Type: "eskape", Project: "alpha", Status: job.StatusFailed, CreatedAt: ts(0),
		}})
	}()

	j, err := s.WaitTerminal(ctx, "eskape_1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.ErrorIs(t, Outcome(j), ErrJobFailed)
}

func TestSession_WaitTerminalAlreadyDone(t *testing.T) {
	c := newFakeClient()
	c.jobs["alpha"] = []job.Job{{ID: "human_1", Type: "human", Project: "alpha", Status: job.StatusCompleted, CreatedAt: ts(0)}}
	s := newTestSession(t, c)
	ctx := context.Background()
	s.SetProject(ctx, "alpha")
	require.NoError(t, s.Refresh(ctx))

	j, err := s.WaitTerminal(ctx, "human_1")
	require.NoError(t, err)
	assert.NoError(t, Outcome(j))
}

func TestSession_WaitTerminalTimesOut(t *testing.T) {
	s := newTestSession(t, newFakeClient())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.WaitTerminal(ctx, "nope")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, s.waiters)
}

func TestSession_RunAllMergesLocalConfigs(t *testing.T) {
	c := newFakeClient()
	c.configs = job.Configs{job.StageHuman: {Threads: 4}, job.StageDEG: {Threads: 4}}
	s := New(c, nil, nil, Options{
		PollInterval: time.Hour,
		LocalConfigs: job.Configs{job.StageVFDB: {Threads: 8}, job.StageESKAPE: {Threads: 8}},
	})
	ctx := context.Background()
	s.SetProject(ctx, "alpha")

	launch, err := s.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pipeline_all_9", launch.JobID)
	assert.Equal(t, []string{"pipeline_all"}, c.started)
}

func TestSession_RunAllRequiresProject(t *testing.T) {
	s := newTestSession(t, newFakeClient())
	_, err := s.RunAll(context.Background())
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestSession_RunAllValidation(t *testing.T) {
	c := newFakeClient()
	c.configs = job.Configs{job.StageHuman: {}}
	s := newTestSession(t, c)
	ctx := context.Background()
	s.SetProject(ctx, "alpha")

	_, err := s.RunAll(ctx)
	var verr *orchestrator.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Missing, 3)
	assert.Empty(t, c.started)
}

func TestSession_SetProjectPublishes(t *testing.T) {
	bus := event.NewBus()
	var got []event.ProjectSwitched
	bus.Subscribe(func(_ context.Context, e event.Event) error {
		got = append(got, e.Payload.(event.ProjectSwitched))
		return nil
	}, event.EventProjectSwitched)

	s := New(newFakeClient(), nil, bus, Options{})
	s.SetProject(context.Background(), "alpha")
	s.SetProject(context.Background(), "beta")

	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[1].Previous)
	assert.Equal(t, uint64(2), got[1].Generation)
}
