package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedasoham/dtdp/internal/core/job"
	"github.com/vedasoham/dtdp/internal/transport"
)

// fakeService mimics the session-scoped endpoints of the pipeline web app.
type fakeService struct {
	mu          sync.Mutex
	jobs        []map[string]any
	configs     map[string]any
	setProjects []string
	lastBody    map[string]any
	reject      string
	// sessions maps session cookies to the selected project
	sessions map[string]string
}

func (f *fakeService) project(r *http.Request) string {
	c, err := r.Cookie("session")
	if err != nil {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[c.Value]
}

// restart forgets every session, as the web app does when it comes back up
// with a new secret key.
func (f *fakeService) restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = nil
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/set_project", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		sid := uuid.NewString()
		f.mu.Lock()
		f.setProjects = append(f.setProjects, body["project"])
		if f.sessions == nil {
			f.sessions = make(map[string]string)
		}
		f.sessions[sid] = body["project"]
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "session", Value: sid, Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		p := f.project(r)
		if p == "" {
			writeJSON(w, http.StatusOK, map[string]any{"jobs": []any{}})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		var out []map[string]any
		for _, j := range f.jobs {
			if j["project"] == p {
				out = append(out, j)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
	})
	start := func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastBody = body
		reject := f.reject
		f.mu.Unlock()
		if reject != "" {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": reject})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": "pipeline_all_1"})
	}
	mux.HandleFunc("/api/start_full_pipeline", start)
	mux.HandleFunc("/api/start_pipeline", start)
	mux.HandleFunc("/api/get_pipeline_stats", func(w http.ResponseWriter, r *http.Request) {
		p := f.project(r)
		if p == "" {
			p = "default"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"project":       p,
			"initial_input": 900,
			"steps":         []map[string]any{{"database": "human", "status": "completed", "output": 500}},
		})
	})
	mux.HandleFunc("/api/load_configs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "configs": f.configs})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeService) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestClient_ListJobsSelectsProjectEachCall(t *testing.T) {
	f := &fakeService{jobs: []map[string]any{
		{"id": "human_1", "type": "human", "project": "alpha", "status": "running", "created_at": "2024-05-01T10:00:00"},
		{"id": "human_2", "type": "human", "project": "beta", "status": "queued", "created_at": "2024-05-01T10:01:00"},
	}}
	c := newTestClient(t, f)
	ctx := context.Background()

	jobs, err := c.ListJobs(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "human_1", jobs[0].ID)
	assert.Equal(t, job.StatusRunning, jobs[0].Status)

	_, err = c.ListJobs(ctx, "alpha")
	require.NoError(t, err)

	jobs, err = c.ListJobs(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "human_2", jobs[0].ID)

	assert.Equal(t, []string{"alpha", "alpha", "beta"}, f.setProjects)
}

func TestClient_SurvivesServiceRestart(t *testing.T) {
	f := &fakeService{jobs: []map[string]any{
		{"id": "deg_1", "type": "deg", "project": "alpha", "status": "completed", "created_at": "2024-05-01T10:00:00"},
	}}
	c := newTestClient(t, f)
	ctx := context.Background()

	jobs, err := c.ListJobs(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	f.restart()

	jobs, err = c.ListJobs(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	f.restart()

	stats, err := c.PipelineStats(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", stats.Project)
}

func TestClient_StatsForAnotherProjectAreRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/get_pipeline_stats" {
			writeJSON(w, http.StatusOK, map[string]any{"project": "default", "steps": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = c.PipelineStats(context.Background(), "alpha")
	var rej *transport.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Contains(t, rej.Error(), `"default"`)
}

func TestClient_StartAggregate(t *testing.T) {
	f := &fakeService{}
	c := newTestClient(t, f)

	id, err := c.StartAggregate(context.Background(), "alpha", job.Configs{
		job.StageHuman: {Threads: 18, Identity: 35, Coverage: 90, Cache: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "pipeline_all_1", id)

	configs := f.lastBody["configs"].(map[string]any)
	human := configs["human"].(map[string]any)
	assert.EqualValues(t, 18, human["threads"])
	assert.Equal(t, true, human["cache"])
}

func TestClient_StartStageFlattensParams(t *testing.T) {
	f := &fakeService{}
	c := newTestClient(t, f)

	_, err := c.StartStage(context.Background(), transport.StartStageRequest{
		Stage:   job.StageVFDB,
		Project: "alpha",
		Params:  job.Params{Threads: 4, SkipBlast: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "vfdb", f.lastBody["database"])
	assert.Equal(t, "alpha", f.lastBody["project"])
	assert.EqualValues(t, 4, f.lastBody["threads"])
	assert.Equal(t, true, f.lastBody["skip_blast"])
}

func TestClient_RejectionIsTyped(t *testing.T) {
	f := &fakeService{reject: "No configurations provided"}
	c := newTestClient(t, f)

	_, err := c.StartAggregate(context.Background(), "alpha", job.Configs{})

	var rej *transport.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "No configurations provided", rej.Message)
}

func TestClient_TransportErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/set_project" {
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "boom"})
	}))
	defer srv.Close()
	c, err := New(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.PipelineStats(context.Background(), "alpha")

	var te *transport.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Contains(t, te.Error(), "boom")
}

func TestClient_StatsAndConfigs(t *testing.T) {
	f := &fakeService{configs: map[string]any{
		"human":  map[string]any{"threads": 8, "identity": 35.0},
		"legacy": map[string]any{"threads": 1},
	}}
	c := newTestClient(t, f)
	ctx := context.Background()

	stats, err := c.PipelineStats(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, stats.Completed()[job.StageHuman])

	cfg, err := c.LoadConfigs(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, cfg, 1)
	assert.Equal(t, 8, cfg[job.StageHuman].Threads)
}

func TestClient_RequiresProject(t *testing.T) {
	c, err := New("http://127.0.0.1:0", time.Second)
	require.NoError(t, err)
	_, err = c.ListJobs(context.Background(), "")
	assert.Error(t, err)
}
