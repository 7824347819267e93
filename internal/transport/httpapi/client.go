// Package httpapi is the REST side of the execution service transport.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedasoham/dtdp/internal/core/job"
	"github.com/vedasoham/dtdp/internal/transport"
)

// Client talks to the pipeline web service. The service scopes most calls to
// the project stored in the caller's session, so the client keeps a cookie
// jar and selects the project before every scoped call. The service forgets
// sessions on restart without reporting it.
type Client struct {
	baseURL string
	http    *http.Client

	mu sync.Mutex
}

// New returns a client for the service at baseURL with its own cookie jar.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

// HTTPClient exposes the underlying client so the push stream can share the
// session cookie.
func (c *Client) HTTPClient() *http.Client { return c.http }

type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transport.TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transport.TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var env envelope
	_ = json.Unmarshal(respBody, &env)
	if env.Success != nil && !*env.Success {
		return &transport.Rejection{Op: op, Message: env.text()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &transport.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &transport.TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return nil
}

// scoped runs fn with project selected in the session. Scoped calls are
// serialised so a concurrent switch cannot land between selection and fn.
func (c *Client) scoped(ctx context.Context, project string, fn func() error) error {
	if project == "" {
		return errors.New("no project selected")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call(ctx, "set project", http.MethodPost, "/api/set_project",
		map[string]string{"project": project}, nil); err != nil {
		return err
	}
	log.Trace().Str("project", project).Msg("session project selected")
	return fn()
}

// ListJobs returns the jobs of project, dropping any the service tags with
// another project.
func (c *Client) ListJobs(ctx context.Context, project string) ([]job.Job, error) {
	var resp struct {
		Jobs []job.Job `json:"jobs"`
	}
	err := c.scoped(ctx, project, func() error {
		return c.call(ctx, "list jobs", http.MethodGet, "/api/jobs", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	jobs := resp.Jobs[:0]
	for _, j := range resp.Jobs {
		if j.Project == project {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

type startStageBody struct {
	Database string `json:"database"`
	Project  string `json:"project"`
	job.Params
}

type startResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// StartStage posts to /api/start_pipeline and returns the new job ID.
func (c *Client) StartStage(ctx context.Context, req transport.StartStageRequest) (string, error) {
	var resp startResponse
	err := c.scoped(ctx, req.Project, func() error {
		return c.call(ctx, "start "+string(req.Stage), http.MethodPost, "/api/start_pipeline", startStageBody{
			Database: string(req.Stage),
			Project:  req.Project,
			Params:   req.Params,
		}, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", &transport.Rejection{Op: "start " + string(req.Stage), Message: "response carried no job id"}
	}
	return resp.JobID, nil
}

// StartAggregate posts every stage configuration to /api/start_full_pipeline.
func (c *Client) StartAggregate(ctx context.Context, project string, configs job.Configs) (string, error) {
	var resp startResponse
	err := c.scoped(ctx, project, func() error {
		return c.call(ctx, "start pipeline", http.MethodPost, "/api/start_full_pipeline",
			map[string]job.Configs{"configs": configs}, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", &transport.Rejection{Op: "start pipeline", Message: "response carried no job id"}
	}
	return resp.JobID, nil
}

// PipelineStats fetches the persisted results of project.
func (c *Client) PipelineStats(ctx context.Context, project string) (transport.PipelineStats, error) {
	var stats transport.PipelineStats
	err := c.scoped(ctx, project, func() error {
		return c.call(ctx, "pipeline stats", http.MethodGet, "/api/get_pipeline_stats", nil, &stats)
	})
	if err != nil {
		return transport.PipelineStats{}, err
	}
	if stats.Project != "" && stats.Project != project {
		return transport.PipelineStats{}, &transport.Rejection{
			Op:      "pipeline stats",
			Message: fmt.Sprintf("service answered for project %q", stats.Project),
		}
	}
	return stats, nil
}

// LoadConfigs returns the saved stage configurations of project. Unknown
// stage names are skipped.
func (c *Client) LoadConfigs(ctx context.Context, project string) (job.Configs, error) {
	var resp struct {
		Configs map[string]job.Params `json:"configs"`
	}
	err := c.scoped(ctx, project, func() error {
		return c.call(ctx, "load configs", http.MethodGet, "/api/load_configs", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	out := make(job.Configs, len(resp.Configs))
	for k, v := range resp.Configs {
		st, ok := job.ParseStage(k)
		if !ok {
			continue
		}
		out[st] = v
	}
	return out, nil
}
