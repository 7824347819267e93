package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vedasoham/dtdp/internal/core/job"
)

// ErrJobFailed is wrapped by Outcome for jobs that did not complete.
var ErrJobFailed = errors.New("job did not complete")

type waiter struct {
	fn func(job.Job)
}

// OnTerminal calls fn once, when jobID reaches a terminal state. If the job is
// already terminal in the store fn runs before OnTerminal returns. The
// returned func cancels the registration.
func (s *Session) OnTerminal(ctx context.Context, jobID string, fn func(job.Job)) (cancel func()) {
	w := &waiter{fn: fn}
	s.mu.Lock()
	s.waiters[jobID] = append(s.waiters[jobID], w)
	s.mu.Unlock()

	if j, ok := s.store.Get(jobID); ok && j.Status.IsTerminal() {
		s.fire(j)
	} else if s.stream != nil {
		if err := s.stream.Watch(ctx, jobID); err != nil {
			log.Debug().Err(err).Str("job_id", jobID).Msg("watch deferred to poll")
		}
	}

	return func() { s.dropWaiter(jobID, w) }
}

func (s *Session) dropWaiter(jobID string, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.waiters[jobID]
	for i, x := range ws {
		if x == w {
			ws = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(s.waiters, jobID)
	} else {
		s.waiters[jobID] = ws
	}
}

// fire runs and removes every waiter registered for j.
func (s *Session) fire(j job.Job) {
	s.mu.Lock()
	ws := s.waiters[j.ID]
	delete(s.waiters, j.ID)
	s.mu.Unlock()

	for _, w := range ws {
		w.fn(j)
	}
}

// WaitTerminal blocks until jobID is terminal or ctx is done.
func (s *Session) WaitTerminal(ctx context.Context, jobID string) (job.Job, error) {
	done := make(chan job.Job, 1)
	cancel := s.OnTerminal(ctx, jobID, func(j job.Job) {
		done <- j
	})
	defer cancel()

	select {
	case j := <-done:
		return j, nil
	case <-ctx.Done():
		return job.Job{}, fmt.Errorf("wait for %s: %w", jobID, ctx.Err())
	}
}

// Outcome turns a terminal job into an error for callers that only care
// whether it succeeded.
func Outcome(j job.Job) error {
	if j.Status == job.StatusCompleted {
		return nil
	}
	return fmt.Errorf("job %s %s: %w", j.ID, j.Status, ErrJobFailed)
}
