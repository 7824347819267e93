package statusloop

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vedasoham/dtdp/internal/core/raceguard"
)

// Poller fetches one snapshot of the active project.
type Poller interface {
	Poll(ctx context.Context) error
}

// ErrIdle is returned by a Poller when there is nothing to poll, e.g. no
// project is selected.
var ErrIdle = errors.New("nothing to poll")

// Loop polls on a fixed interval. A cycle runs to completion before the next
// one starts, so polls never overlap.
type Loop struct {
	poller   Poller
	interval time.Duration
	kick     chan struct{}
}

// New returns a loop that calls p every interval.
func New(p Poller, interval time.Duration) *Loop {
	return &Loop{
		poller:   p,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests a poll as soon as the current cycle, if any, finishes.
func (l *Loop) Kick() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// Run polls once immediately and then every interval until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cycle(ctx)
		case <-l.kick:
			l.cycle(ctx)
			ticker.Reset(l.interval)
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	err := l.poller.Poll(ctx)
	switch {
	case err == nil, errors.Is(err, ErrIdle):
	case errors.Is(err, raceguard.ErrStale):
		log.Debug().Msg("poll response discarded after project switch")
	case ctx.Err() != nil:
	default:
		log.Warn().Err(err).Msg("poll failed, keeping last known state")
	}
}
