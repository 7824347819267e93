package event

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler consumes one event.
type Handler func(ctx context.Context, event Event) error

// Bus delivers events synchronously to subscribers in subscription order.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(handler Handler, types ...EventType) (unsubscribe func())
}

// NewBus creates an in-process event bus.
func NewBus() Bus {
	return &inProcessBus{}
}

type subscriberEntry struct {
	id      uint64
	types   map[EventType]struct{}
	handler Handler
}

func (s subscriberEntry) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type inProcessBus struct {
	mu          sync.RWMutex
	subscribers []subscriberEntry
	nextID      uint64
}

func (b *inProcessBus) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscriberEntry, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		if s.wants(event.Type) {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			log.Error().Err(err).
				Str("event", string(event.Type)).
				Msg("event handler error")
		}
	}
}

// Subscribe registers handler for the given types, or for every type when
// none are given.
func (b *inProcessBus) Subscribe(handler Handler, types ...EventType) func() {
	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscriberEntry{
		id:      id,
		types:   set,
		handler: handler,
	})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subscribers {
				if s.id == id {
					b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
					break
				}
			}
		})
	}
}
