// Package raceguard tags project-scoped asynchronous loads with the
// generation active when they were issued so late responses can be dropped.
package raceguard

import (
	"errors"
	"sync"
)

// ErrStale is returned for a response whose project is no longer active.
var ErrStale = errors.New("stale response discarded")

// Token identifies the context a request was issued in.
type Token struct {
	Generation uint64
	Project    string
}

// Guard holds the active project and its generation.
type Guard struct {
	mu         sync.RWMutex
	generation uint64
	project    string
}

// New returns a guard with no project selected.
func New() *Guard { return &Guard{} }

// Switch activates project and invalidates every outstanding token, even when
// project equals the current one. Returns the new generation.
func (g *Guard) Switch(project string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++
	g.project = project
	return g.generation
}

// Issue returns a token for a request about to be sent.
func (g *Guard) Issue() Token {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Token{Generation: g.generation, Project: g.project}
}

// Project is the currently selected project.
func (g *Guard) Project() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.project
}

// Current reports whether t was issued for the current generation.
func (g *Guard) Current(t Token) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return t.Generation == g.generation && t.Project == g.project
}

// Check returns ErrStale when t has been superseded.
func (g *Guard) Check(t Token) error {
	if !g.Current(t) {
		return ErrStale
	}
	return nil
}
