// Package session keeps one generation coordinator per signed-in user.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"mediagen/internal/generation"
)

// DefaultIdleTTL is how long an untouched session survives.
const DefaultIdleTTL = 30 * time.Minute

// Registry maps user ids to coordinators. Sessions expire after IdleTTL
// without access; an expired session is reset, stopping any poller.
type Registry struct {
	base   context.Context
	deps   generation.Deps
	ttl    time.Duration
	items  *cache.Cache
	logger zerolog.Logger

	// live holds every coordinator not yet closed, including expired entries
	// the janitor has not swept.
	mu   sync.Mutex
	live map[string]*generation.Coordinator
}

func NewRegistry(base context.Context, deps generation.Deps, ttl time.Duration, logger zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return newRegistry(base, deps, ttl, ttl/2, logger)
}

func newRegistry(base context.Context, deps generation.Deps, ttl, sweep time.Duration, logger zerolog.Logger) *Registry {
	r := &Registry{
		base:   base,
		deps:   deps,
		ttl:    ttl,
		items:  cache.New(ttl, sweep),
		logger: logger,
		live:   make(map[string]*generation.Coordinator),
	}
	r.items.OnEvicted(func(userID string, v any) {
		c, ok := v.(*generation.Coordinator)
		if !ok || !r.forget(userID, c) {
			return
		}
		r.logger.Debug().Str("user_id", userID).Msg("session: evicted")
		go c.Close()
	})
	return r
}

// Get returns the user's coordinator, creating it on first use, and
// refreshes its idle deadline.
func (r *Registry) Get(userID string) *generation.Coordinator {
	if v, ok := r.items.Get(userID); ok {
		c := v.(*generation.Coordinator)
		r.items.Set(userID, c, cache.DefaultExpiration)
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.items.Get(userID); ok {
		return v.(*generation.Coordinator)
	}
	// An expired entry the janitor has not swept yet would be overwritten
	// without an eviction callback.
	if stale, ok := r.live[userID]; ok {
		r.logger.Debug().Str("user_id", userID).Msg("session: expired")
		go stale.Close()
	}
	c := generation.NewCoordinator(r.base, userID, r.deps)
	r.live[userID] = c
	r.items.Set(userID, c, cache.DefaultExpiration)
	return c
}

// forget drops c from the live set unless a newer session replaced it.
func (r *Registry) forget(userID string, c *generation.Coordinator) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[userID] != c {
		return false
	}
	delete(r.live, userID)
	return true
}

// Peek returns the coordinator without creating one or refreshing it.
func (r *Registry) Peek(userID string) (*generation.Coordinator, bool) {
	v, ok := r.items.Get(userID)
	if !ok {
		return nil, false
	}
	return v.(*generation.Coordinator), true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.items.ItemCount()
}

// Close resets every session, expired or not, and waits for background work.
func (r *Registry) Close() {
	r.mu.Lock()
	live := r.live
	r.live = make(map[string]*generation.Coordinator)
	r.mu.Unlock()

	r.items.Flush()
	for _, c := range live {
		c.Close()
	}
}
