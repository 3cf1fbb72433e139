// Package ratelimit implements the per-(backend, model, key) cooldown
// table: a standalone, explicitly keyed registry generalizing an
// unavailable-until-retry check from a single credential selector into a
// table any number of dispatcher attempts can consult.
package ratelimit

import (
	"sync"
	"time"
)

type key struct {
	backend string
	model   string
	keyName string
}

// Registry is a single-mutex table of earliest-retry timestamps, consulted
// and updated by the dispatcher on every attempt.
type Registry struct {
	mu      sync.Mutex
	entries map[key]time.Time
	now     func() time.Time
}

// NewRegistry constructs an empty rate-limit registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[key]time.Time),
		now:     time.Now,
	}
}

// Set records that (backend, model, keyName) must not be retried until
// delay has elapsed from now.
func (r *Registry) Set(backend, model, keyName string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{backend, model, keyName}] = r.now().Add(delay)
}

// Get returns the recorded earliest-retry time if it is still in the
// future. An expired entry is deleted as a side effect and nil is
// returned.
func (r *Registry) Get(backend, model, keyName string) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{backend, model, keyName}
	until, ok := r.entries[k]
	if !ok {
		return nil
	}
	if !until.After(r.now()) {
		delete(r.entries, k)
		return nil
	}
	out := until
	return &out
}

// Earliest returns the minimum earliest-retry time across every live entry,
// or nil if the registry is empty. Expired entries encountered along the way
// are pruned.
func (r *Registry) Earliest() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.earliestLocked()
}

// NextAvailable is an alias for Earliest used by the dispatcher when every
// candidate key in a route is currently blocked and it must report when
// the soonest retry becomes possible.
func (r *Registry) NextAvailable() *time.Time {
	return r.Earliest()
}

func (r *Registry) earliestLocked() *time.Time {
	now := r.now()
	var earliest *time.Time
	for k, until := range r.entries {
		if !until.After(now) {
			delete(r.entries, k)
			continue
		}
		if earliest == nil || until.Before(*earliest) {
			t := until
			earliest = &t
		}
	}
	return earliest
}
