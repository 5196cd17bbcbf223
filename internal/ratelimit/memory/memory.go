// Package memory provides an in-process counter store.
//
// State is local to the process and not shared across replicas, so it cannot
// enforce a global limit. Use it for tests, local development and
// single-instance deployments; production runs want the redis store.
package memory

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	value   int64
	expires time.Time
}

// Store is a fixed-window counter map guarded by a mutex. It implements
// ratelimit.CounterStore and is always available (ok is always true).
type Store struct {
	now func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

func New() *Store {
	return &Store{
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

func (s *Store) Increment(_ context.Context, key string, ttl time.Duration) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, exists := s.counters[key]
	if !exists || now.After(c.expires) {
		c = &counter{}
		s.counters[key] = c
	}
	c.value++
	c.expires = now.Add(ttl)
	return c.value, true
}

func (s *Store) Read(_ context.Context, key string) (int64, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, exists := s.counters[key]
	if !exists || now.After(c.expires) {
		return 0, 0, true
	}
	return c.value, c.expires.Sub(now), true
}
