// Package redis backs the limiter counters with a shared Redis, so quotas
// hold across all stateless replicas. Atomicity comes from Redis's native
// INCR; there is no client-side locking.
package redis

import (
	"context"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultPrefix namespaces every counter key so the out-of-band flush
	// job can clear limiter state with a single "ratelimit:*" glob without
	// touching unrelated data.
	DefaultPrefix = "ratelimit:"

	// DefaultTimeout bounds each store call. A dead or slow Redis must
	// degrade to the fail-open path promptly instead of stalling requests.
	DefaultTimeout = 250 * time.Millisecond
)

// Store implements ratelimit.CounterStore on go-redis.
//
// Every transport error is swallowed at this boundary and reported as
// ok == false; callers apply the fail-open default. Outages are logged on the
// state transition, not per request, so one incident produces one error event.
type Store struct {
	client  goredis.UniversalClient
	prefix  string
	timeout time.Duration
	log     zerolog.Logger

	down atomic.Bool
}

type Option func(*Store)

// WithPrefix overrides the key namespace. Keep it aligned with whatever the
// flush job globs.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New wraps an existing client. It does not ping: a Redis that is down at
// startup is the same incident as one that goes down later, and the limiter
// fails open either way.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:  client,
		prefix:  DefaultPrefix,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// INCR and EXPIRE ride one transaction so the counter can never be left
	// without an expiry.
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, s.prefix+key)
	pipe.Expire(ctx, s.prefix+key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.markDown(err)
		return 0, false
	}
	s.markUp()
	return incr.Val(), true
}

func (s *Store) Read(ctx context.Context, key string) (int64, time.Duration, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := s.client.Get(ctx, s.prefix+key).Int64()
	if err == goredis.Nil {
		s.markUp()
		return 0, 0, true
	}
	if err != nil {
		s.markDown(err)
		return 0, 0, false
	}
	ttl, err := s.client.TTL(ctx, s.prefix+key).Result()
	if err != nil {
		s.markDown(err)
		return 0, 0, false
	}
	s.markUp()
	if ttl < 0 {
		ttl = 0
	}
	return value, ttl, true
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) markDown(err error) {
	if s.down.CompareAndSwap(false, true) {
		s.log.Error().Err(err).Msg("counter store unavailable, limiter failing open")
	}
}

func (s *Store) markUp() {
	if s.down.CompareAndSwap(true, false) {
		s.log.Info().Msg("counter store reachable again")
	}
}
