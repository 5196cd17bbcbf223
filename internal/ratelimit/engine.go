package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CounterStore is the minimal surface the engine needs from a shared counter
// backend. The second return is an availability signal, not an error: ok ==
// false means the store could not be reached and the caller must fail open.
// Implementations convert every transport problem to that signal and do their
// own logging; infrastructure trouble never surfaces as an error here.
type CounterStore interface {
	// Increment atomically adds 1 to key and (re)sets its expiry.
	Increment(ctx context.Context, key string, ttl time.Duration) (value int64, ok bool)

	// Read returns the current value and remaining TTL without mutating.
	// A missing key reads as (0, 0, true).
	Read(ctx context.Context, key string) (value int64, ttlRemaining time.Duration, ok bool)
}

// QuotaResult is the outcome of a quota check.
//
// Remaining is always max(0, Limit-Used). ResetAt is epoch seconds; for the
// minute period, user-facing surfaces render it as seconds-until-boundary
// instead (see gateway.DecorateHeaders) but the stored value stays absolute.
type QuotaResult struct {
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   int64  `json:"reset_at"`
	Exceeded  bool   `json:"exceeded"`
	Period    string `json:"period"`
}

// Engine answers "is this identity over quota for this endpoint and period".
// It owns no state beyond its collaborators; construct one in main and inject
// it wherever checks happen.
type Engine struct {
	store CounterStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewEngine(store CounterStore, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Check evaluates one request against a "<count>/<period>" limit spec.
//
// A malformed spec returns an error: a misconfigured limit is a programming
// error and is not papered over. Store unavailability is not an error; the
// result then fails open (Exceeded=false, Remaining=Limit) so the limiter
// never blocks traffic because its own infrastructure is down.
//
// When checkOnly is set the counters are read, not incremented.
func (e *Engine) Check(ctx context.Context, identity Identity, endpoint, method, spec string, checkOnly bool) (QuotaResult, error) {
	limit, period, err := ParseLimitSpec(spec)
	if err != nil {
		return QuotaResult{}, err
	}

	ep := NormalizeEndpoint(endpoint)
	keys := BuildKeys(string(identity), ep, method, period)
	ttl := time.Duration(TTLSeconds(period)) * time.Second
	now := e.now()

	var used int64
	resetAt := now.Add(ttl).Unix()

	if checkOnly {
		value, remaining, ok := e.store.Read(ctx, keys[0])
		if !ok {
			return e.failOpen(limit, period, now, ttl), nil
		}
		used = value
		if remaining > 0 {
			resetAt = now.Add(remaining).Unix()
		}
	} else {
		// All three keys are bumped, but only the primary decides. A partial
		// failure on the breakdown keys costs analytics, never correctness.
		value, ok := e.store.Increment(ctx, keys[0], ttl)
		if !ok {
			return e.failOpen(limit, period, now, ttl), nil
		}
		used = value
		for _, k := range keys[1:] {
			e.store.Increment(ctx, k, ttl)
		}
	}

	res := QuotaResult{
		Used:      int(used),
		Limit:     limit,
		Remaining: max(limit-int(used), 0),
		ResetAt:   resetAt,
		Exceeded:  used > int64(limit),
		Period:    period,
	}
	return res, nil
}

func (e *Engine) failOpen(limit int, period string, now time.Time, ttl time.Duration) QuotaResult {
	e.log.Debug().Str("period", period).Msg("counter store unavailable, failing open")
	return QuotaResult{
		Used:      0,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(ttl).Unix(),
		Exceeded:  false,
		Period:    period,
	}
}
