package ratelimit

import (
	"context"
	"time"

	"agentpost/internal/store"
)

// Scopes partition the rate keyspace so that abuse and honest-mistake
// retries are throttled independently.
const (
	ScopeReply    = "reply"
	ScopeRead     = "read"
	ScopeRegister = "register"
	// ScopeFailed counts requests that failed validation, so a
	// misconfigured client backs off without eating its honest quota.
	ScopeFailed = "failed"
)

// Config contains the sliding-window policies. Window and ceilings are
// configuration, not hardcoded per caller.
type Config struct {
	Window            time.Duration
	RegisteredLimit   int
	UnregisteredLimit int
	FailedLimit       int
}

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Limit      int
}

// Limiter bounds retry and abuse traffic on the free write paths using a
// sliding window of request timestamps per identity key. The
// read-filter-write cycle is not atomic; under concurrency the window can
// slightly under-count, which is accepted for these paths.
type Limiter struct {
	store  store.RecordStore
	config Config
}

func NewLimiter(s store.RecordStore, config Config) *Limiter {
	return &Limiter{store: s, config: config}
}

// LimitFor returns the ceiling that applies to a sender, by registration
// status.
func (l *Limiter) LimitFor(registered bool) int {
	if registered {
		return l.config.RegisteredLimit
	}
	return l.config.UnregisteredLimit
}

// FailedLimit returns the ceiling for the failed-validation scope.
func (l *Limiter) FailedLimit() int {
	return l.config.FailedLimit
}

// Allow checks whether identity has budget left in scope. Entries older
// than the window are discarded on every check.
func (l *Limiter) Allow(ctx context.Context, scope, identity string, limit int) (*Result, error) {
	key := rateKey(scope, identity)
	now := time.Now()

	stamps, err := l.store.GetRateWindow(ctx, key)
	if err != nil {
		return nil, err
	}
	recent := prune(stamps, now.Add(-l.config.Window))

	if len(recent) >= limit {
		retryAfter := recent[0].Add(l.config.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter, Limit: limit}, nil
	}
	return &Result{Allowed: true, Remaining: limit - len(recent), Limit: limit}, nil
}

// Record charges one request against identity's window in scope.
func (l *Limiter) Record(ctx context.Context, scope, identity string) error {
	key := rateKey(scope, identity)
	now := time.Now()

	stamps, err := l.store.GetRateWindow(ctx, key)
	if err != nil {
		return err
	}
	recent := append(prune(stamps, now.Add(-l.config.Window)), now)
	return l.store.SaveRateWindow(ctx, key, recent, l.config.Window)
}

func rateKey(scope, identity string) string {
	return "rate:" + scope + ":" + identity
}

// prune drops timestamps at or before the cutoff, preserving order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	out := stamps[:0:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
