package api

import (
	"context"
	"sync"
	"time"

	"github.com/volthome/volt-core/internal/infrastructure/config"
)

const (
	// bucketWindow is the refill interval: a user's budget resets one
	// window after their first request in it.
	bucketWindow = time.Minute

	// bucketIdleTTL is how long an untouched bucket survives before the
	// cleanup loop drops it.
	bucketIdleTTL = 10 * time.Minute

	cleanupInterval = time.Minute
)

// bucket tracks one user's remaining budget within the current window.
type bucket struct {
	tokens  int
	resetAt time.Time
}

// rateLimiter is a fixed-window limiter keyed by (user, route name).
// State is in-memory, which is adequate for a single-instance backend;
// running multiple instances multiplies the effective budget.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	enabled bool
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	limit := cfg.RequestsPerMinute
	if limit <= 0 {
		limit = 60 //nolint:mnd // default budget when enabled without a value
	}
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		enabled: cfg.Enabled,
	}
}

// allow reports whether the user may make another request on the named
// route, consuming one token if so.
func (l *rateLimiter) allow(userID, name string) bool {
	if !l.enabled {
		return true
	}
	if userID == "" {
		userID = "anonymous"
	}

	key := userID + "|" + name
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{tokens: l.limit, resetAt: now.Add(bucketWindow)}
		l.buckets[key] = b
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// cleanupLoop periodically drops buckets that have sat idle past their
// window, bounding memory for long-running processes.
func (l *rateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup(time.Now())
		}
	}
}

func (l *rateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.resetAt) > bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
}
