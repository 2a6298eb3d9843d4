package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rhuss/steward/pkg/permission"
)

// RateLimiter decides whether a caller may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds the rate limit of one permission tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter counts requests per subject and tier in fixed one-minute
// windows. Counters live in memory and are not shared between replicas.
type InProcessLimiter struct {
	tiers      map[permission.Level]TierConfig
	defaultRPM int
	now        func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a limiter. Tiers without an entry use
// defaultRPM; a limit of zero or less disables limiting for that tier.
func NewInProcessLimiter(tiers map[permission.Level]TierConfig, defaultRPM int) *InProcessLimiter {
	copied := make(map[permission.Level]TierConfig, len(tiers))
	for k, v := range tiers {
		copied[k] = v
	}
	return &InProcessLimiter{
		tiers:      copied,
		defaultRPM: defaultRPM,
		now:        time.Now,
		counters:   make(map[string]*counter),
	}
}

// Allow records one request and returns ErrTooManyRequests once the
// caller's tier limit for the current window is exceeded.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Level()
	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + string(tier)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[key] = &counter{count: 1, windowAt: now}
		l.sweepLocked(now)
		return nil
	}

	c.count++
	if c.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}

// sweepLocked drops counters whose window ended, so one-off callers do not
// accumulate.
func (l *InProcessLimiter) sweepLocked(now time.Time) {
	if len(l.counters) < 1024 {
		return
	}
	for k, c := range l.counters {
		if now.Sub(c.windowAt) >= time.Minute {
			delete(l.counters, k)
		}
	}
}
