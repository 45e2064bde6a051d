// Package ratelimit counts requests per key against a fixed budget. The
// Redis limiter shares counters between instances; the local limiter is
// used when Redis is not configured.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/database"
)

// Decision is the outcome of a single Allow call
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter decides whether a request identified by key fits the policy
type Limiter interface {
	Allow(ctx context.Context, key string, policy config.RateLimitPolicy) (Decision, error)
}

// RedisLimiter is a fixed-window limiter backed by Redis counters
type RedisLimiter struct {
	rdb    *database.Redis
	prefix string
}

// NewRedisLimiter creates a new RedisLimiter
func NewRedisLimiter(rdb *database.Redis) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: "ratelimit:"}
}

// Allow counts the request and reports whether it is within the limit
func (l *RedisLimiter) Allow(ctx context.Context, key string, policy config.RateLimitPolicy) (Decision, error) {
	count, ttl, err := l.rdb.IncrWindow(ctx, l.prefix+key, policy.Window)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:    count <= int64(policy.Limit),
		Limit:      policy.Limit,
		Remaining:  max(0, policy.Limit-int(count)),
		ResetAfter: ttl,
	}, nil
}

const sweepEvery = 1024

// LocalLimiter is an in-process token bucket limiter. The bucket holds
// Limit tokens and refills at Limit per Window.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	window   time.Duration
}

// NewLocalLimiter creates a new LocalLimiter
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow takes a token from the bucket of key
func (l *LocalLimiter) Allow(_ context.Context, key string, policy config.RateLimitPolicy) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		every := policy.Window / time.Duration(max(1, policy.Limit))
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), policy.Limit), window: policy.Window}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	remaining := int(b.limiter.TokensAt(now))

	var reset time.Duration
	if !allowed {
		// the reservation is only used to read the delay
		r := b.limiter.ReserveN(now, 1)
		reset = r.DelayFrom(now)
		r.CancelAt(now)
	}
	return Decision{
		Allowed:    allowed,
		Limit:      policy.Limit,
		Remaining:  max(0, remaining),
		ResetAfter: reset,
	}, nil
}

// sweep drops buckets that have been idle for a full window and are
// therefore back at capacity.
func (l *LocalLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > b.window {
			delete(l.buckets, key)
		}
	}
}
