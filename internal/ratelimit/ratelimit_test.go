package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/database"
)

var policy = config.RateLimitPolicy{Limit: 3, Window: time.Minute}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLimiter(database.NewRedisWithClient(client))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "login:1.2.3.4", policy)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "login:1.2.3.4", policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, time.Minute, d.ResetAfter)

	// other keys have their own budget
	d, err = l.Allow(ctx, "login:5.6.7.8", policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.FastForward(time.Minute + time.Second)
	d, err = l.Allow(ctx, "login:1.2.3.4", policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiterError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLimiter(database.NewRedisWithClient(client))
	mr.Close()

	_, err := l.Allow(context.Background(), "k", policy)
	assert.Error(t, err)
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "k", policy)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
	}

	d, err := l.Allow(ctx, "k", policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.InDelta(t, float64(20*time.Second), float64(d.ResetAfter), float64(time.Millisecond))

	// denied requests do not consume tokens
	now = now.Add(21 * time.Second)
	d, err = l.Allow(ctx, "k", policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLocalLimiterSweepsIdleBuckets(t *testing.T) {
	l := NewLocalLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := l.Allow(ctx, "idle", policy)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		_, err := l.Allow(ctx, fmt.Sprintf("busy-%d", i%4), policy)
		require.NoError(t, err)
	}

	l.mu.Lock()
	_, ok := l.buckets["idle"]
	l.mu.Unlock()
	assert.False(t, ok)
}
