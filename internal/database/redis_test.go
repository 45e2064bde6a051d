package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWithClient(client), mr
}

func TestIncrWindow(t *testing.T) {
	rdb, mr := newTestRedis(t)
	ctx := context.Background()

	n, ttl, err := rdb.IncrWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(20 * time.Second)
	n, ttl, err = rdb.IncrWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 40*time.Second, ttl)

	mr.FastForward(time.Minute)
	n, _, err = rdb.IncrWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "a new window starts after expiry")
}

func TestIncrWindowRestoresLostExpiry(t *testing.T) {
	rdb, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("k", "5"))
	n, ttl, err := rdb.IncrWindow(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	assert.Equal(t, time.Minute, ttl)
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestTake(t *testing.T) {
	rdb, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("k", "v"))
	v, err := rdb.Take(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.False(t, mr.Exists("k"))

	_, err = rdb.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestHealthCheck(t *testing.T) {
	rdb, mr := newTestRedis(t)
	require.NoError(t, rdb.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, rdb.HealthCheck(context.Background()))
}
