package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConcurrencyCap_EnforcesLimitPerScope(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	c := NewConcurrencyCap(rdb, "calls:inflight:", 2, time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := c.Acquire(ctx, "org-1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := c.Acquire(ctx, "org-1")
	require.NoError(t, err)
	require.False(t, ok, "third slot must be rejected")

	ok, err = c.Acquire(ctx, "org-2")
	require.NoError(t, err)
	require.True(t, ok, "other scopes are independent")

	require.NoError(t, c.Release(ctx, "org-1"))
	ok, err = c.Acquire(ctx, "org-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireConcurrencyCap_RejectsBadArgs(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	_, err := AcquireConcurrencyCap(ctx, nil, "k", 1, time.Second)
	require.Error(t, err)
	_, err = AcquireConcurrencyCap(ctx, rdb, "", 1, time.Second)
	require.Error(t, err)
	_, err = AcquireConcurrencyCap(ctx, rdb, "k", 0, time.Second)
	require.Error(t, err)
	_, err = AcquireConcurrencyCap(ctx, rdb, "k", 1, 0)
	require.Error(t, err)
}

func TestLocker_SingleOwner(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewLocker(rdb)

	release, ok, err := l.TryLock(ctx, "jobs:sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "jobs:sweep", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists("jobs:sweep"))

	_, ok, err = l.TryLock(ctx, "jobs:sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
