package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mx-space/capture/internal/pkg/apperr"
	redisc "github.com/mx-space/capture/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func (m *memoryCounter) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[key]++
	m.keys = append(m.keys, key)
	return m.counts[key], nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestGuardRejectsOverLimit(t *testing.T) {
	counter := &memoryCounter{}
	g := NewGuard(counter, time.Minute, map[Class]int{ClassCommit: 2}, nil)
	g.now = fixedClock(time.Date(2024, 5, 1, 10, 0, 15, 0, time.UTC))
	ctx := context.Background()

	assert.True(t, g.Allow(ctx, "u1", ClassCommit).Allowed)
	assert.True(t, g.Allow(ctx, "u1", ClassCommit).Allowed)

	d := g.Allow(ctx, "u1", ClassCommit)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(3), d.Count)
	assert.Equal(t, 45*time.Second, d.RetryAfter)

	assert.True(t, g.Allow(ctx, "u2", ClassCommit).Allowed, "callers are counted separately")
	assert.True(t, g.Allow(ctx, "u1", ClassUpload).Allowed, "unlimited class")
}

func TestGuardWindowsAreFixed(t *testing.T) {
	counter := &memoryCounter{}
	g := NewGuard(counter, time.Minute, map[Class]int{ClassUpload: 1}, nil)
	ctx := context.Background()

	g.now = fixedClock(time.Date(2024, 5, 1, 10, 0, 59, 0, time.UTC))
	assert.True(t, g.Allow(ctx, "u1", ClassUpload).Allowed)
	assert.False(t, g.Allow(ctx, "u1", ClassUpload).Allowed)

	g.now = fixedClock(time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC))
	assert.True(t, g.Allow(ctx, "u1", ClassUpload).Allowed)

	require.Len(t, counter.keys, 3)
	assert.Equal(t, "capture:rate_limit:upload:u1:1714557600", counter.keys[0])
	assert.NotEqual(t, counter.keys[0], counter.keys[2])
}

func TestGuardFailsOpen(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	counter := &memoryCounter{err: errors.New("connection refused")}
	g := NewGuard(counter, time.Minute, map[Class]int{ClassCapture: 1}, zap.New(core))

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Check(context.Background(), "u1", ClassCapture))
	}
	assert.Equal(t, 3, logs.FilterMessage("rate limit store unavailable, admitting request").Len())

	nilStore := NewGuard(nil, time.Minute, map[Class]int{ClassCapture: 1}, nil)
	assert.True(t, nilStore.Allow(context.Background(), "u1", ClassCapture).Allowed)
}

func TestCheckReturnsRateLimited(t *testing.T) {
	g := NewGuard(&memoryCounter{}, time.Minute, map[Class]int{ClassCommit: 1}, nil)
	g.now = fixedClock(time.Date(2024, 5, 1, 10, 0, 59, 500_000_000, time.UTC))
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, "u1", ClassCommit))
	err := g.Check(ctx, "u1", ClassCommit)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeRateLimited))

	e, _ := apperr.As(err)
	assert.Equal(t, 1, e.Details["retry_after"])
	assert.Equal(t, "commit", e.Details["class"])
}

func TestGuardWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	g := NewGuard(redisc.New(rdb), 10*time.Second, map[Class]int{ClassCommit: 2}, nil)
	g.now = fixedClock(time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	assert.True(t, g.Allow(ctx, "u1", ClassCommit).Allowed)
	assert.True(t, g.Allow(ctx, "u1", ClassCommit).Allowed)
	assert.False(t, g.Allow(ctx, "u1", ClassCommit).Allowed)

	key := "capture:rate_limit:commit:u1:1700000000"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 11*time.Second, mr.TTL(key))

	mr.Close()
	assert.True(t, g.Allow(ctx, "u1", ClassCommit).Allowed, "store outage admits")
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(0))
	assert.Equal(t, 1, RetryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 3, RetryAfterSeconds(2100*time.Millisecond))
}
