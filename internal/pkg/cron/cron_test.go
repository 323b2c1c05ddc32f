package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNowRecordsOutcome(t *testing.T) {
	s := New(nil)
	s.Register(Job{Name: "ok", Interval: time.Hour, Fn: func(context.Context) error { return nil }})
	s.Register(Job{Name: "bad", Interval: time.Hour, Fn: func(context.Context) error { return errors.New("disk full") }})

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "bad", items[0].Name)
	assert.Equal(t, StatusIdle, items[0].Status)
	assert.Nil(t, items[0].LastRunAt)

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	require.NoError(t, s.RunNow(context.Background(), "bad"))

	items = s.List()
	assert.Equal(t, StatusReject, items[0].Status)
	assert.Equal(t, "disk full", items[0].Message)
	assert.NotNil(t, items[0].LastRunAt)
	assert.Equal(t, StatusFulfill, items[1].Status)
	assert.Empty(t, items[1].Message)
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(nil)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrJobNotFound)
}

func TestStartRunsOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := New(nil)
	s.Register(Job{Name: "tick", Interval: 10 * time.Millisecond, Fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}
