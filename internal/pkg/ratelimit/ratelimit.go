// Package ratelimit implements a per-caller fixed-window request counter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mx-space/capture/internal/pkg/apperr"
	"go.uber.org/zap"
)

// Class names a group of operations that share one counter per caller.
type Class string

const (
	ClassUpload  Class = "upload"
	ClassCommit  Class = "commit"
	ClassCapture Class = "capture"
)

const keyPrefix = "capture:rate_limit:"

// Counter is an atomic increment store with expiring keys.
type Counter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Guard admits or rejects calls per caller and class within fixed windows.
type Guard struct {
	counter Counter
	window  time.Duration
	limits  map[Class]int
	logger  *zap.Logger
	now     func() time.Time
}

// NewGuard builds a guard. Classes without a positive limit are unlimited.
func NewGuard(counter Counter, window time.Duration, limits map[Class]int, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Guard{
		counter: counter,
		window:  window,
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
}

// Allow counts one call by caller in class. Errors from the counter store
// admit the call.
func (g *Guard) Allow(ctx context.Context, caller string, class Class) Decision {
	limit := g.limits[class]
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit}
	}

	now := g.now()
	start := now.Truncate(g.window)
	retryAfter := start.Add(g.window).Sub(now)

	if g.counter == nil {
		g.failOpen(caller, class, errors.New("no counter store configured"))
		return Decision{Allowed: true, Limit: limit}
	}

	key := g.key(caller, class, start)
	count, err := g.counter.IncrWindow(ctx, key, g.window+time.Second)
	if err != nil {
		g.failOpen(caller, class, err)
		return Decision{Allowed: true, Limit: limit}
	}

	return Decision{
		Allowed:    count <= int64(limit),
		Count:      count,
		Limit:      limit,
		RetryAfter: retryAfter,
	}
}

// Check is Allow reported as an error: a RATE_LIMITED apperr when the call
// is rejected, nil otherwise.
func (g *Guard) Check(ctx context.Context, caller string, class Class) error {
	d := g.Allow(ctx, caller, class)
	if d.Allowed {
		return nil
	}
	return apperr.RateLimited(string(class), RetryAfterSeconds(d.RetryAfter))
}

// RetryAfterSeconds rounds d up to whole seconds, minimum 1.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (g *Guard) key(caller string, class Class, start time.Time) string {
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, class, caller, start.Unix())
}

func (g *Guard) failOpen(caller string, class Class, err error) {
	g.logger.Warn("rate limit store unavailable, admitting request",
		zap.String("caller", caller),
		zap.String("class", string(class)),
		zap.Error(err),
	)
}
