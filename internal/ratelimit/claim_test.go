package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(clk clock.Clock, enabled bool) *ClaimLimiter {
	cfg := config.Config{RateLimit: config.RateLimitConfig{
		Enabled:         enabled,
		ClaimRatePerSec: 1,
		ClaimBurst:      2,
	}}
	return NewClaimLimiter(ClaimLimiterParams{Config: cfg, Log: zap.NewNop(), Clock: clk})
}

func TestClaimLimiterLocalBucket(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	l := newTestLimiter(clk, true)

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "u-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	other, err := l.Allow(ctx, "u-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clk.Advance(time.Second)
	res, err = l.Allow(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestClaimLimiterDisabled(t *testing.T) {
	l := newTestLimiter(clock.NewFakeClock(time.Now()), false)
	for i := 0; i < 10; i++ {
		res, err := l.Allow(context.Background(), "u-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	var nilLimiter *ClaimLimiter
	res, err := nilLimiter.Allow(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestClaimLimiterRejectsEmptyUser(t *testing.T) {
	l := newTestLimiter(clock.NewFakeClock(time.Now()), true)
	_, err := l.Allow(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestClaimLimiterSweepsIdleVisitors(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	l := newTestLimiter(clk, true)

	_, err := l.Allow(context.Background(), "u-idle")
	require.NoError(t, err)
	clk.Advance(visitorIdleTTL + time.Minute)

	l.sweep(clk.Now())
	assert.NotContains(t, l.visitors, "u-idle")
}

func TestLockerNilGrantsLease(t *testing.T) {
	var l *Locker
	called := false
	ok, err := l.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, called)
}

func TestRetryAfterAndTTL(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(true, 0, 1))
	assert.Equal(t, 500*time.Millisecond, retryAfter(false, 0.5, 1))
	assert.Equal(t, 4*time.Second, bucketTTL(1, 2))
	assert.Equal(t, time.Second, bucketTTL(0, 2))
	assert.Equal(t, int64(1), castToInt("1"))
	assert.InDelta(t, 0.25, castToFloat("0.25"), 1e-9)
}
