package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_BurstAvailable(t *testing.T) {
	l := New(100, 100)
	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWait_Unlimited(t *testing.T) {
	l := New(0, 0)
	for range 50 {
		require.NoError(t, l.Wait(context.Background()))
	}
}

func TestWait_NilLimiter(t *testing.T) {
	var l *Limiter
	assert.NoError(t, l.Wait(context.Background()))
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(1, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestWait_JitterWithinBounds(t *testing.T) {
	const expected = 250 * time.Millisecond
	margin := time.Duration(float64(expected) * (jitterFactor + 0.05))

	for range 3 {
		l := New(4, 1)
		require.NoError(t, l.Wait(context.Background()))

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := l.Wait(ctx)
		cancel()
		require.NoError(t, err)

		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, expected-margin)
		assert.LessOrEqual(t, elapsed, expected+margin)
	}
}
