package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_DoneOnFirstProbe(t *testing.T) {
	calls := 0
	err := Wait(context.Background(), DefaultConfig(), func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWait_ProbeError(t *testing.T) {
	probeErr := errors.New("boom")
	err := Wait(context.Background(), DefaultConfig(), func(context.Context) (bool, error) {
		return false, probeErr
	})
	assert.ErrorIs(t, err, probeErr)
}

func TestWait_EventuallyDone(t *testing.T) {
	cfg := Config{Interval: time.Millisecond}
	calls := 0
	err := Wait(context.Background(), cfg, func(context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWait_Timeout(t *testing.T) {
	cfg := Config{Interval: time.Millisecond, Timeout: 20 * time.Millisecond}
	err := Wait(context.Background(), cfg, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWait_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{Interval: 50 * time.Millisecond}

	done := make(chan error, 1)
	go func() {
		done <- Wait(ctx, cfg, func(context.Context) (bool, error) {
			return false, nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll did not stop on cancellation")
	}
}

func TestDelay_Backoff(t *testing.T) {
	cfg := Config{Interval: time.Second, MaxInterval: 4 * time.Second, Multiplier: 2.0}

	assert.Equal(t, time.Second, delay(cfg, 0))
	assert.Equal(t, 2*time.Second, delay(cfg, 1))
	assert.Equal(t, 4*time.Second, delay(cfg, 2))
	// Capped at MaxInterval from here on.
	assert.Equal(t, 4*time.Second, delay(cfg, 5))
}

func TestDelay_FixedInterval(t *testing.T) {
	cfg := Config{Interval: time.Second, MaxInterval: time.Second, Multiplier: 1.0}
	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, time.Second, delay(cfg, attempt))
	}
}

func TestDelay_Jitter(t *testing.T) {
	cfg := Config{Interval: 100 * time.Millisecond, MaxInterval: 100 * time.Millisecond, Multiplier: 1.0, Jitter: true}
	for attempt := 0; attempt < 20; attempt++ {
		d := delay(cfg, attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}
