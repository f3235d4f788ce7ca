// Package poll implements cancellable interval polling with optional
// exponential backoff for long-running device-side tasks.
package poll

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrTimeout is returned when a poll exceeds its configured overall timeout.
var ErrTimeout = errors.New("poll timeout exceeded")

// Config defines polling behavior.
type Config struct {
	// Interval is the delay between consecutive probes.
	Interval time.Duration
	// MaxInterval caps the delay when backoff is enabled.
	MaxInterval time.Duration
	// Multiplier grows the interval between probes. Values <= 1 keep the
	// interval fixed.
	Multiplier float64
	// Jitter adds up to 25% randomness to each delay.
	Jitter bool
	// Timeout bounds the entire poll. Zero polls until the probe finishes
	// or the context is cancelled.
	Timeout time.Duration
}

// DefaultConfig returns the fixed one-second poll the device API was
// designed around, with no overall timeout.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		MaxInterval: time.Second,
		Multiplier:  1.0,
	}
}

// Probe inspects the remote state once. done=true ends the poll.
type Probe func(ctx context.Context) (done bool, err error)

// Wait runs the probe until it reports done, fails, or the context or
// timeout expires. The first probe runs immediately.
func Wait(ctx context.Context, cfg Config, probe Probe) error {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = cfg.Interval
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1.0
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, cfg.Timeout, ErrTimeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return pollErr(ctx)
		default:
		}

		done, err := probe(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return pollErr(ctx)
		case <-time.After(delay(cfg, attempt)):
		}
	}
}

// delay computes the wait before the next probe.
func delay(cfg Config, attempt int) time.Duration {
	d := time.Duration(float64(cfg.Interval) * math.Pow(cfg.Multiplier, float64(attempt)))
	if d > cfg.MaxInterval {
		d = cfg.MaxInterval
	}
	if cfg.Jitter && d >= 4 {
		// #nosec G404 - non-cryptographic random is fine for jitter
		d += time.Duration(rand.Int63n(int64(d / 4)))
	}
	return d
}

func pollErr(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, ctx.Err()) {
		return fmt.Errorf("%w: %v", cause, ctx.Err())
	}
	return ctx.Err()
}
