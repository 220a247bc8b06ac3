package clock

import (
	"context"
	"time"
)

// Clock is our interface for a type that can tell the time and wait. Code that
// polls or delays takes a Clock so tests can run without real sleeps.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// Sleep blocks for d, returning early with the context's error if ctx is
	// done first
	Sleep(ctx context.Context, d time.Duration) error
}

// New returns a new real Clock instance.
func New() Clock {
	return &realClock{}
}

type realClock struct{}

func (r *realClock) Now() time.Time {
	return time.Now()
}

func (r *realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
