package clock

import (
	"context"
	"sync"
	"time"
)

// Mock is a manipulable clock for use in tests where we want to mess with the
// time. Sleep returns immediately, advancing the clock and recording the
// requested duration.
type Mock interface {
	Clock

	// Set allows the caller to set the time of the Mock clock instance
	Set(t time.Time)

	// Add changes the clocks time by the passed in duration
	Add(d time.Duration)

	// Sleeps returns every duration passed to Sleep so far
	Sleeps() []time.Duration
}

// NewMock creates a new mock clock initialized to the passed in time
func NewMock(t time.Time) Mock {
	return &mockClock{
		baseTime: t,
	}
}

type mockClock struct {
	sync.Mutex
	baseTime time.Time
	sleeps   []time.Duration
}

func (m *mockClock) Now() time.Time {
	defer m.Unlock()
	m.Lock()

	return m.baseTime
}

func (m *mockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	defer m.Unlock()
	m.Lock()

	m.sleeps = append(m.sleeps, d)
	m.baseTime = m.baseTime.Add(d)
	return nil
}

func (m *mockClock) Set(t time.Time) {
	defer m.Unlock()
	m.Lock()

	m.baseTime = t
}

func (m *mockClock) Add(d time.Duration) {
	defer m.Unlock()
	m.Lock()

	m.baseTime = m.baseTime.Add(d)
}

func (m *mockClock) Sleeps() []time.Duration {
	defer m.Unlock()
	m.Lock()

	out := make([]time.Duration, len(m.sleeps))
	copy(out, m.sleeps)
	return out
}
