package engine

import (
	"context"
	"time"
)

// Clock abstracts time for the retry backoff so tests run without
// real sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the duration or until the context is cancelled,
	// returning the context error in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SystemClock returns the real-time clock.
func SystemClock() Clock {
	return systemClock{}
}
