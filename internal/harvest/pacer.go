package harvest

import (
	"context"
	"time"
)

// TimerPacer sleeps for real, returning early when ctx is done.
type TimerPacer struct{}

// Sleep waits d or until ctx is done.
func (TimerPacer) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
