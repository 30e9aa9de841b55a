package crawler

import (
	"context"
	"time"
)

// TimerPauser sleeps for the requested delay or until ctx is done.
type TimerPauser struct{}

// Pause blocks for delay; non-positive delays return immediately.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
