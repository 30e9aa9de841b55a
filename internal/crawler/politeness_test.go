package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerPauserHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	TimerPauser{}.Pause(ctx, 5*time.Second)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestTimerPauserWaits(t *testing.T) {
	start := time.Now()
	TimerPauser{}.Pause(context.Background(), 20*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimerPauserSkipsNonPositiveDelay(t *testing.T) {
	start := time.Now()
	TimerPauser{}.Pause(context.Background(), 0)
	TimerPauser{}.Pause(context.Background(), -time.Second)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
