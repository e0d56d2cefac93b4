package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32

	done := make(chan struct{})
	go func() {
		Loop(ctx, "test", 5*time.Millisecond, func(context.Context) error {
			ticks.Add(1)
			return nil
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestLoopSurvivesIterationErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ticks atomic.Int32

	go Loop(ctx, "test", 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return context.DeadlineExceeded
	})

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
}
