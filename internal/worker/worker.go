// Package worker runs the background loops.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Loop ticks fn every interval until ctx is cancelled. A single-flight
// guard skips a tick while the previous one is still running; cross-loop
// correctness comes from the database advisory locks, not from here.
// Iteration failures are logged and the next tick retries naturally.
func Loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	var running atomic.Bool

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Str("worker", name).Dur("interval", interval).Msg("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("worker", name).Msg("worker stopped")
			return
		case <-ticker.C:
			if !running.CompareAndSwap(false, true) {
				continue
			}
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Str("worker", name).Msg("worker iteration failed")
			}
			running.Store(false)
		}
	}
}
