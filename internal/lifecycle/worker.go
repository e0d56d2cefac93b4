// Package lifecycle drives events through scheduled → live → completed by
// wall clock.
package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AktharAzif/oddzy-core/internal/database"
)

type Worker struct {
	db *database.Database
}

func NewWorker(db *database.Database) *Worker {
	return &Worker{db: db}
}

// Run performs one transition pass.
func (w *Worker) Run(ctx context.Context) error {
	return w.Tick(ctx, time.Now())
}

// Tick transitions every due event. Each update runs under the event lock
// so the matcher never observes a torn state.
func (w *Worker) Tick(ctx context.Context, now time.Time) error {
	toLive, err := w.db.ListEventsToGoLive(now)
	if err != nil {
		return err
	}
	for _, ev := range toLive {
		if err := w.transition(ctx, ev.ID, database.EventLive, now); err != nil {
			log.Error().Err(err).Str("event", ev.ID).Msg("transition to live failed")
		}
	}

	toComplete, err := w.db.ListEventsToComplete(now)
	if err != nil {
		return err
	}
	for _, ev := range toComplete {
		if err := w.transition(ctx, ev.ID, database.EventCompleted, now); err != nil {
			log.Error().Err(err).Str("event", ev.ID).Msg("transition to completed failed")
		}
	}
	return nil
}

func (w *Worker) transition(ctx context.Context, eventID string, to database.EventStatus, now time.Time) error {
	return w.db.Transaction(ctx, func(tx *database.Database) error {
		if err := tx.LockEvent(eventID); err != nil {
			return err
		}
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		// Re-check under the lock; another tick may have moved it.
		switch to {
		case database.EventLive:
			if ev.Status == database.EventLive || ev.StartAt.After(now) || ev.EndAt.Before(now) {
				return nil
			}
		case database.EventCompleted:
			if ev.Status == database.EventCompleted || !ev.EndAt.Before(now) {
				return nil
			}
		}
		if err := tx.UpdateEventStatus(ev.ID, to); err != nil {
			return err
		}
		log.Info().Str("event", ev.ID).Str("status", string(to)).Msg("event transitioned")
		return nil
	})
}
