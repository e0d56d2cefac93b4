// Package matching pairs compatible buy and sell orders.
//
// The worker drains bet_queue in created-at order, groups entries by
// event, and processes each event's entries sequentially under that
// event's advisory lock. Independent events fan out over a bounded pool.
package matching

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/AktharAzif/oddzy-core/internal/database"
	"github.com/AktharAzif/oddzy-core/internal/payout"
	"github.com/AktharAzif/oddzy-core/internal/wallet"
)

type Worker struct {
	db          *database.Database
	concurrency int
}

func NewWorker(db *database.Database, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{db: db, concurrency: concurrency}
}

// Run performs one matching pass over the queue.
func (w *Worker) Run(ctx context.Context) error {
	entries, err := w.db.ScanQueue()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	// Group by event, preserving queue order within and across groups.
	order := make([]string, 0, len(entries))
	groups := make(map[string][]database.BetQueue)
	for _, e := range entries {
		if _, ok := groups[e.EventID]; !ok {
			order = append(order, e.EventID)
		}
		groups[e.EventID] = append(groups[e.EventID], e)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, eventID := range order {
		batch := groups[eventID]
		g.Go(func() error {
			for _, entry := range batch {
				if err := w.matchOne(ctx, entry.BetID, entry.EventID); err != nil {
					// The entry stays queued; the next tick retries it.
					log.Error().Err(err).
						Str("bet", entry.BetID).
						Str("event", entry.EventID).
						Msg("match attempt failed")
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) matchOne(ctx context.Context, betID, eventID string) error {
	return w.db.Transaction(ctx, func(tx *database.Database) error {
		if err := tx.LockEvent(eventID); err != nil {
			return err
		}
		bet, err := tx.GetBet(betID)
		if database.IsNotFound(err) {
			return tx.Dequeue(betID)
		}
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		// No matching once the event has completed; resolution owns the
		// remaining open interest.
		if ev.Status == database.EventCompleted {
			return tx.Dequeue(betID)
		}
		if bet.UnmatchedQuantity == 0 {
			return tx.Dequeue(betID)
		}

		candidates, err := w.candidates(tx, ev, bet)
		if err != nil {
			return err
		}

		// Price×size priority, age tiebreak: larger standing intents fill
		// first.
		sort.SliceStable(candidates, func(i, j int) bool {
			ti, tj := candidates[i].TotalPrice(), candidates[j].TotalPrice()
			if !ti.Equal(tj) {
				return ti.GreaterThan(tj)
			}
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})

		// Take candidates by cumulative unmatched quantity until the taker
		// is covered; the last one may fill partially.
		var cum int64
		var selected []database.Bet
		for i := range candidates {
			if cum >= bet.UnmatchedQuantity {
				break
			}
			selected = append(selected, candidates[i])
			cum += candidates[i].UnmatchedQuantity
		}

		remaining := bet.UnmatchedQuantity
		var rows []database.Matched
		var updates []database.UnmatchedUpdate
		for i := range selected {
			c := &selected[i]
			m := remaining
			if c.UnmatchedQuantity < m {
				m = c.UnmatchedQuantity
			}
			c.UnmatchedQuantity -= m
			remaining -= m
			rows = append(rows, database.Matched{
				BetID:        bet.ID,
				MatchedBetID: c.ID,
				Quantity:     m,
			})
			if c.Type == database.BetSell && c.UnmatchedQuantity == 0 && !c.IsPlatform() {
				if err := settleSell(tx, ev, c); err != nil {
					return err
				}
			} else {
				updates = append(updates, database.UnmatchedUpdate{BetID: c.ID, Unmatched: c.UnmatchedQuantity})
			}
		}

		bet.UnmatchedQuantity = remaining
		if bet.Type == database.BetSell && remaining == 0 && !bet.IsPlatform() {
			if err := settleSell(tx, ev, bet); err != nil {
				return err
			}
		} else {
			updates = append(updates, database.UnmatchedUpdate{BetID: bet.ID, Unmatched: remaining})
		}

		if err := tx.InsertMatched(rows); err != nil {
			return err
		}
		if err := tx.UpdateBetsUnmatched(updates); err != nil {
			return err
		}
		if len(rows) > 0 {
			log.Debug().
				Str("bet", bet.ID).
				Int("pairs", len(rows)).
				Int64("left", remaining).
				Msg("matched")
		}
		return tx.Dequeue(betID)
	})
}

// candidates returns the counter-orders in the slippage band for the
// taker.
//
// Buy takers pair two ways: cross-side against buys on the sibling option
// whose price complements theirs to winPrice, or against sells on their
// own option. Sell takers pair only against user buys on the same option.
// Platform takers (synthesized sells) are further restricted to user buys
// so platform inventory never matches itself.
func (w *Worker) candidates(tx *database.Database, ev *database.Event, bet *database.Bet) ([]database.Bet, error) {
	_, other, err := siblingOption(tx, ev, bet.OptionID)
	if err != nil {
		return nil, err
	}
	p := bet.PricePerQuantity

	var out []database.Bet
	if bet.Type == database.BetBuy && !bet.IsPlatform() {
		crossBuys, err := tx.ListOpenBets(ev.ID, other.ID, database.BetBuy, false)
		if err != nil {
			return nil, err
		}
		complement := ev.WinPrice.Sub(p)
		for _, c := range crossBuys {
			if c.ID != bet.ID && inBand(c.PricePerQuantity, complement, ev.Slippage) {
				out = append(out, c)
			}
		}
		sells, err := tx.ListOpenBets(ev.ID, bet.OptionID, database.BetSell, false)
		if err != nil {
			return nil, err
		}
		for _, c := range sells {
			if c.ID != bet.ID && inBand(c.PricePerQuantity, p, ev.Slippage) {
				out = append(out, c)
			}
		}
		return out, nil
	}

	buys, err := tx.ListOpenBets(ev.ID, bet.OptionID, database.BetBuy, true)
	if err != nil {
		return nil, err
	}
	for _, c := range buys {
		if c.ID != bet.ID && inBand(c.PricePerQuantity, p, ev.Slippage) {
			out = append(out, c)
		}
	}
	return out, nil
}

func inBand(price, target, slippage decimal.Decimal) bool {
	return price.Sub(target).Abs().LessThanOrEqual(slippage)
}

// settleSell realises a fully-matched user sell: profit and commission on
// the bet, cash-out row on the ledger.
func settleSell(tx *database.Database, ev *database.Event, bet *database.Bet) error {
	res := payout.Settle(bet.Quantity, *bet.BuyBetPricePerQuantity, bet.PricePerQuantity,
		ev.PlatformFeesPercentage, bet.RewardAmountUsed)
	bet.Profit = &res.Profit
	bet.PlatformCommission = &res.Commission
	if err := tx.SaveBet(bet); err != nil {
		return err
	}
	t := wallet.Payout(ev, bet, database.TxForBet, bet.Quantity, res.CashOut, res.RewardOut)
	return tx.InsertTransaction(&t)
}

func siblingOption(tx *database.Database, ev *database.Event, optionID int) (chosen, other *database.Option, err error) {
	opts, err := tx.ListOptions(ev.ID)
	if err != nil {
		return nil, nil, err
	}
	for i := range opts {
		if opts[i].ID == optionID {
			chosen = &opts[i]
		} else {
			other = &opts[i]
		}
	}
	if chosen == nil || other == nil {
		return nil, nil, fmt.Errorf("event %s: option %d not on event", ev.ID, optionID)
	}
	return chosen, other, nil
}
