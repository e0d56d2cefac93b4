// Package settlement resolves completed events.
//
// Resolution cancels all residual open interest (sells before buys, so
// parent bookkeeping is restored first), marks losing buys, pays winners
// at winPrice, and flips the event's resolved flag. An event completed
// without a winning option only gets the cancellation pass; resolution
// waits for the operator.
package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AktharAzif/oddzy-core/internal/database"
	"github.com/AktharAzif/oddzy-core/internal/payout"
	"github.com/AktharAzif/oddzy-core/internal/trading"
	"github.com/AktharAzif/oddzy-core/internal/wallet"
)

type Resolver struct {
	db *database.Database
}

func NewResolver(db *database.Database) *Resolver {
	return &Resolver{db: db}
}

// Run performs one resolution pass over completed, unresolved events.
func (r *Resolver) Run(ctx context.Context) error {
	events, err := r.db.ListUnresolvedCompleted()
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := r.resolve(ctx, ev.ID); err != nil {
			log.Error().Err(err).Str("event", ev.ID).Msg("resolution failed")
		}
	}
	return nil
}

func (r *Resolver) resolve(ctx context.Context, eventID string) error {
	return r.db.Transaction(ctx, func(tx *database.Database) error {
		if err := tx.LockEvent(eventID); err != nil {
			return err
		}
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		if ev.Status != database.EventCompleted || ev.Resolved {
			return nil
		}

		if err := cancelResiduals(tx, ev); err != nil {
			return err
		}

		if ev.OptionWon == nil {
			// Operator has not picked a winner; leave the event
			// unresolved and keep only the cancellation done.
			return nil
		}

		if err := settle(tx, ev); err != nil {
			return err
		}
		if err := tx.MarkEventResolved(ev.ID, time.Now()); err != nil {
			return err
		}
		log.Info().Str("event", ev.ID).Int("option_won", *ev.OptionWon).Msg("event resolved")
		return nil
	})
}

// cancelResiduals rescinds every bet with standing unmatched quantity,
// sells first so their parent buys are whole before buy refunds go out.
func cancelResiduals(tx *database.Database, ev *database.Event) error {
	for _, betType := range []database.BetType{database.BetSell, database.BetBuy} {
		bets, err := tx.ListResidualBets(ev.ID, betType)
		if err != nil {
			return err
		}
		for i := range bets {
			if err := trading.RescindUnmatched(tx, ev, &bets[i], bets[i].UnmatchedQuantity); err != nil {
				return err
			}
		}
	}
	return nil
}

// settle marks losers and pays winners.
func settle(tx *database.Database, ev *database.Event) error {
	buys, err := tx.ListUserBuys(ev.ID)
	if err != nil {
		return err
	}

	var updates []database.ProfitUpdate
	var ledger []database.Transaction
	for i := range buys {
		bet := &buys[i]
		if bet.OptionID != *ev.OptionWon {
			// Funds were debited at admission; the loss is bookkeeping
			// only.
			updates = append(updates, database.ProfitUpdate{
				BetID:      bet.ID,
				Profit:     bet.TotalPrice().Neg(),
				Commission: decimal.Zero,
			})
			continue
		}
		remaining := bet.Quantity - bet.Sold()
		if remaining <= 0 {
			continue
		}
		res := payout.Settle(remaining, bet.PricePerQuantity, ev.WinPrice,
			ev.PlatformFeesPercentage, bet.RewardAmountUsed)
		updates = append(updates, database.ProfitUpdate{
			BetID:      bet.ID,
			Profit:     res.Profit,
			Commission: res.Commission,
		})
		ledger = append(ledger, wallet.Payout(ev, bet, database.TxForBetWin, remaining, res.CashOut, res.RewardOut))
	}

	if err := tx.UpdateBetsProfit(updates); err != nil {
		return err
	}
	return tx.InsertTransactions(ledger)
}
