// Package liquidity synthesizes platform-side counter-orders.
//
// User orders that sit unmatched past the aging threshold, on live
// unfrozen events, and pass the event's band policy (either the tails
// outside [min, max] or the middle inside it), get filled out of the
// event's liquidity reserve: the engine books a platform buy against them
// and mirrors the user's side as a platform sell so the synthesized
// inventory is re-offerable to future takers.
package liquidity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AktharAzif/oddzy-core/internal/database"
	"github.com/AktharAzif/oddzy-core/internal/payout"
	"github.com/AktharAzif/oddzy-core/internal/wallet"
)

var hundred = decimal.NewFromInt(100)

type Engine struct {
	db     *database.Database
	minAge time.Duration
}

func NewEngine(db *database.Database, minAge time.Duration) *Engine {
	return &Engine{db: db, minAge: minAge}
}

// Run performs one synthesis pass.
func (e *Engine) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-e.minAge)
	bets, err := e.db.ListAgingUnmatched(cutoff)
	if err != nil {
		return err
	}

	events := make(map[string]*database.Event)
	for i := range bets {
		bet := &bets[i]
		ev, ok := events[bet.EventID]
		if !ok {
			ev, err = e.db.GetEvent(bet.EventID)
			if err != nil {
				return err
			}
			events[bet.EventID] = ev
		}
		if !eligible(ev, bet) {
			continue
		}
		if err := e.synthesize(ctx, bet.ID, ev.ID); err != nil {
			// Skip the bet this pass; the next tick rescans.
			log.Error().Err(err).
				Str("bet", bet.ID).
				Str("event", ev.ID).
				Msg("liquidity synthesis failed")
		}
	}
	return nil
}

// counterPrice is what the platform pays per unit to take the other side:
// the sell's own price, or the winPrice complement of a buy.
func counterPrice(ev *database.Event, bet *database.Bet) decimal.Decimal {
	if bet.Type == database.BetSell {
		return bet.PricePerQuantity
	}
	return ev.WinPrice.Sub(bet.PricePerQuantity)
}

// eligible applies the band policy and the reserve precheck. The band is
// the bet price as a percentage of winPrice; operators either backstop the
// tails (liquidityInBetween=false) or the middle of the distribution.
func eligible(ev *database.Event, bet *database.Bet) bool {
	cp := counterPrice(ev, bet)
	if !cp.IsPositive() || cp.GreaterThan(ev.PlatformLiquidityLeft) {
		return false
	}
	r := bet.PricePerQuantity.Mul(hundred).Div(ev.WinPrice)
	if ev.LiquidityInBetween {
		return r.GreaterThanOrEqual(ev.MinLiquidityPercentage) && r.LessThanOrEqual(ev.MaxLiquidityPercentage)
	}
	return r.LessThanOrEqual(ev.MinLiquidityPercentage) || r.GreaterThanOrEqual(ev.MaxLiquidityPercentage)
}

func (e *Engine) synthesize(ctx context.Context, betID, eventID string) error {
	return e.db.Transaction(ctx, func(tx *database.Database) error {
		if err := tx.LockEvent(eventID); err != nil {
			return err
		}
		// Re-read under the lock; the matcher may have filled the bet
		// since the scan.
		bet, err := tx.GetBet(betID)
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		if ev.Status != database.EventLive || ev.Frozen || bet.UnmatchedQuantity == 0 || !eligible(ev, bet) {
			return nil
		}

		cp := counterPrice(ev, bet)
		qty := bet.UnmatchedQuantity
		if byReserve := ev.PlatformLiquidityLeft.Div(cp).IntPart(); byReserve < qty {
			qty = byReserve
		}
		if qty <= 0 {
			return nil
		}
		used := payout.Mul(cp, decimal.NewFromInt(qty))

		// The counter buy sits on the bet's own option for a sell, on the
		// sibling for a buy. It is born fully matched and fully sold: the
		// mirror sell below immediately re-offers it.
		counterOption := bet.OptionID
		if bet.Type == database.BetBuy {
			_, other, err := siblingOption(tx, ev, bet.OptionID)
			if err != nil {
				return err
			}
			counterOption = other.ID
		}
		counterBuy := &database.Bet{
			ID:                database.NewID(),
			EventID:           ev.ID,
			OptionID:          counterOption,
			Type:              database.BetBuy,
			Quantity:          qty,
			PricePerQuantity:  cp,
			UnmatchedQuantity: 0,
			SoldQuantity:      &qty,
		}
		if err := tx.InsertBet(counterBuy); err != nil {
			return err
		}
		if err := tx.InsertMatched([]database.Matched{{
			BetID:         bet.ID,
			MatchedBetID:  counterBuy.ID,
			Quantity:      qty,
			LiquidityUsed: used,
		}}); err != nil {
			return err
		}

		bet.UnmatchedQuantity -= qty
		if bet.Type == database.BetSell && bet.UnmatchedQuantity == 0 && !bet.IsPlatform() {
			res := payout.Settle(bet.Quantity, *bet.BuyBetPricePerQuantity, bet.PricePerQuantity,
				ev.PlatformFeesPercentage, bet.RewardAmountUsed)
			bet.Profit = &res.Profit
			bet.PlatformCommission = &res.Commission
			t := wallet.Payout(ev, bet, database.TxForBet, bet.Quantity, res.CashOut, res.RewardOut)
			if err := tx.InsertTransaction(&t); err != nil {
				return err
			}
		}
		if err := tx.SaveBet(bet); err != nil {
			return err
		}
		if err := tx.UpdateEventLiquidity(ev.ID, ev.PlatformLiquidityLeft.Sub(used)); err != nil {
			return err
		}

		// Mirror the user's side so future takers can hit the platform's
		// inventory; the matcher treats it as a platform sell taker.
		mirror := &database.Bet{
			ID:                     database.NewID(),
			EventID:                ev.ID,
			OptionID:               bet.OptionID,
			Type:                   database.BetSell,
			Quantity:               qty,
			PricePerQuantity:       bet.PricePerQuantity,
			UnmatchedQuantity:      qty,
			BuyBetID:               &counterBuy.ID,
			BuyBetPricePerQuantity: &counterBuy.PricePerQuantity,
		}
		if err := tx.InsertBet(mirror); err != nil {
			return err
		}
		if err := tx.Enqueue(mirror.ID, ev.ID); err != nil {
			return err
		}

		log.Info().
			Str("bet", bet.ID).
			Str("event", ev.ID).
			Int64("quantity", qty).
			Str("counter_price", cp.String()).
			Str("reserve_used", used.String()).
			Msg("synthesized platform counter-order")
		return nil
	})
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
