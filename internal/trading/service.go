// Package trading handles order admission and cancellation.
//
// Both run under the non-blocking per-user advisory lock: a user gets one
// in-flight order operation at a time, concurrent attempts fail fast with
// RATE_LIMIT. Cancellation additionally serializes against the event.
package trading

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/AktharAzif/oddzy-core/internal/database"
	"github.com/AktharAzif/oddzy-core/internal/payout"
	"github.com/AktharAzif/oddzy-core/internal/wallet"
)

type Service struct {
	db *database.Database
}

func NewService(db *database.Database) *Service {
	return &Service{db: db}
}

// PlaceBetInput is the admission request.
type PlaceBetInput struct {
	EventID    string
	OptionID   int
	Type       database.BetType
	Quantity   int64
	Price      decimal.Decimal
	BuyBetID   *string
	LimitOrder bool
}

// PlaceBet admits an order: debits the buyer reward-first, or books a sell
// against its parent buy, then enqueues the bet for the matching worker.
func (s *Service) PlaceBet(ctx context.Context, userID string, in PlaceBetInput) (*database.Bet, error) {
	if in.Quantity < 1 {
		return nil, E(CodeInvalidArgument, "quantity must be at least 1")
	}
	if !in.Price.IsPositive() {
		return nil, E(CodeInvalidArgument, "price must be positive")
	}
	if in.Type != database.BetBuy && in.Type != database.BetSell {
		return nil, E(CodeInvalidArgument, "unknown bet type %q", in.Type)
	}

	var bet *database.Bet
	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		ok, err := tx.TryLockUser(userID)
		if err != nil {
			return err
		}
		if !ok {
			return E(CodeRateLimit, "only one bet order at a time per user")
		}

		ev, err := tx.GetEvent(in.EventID)
		if err != nil {
			return mapNotFound(err, "event %s", in.EventID)
		}
		if _, _, err := eventOptions(tx, ev, in.OptionID); err != nil {
			return err
		}
		if ev.Status != database.EventLive {
			return E(CodeInvalidState, "event %s is not live", ev.ID)
		}
		if ev.Frozen {
			return E(CodeInvalidState, "event %s is frozen", ev.ID)
		}
		if in.Price.GreaterThan(ev.WinPrice) {
			return E(CodeInvalidArgument, "price above winPrice %s", ev.WinPrice)
		}

		totalPrice := payout.Mul(in.Price, decimal.NewFromInt(in.Quantity))

		switch in.Type {
		case database.BetBuy:
			bet, err = s.placeBuy(tx, ev, userID, in, totalPrice)
		case database.BetSell:
			bet, err = s.placeSell(tx, ev, userID, in, totalPrice)
		}
		if err != nil {
			return err
		}
		return tx.Enqueue(bet.ID, ev.ID)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("bet", bet.ID).
		Str("event", bet.EventID).
		Str("type", string(bet.Type)).
		Int64("quantity", bet.Quantity).
		Str("price", bet.PricePerQuantity.String()).
		Msg("bet placed")
	return bet, nil
}

func (s *Service) placeBuy(tx *database.Database, ev *database.Event, userID string, in PlaceBetInput, totalPrice decimal.Decimal) (*database.Bet, error) {
	bal, err := wallet.Read(tx, userID, ev.Token, ev.Chain)
	if err != nil {
		return nil, err
	}
	if bal.Total().LessThan(totalPrice) {
		return nil, E(CodeInsufficientFunds, "balance %s below required %s", bal.Total(), totalPrice)
	}
	rewardUsed, mainUsed := wallet.Split(totalPrice, bal.Reward)

	sold := int64(0)
	bet := &database.Bet{
		ID:                database.NewID(),
		EventID:           ev.ID,
		UserID:            &userID,
		OptionID:          in.OptionID,
		Type:              database.BetBuy,
		Quantity:          in.Quantity,
		PricePerQuantity:  in.Price,
		UnmatchedQuantity: in.Quantity,
		RewardAmountUsed:  rewardUsed,
		SoldQuantity:      &sold,
		LimitOrder:        in.LimitOrder,
	}
	if err := tx.InsertBet(bet); err != nil {
		return nil, err
	}
	if err := wallet.BetDebit(tx, ev, bet, mainUsed, rewardUsed); err != nil {
		return nil, err
	}
	return bet, nil
}

func (s *Service) placeSell(tx *database.Database, ev *database.Event, userID string, in PlaceBetInput, totalPrice decimal.Decimal) (*database.Bet, error) {
	if in.BuyBetID == nil {
		return nil, E(CodeInvalidArgument, "sell requires buyBetId")
	}
	parent, err := tx.GetBet(*in.BuyBetID)
	if err != nil {
		return nil, mapNotFound(err, "buy bet %s", *in.BuyBetID)
	}
	if parent.Type != database.BetBuy ||
		parent.UserID == nil || *parent.UserID != userID ||
		parent.EventID != ev.ID || parent.OptionID != in.OptionID {
		return nil, E(CodeInvalidArgument, "buy bet %s does not match sell", parent.ID)
	}
	sellable := parent.MatchedQuantity() - parent.Sold()
	if in.Quantity > sellable {
		return nil, E(CodeInvalidArgument, "quantity %d exceeds sellable %d", in.Quantity, sellable)
	}

	// Reward rides along: move up to totalPrice of the parent's reward
	// onto the sell so realisation returns it to the reward subledger.
	childReward := decimal.Min(totalPrice, parent.RewardAmountUsed)
	parent.RewardAmountUsed = parent.RewardAmountUsed.Sub(childReward)
	newSold := parent.Sold() + in.Quantity
	parent.SoldQuantity = &newSold
	if err := tx.SaveBet(parent); err != nil {
		return nil, err
	}

	parentPrice := parent.PricePerQuantity
	bet := &database.Bet{
		ID:                     database.NewID(),
		EventID:                ev.ID,
		UserID:                 &userID,
		OptionID:               in.OptionID,
		Type:                   database.BetSell,
		Quantity:               in.Quantity,
		PricePerQuantity:       in.Price,
		UnmatchedQuantity:      in.Quantity,
		RewardAmountUsed:       childReward,
		BuyBetID:               &parent.ID,
		BuyBetPricePerQuantity: &parentPrice,
		LimitOrder:             in.LimitOrder,
	}
	if err := tx.InsertBet(bet); err != nil {
		return nil, err
	}
	return bet, nil
}

// CancelBetInput rescinds unmatched quantity on a bet.
type CancelBetInput struct {
	ID       string
	EventID  string
	Quantity int64
}

// CancelBet refunds the unmatched portion of a bet, main before reward.
func (s *Service) CancelBet(ctx context.Context, userID string, in CancelBetInput) (*database.Bet, error) {
	if in.Quantity < 1 {
		return nil, E(CodeInvalidArgument, "quantity must be at least 1")
	}

	var bet *database.Bet
	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		ok, err := tx.TryLockUser(userID)
		if err != nil {
			return err
		}
		if !ok {
			return E(CodeRateLimit, "only one bet order at a time per user")
		}
		if err := tx.LockEvent(in.EventID); err != nil {
			return err
		}

		bet, err = tx.GetBet(in.ID)
		if err != nil {
			return mapNotFound(err, "bet %s", in.ID)
		}
		if bet.UserID == nil || *bet.UserID != userID || bet.EventID != in.EventID {
			return E(CodeNotFound, "bet %s not found for user", in.ID)
		}
		ev, err := tx.GetEvent(in.EventID)
		if err != nil {
			return mapNotFound(err, "event %s", in.EventID)
		}
		return RescindUnmatched(tx, ev, bet, in.Quantity)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("bet", bet.ID).
		Int64("quantity", in.Quantity).
		Msg("bet cancelled")
	return bet, nil
}

// RescindUnmatched cancels qty of the bet's unmatched quantity inside the
// caller's locked transaction. The resolver uses it for residual bets; no
// ownership checks are repeated here.
func RescindUnmatched(tx *database.Database, ev *database.Event, bet *database.Bet, qty int64) error {
	if qty > bet.UnmatchedQuantity {
		return E(CodeInvalidArgument, "quantity %d exceeds unmatched %d", qty, bet.UnmatchedQuantity)
	}

	totalCancel := payout.Mul(bet.PricePerQuantity, decimal.NewFromInt(qty))
	// Refund reward last: main absorbs the cancellation until only the
	// reward-funded part of the position remains.
	rewardRefund := decimal.Max(decimal.Zero, totalCancel.Sub(bet.TotalPrice().Sub(bet.RewardAmountUsed)))
	mainRefund := totalCancel.Sub(rewardRefund)

	bet.Quantity -= qty
	bet.UnmatchedQuantity -= qty
	bet.RewardAmountUsed = bet.RewardAmountUsed.Sub(rewardRefund)
	bet.Profit = nil
	bet.PlatformCommission = nil

	switch bet.Type {
	case database.BetSell:
		// The sell never debited the ledger; give the sold quantity and
		// its riding reward back to the parent buy.
		parent, err := tx.GetBet(*bet.BuyBetID)
		if err != nil {
			return err
		}
		newSold := parent.Sold() - qty
		parent.SoldQuantity = &newSold
		parent.RewardAmountUsed = parent.RewardAmountUsed.Add(rewardRefund)
		if err := tx.SaveBet(parent); err != nil {
			return err
		}

		if bet.UnmatchedQuantity == 0 && bet.Quantity > 0 {
			// Cancelling the last unmatched portion realises the rest.
			res := payout.Settle(bet.Quantity, *bet.BuyBetPricePerQuantity, bet.PricePerQuantity,
				ev.PlatformFeesPercentage, bet.RewardAmountUsed)
			bet.Profit = &res.Profit
			bet.PlatformCommission = &res.Commission
			if !bet.IsPlatform() {
				t := wallet.Payout(ev, bet, database.TxForBet, bet.Quantity, res.CashOut, res.RewardOut)
				if err := tx.InsertTransaction(&t); err != nil {
					return err
				}
			}
		} else if bet.Quantity == 0 {
			zero := decimal.Zero
			bet.Profit = &zero
			bet.PlatformCommission = &zero
		}

	case database.BetBuy:
		if !bet.IsPlatform() {
			if err := wallet.CancelRefund(tx, ev, bet, qty, mainRefund, rewardRefund); err != nil {
				return err
			}
		}
	}

	return tx.SaveBet(bet)
}

// GetBet fetches one bet.
func (s *Service) GetBet(ctx context.Context, id string) (*database.Bet, error) {
	bet, err := s.db.GetBet(id)
	if err != nil {
		return nil, mapNotFound(err, "bet %s", id)
	}
	return bet, nil
}

// ListBets returns a filtered page of bets.
func (s *Service) ListBets(ctx context.Context, f database.BetFilter, page, limit int) (*database.Page[database.Bet], error) {
	return s.db.ListBets(f, page, limit)
}

// QueueDepth exposes the pending-match count for one event. Admin view.
func (s *Service) QueueDepth(ctx context.Context, eventID string) (int64, error) {
	return s.db.QueueDepth(eventID)
}

// EventLiquidity exposes the remaining platform reserve. Admin view.
func (s *Service) EventLiquidity(ctx context.Context, eventID string) (decimal.Decimal, error) {
	ev, err := s.db.GetEvent(eventID)
	if err != nil {
		return decimal.Zero, mapNotFound(err, "event %s", eventID)
	}
	return ev.PlatformLiquidityLeft, nil
}

func mapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return E(CodeNotFound, format+" not found", args...)
	}
	return err
}

func eventOptions(tx *database.Database, ev *database.Event, optionID int) (chosen, other *database.Option, err error) {
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
		return nil, nil, E(CodeNotFound, "option %d not found on event %s", optionID, ev.ID)
	}
	return chosen, other, nil
}
