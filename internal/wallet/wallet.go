// Package wallet reads user token balances and writes ledger rows.
//
// Balances split into two subledgers per user/token/chain: reward (spent
// first on debits, not withdrawable) and main. Both are derived by summing
// the append-only transaction ledger; the core never talks to a chain.
package wallet

import (
	"github.com/shopspring/decimal"

	"github.com/AktharAzif/oddzy-core/internal/database"
)

// Balance is a user's position on one token/chain pair.
type Balance struct {
	Main   decimal.Decimal
	Reward decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Main.Add(b.Reward)
}

// Read returns the user's balance through the given store handle (bound to
// the caller's transaction when read under a lock).
func Read(db *database.Database, userID, token, chain string) (Balance, error) {
	main, reward, err := db.SumLedger(userID, token, chain)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Main: main, Reward: reward}, nil
}

// Split divides a debit of total across the subledgers, reward first.
func Split(total, rewardBalance decimal.Decimal) (rewardUsed, mainUsed decimal.Decimal) {
	rewardUsed = decimal.Min(total, rewardBalance)
	if rewardUsed.IsNegative() {
		rewardUsed = decimal.Zero
	}
	return rewardUsed, total.Sub(rewardUsed)
}

// BetDebit appends the admission debit for a buy.
func BetDebit(db *database.Database, ev *database.Event, bet *database.Bet, mainUsed, rewardUsed decimal.Decimal) error {
	qty := bet.Quantity
	return db.InsertTransaction(&database.Transaction{
		UserID:       *bet.UserID,
		Amount:       mainUsed.Neg(),
		RewardAmount: rewardUsed.Neg(),
		TxFor:        database.TxForBet,
		TxStatus:     database.TxCompleted,
		BetID:        &bet.ID,
		BetQuantity:  &qty,
		Token:        ev.Token,
		Chain:        ev.Chain,
	})
}

// CancelRefund appends the refund for a cancelled buy portion.
func CancelRefund(db *database.Database, ev *database.Event, bet *database.Bet, qty int64, mainRefund, rewardRefund decimal.Decimal) error {
	return db.InsertTransaction(&database.Transaction{
		UserID:       *bet.UserID,
		Amount:       mainRefund,
		RewardAmount: rewardRefund,
		TxFor:        database.TxForBetCancel,
		TxStatus:     database.TxCompleted,
		BetID:        &bet.ID,
		BetQuantity:  &qty,
		Token:        ev.Token,
		Chain:        ev.Chain,
	})
}

// Payout builds the credit row for a realised sell (txFor=bet) or a win
// (txFor=bet_win). Callers batch or insert it themselves.
func Payout(ev *database.Event, bet *database.Bet, txFor database.TxFor, qty int64, cashOut, rewardOut decimal.Decimal) database.Transaction {
	return database.Transaction{
		UserID:       *bet.UserID,
		Amount:       cashOut,
		RewardAmount: rewardOut,
		TxFor:        txFor,
		TxStatus:     database.TxCompleted,
		BetID:        &bet.ID,
		BetQuantity:  &qty,
		Token:        ev.Token,
		Chain:        ev.Chain,
	}
}
