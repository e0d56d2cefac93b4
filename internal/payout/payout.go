// Package payout computes sell realisations and win settlements.
//
// One formula serves both: exits price out at the sell price, wins at the
// event's winPrice. Commission is only charged on profitable exits, and a
// commission that would flip a profitable exit negative is waived.
package payout

import (
	"github.com/shopspring/decimal"
)

// Scale is the money precision used across the ledger.
const Scale = 6

var hundred = decimal.NewFromInt(100)

// Mul multiplies two amounts, rounding half to even at ledger scale.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).RoundBank(Scale)
}

// Div divides two amounts, rounding half to even at ledger scale.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, Scale+2).RoundBank(Scale)
}

// Result of settling quantity Q bought at Entry and priced out at Exit.
type Result struct {
	// Profit is gross minus realised commission (gross itself when the
	// commission is waived).
	Profit decimal.Decimal
	// Commission actually retained by the platform.
	Commission decimal.Decimal
	// CashOut is the main-ledger credit: Q*Exit - Commission - RewardOut.
	CashOut decimal.Decimal
	// RewardOut returns the reward amount that was riding on the position.
	RewardOut decimal.Decimal
}

// Settle prices out quantity units bought at entry. feePct is the
// platform fee in percent; rewardUsed is the reward-ledger amount staked
// on the position, returned to the reward subledger rather than cashed out.
func Settle(quantity int64, entry, exit, feePct, rewardUsed decimal.Decimal) Result {
	q := decimal.NewFromInt(quantity)
	proceeds := Mul(q, exit)
	gross := proceeds.Sub(Mul(q, entry))

	commission := decimal.Zero
	if gross.IsPositive() {
		commission = Div(Mul(proceeds, feePct), hundred)
	}

	profit := gross.Sub(commission)
	if profit.IsNegative() {
		profit = gross
	}
	realised := commission
	if profit.Equal(gross) {
		realised = decimal.Zero
	}

	return Result{
		Profit:     profit,
		Commission: realised,
		CashOut:    proceeds.Sub(realised).Sub(rewardUsed),
		RewardOut:  rewardUsed,
	}
}
