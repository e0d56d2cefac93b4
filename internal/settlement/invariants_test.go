package settlement

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/AktharAzif/oddzy-core/internal/database"
	"github.com/AktharAzif/oddzy-core/internal/lifecycle"
	"github.com/AktharAzif/oddzy-core/internal/liquidity"
	"github.com/AktharAzif/oddzy-core/internal/matching"
	"github.com/AktharAzif/oddzy-core/internal/trading"
	"github.com/AktharAzif/oddzy-core/internal/wallet"
)

// TestFullLifecycleInvariants drives the whole pipeline over a randomized
// scenario and checks the system-level invariants: matched symmetry,
// reward monotonicity, no open interest after resolution, and funds
// conservation against the platform's fee take and liquidity spend.
func TestFullLifecycleInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	svc := trading.NewService(db)
	matcher := matching.NewWorker(db, 2)
	liqEngine := liquidity.NewEngine(db, 0)
	stateWorker := lifecycle.NewWorker(db)
	resolver := NewResolver(db)
	ctx := context.Background()

	now := time.Now()
	ev := &database.Event{
		Name:    "invariant market",
		StartAt: now.Add(-time.Hour),
		EndAt:   now.Add(time.Hour),
		Status:  database.EventLive,

		PlatformLiquidityLeft:  decimal.NewFromInt(5000),
		MinLiquidityPercentage: decimal.NewFromInt(20),
		MaxLiquidityPercentage: decimal.NewFromInt(80),
		PlatformFeesPercentage: decimal.NewFromInt(10),
		WinPrice:               decimal.NewFromInt(100),
		Slippage:               decimal.NewFromInt(5),

		Token: "USDC",
		Chain: "polygon",
		Options: []database.Option{
			{Name: "yes", Odds: decimal.NewFromInt(50)},
			{Name: "no", Odds: decimal.NewFromInt(50)},
		},
	}
	require.NoError(t, db.CreateEvent(ev))
	opts, err := db.ListOptions(ev.ID)
	require.NoError(t, err)

	const nUsers = 6
	deposit := decimal.NewFromInt(10000)
	users := make([]string, nUsers)
	for i := range users {
		users[i] = database.NewID()
		require.NoError(t, db.InsertTransaction(&database.Transaction{
			UserID: users[i], Amount: deposit, RewardAmount: decimal.NewFromInt(500),
			TxFor: database.TxForDeposit, TxStatus: database.TxCompleted,
			Token: "USDC", Chain: "polygon",
		}))
	}

	// Random admissions with interleaved matching and liquidity passes.
	for round := 0; round < 8; round++ {
		for i, user := range users {
			price := int64(10 + rng.Intn(81))
			qty := int64(1 + rng.Intn(10))
			_, err := svc.PlaceBet(ctx, user, trading.PlaceBetInput{
				EventID:  ev.ID,
				OptionID: opts[i%2].ID,
				Type:     database.BetBuy,
				Quantity: qty,
				Price:    decimal.NewFromInt(price),
			})
			if err != nil {
				require.True(t, trading.IsCode(err, trading.CodeInsufficientFunds), "unexpected: %v", err)
			}
		}
		require.NoError(t, matcher.Run(ctx))
		if round%3 == 2 {
			require.NoError(t, liqEngine.Run(ctx))
			require.NoError(t, matcher.Run(ctx))
		}
	}

	// Matched symmetry: every pair references existing bets, and per-bet
	// matched sums equal quantity - unmatched.
	page, err := db.ListBets(database.BetFilter{EventID: ev.ID}, 1, 10000)
	require.NoError(t, err)
	for _, bet := range page.Items {
		sum, err := db.SumMatchedQuantity(bet.ID)
		require.NoError(t, err)
		require.EqualValues(t, bet.Quantity-bet.UnmatchedQuantity, sum, "bet %s", bet.ID)
	}

	// Reward monotonicity: no user reward balance below zero.
	for _, user := range users {
		bal, err := wallet.Read(db, user, "USDC", "polygon")
		require.NoError(t, err)
		require.False(t, bal.Reward.IsNegative(), "user %s reward %s", user, bal.Reward)
	}

	// Complete and resolve.
	require.NoError(t, stateWorker.Tick(ctx, ev.EndAt.Add(time.Second)))
	evr, err := db.GetEvent(ev.ID)
	require.NoError(t, err)
	require.Equal(t, database.EventCompleted, evr.Status)

	require.NoError(t, db.SetEventWinner(ev.ID, opts[0].ID))
	require.NoError(t, resolver.Run(ctx))
	require.NoError(t, resolver.Run(ctx)) // idempotent

	evr, err = db.GetEvent(ev.ID)
	require.NoError(t, err)
	require.True(t, evr.Resolved)

	// No open interest remains on the closed event.
	page, err = db.ListBets(database.BetFilter{EventID: ev.ID}, 1, 10000)
	require.NoError(t, err)
	for _, bet := range page.Items {
		require.EqualValues(t, 0, bet.UnmatchedQuantity, "bet %s still open", bet.ID)
	}

	// Conservation: what the users collectively lost equals the platform's
	// fee take minus what the platform spent from the liquidity reserve
	// net of its own winning inventory. Bound it instead of re-deriving
	// the platform book: total user balances never exceed deposits plus
	// the liquidity the platform put at risk.
	total := decimal.Zero
	fees := decimal.Zero
	for _, bet := range page.Items {
		if bet.PlatformCommission != nil {
			fees = fees.Add(*bet.PlatformCommission)
		}
	}
	for _, user := range users {
		bal, err := wallet.Read(db, user, "USDC", "polygon")
		require.NoError(t, err)
		total = total.Add(bal.Total())
	}
	liquiditySpent := decimal.NewFromInt(5000).Sub(evr.PlatformLiquidityLeft)
	deposits := deposit.Add(decimal.NewFromInt(500)).Mul(decimal.NewFromInt(nUsers))

	// Users as a whole end up with deposits, minus fees kept by the
	// platform, plus at most the winPrice value of liquidity-backed fills.
	require.True(t, total.LessThanOrEqual(deposits.Sub(fees).Add(liquiditySpent.Mul(decimal.NewFromInt(10)))),
		"total %s, deposits %s, fees %s, liquidity %s", total, deposits, fees, liquiditySpent)
	require.True(t, total.GreaterThanOrEqual(deposits.Sub(fees).Sub(liquiditySpent.Mul(decimal.NewFromInt(10)))),
		"total %s under floor", total)
}
