package liquidity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/AktharAzif/oddzy-core/internal/database"
)

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

type eventParams struct {
	liquidityLeft int64
	min, max      int64
	inBetween     bool
}

func newLiveEvent(t *testing.T, db *database.Database, p eventParams) (*database.Event, []database.Option) {
	t.Helper()
	now := time.Now()
	ev := &database.Event{
		Name:    "test market",
		StartAt: now.Add(-time.Hour),
		EndAt:   now.Add(time.Hour),
		Status:  database.EventLive,

		PlatformLiquidityLeft:  decimal.NewFromInt(p.liquidityLeft),
		MinLiquidityPercentage: decimal.NewFromInt(p.min),
		MaxLiquidityPercentage: decimal.NewFromInt(p.max),
		LiquidityInBetween:     p.inBetween,
		PlatformFeesPercentage: decimal.Zero,
		WinPrice:               decimal.NewFromInt(100),
		Slippage:               decimal.Zero,

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
	return ev, opts
}

func userBuy(t *testing.T, db *database.Database, ev *database.Event, optionID int, qty, price int64) *database.Bet {
	t.Helper()
	user := database.NewID()
	sold := int64(0)
	bet := &database.Bet{
		ID:                database.NewID(),
		EventID:           ev.ID,
		UserID:            &user,
		OptionID:          optionID,
		Type:              database.BetBuy,
		Quantity:          qty,
		PricePerQuantity:  decimal.NewFromInt(price),
		UnmatchedQuantity: qty,
		SoldQuantity:      &sold,
	}
	require.NoError(t, db.InsertBet(bet))
	return bet
}

func TestSynthesizesCounterForOutOfBandBuy(t *testing.T) {
	db := newTestDB(t)
	e := NewEngine(db, 0)
	ev, opts := newLiveEvent(t, db, eventParams{liquidityLeft: 1000, min: 20, max: 80})

	// r = 10 <= min with tails backstopped: eligible.
	bet := userBuy(t, db, ev, opts[0].ID, 5, 10)

	require.NoError(t, e.Run(context.Background()))

	betr, err := db.GetBet(bet.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, betr.UnmatchedQuantity)

	evr, err := db.GetEvent(ev.ID)
	require.NoError(t, err)
	require.True(t, evr.PlatformLiquidityLeft.Equal(decimal.NewFromInt(550)),
		"liquidity = %s", evr.PlatformLiquidityLeft)

	// Platform buy on the sibling at the winPrice complement.
	counterPage, err := db.ListBets(database.BetFilter{EventID: ev.ID, Type: database.BetBuy}, 1, 10)
	require.NoError(t, err)
	var counter *database.Bet
	for i := range counterPage.Items {
		if counterPage.Items[i].IsPlatform() {
			counter = &counterPage.Items[i]
		}
	}
	require.NotNil(t, counter)
	require.Equal(t, opts[1].ID, counter.OptionID)
	require.True(t, counter.PricePerQuantity.Equal(decimal.NewFromInt(90)))
	require.EqualValues(t, 0, counter.UnmatchedQuantity)
	require.EqualValues(t, 5, counter.Sold())

	// Mirror sell re-offers the user's side and is queued for matching.
	sellPage, err := db.ListBets(database.BetFilter{EventID: ev.ID, Type: database.BetSell}, 1, 10)
	require.NoError(t, err)
	require.Len(t, sellPage.Items, 1)
	mirror := sellPage.Items[0]
	require.True(t, mirror.IsPlatform())
	require.Equal(t, opts[0].ID, mirror.OptionID)
	require.True(t, mirror.PricePerQuantity.Equal(decimal.NewFromInt(10)))
	require.EqualValues(t, 5, mirror.UnmatchedQuantity)
	require.Equal(t, counter.ID, *mirror.BuyBetID)

	depth, err := db.QueueDepth(ev.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)

	sum, err := db.SumMatchedQuantity(bet.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, sum)
}

func TestBandPolicy(t *testing.T) {
	tests := []struct {
		name      string
		inBetween bool
		price     int64
		eligible  bool
	}{
		{"tails policy admits low tail", false, 10, true},
		{"tails policy admits high tail", false, 90, true},
		{"tails policy skips middle", false, 50, false},
		{"middle policy admits middle", true, 50, true},
		{"middle policy skips tail", true, 10, false},
		{"band edges are inclusive", true, 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			e := NewEngine(db, 0)
			ev, opts := newLiveEvent(t, db, eventParams{liquidityLeft: 1000, min: 20, max: 80, inBetween: tt.inBetween})
			bet := userBuy(t, db, ev, opts[0].ID, 2, tt.price)

			require.NoError(t, e.Run(context.Background()))

			betr, err := db.GetBet(bet.ID)
			require.NoError(t, err)
			if tt.eligible {
				require.EqualValues(t, 0, betr.UnmatchedQuantity)
			} else {
				require.EqualValues(t, 2, betr.UnmatchedQuantity)
			}
		})
	}
}

func TestReserveCapsSynthesis(t *testing.T) {
	db := newTestDB(t)
	e := NewEngine(db, 0)
	// Reserve of 200 at counter-price 90 covers only 2 of the 5 units.
	ev, opts := newLiveEvent(t, db, eventParams{liquidityLeft: 200, min: 20, max: 80})
	bet := userBuy(t, db, ev, opts[0].ID, 5, 10)

	require.NoError(t, e.Run(context.Background()))

	betr, err := db.GetBet(bet.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, betr.UnmatchedQuantity)

	evr, err := db.GetEvent(ev.ID)
	require.NoError(t, err)
	require.True(t, evr.PlatformLiquidityLeft.Equal(decimal.NewFromInt(20)),
		"liquidity = %s", evr.PlatformLiquidityLeft)
}

func TestAgingThresholdGates(t *testing.T) {
	db := newTestDB(t)
	e := NewEngine(db, time.Hour)
	ev, opts := newLiveEvent(t, db, eventParams{liquidityLeft: 1000, min: 20, max: 80})
	bet := userBuy(t, db, ev, opts[0].ID, 5, 10)

	require.NoError(t, e.Run(context.Background()))

	betr, err := db.GetBet(bet.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, betr.UnmatchedQuantity, "fresh order must not be backstopped")
}

func TestSellCounterRealisesSeller(t *testing.T) {
	db := newTestDB(t)
	e := NewEngine(db, 0)
	ev, opts := newLiveEvent(t, db, eventParams{liquidityLeft: 1000, min: 20, max: 80})

	// A user sell at 10 (low tail, admitted by the tails policy), parent
	// bought at 5.
	user := database.NewID()
	sold := int64(3)
	parentPrice := decimal.NewFromInt(5)
	parent := &database.Bet{
		ID:                database.NewID(),
		EventID:           ev.ID,
		UserID:            &user,
		OptionID:          opts[0].ID,
		Type:              database.BetBuy,
		Quantity:          3,
		PricePerQuantity:  parentPrice,
		UnmatchedQuantity: 0,
		SoldQuantity:      &sold,
	}
	require.NoError(t, db.InsertBet(parent))
	sell := &database.Bet{
		ID:                     database.NewID(),
		EventID:                ev.ID,
		UserID:                 &user,
		OptionID:               opts[0].ID,
		Type:                   database.BetSell,
		Quantity:               3,
		PricePerQuantity:       decimal.NewFromInt(10),
		UnmatchedQuantity:      3,
		BuyBetID:               &parent.ID,
		BuyBetPricePerQuantity: &parentPrice,
	}
	require.NoError(t, db.InsertBet(sell))

	require.NoError(t, e.Run(context.Background()))

	sellr, err := db.GetBet(sell.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, sellr.UnmatchedQuantity)
	require.NotNil(t, sellr.Profit)
	require.True(t, sellr.Profit.Equal(decimal.NewFromInt(15)), "profit = %s", sellr.Profit)

	// Counter buy sits on the sell's own option at the sell price.
	page, err := db.ListBets(database.BetFilter{EventID: ev.ID, Type: database.BetBuy}, 1, 10)
	require.NoError(t, err)
	var counter *database.Bet
	for i := range page.Items {
		if page.Items[i].IsPlatform() {
			counter = &page.Items[i]
		}
	}
	require.NotNil(t, counter)
	require.Equal(t, opts[0].ID, counter.OptionID)
	require.True(t, counter.PricePerQuantity.Equal(decimal.NewFromInt(10)))

	// Seller got 3*10 minus nothing.
	ts, err := db.ListTransactions(user, 10)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	require.True(t, ts[0].Amount.Equal(decimal.NewFromInt(30)), "amount = %s", ts[0].Amount)
}

func TestSkipsFrozenAndNonLiveEvents(t *testing.T) {
	db := newTestDB(t)
	e := NewEngine(db, 0)
	ev, opts := newLiveEvent(t, db, eventParams{liquidityLeft: 1000, min: 20, max: 80})
	bet := userBuy(t, db, ev, opts[0].ID, 5, 10)
	require.NoError(t, db.SetEventFrozen(ev.ID, true))

	require.NoError(t, e.Run(context.Background()))

	betr, err := db.GetBet(bet.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, betr.UnmatchedQuantity)

	// Unfrozen but no longer live: still skipped.
	require.NoError(t, db.SetEventFrozen(ev.ID, false))
	require.NoError(t, db.UpdateEventStatus(ev.ID, database.EventScheduled))

	require.NoError(t, e.Run(context.Background()))

	betr, err = db.GetBet(bet.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, betr.UnmatchedQuantity)
}
