package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// Enums

type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventLive      EventStatus = "live"
	EventCompleted EventStatus = "completed"
)

type BetType string

const (
	BetBuy  BetType = "buy"
	BetSell BetType = "sell"
)

type TxFor string

const (
	TxForBet       TxFor = "bet"
	TxForBetCancel TxFor = "bet_cancel"
	TxForBetWin    TxFor = "bet_win"
	TxForDeposit   TxFor = "deposit"
	TxForWithdraw  TxFor = "withdraw"
)

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// Models

// Event is a binary-outcome market. Exactly two options; odds sum to 100.
// PlatformLiquidityLeft is the per-event reserve the liquidity engine spends
// when it synthesizes counter-orders.
type Event struct {
	ID         string `gorm:"type:char(24);primaryKey"`
	Name       string
	StartAt    time.Time
	EndAt      time.Time
	FreezeAt   *time.Time
	Status     EventStatus `gorm:"type:varchar(16);index"`
	Frozen     bool
	OptionWon  *int
	Resolved   bool `gorm:"index"`
	ResolvedAt *time.Time

	PlatformLiquidityLeft  decimal.Decimal `gorm:"type:decimal(20,6)"`
	MinLiquidityPercentage decimal.Decimal `gorm:"type:decimal(10,4)"`
	MaxLiquidityPercentage decimal.Decimal `gorm:"type:decimal(10,4)"`
	LiquidityInBetween     bool
	PlatformFeesPercentage decimal.Decimal `gorm:"type:decimal(10,4)"`
	WinPrice               decimal.Decimal `gorm:"type:decimal(20,6)"`
	Slippage               decimal.Decimal `gorm:"type:decimal(20,6)"`

	Token string
	Chain string

	Options    []Option        `gorm:"constraint:OnDelete:CASCADE"`
	Sources    []Source        `gorm:"constraint:OnDelete:CASCADE"`
	Categories []EventCategory `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Option is one side of a binary event. Price = WinPrice * Odds / 100.
type Option struct {
	ID      int    `gorm:"primaryKey;autoIncrement"`
	EventID string `gorm:"type:char(24);index"`
	Name    string
	Odds    decimal.Decimal `gorm:"type:decimal(10,4)"`
	Price   decimal.Decimal `gorm:"type:decimal(20,6)"`
}

type Source struct {
	ID      int    `gorm:"primaryKey;autoIncrement"`
	EventID string `gorm:"type:char(24);index"`
	Title   string
	URL     string
}

type EventCategory struct {
	ID       int    `gorm:"primaryKey;autoIncrement"`
	EventID  string `gorm:"type:char(24);index"`
	Category string
}

func (EventCategory) TableName() string {
	return "event_categories"
}

// EventStatusLog rows are appended by the store on every status write.
type EventStatusLog struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	EventID   string `gorm:"type:char(24);index"`
	Status    EventStatus
	CreatedAt time.Time
}

func (EventStatusLog) TableName() string {
	return "event_status_logs"
}

// Bet is a standing order. UserID nil marks a platform-owned synthetic bet.
// Sells reference their parent buy via BuyBetID and cache the parent's
// price in BuyBetPricePerQuantity.
type Bet struct {
	ID       string  `gorm:"type:char(24);primaryKey"`
	EventID  string  `gorm:"type:char(24);index"`
	UserID   *string `gorm:"type:char(24);index"`
	OptionID int
	Type     BetType `gorm:"type:varchar(8)"`

	Quantity          int64
	PricePerQuantity  decimal.Decimal `gorm:"type:decimal(20,6)"`
	UnmatchedQuantity int64
	RewardAmountUsed  decimal.Decimal `gorm:"type:decimal(20,6)"`

	SoldQuantity           *int64
	BuyBetID               *string `gorm:"type:char(24);index"`
	BuyBetPricePerQuantity *decimal.Decimal `gorm:"type:decimal(20,6)"`

	Profit             *decimal.Decimal `gorm:"type:decimal(20,6)"`
	PlatformCommission *decimal.Decimal `gorm:"type:decimal(20,6)"`

	LimitOrder bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchedQuantity is the filled part of the bet.
func (b *Bet) MatchedQuantity() int64 {
	return b.Quantity - b.UnmatchedQuantity
}

// TotalPrice is PricePerQuantity * Quantity.
func (b *Bet) TotalPrice() decimal.Decimal {
	return b.PricePerQuantity.Mul(decimal.NewFromInt(b.Quantity))
}

// Sold returns SoldQuantity or 0 when unset (sell bets, fresh buys).
func (b *Bet) Sold() int64 {
	if b.SoldQuantity == nil {
		return 0
	}
	return *b.SoldQuantity
}

// IsPlatform reports whether the bet is platform-owned synthetic inventory.
func (b *Bet) IsPlatform() bool {
	return b.UserID == nil
}

// Matched pairs two bets. Append-only.
type Matched struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	BetID         string `gorm:"type:char(24);index"`
	MatchedBetID  string `gorm:"type:char(24);index"`
	Quantity      int64
	LiquidityUsed decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt     time.Time
}

func (Matched) TableName() string {
	return "matched"
}

// BetQueue is the pending-match set. The matching worker is the sole
// consumer; admission and the liquidity engine are the producers.
type BetQueue struct {
	BetID     string `gorm:"type:char(24);primaryKey"`
	EventID   string `gorm:"type:char(24);index"`
	CreatedAt time.Time
}

func (BetQueue) TableName() string {
	return "bet_queue"
}

// Transaction is an append-only ledger row. Amount moves the main
// subledger, RewardAmount the reward subledger; both are signed.
type Transaction struct {
	ID           string `gorm:"type:char(24);primaryKey"`
	UserID       string `gorm:"type:char(24);index"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,6)"`
	RewardAmount decimal.Decimal `gorm:"type:decimal(20,6)"`
	TxFor        TxFor           `gorm:"type:varchar(16)"`
	TxStatus     TxStatus        `gorm:"type:varchar(16)"`
	BetID        *string         `gorm:"type:char(24);index"`
	BetQuantity  *int64
	Token        string
	Chain        string
	CreatedAt    time.Time
}
