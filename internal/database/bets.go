package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func (d *Database) InsertBet(b *Bet) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	return d.db.Create(b).Error
}

func (d *Database) GetBet(id string) (*Bet, error) {
	var b Bet
	if err := d.db.First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBet rewrites the full bet row.
func (d *Database) SaveBet(b *Bet) error {
	return d.db.Save(b).Error
}

// ListOpenBets returns bets on one side of an event with standing
// unmatched quantity. userOnly restricts to user-owned bets (platform
// takers never match platform inventory).
func (d *Database) ListOpenBets(eventID string, optionID int, betType BetType, userOnly bool) ([]Bet, error) {
	q := d.db.Where(
		"event_id = ? AND option_id = ? AND type = ? AND unmatched_quantity > 0",
		eventID, optionID, betType,
	)
	if userOnly {
		q = q.Where("user_id IS NOT NULL")
	}
	var bets []Bet
	err := q.Order("created_at ASC").Find(&bets).Error
	return bets, err
}

// ListResidualBets returns an event's bets with unmatched quantity, one
// type at a time so resolution can rescind sells before buys.
func (d *Database) ListResidualBets(eventID string, betType BetType) ([]Bet, error) {
	var bets []Bet
	err := d.db.Where("event_id = ? AND type = ? AND unmatched_quantity > 0", eventID, betType).
		Order("created_at ASC").Find(&bets).Error
	return bets, err
}

// ListUserBuys returns all user-owned buys on an event with quantity left,
// the resolver's settlement universe.
func (d *Database) ListUserBuys(eventID string) ([]Bet, error) {
	var bets []Bet
	err := d.db.Where("event_id = ? AND type = ? AND user_id IS NOT NULL AND quantity > 0", eventID, BetBuy).
		Order("created_at ASC").Find(&bets).Error
	return bets, err
}

// ListAgingUnmatched returns user-owned bets on live, unfrozen events
// whose unmatched quantity has been sitting since before cutoff. The
// liquidity engine's scan set.
func (d *Database) ListAgingUnmatched(cutoff time.Time) ([]Bet, error) {
	var bets []Bet
	err := d.db.
		Joins("JOIN events ON events.id = bets.event_id").
		Where("events.status = ? AND events.frozen = ?", EventLive, false).
		Where("bets.user_id IS NOT NULL AND bets.unmatched_quantity > 0 AND bets.updated_at <= ?", cutoff).
		Order("bets.created_at ASC").
		Find(&bets).Error
	return bets, err
}

// BetFilter narrows ListBets. Zero values are ignored.
type BetFilter struct {
	EventID string
	UserID  string
	Type    BetType
}

// Page is one page of a filtered listing.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}

// ListBets returns a page of bets, newest first.
func (d *Database) ListBets(f BetFilter, page, limit int) (*Page[Bet], error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	q := d.db.Model(&Bet{})
	if f.EventID != "" {
		q = q.Where("event_id = ?", f.EventID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var bets []Bet
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&bets).Error
	if err != nil {
		return nil, err
	}
	return &Page[Bet]{Items: bets, Total: total, Page: page, Limit: limit}, nil
}

// UnmatchedUpdate carries one row of a batched unmatched-quantity write.
type UnmatchedUpdate struct {
	BetID     string
	Unmatched int64
}

// UpdateBetsUnmatched writes N unmatched quantities in one statement via a
// values join. The SQLite fallback updates row by row.
func (d *Database) UpdateBetsUnmatched(updates []UnmatchedUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := time.Now()
	if !d.pg {
		for _, u := range updates {
			err := d.db.Model(&Bet{}).Where("id = ?", u.BetID).
				Updates(map[string]any{"unmatched_quantity": u.Unmatched, "updated_at": now}).Error
			if err != nil {
				return err
			}
		}
		return nil
	}
	rows := make([]string, 0, len(updates))
	args := make([]any, 0, 1+len(updates)*2)
	args = append(args, now)
	for _, u := range updates {
		rows = append(rows, "(?::char(24), ?::bigint)")
		args = append(args, u.BetID, u.Unmatched)
	}
	return d.db.Exec(
		fmt.Sprintf(
			`UPDATE bets SET unmatched_quantity = v.unmatched, updated_at = ?
			 FROM (VALUES %s) AS v(id, unmatched) WHERE bets.id = v.id`,
			strings.Join(rows, ", "),
		),
		args...,
	).Error
}

// ProfitUpdate carries one row of a batched settlement write.
type ProfitUpdate struct {
	BetID      string
	Profit     decimal.Decimal
	Commission decimal.Decimal
}

// UpdateBetsProfit writes settlement results for N bets in one values-join
// statement. The SQLite fallback updates row by row.
func (d *Database) UpdateBetsProfit(updates []ProfitUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := time.Now()
	if !d.pg {
		for _, u := range updates {
			err := d.db.Model(&Bet{}).Where("id = ?", u.BetID).
				Updates(map[string]any{
					"profit":              u.Profit,
					"platform_commission": u.Commission,
					"updated_at":          now,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	}
	rows := make([]string, 0, len(updates))
	args := make([]any, 0, 1+len(updates)*3)
	args = append(args, now)
	for _, u := range updates {
		rows = append(rows, "(?::char(24), ?::decimal, ?::decimal)")
		args = append(args, u.BetID, u.Profit, u.Commission)
	}
	return d.db.Exec(
		fmt.Sprintf(
			`UPDATE bets SET profit = v.profit, platform_commission = v.commission, updated_at = ?
			 FROM (VALUES %s) AS v(id, profit, commission) WHERE bets.id = v.id`,
			strings.Join(rows, ", "),
		),
		args...,
	).Error
}

// InsertMatched appends matched pairs in one multi-row insert.
func (d *Database) InsertMatched(rows []Matched) error {
	if len(rows) == 0 {
		return nil
	}
	return d.db.Create(&rows).Error
}

// SumMatchedQuantity totals matched rows touching a bet on either side.
func (d *Database) SumMatchedQuantity(betID string) (int64, error) {
	var sum int64
	err := d.db.Model(&Matched{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("bet_id = ? OR matched_bet_id = ?", betID, betID).
		Scan(&sum).Error
	return sum, err
}
