package database

import (
	"github.com/shopspring/decimal"
)

// InsertTransaction appends one ledger row. Rows are never updated;
// compensation appends an inverse row.
func (d *Database) InsertTransaction(t *Transaction) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	return d.db.Create(t).Error
}

// InsertTransactions appends ledger rows in one multi-row insert.
func (d *Database) InsertTransactions(ts []Transaction) error {
	if len(ts) == 0 {
		return nil
	}
	for i := range ts {
		if ts[i].ID == "" {
			ts[i].ID = NewID()
		}
	}
	return d.db.Create(&ts).Error
}

// SumLedger totals the main and reward deltas for a user on one token and
// chain. The balance read is a sum over the append-only ledger.
func (d *Database) SumLedger(userID, token, chain string) (main, reward decimal.Decimal, err error) {
	var row struct {
		Main   decimal.Decimal
		Reward decimal.Decimal
	}
	err = d.db.Model(&Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS main, COALESCE(SUM(reward_amount), 0) AS reward").
		Where("user_id = ? AND token = ? AND chain = ? AND tx_status = ?", userID, token, chain, TxCompleted).
		Scan(&row).Error
	return row.Main, row.Reward, err
}

// ListTransactions returns a user's ledger rows, newest first. Used by the
// external wallet surface.
func (d *Database) ListTransactions(userID string, limit int) ([]Transaction, error) {
	if limit < 1 {
		limit = 50
	}
	var ts []Transaction
	err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&ts).Error
	return ts, err
}
