package database

import (
	"fmt"
	"hash/fnv"
)

// Advisory locks are transaction-scoped: they must be taken through a
// store handed out by Transaction and are released at commit/rollback.
// On the SQLite fallback both are no-ops; the single-writer file lock
// already serializes every transaction.

func lockKey(id string) int64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return int64(h.Sum64())
}

// TryLockUser attempts the non-blocking per-user lock. A false return
// means another admission or cancellation for this user is in flight.
func (d *Database) TryLockUser(userID string) (bool, error) {
	if !d.pg {
		return true, nil
	}
	var ok bool
	err := d.db.Raw("SELECT pg_try_advisory_xact_lock(?)", lockKey(userID)).Scan(&ok).Error
	if err != nil {
		return false, fmt.Errorf("user lock: %w", err)
	}
	return ok, nil
}

// LockEvent takes the blocking per-event lock. Matching, liquidity
// synthesis, status transitions and resolution for one event are totally
// ordered behind it.
func (d *Database) LockEvent(eventID string) error {
	if !d.pg {
		return nil
	}
	if err := d.db.Exec("SELECT pg_advisory_xact_lock(?)", lockKey(eventID)).Error; err != nil {
		return fmt.Errorf("event lock: %w", err)
	}
	return nil
}
