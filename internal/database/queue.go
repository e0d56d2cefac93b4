package database

import "gorm.io/gorm/clause"

// Enqueue adds a bet to the pending-match set. Duplicate enqueues of the
// same bet are ignored.
func (d *Database) Enqueue(betID, eventID string) error {
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&BetQueue{BetID: betID, EventID: eventID}).Error
}

// Dequeue removes a bet from the pending-match set after a matching
// attempt, successful or not.
func (d *Database) Dequeue(betID string) error {
	return d.db.Delete(&BetQueue{}, "bet_id = ?", betID).Error
}

// ScanQueue returns the whole pending-match set, oldest first.
func (d *Database) ScanQueue() ([]BetQueue, error) {
	var entries []BetQueue
	err := d.db.Order("created_at ASC").Find(&entries).Error
	return entries, err
}

// QueueDepth reports pending entries for one event. Admin read-only view.
func (d *Database) QueueDepth(eventID string) (int64, error) {
	var n int64
	err := d.db.Model(&BetQueue{}).Where("event_id = ?", eventID).Count(&n).Error
	return n, err
}

// QueueDepths reports pending entries per event. Admin read-only view.
func (d *Database) QueueDepths() (map[string]int64, error) {
	var rows []struct {
		EventID string
		N       int64
	}
	err := d.db.Model(&BetQueue{}).
		Select("event_id, COUNT(*) AS n").
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	depths := make(map[string]int64, len(rows))
	for _, r := range rows {
		depths[r.EventID] = r.N
	}
	return depths, nil
}
