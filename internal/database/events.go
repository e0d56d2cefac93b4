package database

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// CreateEvent inserts an event with its options, sources and category
// links. Binary markets only: exactly two options whose odds sum to 100.
// Option prices are derived here from WinPrice and odds.
func (d *Database) CreateEvent(ev *Event) error {
	if !ev.StartAt.Before(ev.EndAt) {
		return fmt.Errorf("event %q: startAt must precede endAt", ev.Name)
	}
	if len(ev.Options) != 2 {
		return fmt.Errorf("event %q: exactly two options required, got %d", ev.Name, len(ev.Options))
	}
	if !ev.Options[0].Odds.Add(ev.Options[1].Odds).Equal(oneHundred) {
		return fmt.Errorf("event %q: option odds must sum to 100", ev.Name)
	}
	if ev.MinLiquidityPercentage.GreaterThan(ev.MaxLiquidityPercentage) {
		return fmt.Errorf("event %q: min liquidity percentage above max", ev.Name)
	}
	if !ev.WinPrice.IsPositive() {
		return fmt.Errorf("event %q: winPrice must be positive", ev.Name)
	}
	if ev.PlatformLiquidityLeft.IsNegative() {
		return fmt.Errorf("event %q: negative platform liquidity", ev.Name)
	}
	if ev.ID == "" {
		ev.ID = NewID()
	}
	if ev.Status == "" {
		ev.Status = EventScheduled
	}
	for i := range ev.Options {
		ev.Options[i].Price = ev.WinPrice.Mul(ev.Options[i].Odds).Div(oneHundred)
	}
	if err := d.db.Create(ev).Error; err != nil {
		return err
	}
	return d.appendStatusLog(ev.ID, ev.Status)
}

func (d *Database) GetEvent(id string) (*Event, error) {
	var ev Event
	if err := d.db.First(&ev, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (d *Database) DeleteEvent(id string) error {
	// Owned rows go with the event.
	if err := d.db.Delete(&Option{}, "event_id = ?", id).Error; err != nil {
		return err
	}
	if err := d.db.Delete(&Source{}, "event_id = ?", id).Error; err != nil {
		return err
	}
	if err := d.db.Delete(&EventCategory{}, "event_id = ?", id).Error; err != nil {
		return err
	}
	return d.db.Delete(&Event{}, "id = ?", id).Error
}

// ListOptions returns the event's two options ordered by id.
func (d *Database) ListOptions(eventID string) ([]Option, error) {
	var opts []Option
	err := d.db.Where("event_id = ?", eventID).Order("id ASC").Find(&opts).Error
	return opts, err
}

// UpdateEventStatus writes the status and appends the status-log row. The
// two writes commit together when d is bound by Transaction; on the root
// store each runs on its own.
func (d *Database) UpdateEventStatus(id string, status EventStatus) error {
	res := d.db.Model(&Event{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	return d.appendStatusLog(id, status)
}

func (d *Database) appendStatusLog(eventID string, status EventStatus) error {
	return d.db.Create(&EventStatusLog{EventID: eventID, Status: status}).Error
}

// StatusLog returns the event's status history, oldest first.
func (d *Database) StatusLog(eventID string) ([]EventStatusLog, error) {
	var logs []EventStatusLog
	err := d.db.Where("event_id = ?", eventID).Order("id ASC").Find(&logs).Error
	return logs, err
}

// SetEventWinner records the winning option on a completed event for the
// resolver to pick up.
func (d *Database) SetEventWinner(eventID string, optionID int) error {
	ev, err := d.GetEvent(eventID)
	if err != nil {
		return err
	}
	if ev.Status != EventCompleted {
		return fmt.Errorf("event %s: winner can only be set once completed", eventID)
	}
	opts, err := d.ListOptions(eventID)
	if err != nil {
		return err
	}
	found := false
	for _, o := range opts {
		if o.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("event %s: option %d does not belong to event", eventID, optionID)
	}
	return d.db.Model(&Event{}).Where("id = ?", eventID).Update("option_won", optionID).Error
}

func (d *Database) SetEventFrozen(eventID string, frozen bool) error {
	return d.db.Model(&Event{}).Where("id = ?", eventID).Update("frozen", frozen).Error
}

// UpdateEventLiquidity rewrites the platform liquidity reserve. Callers
// hold the event lock.
func (d *Database) UpdateEventLiquidity(eventID string, left decimal.Decimal) error {
	return d.db.Model(&Event{}).Where("id = ?", eventID).Update("platform_liquidity_left", left).Error
}

// MarkEventResolved flips the terminal flag.
func (d *Database) MarkEventResolved(eventID string, at time.Time) error {
	return d.db.Model(&Event{}).Where("id = ?", eventID).
		Updates(map[string]any{"resolved": true, "resolved_at": at}).Error
}

// ListEventsToGoLive returns events whose window contains now but whose
// status is not yet live.
func (d *Database) ListEventsToGoLive(now time.Time) ([]Event, error) {
	var evs []Event
	err := d.db.Where("start_at <= ? AND end_at >= ? AND status <> ?", now, now, EventLive).
		Find(&evs).Error
	return evs, err
}

// ListEventsToComplete returns events past their end that are not yet
// completed.
func (d *Database) ListEventsToComplete(now time.Time) ([]Event, error) {
	var evs []Event
	err := d.db.Where("end_at < ? AND status <> ?", now, EventCompleted).
		Find(&evs).Error
	return evs, err
}

// ListUnresolvedCompleted returns completed events the resolver still owes
// a pass.
func (d *Database) ListUnresolvedCompleted() ([]Event, error) {
	var evs []Event
	err := d.db.Where("status = ? AND resolved = ?", EventCompleted, false).
		Find(&evs).Error
	return evs, err
}
