// Package database is the transactional store for the trading core.
//
// It wraps gorm over PostgreSQL (production) with a SQLite fallback for
// local runs and tests, and layers the two advisory locks every
// state-changing operation relies on: a non-blocking per-user lock and a
// blocking per-event lock.
package database

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
	pg bool
}

// New opens the store. A postgres:// DSN selects PostgreSQL, anything else
// is treated as a SQLite path.
func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error
	pg := false

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		pg = true
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("Database initialized (SQLite)")
	}

	d := &Database{db: db, pg: pg}
	if err := d.migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) migrate() error {
	return d.db.AutoMigrate(
		&Event{}, &Option{}, &Source{}, &EventCategory{}, &EventStatusLog{},
		&Bet{}, &Matched{}, &BetQueue{}, &Transaction{},
	)
}

// IsNotFound reports whether err is the store's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// Transaction runs fn inside a single database transaction. The store
// passed to fn is bound to that transaction; advisory locks taken through
// it are released at commit or rollback.
func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx, pg: d.pg})
	})
}
