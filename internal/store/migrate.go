package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/matheus3301/chatsync/internal/store/migrations"
)

// MigrateResult reports the schema version before and after Migrate.
type MigrateResult struct {
	From    uint
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate brings the snapshot schema up to the newest embedded version.
func (db *DB) Migrate() (*MigrateResult, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate: driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate: instance: %w", err)
	}

	res := &MigrateResult{}
	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return nil, fmt.Errorf("migrate: version: %w", err)
	case dirty:
		return nil, fmt.Errorf("migrate: schema version %d is dirty", from)
	default:
		res.From = from
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return nil, fmt.Errorf("migrate: up: %w", err)
	default:
		res.Changed = true
	}

	res.Version, res.Dirty, _ = m.Version()
	return res, nil
}
