package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/studyhall/chatsync/internal/store/migrations"
)

// ErrStaleSchema means a read-only cache was written by an older daemon and
// has not been migrated yet.
var ErrStaleSchema = errors.New("cache schema is out of date")

// MigrateResult reports the schema version before and after Migrate.
type MigrateResult struct {
	Before  uint
	Version uint
	Dirty   bool
}

// Changed reports whether any migration ran.
func (r *MigrateResult) Changed() bool {
	return r.Before != r.Version
}

// Migrate brings the schema to the latest embedded version.
func (db *DB) Migrate() (*MigrateResult, error) {
	if db.readOnly {
		return nil, errors.New("migrate: cache opened read-only")
	}
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	before, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migration up: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	return &MigrateResult{Before: before, Version: version, Dirty: dirty}, nil
}

// CheckSchema verifies, without writing, that the cache is at the latest
// version. Read-only openers call it instead of Migrate.
func (db *DB) CheckSchema() error {
	var (
		version uint
		dirty   bool
	)
	err := db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStaleSchema
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("cache schema version %d is dirty", version)
	}
	latest, err := latestVersion()
	if err != nil {
		return err
	}
	if version < latest {
		return fmt.Errorf("%w: at %d, want %d", ErrStaleSchema, version, latest)
	}
	return nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

// latestVersion walks the embedded source to its last migration.
func latestVersion() (uint, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}
	defer func() { _ = source.Close() }()

	v, err := source.First()
	if err != nil {
		return 0, fmt.Errorf("first migration: %w", err)
	}
	for {
		next, err := source.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}
