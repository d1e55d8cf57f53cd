// Package migrations applies the substrate's PostgreSQL schema using
// golang-migrate, sourcing versioned SQL files embedded in the binary so a
// deployed substrated has no on-disk migrations directory dependency.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Apply runs every pending up migration against db. It is safe to call on
// every process start: golang-migrate tracks the applied version in a
// schema_migrations table and is a no-op once current.
func Apply(db *sql.DB) error {
	source, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("open embedded migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("configure postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "substrate", driver)
	if err != nil {
		return fmt.Errorf("construct migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return fmt.Errorf("migration source close: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration database close: %w", dbErr)
	}
	return nil
}
