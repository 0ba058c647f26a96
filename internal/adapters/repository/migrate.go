package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending schema migration to db. The caller keeps
// ownership of db.
func Migrate(ctx context.Context, driver string, db *sql.DB) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}

	var (
		target database.Driver
		name   string
	)
	switch driver {
	case DriverPostgres:
		// A dedicated connection is released back to the pool afterwards.
		conn, err := db.Conn(ctx)
		if err != nil {
			return 0, fmt.Errorf("migration connection: %w", err)
		}
		defer conn.Close()
		if target, err = postgres.WithConnection(ctx, conn, &postgres.Config{}); err != nil {
			return 0, fmt.Errorf("postgres migration driver: %w", err)
		}
		name = "postgres"
	case DriverSQLite:
		if target, err = sqlite.WithInstance(db, &sqlite.Config{}); err != nil {
			return 0, fmt.Errorf("sqlite migration driver: %w", err)
		}
		name = "sqlite"
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, target)
	if err != nil {
		return 0, fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	return version, nil
}
