package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationsPath returns the embedded migrations directory for driver.
func MigrationsPath(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "migrations/postgresql", nil
	case "mysql":
		return "migrations/mysql", nil
	default:
		return "", fmt.Errorf("unsupported migration driver %q", driver)
	}
}

// Migrate applies every pending embedded migration for driver to db.
// Returns nil when the schema is already up to date.
func Migrate(db *sql.DB, driver string, logger *slog.Logger) error {
	path, err := MigrationsPath(driver)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, path)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var instance migratedb.Driver
	switch driver {
	case "postgres":
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	case "mysql":
		instance, err = mysql.WithInstance(db, &mysql.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger.Info("running database migrations", slog.String("driver", driver))

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}
