// Package migrate applies the goose SQL migrations for the SQL-backed
// snapshot stores. Migrations are embedded, one directory per dialect.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
)

// SourceDir is where migrations live in the repository, for -cmd=create.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedded embed.FS

// Dir returns the embedded migrations directory for driver.
func Dir(driver enums.StoreDriver) (string, error) {
	switch driver {
	case enums.StoreDriverPostgres:
		return "migrations/postgres", nil
	case enums.StoreDriverSQLite:
		return "migrations/sqlite", nil
	}
	return "", fmt.Errorf("driver %q has no sql migrations", driver)
}

func dialect(driver enums.StoreDriver) string {
	if driver == enums.StoreDriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}

func prepare(db *sql.DB, driver enums.StoreDriver) (string, error) {
	if db == nil {
		return "", fmt.Errorf("db is required")
	}
	dir, err := Dir(driver)
	if err != nil {
		return "", err
	}
	goose.SetBaseFS(embedded)
	if err := goose.SetDialect(dialect(driver)); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	return dir, nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, driver enums.StoreDriver) error {
	return Run(ctx, db, driver, "up")
}

// Run executes a standard goose command against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, driver enums.StoreDriver, command string, args ...string) error {
	dir, err := prepare(db, driver)
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Version reports the applied migration version.
func Version(ctx context.Context, db *sql.DB, driver enums.StoreDriver) (int64, error) {
	if _, err := prepare(db, driver); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, driver enums.StoreDriver, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	dir, err := prepare(db, driver)
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
