package repository

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

// SchemaVersion is recorded with every run
const SchemaVersion = "2.0"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewSQLiteDB opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLiteDB(path string, logger *zap.Logger) (*sqlx.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection: SQLite serializes writers and :memory: is per connection
	db.SetMaxOpenConns(1)

	logger.Info("Successfully connected to the database", zap.String("path", path))
	return db, nil
}

// MigrateDB runs database migrations.
func MigrateDB(db *sqlx.DB, logger *zap.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("get database instance for migrations: %w", err)
	}

	// m.Close would close db as well, so only the source is released
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer source.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run database migration: %w", err)
	}

	logger.Info("Database migration was run successfully")
	return nil
}

// Open connects and migrates in one step
func Open(path string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := NewSQLiteDB(path, logger)
	if err != nil {
		return nil, err
	}
	if err := MigrateDB(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
