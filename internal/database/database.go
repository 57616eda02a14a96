package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"messagely/internal/database/migrations"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB represents the database connection
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// NewDatabase opens the SQLite database at dbPath and applies pending
// migrations.
func NewDatabase(ctx context.Context, dbPath string, logger zerolog.Logger) (*DB, error) {
	db, err := Open(ctx, dbPath, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects to the database at dbPath without migrating it.
func Open(ctx context.Context, dbPath string, logger zerolog.Logger) (*DB, error) {
	if dbPath != MemoryPath {
		// Create directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == MemoryPath {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("Database connected")
	return &DB{DB: sqlDB, logger: logger}, nil
}

// Migrate applies the embedded migrations.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(gooseLogger{db.logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Reset deletes every message and user.
func (db *DB) Reset(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	db.logger.Warn().Msg("Database reset")
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	log zerolog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatal().Msgf(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info().Msgf(strings.TrimSpace(format), v...)
}
