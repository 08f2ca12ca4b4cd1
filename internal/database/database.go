package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/kkkkikiki/contest/internal/config"
	"github.com/kkkkikiki/contest/internal/logger"
)

// Dialect identifies the SQL backend in use
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func init() {
	sqlx.BindDriver(string(SQLite), sqlx.QUESTION)
}

// DB holds the database connection and its dialect
type DB struct {
	SQL     *sqlx.DB
	Dialect Dialect
}

// NewDB creates the database connection using config and applies the schema
func NewDB(ctx context.Context, cfg *config.Config) (*DB, error) {
	dialect := Dialect(cfg.Database.Driver)
	db, err := Open(ctx, dialect, cfg.Database.GetDatabaseURL())
	if err != nil {
		return nil, err
	}

	if dialect == Postgres {
		db.SQL.SetMaxOpenConns(cfg.Database.MaxConns)
		db.SQL.SetMaxIdleConns(cfg.Database.MinConns)
		db.SQL.SetConnMaxLifetime(time.Hour)
	}

	logger.Info("Successfully connected to database", zap.String("driver", string(dialect)))
	return db, nil
}

// Open connects with the given dialect and DSN, pings and applies the schema
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	// SQLite allows a single writer; one connection serialises transactions
	// instead of surfacing SQLITE_BUSY to callers.
	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
	}

	db := &DB{SQL: conn, Dialect: dialect}
	if err := db.ApplySchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// ApplySchema creates all tables for the dialect. Safe to call multiple times.
func (db *DB) ApplySchema(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema/" + string(db.Dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.SQL.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	if err := db.SQL.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", db.Dialect, err)
	}
	return nil
}

// IsTransient reports whether err is a storage conflict that succeeds on retry:
// Postgres serialization failures and deadlocks, SQLite busy and locked errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return true
		}
		return false
	}

	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
