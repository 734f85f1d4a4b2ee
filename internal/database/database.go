package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kkkkikiki/campaign/internal/config"
)

// DB holds database connections
type DB struct {
	SQL    *sqlx.DB
	Driver string
}

// NewDB creates new database connections using config
func NewDB(ctx context.Context, cfg *config.Config) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, cfg.Database.Driver, cfg.Database.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Database.Driver, err)
	}

	// Configure connection pool
	if cfg.Database.Driver == "sqlite3" {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.Database.MaxConns)
		conn.SetMaxIdleConns(cfg.Database.MinConns)
	}
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Database.Driver, err)
	}

	log.Printf("Successfully connected to %s", cfg.Database.Driver)

	db := &DB{SQL: conn, Driver: cfg.Database.Driver}
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return db, nil
}

// Open opens a SQLite database at path and applies the schema. Intended for
// local runs and tests.
func Open(ctx context.Context, path string) (*DB, error) {
	cfg := &config.Config{Database: config.DatabaseConfig{
		Driver:  "sqlite3",
		Path:    path,
		Migrate: true,
	}}
	return NewDB(ctx, cfg)
}

// Migrate creates the tables the engine needs if they don't exist.
func (db *DB) Migrate(ctx context.Context) error {
	var queries []string
	switch db.Driver {
	case "postgres":
		queries = postgresSchema
	case "sqlite3":
		queries = sqliteSchema
	default:
		return fmt.Errorf("no schema for driver %q", db.Driver)
	}

	for _, query := range queries {
		if _, err := db.SQL.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Close closes all database connections
func (db *DB) Close() error {
	if err := db.SQL.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", db.Driver, err)
	}

	return nil
}
