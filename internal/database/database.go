// Package database provides PostgreSQL access for the ledger, the round
// journal and the audit trail.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(ctx context.Context, driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate creates all required tables
func (db *DB) Migrate(ctx context.Context) error {
	schema := `
	-- Coin balances, provisioned on first use
	CREATE TABLE IF NOT EXISTS balances (
		player_id VARCHAR(255) PRIMARY KEY,
		amount BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0),
		updated_at TIMESTAMP NOT NULL
	);

	-- Ledger movements
	CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		player_id VARCHAR(255) NOT NULL,
		type VARCHAR(50) NOT NULL,
		amount BIGINT NOT NULL,
		balance_before BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	-- Round journal; pending rows are voided and refunded on startup
	CREATE TABLE IF NOT EXISTS rounds (
		id UUID PRIMARY KEY,
		player_id VARCHAR(255) NOT NULL,
		game_id VARCHAR(64) NOT NULL,
		stake BIGINT NOT NULL,
		cost BIGINT NOT NULL,
		win BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		outcome JSONB,
		reason TEXT,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP
	);

	-- Significant events
	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		type VARCHAR(100) NOT NULL,
		severity VARCHAR(20) NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		player_id VARCHAR(255),
		round_id UUID,
		description TEXT NOT NULL,
		data JSONB,
		component VARCHAR(100) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_player ON transactions(player_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_rounds_player ON rounds(player_id);
	CREATE INDEX IF NOT EXISTS idx_rounds_status ON rounds(status);
	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_events_player ON audit_events(player_id);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CleanData truncates all tables without dropping them (for testing)
func (db *DB) CleanData(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE TABLE audit_events, rounds, transactions, balances CASCADE;
	`)
	return err
}
