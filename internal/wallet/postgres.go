package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/google/uuid"
)

// Postgres keeps balances and the entry log in SQL. Every movement updates
// the balance row and appends a transactions row in one transaction.
type Postgres struct {
	db       *sql.DB
	starting int64
}

// NewPostgres creates a ledger on an already migrated database.
func NewPostgres(db *sql.DB, startingBalance int64) *Postgres {
	return &Postgres{db: db, starting: startingBalance}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrLedgerUnavailable, op, err)
}

// lockBalance provisions the player if needed and locks the balance row.
func (p *Postgres) lockBalance(ctx context.Context, tx *sql.Tx, playerID string) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (player_id, amount, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (player_id) DO NOTHING
	`, playerID, p.starting, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	var amount int64
	err = tx.QueryRowContext(ctx, `
		SELECT amount FROM balances WHERE player_id = $1 FOR UPDATE
	`, playerID).Scan(&amount)
	return amount, err
}

func (p *Postgres) apply(ctx context.Context, tx *sql.Tx, playerID string, typ domain.TransactionType, amount, before, after int64) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx, `
		UPDATE balances SET amount = $1, updated_at = $2 WHERE player_id = $3
	`, after, now, playerID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, player_id, type, amount, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New().String(), playerID, typ, amount, before, after, now)
	return err
}

// RemoveCoins implements Ledger.
func (p *Postgres) RemoveCoins(ctx context.Context, playerID string, amount int64) (bool, error) {
	if err := validAmount(amount); err != nil {
		return false, err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, unavailable("begin", err)
	}
	defer tx.Rollback()

	balance, err := p.lockBalance(ctx, tx, playerID)
	if err != nil {
		return false, unavailable("lock balance", err)
	}
	if balance < amount {
		return false, nil
	}

	if err := p.apply(ctx, tx, playerID, domain.TxTypeWager, amount, balance, balance-amount); err != nil {
		return false, unavailable("remove coins", err)
	}
	if err := tx.Commit(); err != nil {
		return false, unavailable("commit", err)
	}
	return true, nil
}

// AddCoins implements Ledger.
func (p *Postgres) AddCoins(ctx context.Context, playerID string, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	balance, err := p.lockBalance(ctx, tx, playerID)
	if err != nil {
		return unavailable("lock balance", err)
	}
	if err := p.apply(ctx, tx, playerID, domain.TxTypeWin, amount, balance, balance+amount); err != nil {
		return unavailable("add coins", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// Balance implements Ledger. Unknown players report the starting balance.
func (p *Postgres) Balance(ctx context.Context, playerID string) (int64, error) {
	var amount int64
	err := p.db.QueryRowContext(ctx, `
		SELECT amount FROM balances WHERE player_id = $1
	`, playerID).Scan(&amount)
	if err == sql.ErrNoRows {
		return p.starting, nil
	}
	if err != nil {
		return 0, unavailable("balance", err)
	}
	return amount, nil
}

// Entries implements History, newest first.
func (p *Postgres) Entries(ctx context.Context, playerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, player_id, type, amount, balance_before, balance_after, created_at
		FROM transactions WHERE player_id = $1 ORDER BY created_at DESC LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, unavailable("entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.Type, &e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, unavailable("scan entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("entries", err)
	}
	return entries, nil
}
