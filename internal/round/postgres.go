package round

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
)

// Postgres stores the journal in the rounds table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a journal on a migrated database.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Begin implements Journal.
func (p *Postgres) Begin(ctx context.Context, r *domain.Round) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rounds (id, player_id, game_id, stake, cost, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.PlayerID, r.GameID, r.Stake, r.Cost, domain.RoundPending, r.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to begin round: %w", err)
	}
	return nil
}

func (p *Postgres) settle(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := p.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to settle round: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := p.Get(ctx, id); err != nil {
		return err
	}
	return ErrSettled
}

// Complete implements Journal.
func (p *Postgres) Complete(ctx context.Context, id string, win int64, outcome json.RawMessage) error {
	var doc interface{}
	if len(outcome) > 0 {
		doc = string(outcome)
	}
	return p.settle(ctx, id, `
		UPDATE rounds SET status = $2, win = $3, outcome = $4, ended_at = $5
		WHERE id = $1 AND status = 'pending'
	`, domain.RoundCompleted, win, doc, time.Now().UTC())
}

// Void implements Journal.
func (p *Postgres) Void(ctx context.Context, id, reason string) error {
	return p.settle(ctx, id, `
		UPDATE rounds SET status = $2, reason = $3, ended_at = $4
		WHERE id = $1 AND status = 'pending'
	`, domain.RoundVoided, reason, time.Now().UTC())
}

const selectRound = `
	SELECT id, player_id, game_id, stake, cost, win, status, outcome, reason, started_at, ended_at
	FROM rounds`

func scanRound(row interface{ Scan(...interface{}) error }) (*domain.Round, error) {
	var r domain.Round
	var outcome, reason sql.NullString
	var ended sql.NullTime
	err := row.Scan(&r.ID, &r.PlayerID, &r.GameID, &r.Stake, &r.Cost, &r.Win,
		&r.Status, &outcome, &reason, &r.StartedAt, &ended)
	if err != nil {
		return nil, err
	}
	if outcome.Valid {
		r.Outcome = json.RawMessage(outcome.String)
	}
	r.Reason = reason.String
	if ended.Valid {
		t := ended.Time
		r.EndedAt = &t
	}
	return &r, nil
}

// Pending implements Journal, oldest first.
func (p *Postgres) Pending(ctx context.Context) ([]*domain.Round, error) {
	rows, err := p.db.QueryContext(ctx, selectRound+` WHERE status = 'pending' ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rounds: %w", err)
	}
	defer rows.Close()

	var out []*domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get implements Journal.
func (p *Postgres) Get(ctx context.Context, id string) (*domain.Round, error) {
	r, err := scanRound(p.db.QueryRowContext(ctx, selectRound+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return r, nil
}
