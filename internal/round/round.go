// Package round is the journal of staked rounds. A round is begun right
// after the stake is removed and is either completed with its win or voided
// with a refund. Rounds still pending at startup were interrupted and are
// voided by the engine.
package round

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("round not found")
	// ErrSettled rejects a second settlement of the same round.
	ErrSettled = errors.New("round already settled")
)

// Journal records round lifecycles.
type Journal interface {
	Begin(ctx context.Context, r *domain.Round) error
	Complete(ctx context.Context, id string, win int64, outcome json.RawMessage) error
	Void(ctx context.Context, id, reason string) error
	Pending(ctx context.Context) ([]*domain.Round, error)
	Get(ctx context.Context, id string) (*domain.Round, error)
}

// New returns a pending round record with a fresh id.
func New(playerID string, gameID domain.GameID, stake, cost int64) *domain.Round {
	return &domain.Round{
		ID:        uuid.New().String(),
		PlayerID:  playerID,
		GameID:    gameID,
		Stake:     stake,
		Cost:      cost,
		Status:    domain.RoundPending,
		StartedAt: time.Now().UTC(),
	}
}

// Memory keeps the journal in process.
type Memory struct {
	mu     sync.RWMutex
	rounds map[string]*domain.Round
}

// NewMemory creates an empty journal.
func NewMemory() *Memory {
	return &Memory{rounds: make(map[string]*domain.Round)}
}

// Begin implements Journal.
func (m *Memory) Begin(ctx context.Context, r *domain.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.Status = domain.RoundPending
	m.rounds[r.ID] = &cp
	return nil
}

func (m *Memory) settle(id string, fn func(r *domain.Round)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != domain.RoundPending {
		return ErrSettled
	}
	now := time.Now().UTC()
	r.EndedAt = &now
	fn(r)
	return nil
}

// Complete implements Journal.
func (m *Memory) Complete(ctx context.Context, id string, win int64, outcome json.RawMessage) error {
	return m.settle(id, func(r *domain.Round) {
		r.Status = domain.RoundCompleted
		r.Win = win
		r.Outcome = outcome
	})
}

// Void implements Journal.
func (m *Memory) Void(ctx context.Context, id, reason string) error {
	return m.settle(id, func(r *domain.Round) {
		r.Status = domain.RoundVoided
		r.Reason = reason
	})
}

// Pending implements Journal, oldest first.
func (m *Memory) Pending(ctx context.Context) ([]*domain.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Round
	for _, r := range m.rounds {
		if r.Status == domain.RoundPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Get implements Journal.
func (m *Memory) Get(ctx context.Context, id string) (*domain.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}
