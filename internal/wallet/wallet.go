// Package wallet is the coin ledger. Stakes are removed before any outcome
// is drawn and wins are added after resolution; the ledger itself takes no
// round locks.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/google/uuid"
)

// Ledger is the balance store every round goes through.
type Ledger interface {
	// RemoveCoins takes amount from the player. It returns false without
	// mutating anything when the balance is too low.
	RemoveCoins(ctx context.Context, playerID string, amount int64) (bool, error)
	// AddCoins credits amount to the player.
	AddCoins(ctx context.Context, playerID string, amount int64) error
	// Balance returns the player's coins.
	Balance(ctx context.Context, playerID string) (int64, error)
}

// History is implemented by ledgers that keep an entry log.
type History interface {
	Entries(ctx context.Context, playerID string, limit int) ([]Entry, error)
}

// Entry is one ledger movement.
type Entry struct {
	ID            string                 `json:"id"`
	PlayerID      string                 `json:"player_id"`
	Type          domain.TransactionType `json:"type"`
	Amount        int64                  `json:"amount"`
	BalanceBefore int64                  `json:"balance_before"`
	BalanceAfter  int64                  `json:"balance_after"`
	CreatedAt     time.Time              `json:"created_at"`
}

func validAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount %d must be positive", domain.ErrInvalidBet, amount)
	}
	return nil
}

// Memory is an in-process ledger. Unknown players start with the configured
// balance.
type Memory struct {
	mu       sync.Mutex
	starting int64
	balances map[string]int64
	entries  map[string][]Entry
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(startingBalance int64) *Memory {
	return &Memory{
		starting: startingBalance,
		balances: make(map[string]int64),
		entries:  make(map[string][]Entry),
	}
}

func (m *Memory) balance(playerID string) int64 {
	b, ok := m.balances[playerID]
	if !ok {
		b = m.starting
		m.balances[playerID] = b
	}
	return b
}

func (m *Memory) record(playerID string, typ domain.TransactionType, amount, before, after int64) {
	m.entries[playerID] = append(m.entries[playerID], Entry{
		ID:            uuid.New().String(),
		PlayerID:      playerID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     time.Now().UTC(),
	})
}

// RemoveCoins implements Ledger.
func (m *Memory) RemoveCoins(ctx context.Context, playerID string, amount int64) (bool, error) {
	if err := validAmount(amount); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(playerID)
	if b < amount {
		return false, nil
	}
	m.balances[playerID] = b - amount
	m.record(playerID, domain.TxTypeWager, amount, b, b-amount)
	return true, nil
}

// AddCoins implements Ledger.
func (m *Memory) AddCoins(ctx context.Context, playerID string, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(playerID)
	m.balances[playerID] = b + amount
	m.record(playerID, domain.TxTypeWin, amount, b, b+amount)
	return nil
}

// Balance implements Ledger.
func (m *Memory) Balance(ctx context.Context, playerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(playerID), nil
}

// Set overwrites a player's balance.
func (m *Memory) Set(playerID string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[playerID] = amount
}

// Entries implements History, newest first.
func (m *Memory) Entries(ctx context.Context, playerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.entries[playerID]
	out := make([]Entry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
