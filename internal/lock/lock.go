// Package lock holds the per-player round lock. A player owns at most one
// staked round at a time; the lock is taken before the stake is removed and
// released after settlement.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrHeld means another round already holds the player's lock.
	ErrHeld = errors.New("lock held")
	// ErrLost means the lock expired or was taken by someone else.
	ErrLost = errors.New("lock lost")
)

// Locker acquires and releases per-key locks. Acquire returns a token that
// must be passed to Release and Extend; a stale token releases nothing.
type Locker interface {
	Acquire(ctx context.Context, key string) (string, error)
	// Extend restarts the expiry of a lock still held under token. It
	// returns ErrLost when the lock expired or changed hands.
	Extend(ctx context.Context, key, token string) error
	Release(ctx context.Context, key, token string) error
}

type entry struct {
	token   string
	expires time.Time
}

// Memory is a process-local Locker. Locks expire after ttl so a crashed
// handler cannot wedge a player forever.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	locks map[string]entry
}

// NewMemory creates a Locker with the given expiry. A zero ttl never expires.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, locks: make(map[string]entry)}
}

// Acquire implements Locker.
func (m *Memory) Acquire(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.locks[key]; ok && (e.expires.IsZero() || now.Before(e.expires)) {
		return "", ErrHeld
	}
	e := entry{token: uuid.New().String()}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
	}
	m.locks[key] = e
	return e.token, nil
}

// Extend implements Locker.
func (m *Memory) Extend(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.locks[key]
	if !ok || e.token != token || (!e.expires.IsZero() && !now.Before(e.expires)) {
		return ErrLost
	}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
		m.locks[key] = e
	}
	return nil
}

// Release implements Locker.
func (m *Memory) Release(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.locks[key]; ok && e.token == token {
		delete(m.locks, key)
	}
	return nil
}
