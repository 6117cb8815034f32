package domain

import "errors"

var (
	// ErrInsufficientBalance means the stake exceeds available funds. The
	// round never starts and nothing is mutated.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidBet covers non-positive stakes, stakes outside the game
	// limits and malformed bet identifiers. Raised before any draw.
	ErrInvalidBet = errors.New("invalid bet")
	// ErrLedgerUnavailable wraps any failure talking to the ledger.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

var (
	// ErrRoundOver rejects actions on a round that already reached a
	// terminal phase, such as a cash-out after the crash point.
	ErrRoundOver = errors.New("round is over")
	// ErrInvalidAction rejects an action the game does not support in its
	// current phase.
	ErrInvalidAction = errors.New("invalid action")
)
