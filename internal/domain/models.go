// Package domain contains the core models shared by every minigame:
// round results, round records, phases and the error taxonomy.
//
// Stakes and balances are whole coins (int64). Multipliers and payouts are
// decimals; a payout is credited as its floor in coins.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// GameID identifies a minigame
type GameID string

const (
	GameBlackjack    GameID = "blackjack"
	GameSevenHalf    GameID = "seven-half"
	GameGates        GameID = "gates"
	GameSlots        GameID = "slots"
	GameRoulette     GameID = "roulette"
	GameLiveRoulette GameID = "live-roulette"
	GameCrash        GameID = "crash"
	GameMines        GameID = "mines"
	GamePlinko       GameID = "plinko"
	GameDinoRun      GameID = "dinorun"
)

// AllGames lists every game the engine hosts, in catalog order.
var AllGames = []GameID{
	GameBlackjack, GameSevenHalf, GameGates, GameSlots, GameRoulette,
	GameLiveRoulette, GameCrash, GameMines, GamePlinko, GameDinoRun,
}

// Valid reports whether id names a known game.
func (id GameID) Valid() bool {
	for _, g := range AllGames {
		if g == id {
			return true
		}
	}
	return false
}

// OutcomeKind tags the variant of a raw outcome.
type OutcomeKind string

const (
	KindBlackjack OutcomeKind = "blackjack"
	KindSevenHalf OutcomeKind = "seven_half"
	KindGrid      OutcomeKind = "grid"
	KindReels     OutcomeKind = "reels"
	KindWheel     OutcomeKind = "wheel"
	KindCrash     OutcomeKind = "crash"
	KindPlinko    OutcomeKind = "plinko"
	KindDinoRun   OutcomeKind = "dinorun"
	KindMines     OutcomeKind = "mines"
)

// Phase is the round state machine position.
//
//	idle -> active -> {cashed_out | busted | completed} -> idle
//
// A round that cannot settle after the stake was taken is voided.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseActive    Phase = "active"
	PhaseCashedOut Phase = "cashed_out"
	PhaseBusted    Phase = "busted"
	PhaseCompleted Phase = "completed"
	PhaseVoided    Phase = "voided"
)

// Terminal reports whether no further actions are accepted.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCashedOut, PhaseBusted, PhaseCompleted, PhaseVoided:
		return true
	}
	return false
}

// RoundResult is the resolved value of a round.
type RoundResult struct {
	TotalWin          decimal.Decimal `json:"total_win"`
	AppliedMultiplier decimal.Decimal `json:"applied_multiplier"`
	Terminal          bool            `json:"terminal"`
}

// NewRoundResult returns a zero-win result with multiplier 1.
func NewRoundResult() RoundResult {
	return RoundResult{TotalWin: decimal.Zero, AppliedMultiplier: decimal.NewFromInt(1)}
}

// Lost is a terminal zero-win result.
func Lost() RoundResult {
	r := NewRoundResult()
	r.Terminal = true
	return r
}

// Paid is a terminal result paying win. mult below 1 is reported as 1.
func Paid(win, mult decimal.Decimal) RoundResult {
	one := decimal.NewFromInt(1)
	if mult.LessThan(one) {
		mult = one
	}
	return RoundResult{TotalWin: win, AppliedMultiplier: mult, Terminal: true}
}

// Coins returns the creditable whole-coin amount of the win.
func (r RoundResult) Coins() int64 {
	return ToCoins(r.TotalWin)
}

// ToCoins floors a decimal payout to whole coins, never below zero.
func ToCoins(d decimal.Decimal) int64 {
	if d.Sign() <= 0 {
		return 0
	}
	return d.Floor().IntPart()
}

// StakeTimes returns stake x mult.
func StakeTimes(stake int64, mult decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(stake).Mul(mult)
}

// RoundStatus is the journal state of a round
type RoundStatus string

const (
	RoundPending   RoundStatus = "pending"
	RoundCompleted RoundStatus = "completed"
	RoundVoided    RoundStatus = "voided"
)

// Round is the journal record of one staked round.
type Round struct {
	ID        string          `json:"id"`
	PlayerID  string          `json:"player_id"`
	GameID    GameID          `json:"game_id"`
	Stake     int64           `json:"stake"`
	Cost      int64           `json:"cost"` // coins actually removed; differs from Stake under ante
	Win       int64           `json:"win"`
	Status    RoundStatus     `json:"status"`
	Outcome   json.RawMessage `json:"outcome,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// GameResult is the stats payload recorded after a round.
type GameResult struct {
	PlayerID string             `json:"player_id,omitempty"`
	Win      int64              `json:"win"`
	Bet      int64              `json:"bet"`
	Custom   map[string]float64 `json:"custom,omitempty"`
}

// Game is a catalog entry
type Game struct {
	ID      GameID `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // card, grid, reels, wheel, continuous, reveal
	MinBet  int64  `json:"min_bet"`
	MaxBet  int64  `json:"max_bet"`
	Enabled bool   `json:"enabled"`
}

// TransactionType represents ledger entry types
type TransactionType string

const (
	TxTypeWager TransactionType = "wager"
	TxTypeWin   TransactionType = "win"
)

// EventSeverity represents audit event severity
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// AuditEvent represents a significant event
type AuditEvent struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Severity    EventSeverity   `json:"severity"`
	Timestamp   time.Time       `json:"timestamp"`
	PlayerID    *string         `json:"player_id,omitempty"`
	RoundID     *string         `json:"round_id,omitempty"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data,omitempty"`
	Component   string          `json:"component"`
}
