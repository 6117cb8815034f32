// Package game runs minigame rounds for players. It owns the round
// lifecycle around the pure outcome packages: the stake is validated, the
// player's round lock taken and the stake removed before anything is drawn;
// the outcome is resolved, the win credited and the round journaled before
// the lock is released. A round that cannot settle after its stake was taken
// is voided and refunded, never re-resolved.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alexbotov/minigames/internal/audit"
	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games"
	"github.com/alexbotov/minigames/internal/games/gates"
	"github.com/alexbotov/minigames/internal/games/plinko"
	"github.com/alexbotov/minigames/internal/lock"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/alexbotov/minigames/internal/round"
	"github.com/alexbotov/minigames/internal/stats"
	"github.com/alexbotov/minigames/internal/wallet"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrRoundInProgress = errors.New("round in progress")
	ErrNoActiveRound   = errors.New("no active round")
)

// Options wires an engine. Ledger is required; everything else falls back
// to an in-process default.
type Options struct {
	Ledger   wallet.Ledger
	Journal  round.Journal
	Locker   lock.Locker
	Stats    stats.Recorder
	Audit    *audit.Service
	Logger   *zap.Logger
	RNG      rng.Source
	Clock    func() time.Time
	LargeWin int64 // wins at or above this are audited; 0 disables

	LiveRound time.Duration
	LiveSalt  uint64
}

// Engine provides game execution functionality
type Engine struct {
	table    *paytable.Table
	ledger   wallet.Ledger
	journal  round.Journal
	locker   lock.Locker
	stats    stats.Recorder
	audit    *audit.Service
	logger   *zap.Logger
	rng      rng.Source
	clock    func() time.Time
	largeWin int64

	gates *gates.Machine
	board *plinko.Board
	live  *LiveTable

	mu       sync.Mutex
	sessions map[sessionKey]*Session
	holders  map[string]*active // player -> round holding the lock
}

// New creates a new game engine
func New(table *paytable.Table, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Journal == nil {
		opts.Journal = round.NewMemory()
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewMemory(0)
	}
	if opts.Stats == nil {
		opts.Stats = stats.Nop{}
	}
	if opts.Audit == nil {
		opts.Audit = audit.New(nil, opts.Logger)
	}
	if opts.RNG == nil {
		opts.RNG = rng.New()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LiveRound <= 0 {
		opts.LiveRound = 30 * time.Second
	}

	e := &Engine{
		table:    table,
		ledger:   opts.Ledger,
		journal:  opts.Journal,
		locker:   opts.Locker,
		stats:    opts.Stats,
		audit:    opts.Audit,
		logger:   opts.Logger.Named("engine"),
		rng:      opts.RNG,
		clock:    opts.Clock,
		largeWin: opts.LargeWin,
		gates:    gates.NewMachine(table.Gates),
		board:    plinko.NewBoard(table.Plinko),
		sessions: make(map[sessionKey]*Session),
		holders:  make(map[string]*active),
	}
	e.live = newLiveTable(e, opts.LiveRound, opts.LiveSalt)
	return e
}

// Live returns the shared live roulette table.
func (e *Engine) Live() *LiveTable { return e.live }

// GetGames returns the catalog in paytable order.
func (e *Engine) GetGames() []domain.Game {
	out := make([]domain.Game, 0, len(e.table.Games))
	for _, g := range e.table.Games {
		out = append(out, catalogEntry(g))
	}
	return out
}

// GetGame returns a catalog entry by ID
func (e *Engine) GetGame(id domain.GameID) (domain.Game, error) {
	g, ok := e.table.Game(id)
	if !ok {
		return domain.Game{}, ErrGameNotFound
	}
	return catalogEntry(g), nil
}

func catalogEntry(g paytable.GameEntry) domain.Game {
	return domain.Game{ID: g.ID, Name: g.Name, Type: g.Type, MinBet: g.MinBet, MaxBet: g.MaxBet, Enabled: true}
}

// Balance returns the player's coins.
func (e *Engine) Balance(ctx context.Context, playerID string) (int64, error) {
	return e.ledger.Balance(ctx, playerID)
}

// GetRound returns a journaled round owned by playerID.
func (e *Engine) GetRound(ctx context.Context, playerID, roundID string) (*domain.Round, error) {
	r, err := e.journal.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if r.PlayerID != playerID {
		return nil, round.ErrNotFound
	}
	return r, nil
}

func (e *Engine) checkStake(id domain.GameID, stake int64) error {
	g, ok := e.table.Game(id)
	if !ok {
		return ErrGameNotFound
	}
	if stake <= 0 {
		return fmt.Errorf("%w: stake must be positive", domain.ErrInvalidBet)
	}
	if stake < g.MinBet || stake > g.MaxBet {
		return fmt.Errorf("%w: stake %d outside [%d, %d]", domain.ErrInvalidBet, stake, g.MinBet, g.MaxBet)
	}
	return nil
}

// active is a round whose stake has been taken and which still holds the
// player's lock.
type active struct {
	record *domain.Round
	token  string
	game   interface{} // *blackjack.Round, *mines.Round, *crash.Round or *dinorun.Round
}

// acquire takes the player's lock for a. A round of this process that is
// still open keeps the player busy even if its lock expired in the store;
// a timed round that has run out is settled first.
func (e *Engine) acquire(ctx context.Context, a *active) error {
	playerID := a.record.PlayerID
	if h := e.holder(playerID); h != nil {
		e.settleIfOver(ctx, h)
		if e.holder(playerID) != nil {
			return ErrRoundInProgress
		}
	}

	token, err := e.locker.Acquire(ctx, playerID)
	if errors.Is(err, lock.ErrHeld) {
		return ErrRoundInProgress
	}
	if err != nil {
		return fmt.Errorf("failed to acquire round lock: %w", err)
	}

	e.mu.Lock()
	_, busy := e.holders[playerID]
	if !busy {
		e.holders[playerID] = a
	}
	e.mu.Unlock()
	if busy {
		e.locker.Release(ctx, playerID, token)
		return ErrRoundInProgress
	}
	a.token = token
	return nil
}

func (e *Engine) holder(playerID string) *active {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holders[playerID]
}

// settleIfOver settles h when it is a crash or dinorun round that ended
// while nobody was watching.
func (e *Engine) settleIfOver(ctx context.Context, h *active) {
	if id := h.record.GameID; id != domain.GameCrash && id != domain.GameDinoRun {
		return
	}
	s := e.session(h.record.PlayerID, h.record.GameID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == h {
		e.expire(ctx, s)
	}
}

// keepAlive restarts the lock expiry of a round still waiting on the player.
func (e *Engine) keepAlive(ctx context.Context, a *active) {
	if a.token == "" {
		return
	}
	err := e.locker.Extend(ctx, a.record.PlayerID, a.token)
	if errors.Is(err, lock.ErrLost) {
		// Expired in the store; take it back if nobody else has.
		var token string
		if token, err = e.locker.Acquire(ctx, a.record.PlayerID); err == nil {
			a.token = token
		}
	}
	if err != nil {
		e.logger.Warn("failed to extend round lock",
			zap.String("player_id", a.record.PlayerID), zap.String("round_id", a.record.ID), zap.Error(err))
	}
}

func (e *Engine) unlock(a *active) {
	if a.token == "" {
		return
	}
	e.mu.Lock()
	if e.holders[a.record.PlayerID] == a {
		delete(e.holders, a.record.PlayerID)
	}
	e.mu.Unlock()
	if err := e.locker.Release(context.Background(), a.record.PlayerID, a.token); err != nil {
		e.logger.Warn("failed to release round lock",
			zap.String("player_id", a.record.PlayerID), zap.Error(err))
	}
	a.token = ""
}

// open takes the lock, removes cost and journals the round. Nothing has been
// drawn yet when it returns.
func (e *Engine) open(ctx context.Context, playerID string, gameID domain.GameID, stake, cost int64) (*active, error) {
	a := &active{record: round.New(playerID, gameID, stake, cost)}
	if err := e.acquire(ctx, a); err != nil {
		return nil, err
	}

	ok, err := e.ledger.RemoveCoins(ctx, playerID, cost)
	if err != nil {
		e.unlock(a)
		if errors.Is(err, domain.ErrLedgerUnavailable) {
			e.audit.Log(ctx, audit.EventLedgerFailure, domain.SeverityError,
				"Stake removal failed", map[string]interface{}{"game_id": gameID, "cost": cost, "error": err.Error()},
				audit.WithPlayer(playerID))
		}
		return nil, err
	}
	if !ok {
		e.unlock(a)
		return nil, domain.ErrInsufficientBalance
	}

	if err := e.journal.Begin(ctx, a.record); err != nil {
		e.refund(ctx, a.record, "journal unavailable")
		e.unlock(a)
		return nil, fmt.Errorf("failed to journal round: %w", err)
	}
	return a, nil
}

// openFree journals a round that costs nothing, such as a bonus spin.
func (e *Engine) openFree(ctx context.Context, playerID string, gameID domain.GameID, stake int64) (*active, error) {
	a := &active{record: round.New(playerID, gameID, stake, 0)}
	if err := e.acquire(ctx, a); err != nil {
		return nil, err
	}
	if err := e.journal.Begin(ctx, a.record); err != nil {
		e.unlock(a)
		return nil, fmt.Errorf("failed to journal round: %w", err)
	}
	return a, nil
}

// settle resolves o, credits the win and completes the round. A failure
// after the stake was taken voids the round.
func (e *Engine) settle(ctx context.Context, a *active, o games.Outcome) (domain.RoundResult, int64, error) {
	ctx = context.WithoutCancel(ctx)
	rec := a.record
	defer e.unlock(a)

	res, err := games.Resolve(o, e.table, rec.Stake)
	if err != nil {
		e.void(ctx, a, err.Error())
		return res, 0, err
	}

	win := res.Coins()
	if win > 0 {
		if err := e.ledger.AddCoins(ctx, rec.PlayerID, win); err != nil {
			e.void(ctx, a, "credit failed: "+err.Error())
			return res, 0, err
		}
	}

	body, err := json.Marshal(o)
	if err != nil {
		e.logger.Error("failed to encode outcome", zap.String("round_id", rec.ID), zap.Error(err))
	}
	if err := e.journal.Complete(ctx, rec.ID, win, body); err != nil {
		e.audit.Log(ctx, audit.EventSystemError, domain.SeverityCritical,
			"Paid round could not be journaled", map[string]interface{}{"win": win, "error": err.Error()},
			audit.WithPlayer(rec.PlayerID), audit.WithRound(rec.ID))
	}

	e.stats.RecordGameResult(ctx, rec.GameID, domain.GameResult{
		PlayerID: rec.PlayerID,
		Win:      win,
		Bet:      rec.Cost,
		Custom:   custom(o, res),
	})

	if e.largeWin > 0 && win >= e.largeWin {
		e.audit.Log(ctx, audit.EventLargeWin, domain.SeverityInfo,
			fmt.Sprintf("Large win: %d coins", win),
			map[string]interface{}{"game_id": rec.GameID, "stake": rec.Stake, "win": win, "multiplier": res.AppliedMultiplier},
			audit.WithPlayer(rec.PlayerID), audit.WithRound(rec.ID), audit.WithComponent(string(rec.GameID)))
	}

	e.logger.Debug("round settled",
		zap.String("round_id", rec.ID),
		zap.String("player_id", rec.PlayerID),
		zap.String("game_id", string(rec.GameID)),
		zap.Int64("stake", rec.Stake),
		zap.Int64("win", win))
	return res, win, nil
}

// void refunds the round's cost and marks it voided. If the refund fails the
// round stays pending so the next Recover retries it.
func (e *Engine) void(ctx context.Context, a *active, reason string) {
	ctx = context.WithoutCancel(ctx)
	defer e.unlock(a)
	rec := a.record

	if !e.refund(ctx, rec, reason) {
		return
	}
	if err := e.journal.Void(ctx, rec.ID, reason); err != nil {
		e.logger.Error("failed to void round", zap.String("round_id", rec.ID), zap.Error(err))
	}
	e.audit.Log(ctx, audit.EventRoundVoided, domain.SeverityWarning,
		"Round voided", map[string]interface{}{"game_id": rec.GameID, "cost": rec.Cost, "reason": reason},
		audit.WithPlayer(rec.PlayerID), audit.WithRound(rec.ID))
}

func (e *Engine) refund(ctx context.Context, rec *domain.Round, reason string) bool {
	if rec.Cost == 0 {
		return true
	}
	if err := e.ledger.AddCoins(ctx, rec.PlayerID, rec.Cost); err != nil {
		e.audit.Log(ctx, audit.EventRefundFailed, domain.SeverityCritical,
			"Refund failed", map[string]interface{}{"cost": rec.Cost, "reason": reason, "error": err.Error()},
			audit.WithPlayer(rec.PlayerID), audit.WithRound(rec.ID))
		return false
	}
	return true
}

// Recover voids and refunds every round left pending by a previous process.
// It must run before the engine serves players.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	pending, err := e.journal.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending rounds: %w", err)
	}

	voided := 0
	for _, rec := range pending {
		if !e.refund(ctx, rec, "interrupted") {
			continue
		}
		if err := e.journal.Void(ctx, rec.ID, "interrupted"); err != nil {
			e.logger.Error("failed to void interrupted round", zap.String("round_id", rec.ID), zap.Error(err))
			continue
		}
		e.audit.Log(ctx, audit.EventRoundRecovered, domain.SeverityWarning,
			"Interrupted round voided", map[string]interface{}{"game_id": rec.GameID, "cost": rec.Cost},
			audit.WithPlayer(rec.PlayerID), audit.WithRound(rec.ID))
		voided++
	}
	return voided, nil
}

// Shutdown voids every round still in progress, including unsettled live
// bets.
func (e *Engine) Shutdown(ctx context.Context) int {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	voided := 0
	for _, s := range sessions {
		s.mu.Lock()
		if s.active != nil {
			e.void(ctx, s.active, "shutdown")
			s.active = nil
			voided++
		}
		s.mu.Unlock()
	}
	return voided + e.live.voidPending(ctx, "shutdown")
}

// custom picks per-game figures for the stats record.
func custom(o games.Outcome, res domain.RoundResult) map[string]float64 {
	m := map[string]float64{"multiplier": res.AppliedMultiplier.InexactFloat64()}
	switch v := o.(type) {
	case gates.Outcome:
		m["cascades"] = float64(len(v.Steps))
		m["orbs"] = float64(v.OrbSum())
		m["scatters"] = float64(v.Scatters())
		if v.Free {
			m["free"] = 1
		}
	}
	return m
}

// Result is the player view of a round.
type Result struct {
	RoundID    string            `json:"round_id"`
	GameID     domain.GameID     `json:"game_id"`
	Phase      domain.Phase      `json:"phase"`
	Stake      int64             `json:"stake"`
	Cost       int64             `json:"cost"`
	Win        int64             `json:"win"`
	Multiplier decimal.Decimal   `json:"multiplier"`
	Outcome    interface{}       `json:"outcome"`
	Free       bool              `json:"free,omitempty"`
	Bonus      *gates.BonusState `json:"bonus,omitempty"`
	Transition *gates.Transition `json:"transition,omitempty"`
	Balance    int64             `json:"balance"`
}

func (e *Engine) newResult(ctx context.Context, a *active, phase domain.Phase, view interface{}) *Result {
	r := &Result{
		RoundID:    a.record.ID,
		GameID:     a.record.GameID,
		Phase:      phase,
		Stake:      a.record.Stake,
		Cost:       a.record.Cost,
		Multiplier: decimal.NewFromInt(1),
		Outcome:    view,
	}
	r.Balance = e.balanceOrZero(ctx, a.record.PlayerID)
	return r
}

func (e *Engine) balanceOrZero(ctx context.Context, playerID string) int64 {
	b, err := e.ledger.Balance(ctx, playerID)
	if err != nil {
		e.logger.Warn("failed to read balance", zap.String("player_id", playerID), zap.Error(err))
		return 0
	}
	return b
}
