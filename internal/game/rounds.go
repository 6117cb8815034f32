package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games"
	"github.com/alexbotov/minigames/internal/games/blackjack"
	"github.com/alexbotov/minigames/internal/games/crash"
	"github.com/alexbotov/minigames/internal/games/dinorun"
	"github.com/alexbotov/minigames/internal/games/mines"
	"github.com/shopspring/decimal"
)

// Action is a player move inside a multi-step round.
type Action string

const (
	ActionHit     Action = "hit"
	ActionStand   Action = "stand"
	ActionReveal  Action = "reveal"
	ActionCashOut Action = "cash_out"
	ActionTick    Action = "tick"
	ActionJump    Action = "jump"
)

// StartRequest opens a multi-step round.
type StartRequest struct {
	PlayerID    string
	GameID      domain.GameID
	Stake       int64
	Mines       int             // mines only
	AutoCashOut decimal.Decimal // crash only; zero disables
}

// ActRequest applies an action to the round in progress.
type ActRequest struct {
	PlayerID string
	GameID   domain.GameID
	Action   Action
	Cell     int // reveal only
}

// validateStart rejects bad round parameters before anything is removed.
func (e *Engine) validateStart(req StartRequest) error {
	switch req.GameID {
	case domain.GameBlackjack, domain.GameDinoRun:
	case domain.GameMines:
		if !e.table.Mines.Permits(req.Mines) {
			return fmt.Errorf("%w: %d mines not offered", domain.ErrInvalidBet, req.Mines)
		}
	case domain.GameCrash:
		if req.AutoCashOut.Sign() != 0 && req.AutoCashOut.LessThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: auto cash-out must exceed 1", domain.ErrInvalidBet)
		}
	default:
		if _, ok := e.table.Game(req.GameID); !ok {
			return ErrGameNotFound
		}
		return fmt.Errorf("%w: %s rounds are played, not started", domain.ErrInvalidAction, req.GameID)
	}
	return e.checkStake(req.GameID, req.Stake)
}

// Start opens a blackjack, mines, crash or dinorun round. A blackjack
// natural settles immediately.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*Result, error) {
	if err := e.validateStart(req); err != nil {
		return nil, err
	}

	s := e.session(req.PlayerID, req.GameID)
	s.mu.Lock()
	defer s.mu.Unlock()

	e.expire(ctx, s)
	if s.active != nil {
		return nil, ErrRoundInProgress
	}

	a, err := e.open(ctx, req.PlayerID, req.GameID, req.Stake, req.Stake)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	switch req.GameID {
	case domain.GameBlackjack:
		a.game, err = blackjack.Deal(e.rng, e.table.Blackjack)
	case domain.GameMines:
		a.game, err = mines.Start(e.rng, e.table.Mines, req.Mines)
	case domain.GameCrash:
		a.game, err = crash.Start(e.rng, e.table.Crash, now, req.AutoCashOut)
	case domain.GameDinoRun:
		a.game = dinorun.Start(e.rng, e.table.DinoRun, now)
	}
	if err != nil {
		e.void(ctx, a, err.Error())
		return nil, err
	}

	s.active = a
	if phaseOf(a).Terminal() {
		return e.finish(ctx, s)
	}
	return e.newResult(ctx, a, domain.PhaseActive, e.view(a)), nil
}

// Act applies an action. Errors from the game that leave the round running
// are returned as is. A cash-out refused because the round already ended
// settles that round and returns its result together with the error.
func (e *Engine) Act(ctx context.Context, req ActRequest) (*Result, error) {
	if _, ok := e.table.Game(req.GameID); !ok {
		return nil, ErrGameNotFound
	}
	s := e.session(req.PlayerID, req.GameID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, ErrNoActiveRound
	}
	a := s.active
	e.keepAlive(ctx, a)
	now := e.clock()

	var err error
	switch g := a.game.(type) {
	case *blackjack.Round:
		switch req.Action {
		case ActionHit:
			err = g.Hit()
		case ActionStand:
			err = g.Stand()
		default:
			err = unsupported(req)
		}
	case *mines.Round:
		switch req.Action {
		case ActionReveal:
			_, err = g.Reveal(req.Cell)
		case ActionCashOut:
			_, err = g.CashOut()
		default:
			err = unsupported(req)
		}
	case *crash.Round:
		switch req.Action {
		case ActionCashOut:
			_, err = g.CashOut(now)
		case ActionTick:
			g.Tick(now)
		default:
			err = unsupported(req)
		}
	case *dinorun.Round:
		switch req.Action {
		case ActionJump:
			err = g.Jump(now)
		case ActionCashOut:
			_, err = g.CashOut(now)
		case ActionTick:
			g.Tick(now)
		default:
			err = unsupported(req)
		}
	}

	if phaseOf(a).Terminal() {
		res, ferr := e.finish(ctx, s)
		if ferr != nil {
			return nil, ferr
		}
		return res, err
	}
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidAction) && !errors.Is(err, domain.ErrRoundOver) {
			// The game itself failed mid-round.
			s.active = nil
			e.void(ctx, a, err.Error())
		}
		return nil, err
	}
	return e.newResult(ctx, a, domain.PhaseActive, e.view(a)), nil
}

func unsupported(req ActRequest) error {
	return fmt.Errorf("%w: %s does not support %q", domain.ErrInvalidAction, req.GameID, req.Action)
}

// finish settles the session's terminal round. Caller holds s.mu.
func (e *Engine) finish(ctx context.Context, s *Session) (*Result, error) {
	a := s.active
	s.active = nil

	var o games.Outcome
	switch g := a.game.(type) {
	case *blackjack.Round:
		o = g.Outcome()
	case *mines.Round:
		o = g.Outcome()
	case *crash.Round:
		o = g.Outcome()
	case *dinorun.Round:
		o = g.Outcome()
	}

	phase := phaseOf(a)
	view := e.view(a)
	rr, win, err := e.settle(ctx, a, o)
	if err != nil {
		s.last = e.newResult(ctx, a, domain.PhaseVoided, view)
		return nil, err
	}
	res := e.newResult(ctx, a, phase, view)
	res.Win = win
	res.Multiplier = rr.AppliedMultiplier
	s.last = res
	return res, nil
}
