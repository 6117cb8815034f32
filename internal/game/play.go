package game

import (
	"context"
	"fmt"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games"
	"github.com/alexbotov/minigames/internal/games/gates"
	"github.com/alexbotov/minigames/internal/games/roulette"
	"github.com/alexbotov/minigames/internal/games/sevenhalf"
	"github.com/alexbotov/minigames/internal/games/slots"
	"go.uber.org/zap"
)

// PlayRequest is a single-action round.
type PlayRequest struct {
	PlayerID string
	GameID   domain.GameID
	Stake    int64
	Ante     bool           // gates only
	Bets     []roulette.Bet // roulette only; the stake is their total
}

// StepFunc receives Gates cascade steps as they are pulled. Returning an
// error stops delivery; the spin is still completed and settled.
type StepFunc func(gates.Step) error

// Play runs a one-shot round: gates, slots, roulette, plinko or seven-half.
func (e *Engine) Play(ctx context.Context, req PlayRequest) (*Result, error) {
	return e.PlayStream(ctx, req, nil)
}

// PlayStream is Play with Gates steps delivered to onStep while they are
// pulled.
func (e *Engine) PlayStream(ctx context.Context, req PlayRequest, onStep StepFunc) (*Result, error) {
	if _, ok := e.table.Game(req.GameID); !ok {
		return nil, ErrGameNotFound
	}

	stake, cost := req.Stake, req.Stake
	switch req.GameID {
	case domain.GameRoulette:
		total, err := roulette.Validate(req.Bets)
		if err != nil {
			return nil, err
		}
		stake, cost = total, total
	case domain.GameGates:
		cost = gates.Cost(e.table.Gates, req.Stake, req.Ante)
	case domain.GameSlots, domain.GamePlinko, domain.GameSevenHalf:
	case domain.GameLiveRoulette:
		return nil, fmt.Errorf("%w: live roulette bets go to the live table", domain.ErrInvalidAction)
	default:
		return nil, fmt.Errorf("%w: %s rounds are started, not played", domain.ErrInvalidAction, req.GameID)
	}
	if err := e.checkStake(req.GameID, stake); err != nil {
		return nil, err
	}

	s := e.session(req.PlayerID, req.GameID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.GameID == domain.GameGates && s.bonus.Active {
		return nil, fmt.Errorf("%w: %d free spins pending", domain.ErrInvalidAction, s.bonus.SpinsRemaining)
	}

	a, err := e.open(ctx, req.PlayerID, req.GameID, stake, cost)
	if err != nil {
		return nil, err
	}

	var o games.Outcome
	switch req.GameID {
	case domain.GameGates:
		spin := e.gates.Begin(e.rng, stake, req.Ante)
		pump(spin, onStep)
		o = spin.Finish()
	case domain.GameSlots:
		o = slots.Spin(e.rng, e.table.Slots)
	case domain.GameRoulette:
		o = roulette.Spin(e.rng, req.Bets)
	case domain.GamePlinko:
		o = e.board.Drop(e.rng)
	case domain.GameSevenHalf:
		deal, err := sevenhalf.Deal(e.rng, e.table.SevenHalf)
		if err != nil {
			e.void(ctx, a, err.Error())
			return nil, err
		}
		o = deal
	}

	res, err := e.complete(ctx, s, a, o)
	if err != nil {
		return nil, err
	}
	if g, ok := o.(gates.Outcome); ok {
		e.advanceBonus(s, res, g)
	}
	return res, nil
}

// Spin plays the next Gates free spin. No stake is removed.
func (e *Engine) Spin(ctx context.Context, playerID string, onStep StepFunc) (*Result, error) {
	s := e.session(playerID, domain.GameGates)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bonus.Active {
		return nil, fmt.Errorf("%w: no free spins", domain.ErrInvalidAction)
	}
	a, err := e.openFree(ctx, playerID, domain.GameGates, s.bonus.Stake)
	if err != nil {
		return nil, err
	}

	spin := e.gates.BeginFree(e.rng, s.bonus)
	pump(spin, onStep)
	o := spin.Finish()

	res, err := e.complete(ctx, s, a, o)
	if err != nil {
		tr := s.bonus.Forfeit()
		e.logger.Warn("free spin voided",
			zap.String("player_id", playerID), zap.String("round_id", a.record.ID),
			zap.Int("spins_remaining", s.bonus.SpinsRemaining), zap.Bool("bonus_ended", tr.Ended), zap.Error(err))
		return nil, err
	}
	res.Free = true
	e.advanceBonus(s, res, o)
	return res, nil
}

// complete settles a one-shot outcome and records it as the session's last
// round.
func (e *Engine) complete(ctx context.Context, s *Session, a *active, o games.Outcome) (*Result, error) {
	rr, win, err := e.settle(ctx, a, o)
	if err != nil {
		return nil, err
	}
	res := e.newResult(ctx, a, domain.PhaseCompleted, o)
	res.Win = win
	res.Multiplier = rr.AppliedMultiplier
	s.last = res
	return res, nil
}

func (e *Engine) advanceBonus(s *Session, res *Result, o gates.Outcome) {
	tr := s.bonus.Advance(o, e.table.Gates, res.Win)
	if tr != (gates.Transition{}) {
		res.Transition = &tr
	}
	if s.bonus.Active {
		b := s.bonus
		res.Bonus = &b
	}
}

func pump(spin *gates.Spin, onStep StepFunc) {
	if onStep == nil {
		return
	}
	for {
		step, ok := spin.Next()
		if !ok {
			return
		}
		if err := onStep(step); err != nil {
			return
		}
	}
}
