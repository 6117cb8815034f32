package game

import (
	"context"
	"sync"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games/blackjack"
	"github.com/alexbotov/minigames/internal/games/crash"
	"github.com/alexbotov/minigames/internal/games/dinorun"
	"github.com/alexbotov/minigames/internal/games/gates"
	"github.com/alexbotov/minigames/internal/games/mines"
	"go.uber.org/zap"
)

type sessionKey struct {
	player string
	game   domain.GameID
}

// Session is one player's seat at one game. It owns the round in progress
// and, for Gates, the free-spin bonus state. Rounds of a session never
// overlap.
type Session struct {
	mu     sync.Mutex
	player string
	game   domain.GameID
	active *active
	bonus  gates.BonusState
	last   *Result
}

func (e *Engine) session(playerID string, gameID domain.GameID) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := sessionKey{player: playerID, game: gameID}
	s, ok := e.sessions[k]
	if !ok {
		s = &Session{player: playerID, game: gameID}
		e.sessions[k] = s
	}
	return s
}

// SessionView is the state of a session as the player sees it.
type SessionView struct {
	GameID domain.GameID     `json:"game_id"`
	Phase  domain.Phase      `json:"phase"`
	Round  *Result           `json:"round,omitempty"` // round in progress
	Last   *Result           `json:"last,omitempty"`  // last settled round
	Bonus  *gates.BonusState `json:"bonus,omitempty"`
}

// Session reports a player's session. Timed rounds are advanced to now
// first, so a crash that happened since the last action is settled here.
func (e *Engine) Session(ctx context.Context, playerID string, gameID domain.GameID) (*SessionView, error) {
	if _, ok := e.table.Game(gameID); !ok {
		return nil, ErrGameNotFound
	}
	s := e.session(playerID, gameID)
	s.mu.Lock()
	defer s.mu.Unlock()

	e.expire(ctx, s)
	v := &SessionView{GameID: gameID, Phase: domain.PhaseIdle, Last: s.last}
	if s.active != nil {
		v.Phase = domain.PhaseActive
		v.Round = e.newResult(ctx, s.active, domain.PhaseActive, e.view(s.active))
	}
	if s.bonus.Active {
		b := s.bonus
		v.Bonus = &b
	}
	return v, nil
}

// view renders the player-safe state of a multi-step round.
func (e *Engine) view(a *active) interface{} {
	now := e.clock()
	switch g := a.game.(type) {
	case *blackjack.Round:
		return g.View()
	case *mines.Round:
		return g.View()
	case *crash.Round:
		return g.View(now)
	case *dinorun.Round:
		return g.View(now)
	}
	return nil
}

// phaseOf reports the phase of a multi-step round.
func phaseOf(a *active) domain.Phase {
	switch g := a.game.(type) {
	case *blackjack.Round:
		return g.Phase()
	case *mines.Round:
		return g.Phase()
	case *crash.Round:
		return g.Phase()
	case *dinorun.Round:
		return g.Phase()
	}
	return domain.PhaseIdle
}

// expire advances a timed round to now and settles it if it ended on its
// own. Caller holds s.mu.
func (e *Engine) expire(ctx context.Context, s *Session) {
	if s.active == nil {
		return
	}
	now := e.clock()
	switch g := s.active.game.(type) {
	case *crash.Round:
		g.Tick(now)
	case *dinorun.Round:
		g.Tick(now)
	}
	if !phaseOf(s.active).Terminal() {
		e.keepAlive(ctx, s.active)
		return
	}
	id := s.active.record.ID
	if _, err := e.finish(ctx, s); err != nil {
		e.logger.Error("failed to settle expired round",
			zap.String("player_id", s.player), zap.String("round_id", id), zap.Error(err))
	}
}
