// Package games holds the outcome union shared by every minigame and the
// dispatch that prices a frozen outcome against the paytable.
package games

import (
	"fmt"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games/blackjack"
	"github.com/alexbotov/minigames/internal/games/crash"
	"github.com/alexbotov/minigames/internal/games/dinorun"
	"github.com/alexbotov/minigames/internal/games/gates"
	"github.com/alexbotov/minigames/internal/games/mines"
	"github.com/alexbotov/minigames/internal/games/plinko"
	"github.com/alexbotov/minigames/internal/games/roulette"
	"github.com/alexbotov/minigames/internal/games/sevenhalf"
	"github.com/alexbotov/minigames/internal/games/slots"
	"github.com/alexbotov/minigames/internal/paytable"
)

// Outcome is a raw, fully drawn game outcome.
type Outcome interface {
	Kind() domain.OutcomeKind
}

// Resolve prices o. It draws nothing, so the same outcome always yields the
// same result.
func Resolve(o Outcome, t *paytable.Table, stake int64) (domain.RoundResult, error) {
	switch v := o.(type) {
	case blackjack.Outcome:
		return blackjack.Resolve(v, t.Blackjack, stake), nil
	case sevenhalf.Outcome:
		return sevenhalf.Resolve(v, t.SevenHalf, stake), nil
	case gates.Outcome:
		return gates.Resolve(v, t.Gates), nil
	case slots.Outcome:
		return slots.Resolve(v, t.Slots, stake), nil
	case roulette.Outcome:
		return roulette.Resolve(v, t.Roulette), nil
	case crash.Outcome:
		return crash.Resolve(v, stake), nil
	case mines.Outcome:
		return mines.Resolve(v, t.Mines, stake), nil
	case plinko.Outcome:
		return plinko.Resolve(v, t.Plinko, stake), nil
	case dinorun.Outcome:
		return dinorun.Resolve(v, stake), nil
	}
	return domain.RoundResult{}, fmt.Errorf("no resolver for outcome %T", o)
}
