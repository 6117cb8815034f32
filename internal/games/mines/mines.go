// Package mines implements the hidden-hazard reveal game on a fixed board.
package mines

import (
	"fmt"
	"slices"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

// Outcome is the board and what was uncovered on it.
type Outcome struct {
	Cells     int   `json:"cells"`
	Mines     int   `json:"mines"`
	Hazards   []int `json:"hazards"`
	Revealed  []int `json:"revealed"` // safe cells in reveal order
	Hit       *int  `json:"hit,omitempty"`
	CashedOut bool  `json:"cashed_out"`
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindMines }

// Resolve pays the ladder rung reached when the round was cashed out.
func Resolve(o Outcome, t paytable.MinesTable, stake int64) domain.RoundResult {
	if !o.CashedOut || o.Hit != nil || len(o.Revealed) == 0 {
		return domain.Lost()
	}
	ladder := t.Ladder(o.Mines)
	if len(o.Revealed) > len(ladder) {
		return domain.Lost()
	}
	m := ladder[len(o.Revealed)-1]
	return domain.Paid(domain.StakeTimes(stake, m), m)
}

// Round is a mines round in progress.
type Round struct {
	table   paytable.MinesTable
	ladder  []decimal.Decimal
	hazards map[int]bool
	outcome Outcome
	phase   domain.Phase
}

// Start places k hazards on distinct cells.
func Start(src rng.Source, t paytable.MinesTable, k int) (*Round, error) {
	if k < 1 || k >= t.Cells {
		return nil, fmt.Errorf("%w: mines must be between 1 and %d", domain.ErrInvalidBet, t.Cells-1)
	}
	hazards := rng.Sample(src, t.Cells, k)
	r := &Round{
		table:   t,
		ladder:  t.Ladder(k),
		hazards: make(map[int]bool, k),
		outcome: Outcome{Cells: t.Cells, Mines: k, Hazards: hazards, Revealed: []int{}},
		phase:   domain.PhaseActive,
	}
	for _, h := range hazards {
		r.hazards[h] = true
	}
	return r, nil
}

// Reveal uncovers cell. It reports whether the cell was safe. Clearing every
// safe cell cashes out at the top of the ladder.
func (r *Round) Reveal(cell int) (bool, error) {
	if r.phase.Terminal() {
		return false, fmt.Errorf("%w: round is %s", domain.ErrRoundOver, r.phase)
	}
	if cell < 0 || cell >= r.table.Cells {
		return false, fmt.Errorf("%w: cell %d off the board", domain.ErrInvalidAction, cell)
	}
	if slices.Contains(r.outcome.Revealed, cell) {
		return false, fmt.Errorf("%w: cell %d already revealed", domain.ErrInvalidAction, cell)
	}

	if r.hazards[cell] {
		r.outcome.Hit = &cell
		r.phase = domain.PhaseBusted
		return false, nil
	}

	r.outcome.Revealed = append(r.outcome.Revealed, cell)
	if len(r.outcome.Revealed) == r.table.Cells-r.outcome.Mines {
		r.outcome.CashedOut = true
		r.phase = domain.PhaseCashedOut
	}
	return true, nil
}

// CashOut locks the current multiplier. At least one safe reveal is needed.
func (r *Round) CashOut() (decimal.Decimal, error) {
	if r.phase.Terminal() {
		return decimal.Zero, fmt.Errorf("%w: round is %s", domain.ErrRoundOver, r.phase)
	}
	if len(r.outcome.Revealed) == 0 {
		return decimal.Zero, fmt.Errorf("%w: nothing revealed yet", domain.ErrInvalidAction)
	}
	r.outcome.CashedOut = true
	r.phase = domain.PhaseCashedOut
	return r.Current(), nil
}

// Current is the multiplier earned so far, 1 before the first reveal.
func (r *Round) Current() decimal.Decimal {
	n := len(r.outcome.Revealed)
	if n == 0 {
		return decimal.NewFromInt(1)
	}
	return r.ladder[n-1]
}

// Next is the multiplier the next safe reveal would earn.
func (r *Round) Next() decimal.Decimal {
	n := len(r.outcome.Revealed)
	if n >= len(r.ladder) {
		return r.Current()
	}
	return r.ladder[n]
}

// Phase returns the round phase.
func (r *Round) Phase() domain.Phase { return r.phase }

// Outcome returns the board record including hazard positions.
func (r *Round) Outcome() Outcome { return r.outcome }

// View is what the player may see.
type View struct {
	Phase    domain.Phase    `json:"phase"`
	Cells    int             `json:"cells"`
	Mines    int             `json:"mines"`
	Revealed []int           `json:"revealed"`
	Current  decimal.Decimal `json:"current"`
	Next     decimal.Decimal `json:"next"`
	Hazards  []int           `json:"hazards,omitempty"` // shown once terminal
	Hit      *int            `json:"hit,omitempty"`
}

// View reports the board, hiding hazards while the round is active.
func (r *Round) View() View {
	v := View{
		Phase:    r.phase,
		Cells:    r.outcome.Cells,
		Mines:    r.outcome.Mines,
		Revealed: r.outcome.Revealed,
		Current:  r.Current(),
		Next:     r.Next(),
		Hit:      r.outcome.Hit,
	}
	if r.phase.Terminal() {
		v.Hazards = r.outcome.Hazards
	}
	return v
}
