package gates

import (
	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

// Outcome is the complete record of one spin: every grid the cascade
// produced, in order.
type Outcome struct {
	Stake int64  `json:"stake"`
	Ante  bool   `json:"ante"`
	Free  bool   `json:"free"`
	Steps []Step `json:"steps"`
	// AccumulatorBefore is the bonus accumulator when a free spin started.
	AccumulatorBefore int `json:"accumulator_before"`
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindGrid }

// OrbSum totals every orb that landed during the spin, initial grid and
// refills alike.
func (o Outcome) OrbSum() int {
	sum := 0
	for _, s := range o.Steps {
		for _, v := range s.NewOrbs {
			sum += v
		}
	}
	return sum
}

// Scatters counts scatters on the final grid.
func (o Outcome) Scatters() int {
	if len(o.Steps) == 0 {
		return 0
	}
	return o.Steps[len(o.Steps)-1].Grid.Count(Scatter)
}

// BaseWin re-evaluates every step and sums the cluster pays before orbs.
func (o Outcome) BaseWin(t paytable.GatesTable) decimal.Decimal {
	total := decimal.Zero
	for _, s := range o.Steps {
		_, win := Evaluate(s.Grid, t, o.Stake)
		total = total.Add(win)
	}
	return total
}

// Accumulator is the bonus accumulator after this spin. It only grows on a
// winning free spin that landed at least one orb.
func (o Outcome) Accumulator(t paytable.GatesTable) int {
	if !o.Free {
		return 0
	}
	orbs := o.OrbSum()
	if orbs > 0 && o.BaseWin(t).Sign() > 0 {
		return o.AccumulatorBefore + orbs
	}
	return o.AccumulatorBefore
}

// Resolve prices a spin. Orbs multiply the summed cascade win once. In free
// mode the whole accumulator applies, but only when this spin landed an orb.
func Resolve(o Outcome, t paytable.GatesTable) domain.RoundResult {
	win := o.BaseWin(t)
	if win.Sign() <= 0 {
		return domain.Lost()
	}

	mult := 0
	if orbs := o.OrbSum(); orbs > 0 {
		mult = orbs
		if o.Free {
			mult = o.Accumulator(t)
		}
	}
	if mult == 0 {
		return domain.Paid(win, decimal.NewFromInt(1))
	}
	m := decimal.NewFromInt(int64(mult))
	return domain.Paid(win.Mul(m), m)
}

// Cost is the coins removed for a paid spin. Ante raises it by the table
// factor, rounded up.
func Cost(t paytable.GatesTable, stake int64, ante bool) int64 {
	if !ante {
		return stake
	}
	return decimal.NewFromInt(stake).Mul(t.AnteCost).Ceil().IntPart()
}

// Machine draws spins for one table.
type Machine struct {
	table  paytable.GatesTable
	drawer *Drawer
}

// NewMachine precomputes the draw distribution of t.
func NewMachine(t paytable.GatesTable) *Machine {
	return &Machine{table: t, drawer: NewDrawer(t)}
}

// Table returns the table the machine was built from.
func (m *Machine) Table() paytable.GatesTable { return m.table }

// Spin is a spin in progress. Steps are pulled from the embedded cascade.
type Spin struct {
	*Cascade
	outcome Outcome
}

// Begin starts a paid spin.
func (m *Machine) Begin(src rng.Source, stake int64, ante bool) *Spin {
	return &Spin{
		Cascade: NewCascade(src, m.table, m.drawer, stake, ante),
		outcome: Outcome{Stake: stake, Ante: ante},
	}
}

// BeginFree starts a free spin at the bonus stake. Ante never applies.
func (m *Machine) BeginFree(src rng.Source, b BonusState) *Spin {
	return &Spin{
		Cascade: NewCascade(src, m.table, m.drawer, b.Stake, false),
		outcome: Outcome{Stake: b.Stake, Free: true, AccumulatorBefore: b.Accumulator},
	}
}

// Finish drains the cascade and returns the frozen outcome.
func (s *Spin) Finish() Outcome {
	s.outcome.Steps = s.Drain()
	return s.outcome
}

// BonusState is the free-spin mode of one session.
type BonusState struct {
	Active         bool  `json:"active"`
	SpinsRemaining int   `json:"spins_remaining"`
	Accumulator    int   `json:"accumulator"`
	Stake          int64 `json:"stake"`
	TotalWin       int64 `json:"total_win"`
}

// Transition describes what a spin did to the bonus state.
type Transition struct {
	Entered     bool  `json:"entered,omitempty"`
	Retriggered bool  `json:"retriggered,omitempty"`
	Ended       bool  `json:"ended,omitempty"`
	BonusWin    int64 `json:"bonus_win,omitempty"` // set when Ended
}

// Forfeit uses up a free spin whose settlement failed. Nothing it drew
// counts toward the bonus.
func (b *BonusState) Forfeit() Transition {
	var tr Transition
	if !b.Active {
		return tr
	}
	b.SpinsRemaining--
	if b.SpinsRemaining <= 0 {
		tr.Ended = true
		tr.BonusWin = b.TotalWin
		*b = BonusState{}
	}
	return tr
}

// Advance applies a settled spin to the bonus state. win is the coins the
// spin paid.
func (b *BonusState) Advance(o Outcome, t paytable.GatesTable, win int64) Transition {
	var tr Transition
	triggered := o.Scatters() >= t.ScatterTrigger

	if o.Free {
		b.SpinsRemaining--
		b.Accumulator = o.Accumulator(t)
		b.TotalWin += win
		if triggered {
			b.SpinsRemaining += t.RetriggerSpins
			tr.Retriggered = true
		}
		if b.SpinsRemaining <= 0 {
			tr.Ended = true
			tr.BonusWin = b.TotalWin
			*b = BonusState{}
		}
		return tr
	}

	if triggered {
		*b = BonusState{
			Active:         true,
			SpinsRemaining: t.FreeSpins,
			Accumulator:    0,
			Stake:          o.Stake,
		}
		tr.Entered = true
	}
	return tr
}
