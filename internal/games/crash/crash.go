// Package crash implements the rising-multiplier game. The crash point is
// fixed when the round starts; the multiplier grows with server time and the
// player must cash out before it reaches the point.
package crash

import (
	"fmt"
	"math"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

// Point maps a uniform u in [0, 1) to a crash point k/(1-u), truncated to two
// decimals and clamped to the table bounds.
func Point(u float64, t paytable.CrashTable) decimal.Decimal {
	p := t.MaxPoint
	if rest := 1 - u; rest > 0 {
		p = t.House.Div(decimal.NewFromFloat(rest)).Truncate(2)
	}
	if p.LessThan(t.MinPoint) {
		return t.MinPoint
	}
	if p.GreaterThan(t.MaxPoint) {
		return t.MaxPoint
	}
	return p
}

// Multiplier is e^(rate*seconds) truncated to two decimals.
func Multiplier(elapsed time.Duration, rate float64) decimal.Decimal {
	if elapsed <= 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(math.Exp(rate * elapsed.Seconds())).Truncate(2)
}

// Duration is how long the multiplier takes to reach point.
func Duration(point decimal.Decimal, rate float64) time.Duration {
	p, _ := point.Float64()
	if p <= 1 {
		return 0
	}
	return time.Duration(math.Log(p) / rate * float64(time.Second))
}

// Outcome is the record of a finished or running round.
type Outcome struct {
	Point       decimal.Decimal  `json:"point"`
	AutoCashOut decimal.Decimal  `json:"auto_cash_out"`
	StartedAt   time.Time        `json:"started_at"`
	CashedOutAt *decimal.Decimal `json:"cashed_out_at,omitempty"`
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindCrash }

// Resolve pays stake times the locked multiplier, or nothing if the round
// never cashed out.
func Resolve(o Outcome, stake int64) domain.RoundResult {
	if o.CashedOutAt == nil {
		return domain.Lost()
	}
	return domain.Paid(domain.StakeTimes(stake, *o.CashedOutAt), *o.CashedOutAt)
}

// Round is a live crash round.
type Round struct {
	table   paytable.CrashTable
	outcome Outcome
	phase   domain.Phase
}

// Start draws the crash point. autoCashOut of zero disables the automatic
// cash-out.
func Start(src rng.Source, t paytable.CrashTable, now time.Time, autoCashOut decimal.Decimal) (*Round, error) {
	if autoCashOut.Sign() != 0 && autoCashOut.LessThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: auto cash-out %s must exceed 1", domain.ErrInvalidBet, autoCashOut)
	}
	return &Round{
		table: t,
		outcome: Outcome{
			Point:       Point(src.Float64(), t),
			AutoCashOut: autoCashOut.Truncate(2),
			StartedAt:   now,
		},
		phase: domain.PhaseActive,
	}, nil
}

// Tick advances the round to now and returns the current multiplier. It
// busts the round once the point is reached and applies the automatic
// cash-out when its target comes first.
func (r *Round) Tick(now time.Time) decimal.Decimal {
	if r.phase.Terminal() {
		return r.current()
	}
	m := Multiplier(now.Sub(r.outcome.StartedAt), r.table.GrowthRate)

	auto := r.outcome.AutoCashOut
	if auto.Sign() > 0 && auto.LessThan(r.outcome.Point) && m.GreaterThanOrEqual(auto) {
		r.lock(auto)
		return auto
	}
	if m.GreaterThanOrEqual(r.outcome.Point) {
		r.phase = domain.PhaseBusted
		return r.outcome.Point
	}
	return m
}

// CashOut locks the multiplier at now. A cash-out at or past the point busts
// the round and is rejected. If the automatic target was passed first, that
// target is what gets locked.
func (r *Round) CashOut(now time.Time) (decimal.Decimal, error) {
	if r.phase.Terminal() {
		return decimal.Zero, fmt.Errorf("%w: round is %s", domain.ErrRoundOver, r.phase)
	}
	m := r.Tick(now)
	switch r.phase {
	case domain.PhaseCashedOut:
		return m, nil
	case domain.PhaseBusted:
		return decimal.Zero, fmt.Errorf("%w: crashed at %s", domain.ErrRoundOver, r.outcome.Point)
	}
	r.lock(m)
	return m, nil
}

func (r *Round) lock(m decimal.Decimal) {
	r.outcome.CashedOutAt = &m
	r.phase = domain.PhaseCashedOut
}

func (r *Round) current() decimal.Decimal {
	if r.outcome.CashedOutAt != nil {
		return *r.outcome.CashedOutAt
	}
	return r.outcome.Point
}

// Phase returns the round phase.
func (r *Round) Phase() domain.Phase { return r.phase }

// Outcome returns the round record. The point is part of it, so callers must
// not show it to the player while the round is active.
func (r *Round) Outcome() Outcome { return r.outcome }

// CrashesAt is when the round busts if nobody cashes out.
func (r *Round) CrashesAt() time.Time {
	return r.outcome.StartedAt.Add(Duration(r.outcome.Point, r.table.GrowthRate))
}

// View is the player-safe state of the round.
type View struct {
	Phase       domain.Phase     `json:"phase"`
	Multiplier  decimal.Decimal  `json:"multiplier"`
	StartedAt   time.Time        `json:"started_at"`
	AutoCashOut decimal.Decimal  `json:"auto_cash_out"`
	Point       *decimal.Decimal `json:"point,omitempty"` // revealed once terminal
	CashedOutAt *decimal.Decimal `json:"cashed_out_at,omitempty"`
}

// View reports the round as of now without advancing it.
func (r *Round) View(now time.Time) View {
	v := View{
		Phase:       r.phase,
		StartedAt:   r.outcome.StartedAt,
		AutoCashOut: r.outcome.AutoCashOut,
		CashedOutAt: r.outcome.CashedOutAt,
	}
	if r.phase.Terminal() {
		p := r.outcome.Point
		v.Point = &p
		v.Multiplier = r.current()
	} else {
		v.Multiplier = Multiplier(now.Sub(r.outcome.StartedAt), r.table.GrowthRate)
	}
	return v
}
