// Package dinorun is the endless-runner cash-out game. The multiplier grows
// linearly with time, obstacles arrive on a schedule drawn at start and
// extended as the run goes on, and the runner must be airborne when each one
// arrives.
package dinorun

import (
	"fmt"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

// lookahead is how far ahead the view exposes obstacle arrivals.
const lookahead = 3 * time.Second

// Multiplier is 1 + growth*seconds truncated to two decimals.
func Multiplier(elapsed time.Duration, growth decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if elapsed <= 0 {
		return one
	}
	secs := decimal.NewFromInt(elapsed.Milliseconds()).Div(decimal.NewFromInt(1000))
	return one.Add(growth.Mul(secs)).Truncate(2)
}

// Outcome records a run. Times are milliseconds since StartedAt.
type Outcome struct {
	StartedAt   time.Time        `json:"started_at"`
	Obstacles   []int64          `json:"obstacles"`
	Jumps       []int64          `json:"jumps"`
	CollidedAt  *int64           `json:"collided_at,omitempty"`
	CashedOutAt *decimal.Decimal `json:"cashed_out_at,omitempty"`
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindDinoRun }

// Resolve pays the locked multiplier of a run that cashed out cleanly.
func Resolve(o Outcome, stake int64) domain.RoundResult {
	if o.CollidedAt != nil || o.CashedOutAt == nil {
		return domain.Lost()
	}
	return domain.Paid(domain.StakeTimes(stake, *o.CashedOutAt), *o.CashedOutAt)
}

// Round is a run in progress.
type Round struct {
	src     rng.Source
	table   paytable.DinoRunTable
	outcome Outcome
	phase   domain.Phase
	cleared int // obstacles already checked
}

// Start draws the first t.Obstacles arrivals. Later ones are drawn from src
// as the run reaches them, so the schedule never runs out.
func Start(src rng.Source, t paytable.DinoRunTable, now time.Time) *Round {
	r := &Round{
		src:     src,
		table:   t,
		outcome: Outcome{StartedAt: now, Obstacles: make([]int64, 0, t.Obstacles), Jumps: []int64{}},
		phase:   domain.PhaseActive,
	}
	for i := 0; i < t.Obstacles; i++ {
		r.spawn()
	}
	return r
}

// spawn appends the next arrival.
func (r *Round) spawn() {
	obs := r.outcome.Obstacles
	if len(obs) == 0 {
		r.outcome.Obstacles = append(obs, r.table.FirstObstacleMs)
		return
	}
	span := int(r.table.MaxGapMs - r.table.MinGapMs + 1)
	next := obs[len(obs)-1] + r.table.MinGapMs + int64(r.src.IntN(span))
	r.outcome.Obstacles = append(obs, next)
}

// scheduleThrough draws arrivals until one lies beyond ms.
func (r *Round) scheduleThrough(ms int64) {
	for len(r.outcome.Obstacles) == 0 || r.outcome.Obstacles[len(r.outcome.Obstacles)-1] <= ms {
		r.spawn()
	}
}

func (r *Round) elapsed(now time.Time) int64 {
	return now.Sub(r.outcome.StartedAt).Milliseconds()
}

func (r *Round) airborne(at int64) bool {
	for _, j := range r.outcome.Jumps {
		if at >= j && at < j+r.table.JumpMs {
			return true
		}
	}
	return false
}

// advance checks every obstacle that has arrived by now.
func (r *Round) advance(now time.Time) {
	if r.phase.Terminal() {
		return
	}
	ms := r.elapsed(now)
	for {
		if r.cleared == len(r.outcome.Obstacles) {
			r.spawn()
		}
		at := r.outcome.Obstacles[r.cleared]
		if at > ms {
			return
		}
		if !r.airborne(at) {
			r.outcome.CollidedAt = &at
			r.phase = domain.PhaseBusted
			return
		}
		r.cleared++
	}
}

// Jump starts a jump at now. The runner must be on the ground.
func (r *Round) Jump(now time.Time) error {
	r.advance(now)
	if r.phase.Terminal() {
		return fmt.Errorf("%w: round is %s", domain.ErrRoundOver, r.phase)
	}
	ms := r.elapsed(now)
	if r.airborne(ms) {
		return fmt.Errorf("%w: already airborne", domain.ErrInvalidAction)
	}
	r.outcome.Jumps = append(r.outcome.Jumps, ms)
	return nil
}

// Tick advances the run and returns the current multiplier.
func (r *Round) Tick(now time.Time) decimal.Decimal {
	r.advance(now)
	if r.phase == domain.PhaseBusted {
		return Multiplier(time.Duration(*r.outcome.CollidedAt)*time.Millisecond, r.table.GrowthPerSecond)
	}
	if r.outcome.CashedOutAt != nil {
		return *r.outcome.CashedOutAt
	}
	return Multiplier(now.Sub(r.outcome.StartedAt), r.table.GrowthPerSecond)
}

// CashOut locks the multiplier at now if no collision happened first.
func (r *Round) CashOut(now time.Time) (decimal.Decimal, error) {
	r.advance(now)
	if r.phase.Terminal() {
		return decimal.Zero, fmt.Errorf("%w: round is %s", domain.ErrRoundOver, r.phase)
	}
	m := Multiplier(now.Sub(r.outcome.StartedAt), r.table.GrowthPerSecond)
	r.outcome.CashedOutAt = &m
	r.phase = domain.PhaseCashedOut
	return m, nil
}

// Phase returns the round phase.
func (r *Round) Phase() domain.Phase { return r.phase }

// Outcome returns the run record.
func (r *Round) Outcome() Outcome { return r.outcome }

// View is the player-visible run state.
type View struct {
	Phase      domain.Phase    `json:"phase"`
	ElapsedMs  int64           `json:"elapsed_ms"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Airborne   bool            `json:"airborne"`
	Upcoming   []int64         `json:"upcoming"`
	CollidedAt *int64          `json:"collided_at,omitempty"`
}

// View advances the run to now and reports it. Only obstacles inside the
// look-ahead window are listed.
func (r *Round) View(now time.Time) View {
	ms := r.elapsed(now)
	m := r.Tick(now)
	v := View{
		Phase:      r.phase,
		ElapsedMs:  ms,
		Multiplier: m,
		Airborne:   r.airborne(ms),
		Upcoming:   []int64{},
		CollidedAt: r.outcome.CollidedAt,
	}
	horizon := ms + lookahead.Milliseconds()
	if !r.phase.Terminal() {
		r.scheduleThrough(horizon)
	}
	for _, at := range r.outcome.Obstacles[r.cleared:] {
		if at > horizon {
			break
		}
		if at > ms {
			v.Upcoming = append(v.Upcoming, at)
		}
	}
	return v
}
