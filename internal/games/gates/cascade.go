package gates

import (
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

// Step is one evaluated grid of a spin.
type Step struct {
	Index   int             `json:"index"`
	Grid    Grid            `json:"grid"`
	Wins    []Win           `json:"wins,omitempty"`
	StepWin decimal.Decimal `json:"step_win"`
	// Refilled lists the cells drawn fresh for this grid. Empty on step 0.
	Refilled []Pos `json:"refilled,omitempty"`
	// NewOrbs are orbs that landed on this grid for the first time.
	NewOrbs []int `json:"new_orbs,omitempty"`
	// Final marks the last step. Capped is set when the cascade limit ended
	// the sequence while the grid still paid.
	Final  bool `json:"final"`
	Capped bool `json:"capped,omitempty"`
}

// Cascade yields the steps of one spin lazily. Refill draws happen only when
// the next step is pulled. It is not restartable.
type Cascade struct {
	table  paytable.GatesTable
	drawer *Drawer
	src    rng.Source
	stake  int64
	ante   bool

	grid     Grid
	refilled []Pos
	pending  []Pos // winning cells of the previous step, removed on the next pull
	index    int
	winning  int
	done     bool
	steps    []Step
}

// NewCascade draws the initial grid.
func NewCascade(src rng.Source, t paytable.GatesTable, d *Drawer, stake int64, ante bool) *Cascade {
	return &Cascade{
		table:  t,
		drawer: d,
		src:    src,
		stake:  stake,
		ante:   ante,
		grid:   d.Fill(src, t.Columns, t.Rows, ante),
	}
}

// newCascadeFromGrid starts a sequence from a fixed initial grid.
func newCascadeFromGrid(src rng.Source, t paytable.GatesTable, d *Drawer, stake int64, g Grid) *Cascade {
	return &Cascade{table: t, drawer: d, src: src, stake: stake, grid: g.Clone()}
}

// Next evaluates the next grid. ok is false once the sequence has ended.
func (c *Cascade) Next() (step Step, ok bool) {
	if c.done {
		return Step{}, false
	}

	var newOrbs []int
	if c.index == 0 {
		newOrbs = c.grid.Orbs()
	} else {
		c.grid, c.refilled = tumble(c.grid, c.pending, c.drawer, c.src, c.ante)
		for _, p := range c.refilled {
			if cell := c.grid[p.Col][p.Row]; cell.Symbol == Orb {
				newOrbs = append(newOrbs, cell.Orb)
			}
		}
	}
	c.pending = nil

	wins, total := Evaluate(c.grid, c.table, c.stake)
	step = Step{
		Index:    c.index,
		Grid:     c.grid.Clone(),
		Wins:     wins,
		StepWin:  total,
		Refilled: c.refilled,
		NewOrbs:  newOrbs,
	}

	if len(wins) == 0 {
		step.Final = true
		c.done = true
	} else {
		c.winning++
		if c.winning >= c.table.CascadeCap() {
			step.Final = true
			step.Capped = true
			c.done = true
		} else {
			for _, w := range wins {
				c.pending = append(c.pending, w.Cells...)
			}
		}
	}

	c.index++
	c.steps = append(c.steps, step)
	return step, true
}

// Drain pulls every remaining step.
func (c *Cascade) Drain() []Step {
	for {
		if _, ok := c.Next(); !ok {
			return c.steps
		}
	}
}

// Done reports whether the sequence has ended.
func (c *Cascade) Done() bool { return c.done }

