// Package gates is the cascading-match slot: a grid of independently drawn
// cells, cluster pays by symbol count anywhere on the grid, tumbling refills,
// multiplier orbs applied once per spin, and a scatter-triggered free-spin
// mode with a cross-spin multiplier accumulator.
package gates

import (
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

// Special symbol identifiers.
const (
	Scatter = "scatter"
	Orb     = "orb"
)

// Cell is one grid position. Orb carries the multiplier value when Symbol is
// Orb.
type Cell struct {
	Symbol string `json:"symbol"`
	Orb    int    `json:"orb,omitempty"`
}

// Special reports scatters and orbs, which never form clusters.
func (c Cell) Special() bool {
	return c.Symbol == Scatter || c.Symbol == Orb
}

// Pos addresses a cell. Row 0 is the top row.
type Pos struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Grid is indexed [column][row].
type Grid [][]Cell

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for c := range g {
		out[c] = append([]Cell(nil), g[c]...)
	}
	return out
}

// Count returns how many cells hold symbol.
func (g Grid) Count(symbol string) int {
	n := 0
	for _, col := range g {
		for _, cell := range col {
			if cell.Symbol == symbol {
				n++
			}
		}
	}
	return n
}

// Orbs lists every orb value on the grid.
func (g Grid) Orbs() []int {
	var out []int
	for _, col := range g {
		for _, cell := range col {
			if cell.Symbol == Orb {
				out = append(out, cell.Orb)
			}
		}
	}
	return out
}

// Drawer draws cells from the symbol distribution of a table. One weight
// vector covers every outcome: scatter, orb, then each pay symbol.
type Drawer struct {
	symbols     []string
	weights     []float64
	anteWeights []float64
	orbValues   []int
	orbWeights  []float64
}

// NewDrawer precomputes the cell distribution.
func NewDrawer(t paytable.GatesTable) *Drawer {
	d := &Drawer{}

	var highTotal, lowTotal float64
	for _, s := range t.Symbols {
		if s.Class == paytable.ClassHigh {
			highTotal += s.Weight
		} else {
			lowTotal += s.Weight
		}
	}

	build := func(scatter float64) []float64 {
		rest := 1 - scatter - t.OrbWeight
		w := []float64{scatter, t.OrbWeight}
		for _, s := range t.Symbols {
			if s.Class == paytable.ClassHigh {
				w = append(w, rest*t.HighShare*s.Weight/highTotal)
			} else {
				w = append(w, rest*(1-t.HighShare)*s.Weight/lowTotal)
			}
		}
		return w
	}

	d.symbols = []string{Scatter, Orb}
	for _, s := range t.Symbols {
		d.symbols = append(d.symbols, s.ID)
	}
	d.weights = build(t.ScatterWeight)
	d.anteWeights = build(t.AnteScatterWeight)

	for _, o := range t.Orbs {
		d.orbValues = append(d.orbValues, o.Value)
		d.orbWeights = append(d.orbWeights, o.Weight)
	}
	return d
}

// Draw returns one independently drawn cell.
func (d *Drawer) Draw(src rng.Source, ante bool) Cell {
	weights := d.weights
	if ante {
		weights = d.anteWeights
	}
	sym := d.symbols[rng.Pick(src, weights)]
	if sym != Orb {
		return Cell{Symbol: sym}
	}
	return Cell{Symbol: Orb, Orb: d.orbValues[rng.Pick(src, d.orbWeights)]}
}

// Fill draws a full grid column by column, top to bottom.
func (d *Drawer) Fill(src rng.Source, columns, rows int, ante bool) Grid {
	g := make(Grid, columns)
	for c := range g {
		g[c] = make([]Cell, rows)
		for r := range g[c] {
			g[c][r] = d.Draw(src, ante)
		}
	}
	return g
}

// Win is one paying cluster.
type Win struct {
	Symbol     string          `json:"symbol"`
	Count      int             `json:"count"`
	Tier       int             `json:"tier"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Amount     decimal.Decimal `json:"amount"`
	Cells      []Pos           `json:"cells"`
}

// Evaluate finds every paying cluster on a frozen grid. It draws nothing and
// does not modify g. Wins are listed in paytable order.
func Evaluate(g Grid, t paytable.GatesTable, stake int64) ([]Win, decimal.Decimal) {
	cells := make(map[string][]Pos)
	for c, col := range g {
		for r, cell := range col {
			if cell.Special() {
				continue
			}
			cells[cell.Symbol] = append(cells[cell.Symbol], Pos{Col: c, Row: r})
		}
	}

	var wins []Win
	total := decimal.Zero
	for _, s := range t.Symbols {
		positions := cells[s.ID]
		tier := t.Tier(len(positions))
		if tier < 0 {
			continue
		}
		amount := decimal.NewFromInt(stake).Mul(s.Pays[tier])
		wins = append(wins, Win{
			Symbol:     s.ID,
			Count:      len(positions),
			Tier:       tier,
			Multiplier: s.Pays[tier],
			Amount:     amount,
			Cells:      positions,
		})
		total = total.Add(amount)
	}
	return wins, total
}

// tumble removes the given cells, lets survivors fall to the bottom of each
// column keeping their order, and refills the top with fresh draws. It
// returns the new grid and the refilled positions.
func tumble(g Grid, removed []Pos, d *Drawer, src rng.Source, ante bool) (Grid, []Pos) {
	gone := make(map[Pos]bool, len(removed))
	for _, p := range removed {
		gone[p] = true
	}

	out := make(Grid, len(g))
	var fresh []Pos
	for c, col := range g {
		survivors := make([]Cell, 0, len(col))
		for r, cell := range col {
			if !gone[Pos{Col: c, Row: r}] {
				survivors = append(survivors, cell)
			}
		}
		missing := len(col) - len(survivors)
		out[c] = make([]Cell, len(col))
		for r := 0; r < missing; r++ {
			out[c][r] = d.Draw(src, ante)
			fresh = append(fresh, Pos{Col: c, Row: r})
		}
		copy(out[c][missing:], survivors)
	}
	return out, fresh
}
