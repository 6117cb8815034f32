// Package plinko drops a ball through a peg pyramid with a fixed-step
// physics simulation and pays the multiplier of the bin it lands in.
//
// Coordinates are in board units with x = 0 at the centre line and y
// growing downwards from the drop point.
package plinko

import (
	"math"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
)

// pathEvery is the frame interval between recorded path points.
const pathEvery = 4

// Point is a recorded ball position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Outcome is a finished drop.
type Outcome struct {
	Drop   float64 `json:"drop"` // starting x
	Bin    int     `json:"bin"`
	Frames int     `json:"frames"`
	Path   []Point `json:"path"`
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindPlinko }

// Resolve pays stake times the bin multiplier.
func Resolve(o Outcome, t paytable.PlinkoTable, stake int64) domain.RoundResult {
	if o.Bin < 0 || o.Bin >= len(t.Bins) {
		return domain.Lost()
	}
	m := t.Bins[o.Bin]
	win := domain.StakeTimes(stake, m)
	if win.Sign() <= 0 {
		return domain.Lost()
	}
	return domain.Paid(win, m)
}

// Board is the static geometry of a table.
type Board struct {
	table  paytable.PlinkoTable
	pegs   []Point
	width  float64
	left   float64
	floorY float64
}

// NewBoard lays out the pyramid. Row r holds r+3 pegs; the last row's pegs
// sit on the bin edges.
func NewBoard(t paytable.PlinkoTable) *Board {
	b := &Board{
		table:  t,
		width:  float64(len(t.Bins)) * t.PegSpacing,
		floorY: float64(t.Rows+1) * t.PegSpacing,
	}
	b.left = -b.width / 2
	for r := 0; r < t.Rows; r++ {
		n := r + 3
		y := float64(r+1) * t.PegSpacing
		for j := 0; j < n; j++ {
			x := (float64(j) - float64(n-1)/2) * t.PegSpacing
			b.pegs = append(b.pegs, Point{X: x, Y: y})
		}
	}
	return b
}

// Pegs returns the peg centres.
func (b *Board) Pegs() []Point { return b.pegs }

// BinOf returns the bin whose span [start, start+width) contains x, or -1.
func (b *Board) BinOf(x float64) int {
	for i := range b.table.Bins {
		start := b.left + float64(i)*b.table.PegSpacing
		if x >= start && x < start+b.table.PegSpacing {
			return i
		}
	}
	return -1
}

// Drop simulates one ball. The source supplies the drop jitter and the
// direction of every deflection.
func (b *Board) Drop(src rng.Source) Outcome {
	t := b.table
	x := t.Jitter * (2*src.Float64() - 1)
	y := 0.0
	vx, vy := 0.0, 0.0

	minX := b.left + t.BallRadius
	maxX := b.left + b.width - t.BallRadius
	reach := t.PegRadius + t.BallRadius

	o := Outcome{Drop: x, Path: []Point{{X: x, Y: y}}}
	frame := 0
	for ; frame < t.MaxFrames && y < b.floorY; frame++ {
		vy += t.Gravity
		vx *= 1 - t.Drag
		x += vx
		y += vy

		if x < minX {
			x = minX
			vx = math.Abs(vx) * t.Restitution
		} else if x > maxX {
			x = maxX
			vx = -math.Abs(vx) * t.Restitution
		}

		for _, p := range b.pegs {
			dx, dy := x-p.X, y-p.Y
			if math.Abs(dy) >= reach || math.Abs(dx) >= reach {
				continue
			}
			dist := math.Hypot(dx, dy)
			if dist >= reach {
				continue
			}
			if dist == 0 {
				dx, dy, dist = 0, -1, 1
			}
			nx, ny := dx/dist, dy/dist

			// Push the ball out of the peg and reflect the inward velocity.
			x = p.X + nx*reach
			y = p.Y + ny*reach
			if dot := vx*nx + vy*ny; dot < 0 {
				vx -= (1 + t.Restitution) * dot * nx
				vy -= (1 + t.Restitution) * dot * ny
			}

			dir := 1.0
			switch {
			case dx < 0:
				dir = -1
			case dx == 0:
				if src.Float64() < 0.5 {
					dir = -1
				}
			}
			vx += dir * t.OutwardBias * (0.5 + src.Float64())
		}

		if frame%pathEvery == 0 {
			o.Path = append(o.Path, Point{X: x, Y: y})
		}
	}

	if x < minX {
		x = minX
	} else if x > maxX {
		x = maxX
	}
	o.Path = append(o.Path, Point{X: x, Y: math.Min(y, b.floorY)})
	o.Frames = frame
	o.Bin = b.BinOf(x)
	return o
}
