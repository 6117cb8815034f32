// Package paytable is the static configuration registry for every minigame:
// symbol weights, tiered pay tables, multiplier ladders and curve parameters.
//
// A default document is embedded; an operator may replace it with a YAML file
// of the same shape.
package paytable

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// ErrInvalidTable is returned when a document fails validation.
var ErrInvalidTable = errors.New("invalid paytable")

// Table is the full registry.
type Table struct {
	Games     []GameEntry    `yaml:"games"`
	Blackjack BlackjackTable `yaml:"blackjack"`
	SevenHalf SevenHalfTable `yaml:"seven_half"`
	Gates     GatesTable     `yaml:"gates"`
	Slots     SlotsTable     `yaml:"slots"`
	Roulette  RouletteTable  `yaml:"roulette"`
	Crash     CrashTable     `yaml:"crash"`
	Mines     MinesTable     `yaml:"mines"`
	Plinko    PlinkoTable    `yaml:"plinko"`
	DinoRun   DinoRunTable   `yaml:"dinorun"`
}

// GameEntry is one catalog line.
type GameEntry struct {
	ID     domain.GameID `yaml:"id"`
	Name   string        `yaml:"name"`
	Type   string        `yaml:"type"`
	MinBet int64         `yaml:"min_bet"`
	MaxBet int64         `yaml:"max_bet"`
}

type BlackjackTable struct {
	Natural        decimal.Decimal `yaml:"natural"`
	Win            decimal.Decimal `yaml:"win"`
	Push           decimal.Decimal `yaml:"push"`
	DealerStand    int             `yaml:"dealer_stand"`
	DealerHitsSoft bool            `yaml:"dealer_hits_soft"`
}

type SevenHalfTable struct {
	Target decimal.Decimal `yaml:"target"`
	Exact  decimal.Decimal `yaml:"exact"`
	Bonus  decimal.Decimal `yaml:"bonus"`
	Prizes []WeightedPrize `yaml:"prizes"`
}

// WeightedPrize is one rung of a pre-rolled prize ladder.
type WeightedPrize struct {
	Multiplier decimal.Decimal `yaml:"multiplier"`
	Weight     float64         `yaml:"weight"`
}

// SymbolClass groups Gates symbols.
type SymbolClass string

const (
	ClassHigh SymbolClass = "high"
	ClassLow  SymbolClass = "low"
)

type GatesSymbol struct {
	ID     string            `yaml:"id"`
	Class  SymbolClass       `yaml:"class"`
	Weight float64           `yaml:"weight"` // relative within its class
	Pays   []decimal.Decimal `yaml:"pays"`   // tiers [min..min+1], [min+2..min+3], [min+4..]
}

type OrbRung struct {
	Value  int     `yaml:"value"`
	Weight float64 `yaml:"weight"`
}

type GatesTable struct {
	Columns           int             `yaml:"columns"`
	Rows              int             `yaml:"rows"`
	MinMatch          int             `yaml:"min_match"`
	MaxCascades       int             `yaml:"max_cascades"`
	AnteCost          decimal.Decimal `yaml:"ante_cost"`
	ScatterWeight     float64         `yaml:"scatter_weight"`
	AnteScatterWeight float64         `yaml:"ante_scatter_weight"`
	OrbWeight         float64         `yaml:"orb_weight"`
	HighShare         float64         `yaml:"high_share"`
	ScatterTrigger    int             `yaml:"scatter_trigger"`
	FreeSpins         int             `yaml:"free_spins"`
	RetriggerSpins    int             `yaml:"retrigger_spins"`
	Symbols           []GatesSymbol   `yaml:"symbols"`
	Orbs              []OrbRung       `yaml:"orbs"`
}

// CascadeCap is the maximum number of winning cascade steps in a round.
func (g GatesTable) CascadeCap() int {
	if g.MaxCascades > 0 {
		return g.MaxCascades
	}
	return g.Columns * g.Rows / g.MinMatch
}

// Tier returns the pay tier index for a cluster of count symbols, or -1.
func (g GatesTable) Tier(count int) int {
	switch {
	case count < g.MinMatch:
		return -1
	case count < g.MinMatch+2:
		return 0
	case count < g.MinMatch+4:
		return 1
	default:
		return 2
	}
}

type LeadingPays struct {
	Symbol string          `yaml:"symbol"`
	Two    decimal.Decimal `yaml:"two"`
	One    decimal.Decimal `yaml:"one"`
}

type SlotsTable struct {
	Wild    string                     `yaml:"wild"`
	Reels   [][]string                 `yaml:"reels"`
	Triples map[string]decimal.Decimal `yaml:"triples"`
	Leading LeadingPays                `yaml:"leading"`
}

type RouletteTable struct {
	Straight  decimal.Decimal `yaml:"straight"`
	EvenMoney decimal.Decimal `yaml:"even_money"`
	Dozen     decimal.Decimal `yaml:"dozen"`
	Column    decimal.Decimal `yaml:"column"`
}

type CrashTable struct {
	House      decimal.Decimal `yaml:"house"`
	MinPoint   decimal.Decimal `yaml:"min_point"`
	MaxPoint   decimal.Decimal `yaml:"max_point"`
	GrowthRate float64         `yaml:"growth_rate"` // per second
}

type MinesTable struct {
	Cells   int                       `yaml:"cells"`
	Allowed []int                     `yaml:"allowed"` // empty permits every count
	Ladders map[int][]decimal.Decimal `yaml:"ladders"`
}

// Permits reports whether a round may be played with k hazards.
func (m MinesTable) Permits(k int) bool {
	if k < 1 || k >= m.Cells {
		return false
	}
	if len(m.Allowed) == 0 {
		return true
	}
	for _, a := range m.Allowed {
		if a == k {
			return true
		}
	}
	return false
}

// Ladder returns the multiplier after each safe reveal for k hazards. Counts
// without a published ladder get the fair-odds ladder
// next = current * (1 + k/(cells - revealed - k)).
func (m MinesTable) Ladder(k int) []decimal.Decimal {
	if l, ok := m.Ladders[k]; ok {
		return l
	}
	safe := m.Cells - k
	out := make([]decimal.Decimal, 0, safe)
	current := decimal.NewFromInt(1)
	kd := decimal.NewFromInt(int64(k))
	for revealed := 0; revealed < safe; revealed++ {
		remaining := decimal.NewFromInt(int64(m.Cells - revealed - k))
		current = current.Mul(decimal.NewFromInt(1).Add(kd.Div(remaining)))
		out = append(out, current.Truncate(2))
	}
	return out
}

type PlinkoTable struct {
	Rows        int               `yaml:"rows"`
	PegSpacing  float64           `yaml:"peg_spacing"`
	PegRadius   float64           `yaml:"peg_radius"`
	BallRadius  float64           `yaml:"ball_radius"`
	Gravity     float64           `yaml:"gravity"`
	Restitution float64           `yaml:"restitution"`
	OutwardBias float64           `yaml:"outward_bias"`
	Drag        float64           `yaml:"drag"` // horizontal damping per frame
	Jitter      float64           `yaml:"jitter"`
	MaxFrames   int               `yaml:"max_frames"`
	Bins        []decimal.Decimal `yaml:"bins"`
}

type DinoRunTable struct {
	GrowthPerSecond decimal.Decimal `yaml:"growth_per_second"`
	FirstObstacleMs int64           `yaml:"first_obstacle_ms"`
	MinGapMs        int64           `yaml:"min_gap_ms"`
	MaxGapMs        int64           `yaml:"max_gap_ms"`
	JumpMs          int64           `yaml:"jump_ms"`
	Obstacles       int             `yaml:"obstacles"`
}

// Default parses the embedded document.
func Default() (*Table, error) {
	return Parse(defaultDocument)
}

// Load reads a YAML document from path. An empty path yields the default.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read paytable %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse paytable: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Game returns the catalog entry for id.
func (t *Table) Game(id domain.GameID) (GameEntry, bool) {
	for _, g := range t.Games {
		if g.ID == id {
			return g, true
		}
	}
	return GameEntry{}, false
}

// Validate checks structural invariants of every section.
func (t *Table) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidTable}, args...)...))
	}

	for _, g := range t.Games {
		if !g.ID.Valid() {
			fail("unknown game %q", g.ID)
		}
		if g.MinBet <= 0 || g.MaxBet < g.MinBet {
			fail("game %s has bad bet limits %d..%d", g.ID, g.MinBet, g.MaxBet)
		}
	}

	if t.Blackjack.DealerStand <= 0 || t.Blackjack.DealerStand > 21 {
		fail("blackjack dealer_stand %d", t.Blackjack.DealerStand)
	}
	if len(t.SevenHalf.Prizes) == 0 {
		fail("seven_half needs at least one prize")
	}
	for _, p := range t.SevenHalf.Prizes {
		if p.Multiplier.IsNegative() || p.Weight <= 0 {
			fail("seven_half prize %s weight %v", p.Multiplier, p.Weight)
		}
	}

	g := t.Gates
	if g.Columns <= 0 || g.Rows <= 0 || g.MinMatch <= 0 {
		fail("gates grid %dx%d min %d", g.Columns, g.Rows, g.MinMatch)
	} else if g.CascadeCap() <= 0 {
		fail("gates cascade cap must be positive")
	}
	if g.ScatterWeight+g.OrbWeight >= 1 || g.AnteScatterWeight+g.OrbWeight >= 1 {
		fail("gates special weights leave no room for pay symbols")
	}
	if g.HighShare <= 0 || g.HighShare >= 1 {
		fail("gates high_share %v", g.HighShare)
	}
	var highs, lows int
	for _, s := range g.Symbols {
		switch s.Class {
		case ClassHigh:
			highs++
		case ClassLow:
			lows++
		default:
			fail("gates symbol %s has class %q", s.ID, s.Class)
		}
		if len(s.Pays) != 3 {
			fail("gates symbol %s needs 3 pay tiers", s.ID)
			continue
		}
		for i := 1; i < 3; i++ {
			if s.Pays[i].LessThan(s.Pays[i-1]) {
				fail("gates symbol %s tiers not ascending", s.ID)
			}
		}
	}
	if highs == 0 || lows == 0 {
		fail("gates needs high and low symbols")
	}
	if len(g.Orbs) == 0 {
		fail("gates needs an orb ladder")
	}

	if len(t.Slots.Reels) != 3 {
		fail("slots needs 3 reels")
	}

	if t.Crash.House.Sign() <= 0 || t.Crash.MinPoint.GreaterThan(t.Crash.MaxPoint) || t.Crash.GrowthRate <= 0 {
		fail("crash parameters")
	}

	if t.Mines.Cells <= 1 {
		fail("mines cells %d", t.Mines.Cells)
	}
	for _, k := range t.Mines.Allowed {
		if k < 1 || k >= t.Mines.Cells {
			fail("mines allowed count %d outside [1, %d]", k, t.Mines.Cells-1)
		}
	}
	for k, ladder := range t.Mines.Ladders {
		if len(ladder) != t.Mines.Cells-k {
			fail("mines ladder for %d has %d rungs, want %d", k, len(ladder), t.Mines.Cells-k)
		}
	}

	if t.Plinko.Rows <= 0 || len(t.Plinko.Bins) != t.Plinko.Rows+1 {
		fail("plinko needs rows+1 bins")
	}
	if t.Plinko.Drag < 0 || t.Plinko.Drag >= 1 {
		fail("plinko drag must be in [0, 1)")
	}
	if t.Plinko.MaxFrames <= 0 {
		fail("plinko max_frames")
	}

	d := t.DinoRun
	if d.MinGapMs <= d.JumpMs || d.MaxGapMs < d.MinGapMs || d.Obstacles <= 0 {
		fail("dinorun obstacle gaps must exceed the jump time")
	}

	return errors.Join(errs...)
}

// SortedKeys returns the mines counts with published ladders.
func (m MinesTable) SortedKeys() []int {
	keys := make([]int, 0, len(m.Ladders))
	for k := range m.Ladders {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
