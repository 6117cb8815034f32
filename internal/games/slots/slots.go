// Package slots is the classic three-reel machine: one stop per weighted
// reel, triples with wild substitution and leading-symbol partial pays.
package slots

import (
	"strings"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

// Outcome is the symbol shown on each reel.
type Outcome struct {
	Stops []int    `json:"stops"`
	Reels []string `json:"reels"`
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindReels }

// WinLine describes the paying combination.
type WinLine struct {
	Combination string          `json:"combination"`
	Count       int             `json:"count"`
	Multiplier  decimal.Decimal `json:"multiplier"`
}

// Spin draws a uniform stop on every reel.
func Spin(src rng.Source, t paytable.SlotsTable) Outcome {
	o := Outcome{
		Stops: make([]int, len(t.Reels)),
		Reels: make([]string, len(t.Reels)),
	}
	for i, reel := range t.Reels {
		idx := src.IntN(len(reel))
		o.Stops[i] = idx
		o.Reels[i] = reel[idx]
	}
	return o
}

// Evaluate finds the single best line. ok is false on a losing spin.
func Evaluate(reels []string, t paytable.SlotsTable) (WinLine, bool) {
	if len(reels) < 3 {
		return WinLine{}, false
	}

	// Three of a kind, wilds standing in for one natural symbol.
	base := ""
	matched := true
	for _, s := range reels {
		if s == t.Wild {
			continue
		}
		if base == "" {
			base = s
		} else if s != base {
			matched = false
			break
		}
	}
	if matched {
		if base == "" {
			base = t.Wild
		}
		if mult, ok := t.Triples[base]; ok {
			return WinLine{
				Combination: strings.Repeat(base+"-", 2) + base,
				Count:       3,
				Multiplier:  mult,
			}, true
		}
	}

	lead := t.Leading
	if reels[0] == lead.Symbol && reels[1] == lead.Symbol && lead.Two.Sign() > 0 {
		return WinLine{Combination: lead.Symbol + "-" + lead.Symbol + "-*", Count: 2, Multiplier: lead.Two}, true
	}
	if reels[0] == lead.Symbol && lead.One.Sign() > 0 {
		return WinLine{Combination: lead.Symbol + "-*-*", Count: 1, Multiplier: lead.One}, true
	}
	return WinLine{}, false
}

// Resolve prices a spin.
func Resolve(o Outcome, t paytable.SlotsTable, stake int64) domain.RoundResult {
	line, ok := Evaluate(o.Reels, t)
	if !ok {
		return domain.Lost()
	}
	return domain.Paid(domain.StakeTimes(stake, line.Multiplier), line.Multiplier)
}
