// Package roulette implements single-zero roulette: a uniform pocket in
// [0, 36] and independent bets on numbers, colours, parity, halves, dozens
// and columns.
package roulette

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

// Pockets is the number of pockets on the wheel.
const Pockets = 37

// WheelOrder is the European pocket sequence clockwise from zero. Only the
// presentation uses it.
var WheelOrder = []int{
	0, 32, 15, 19, 4, 21, 2, 25, 17, 34, 6, 27, 13, 36, 11, 30, 8, 23, 10,
	5, 24, 16, 33, 1, 20, 14, 31, 9, 22, 18, 29, 7, 28, 12, 35, 3, 26,
}

var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true, 18: true,
	19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// Color returns "green", "red" or "black".
func Color(n int) string {
	switch {
	case n == 0:
		return "green"
	case redNumbers[n]:
		return "red"
	default:
		return "black"
	}
}

// Bet is one chip placement.
type Bet struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// Outcome is the landed pocket and the bets it settles.
type Outcome struct {
	Number int   `json:"number"`
	Bets   []Bet `json:"bets"`
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindWheel }

type category int

const (
	catStraight category = iota
	catEven
	catDozen
	catColumn
)

type rule struct {
	cat    category
	covers func(n int) bool
}

func parse(id string) (rule, bool) {
	switch id {
	case "red":
		return rule{catEven, func(n int) bool { return Color(n) == "red" }}, true
	case "black":
		return rule{catEven, func(n int) bool { return Color(n) == "black" }}, true
	case "even":
		return rule{catEven, func(n int) bool { return n != 0 && n%2 == 0 }}, true
	case "odd":
		return rule{catEven, func(n int) bool { return n%2 == 1 }}, true
	case "low":
		return rule{catEven, func(n int) bool { return n >= 1 && n <= 18 }}, true
	case "high":
		return rule{catEven, func(n int) bool { return n >= 19 }}, true
	}

	prefix, arg, found := strings.Cut(id, "-")
	if !found {
		return rule{}, false
	}
	v, err := strconv.Atoi(arg)
	if err != nil || strconv.Itoa(v) != arg {
		return rule{}, false
	}

	switch prefix {
	case "n":
		if v < 0 || v > 36 {
			return rule{}, false
		}
		return rule{catStraight, func(n int) bool { return n == v }}, true
	case "dozen":
		if v < 1 || v > 3 {
			return rule{}, false
		}
		return rule{catDozen, func(n int) bool { return n != 0 && (n-1)/12+1 == v }}, true
	case "column":
		if v < 1 || v > 3 {
			return rule{}, false
		}
		return rule{catColumn, func(n int) bool { return n != 0 && columnOf(n) == v }}, true
	}
	return rule{}, false
}

// columnOf maps n%3 == 1 to column 1, 2 to column 2 and 0 to column 3.
func columnOf(n int) int {
	if n%3 == 0 {
		return 3
	}
	return n % 3
}

// Validate rejects unknown bet ids and non-positive amounts. It returns the
// total staked.
func Validate(bets []Bet) (int64, error) {
	if len(bets) == 0 {
		return 0, fmt.Errorf("%w: no bets placed", domain.ErrInvalidBet)
	}
	var total int64
	for _, b := range bets {
		if _, ok := parse(b.ID); !ok {
			return 0, fmt.Errorf("%w: unknown bet %q", domain.ErrInvalidBet, b.ID)
		}
		if b.Amount <= 0 {
			return 0, fmt.Errorf("%w: bet %s amount %d", domain.ErrInvalidBet, b.ID, b.Amount)
		}
		total += b.Amount
	}
	return total, nil
}

// Covers reports whether bet id wins on pocket n. Unknown ids never win.
func Covers(id string, n int) bool {
	r, ok := parse(id)
	return ok && r.covers(n)
}

func multiplier(c category, t paytable.RouletteTable) decimal.Decimal {
	switch c {
	case catStraight:
		return t.Straight
	case catDozen:
		return t.Dozen
	case catColumn:
		return t.Column
	default:
		return t.EvenMoney
	}
}

// Spin draws a pocket for already validated bets.
func Spin(src rng.Source, bets []Bet) Outcome {
	return Outcome{Number: src.IntN(Pockets), Bets: bets}
}

// Resolve settles every bet independently against the landed pocket.
func Resolve(o Outcome, t paytable.RouletteTable) domain.RoundResult {
	win := decimal.Zero
	var staked int64
	for _, b := range o.Bets {
		staked += b.Amount
		r, ok := parse(b.ID)
		if !ok || !r.covers(o.Number) {
			continue
		}
		win = win.Add(domain.StakeTimes(b.Amount, multiplier(r.cat, t)))
	}
	if win.Sign() <= 0 {
		return domain.Lost()
	}
	mult := decimal.NewFromInt(1)
	if staked > 0 {
		mult = win.Div(decimal.NewFromInt(staked)).Truncate(2)
	}
	return domain.Paid(win, mult)
}

// Bucket returns the live round index containing now.
func Bucket(now time.Time, round time.Duration) int64 {
	return now.UnixMilli() / round.Milliseconds()
}

// BucketStart returns when bucket opens.
func BucketStart(bucket int64, round time.Duration) time.Time {
	return time.UnixMilli(bucket * round.Milliseconds())
}

// LiveNumber is the pocket for a live bucket. Every server sharing salt
// computes the same number for the same bucket.
func LiveNumber(bucket int64, salt uint64) int {
	return rng.NewSeeded(uint64(bucket) ^ salt).IntN(Pockets)
}
