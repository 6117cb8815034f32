// Package sevenhalf implements the "siete y media" scratch card: player and
// banker hands from one Spanish deck, a prize rolled at deal time, and an
// independent bonus card.
package sevenhalf

import (
	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games/cards"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

const handSize = 2

// Outcome is a fully dealt card.
type Outcome struct {
	Player []cards.Card    `json:"player"`
	Banker []cards.Card    `json:"banker"`
	Bonus  cards.Card      `json:"bonus"`
	Prize  decimal.Decimal `json:"prize"` // multiplier fixed at deal time
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindSevenHalf }

// Sum totals a hand.
func Sum(hand []cards.Card) decimal.Decimal {
	total := decimal.Zero
	for _, c := range hand {
		total = total.Add(decimal.NewFromFloat(c.Value))
	}
	return total
}

// Deal shuffles a fresh 40 card deck, rolls the prize and deals the card.
func Deal(src rng.Source, t paytable.SevenHalfTable) (Outcome, error) {
	weights := make([]float64, len(t.Prizes))
	for i, p := range t.Prizes {
		weights[i] = p.Weight
	}
	prize := t.Prizes[rng.Pick(src, weights)].Multiplier

	deck := cards.NewSpanishDeck()
	deck.Shuffle(src)

	o := Outcome{Prize: prize}
	for i := 0; i < handSize; i++ {
		c, err := deck.Draw()
		if err != nil {
			return Outcome{}, err
		}
		o.Player = append(o.Player, c)

		c, err = deck.Draw()
		if err != nil {
			return Outcome{}, err
		}
		o.Banker = append(o.Banker, c)
	}
	bonus, err := deck.Draw()
	if err != nil {
		return Outcome{}, err
	}
	o.Bonus = bonus
	return o, nil
}

// Verdict explains a resolution.
type Verdict struct {
	PlayerBust bool `json:"player_bust"`
	Exact      bool `json:"exact"`
	BaseWin    bool `json:"base_win"`
	BonusHit   bool `json:"bonus_hit"`
}

// Judge applies the comparison rules without pricing them.
func Judge(o Outcome, t paytable.SevenHalfTable) Verdict {
	player := Sum(o.Player)
	banker := Sum(o.Banker)

	v := Verdict{PlayerBust: player.GreaterThan(t.Target)}
	if !v.PlayerBust {
		v.Exact = player.Equal(t.Target)
		v.BaseWin = v.Exact || banker.GreaterThan(t.Target) || player.GreaterThan(banker)
	}
	for _, c := range o.Player {
		if c.Rank == o.Bonus.Rank {
			v.BonusHit = true
			break
		}
	}
	return v
}

// Resolve prices the card. The bonus is added on top of the base prize.
func Resolve(o Outcome, t paytable.SevenHalfTable, stake int64) domain.RoundResult {
	v := Judge(o, t)

	mult := decimal.Zero
	if v.BaseWin {
		mult = o.Prize
		if v.Exact {
			mult = mult.Mul(t.Exact)
		}
	}
	if v.BonusHit {
		mult = mult.Add(t.Bonus)
	}
	if mult.IsZero() {
		return domain.Lost()
	}
	return domain.Paid(domain.StakeTimes(stake, mult), mult)
}
