// Package blackjack deals and resolves single-deck blackjack rounds.
//
// The dealer hits below the stand value and also hits a soft stand value when
// the table says so (H17). A natural on the first two player cards pays
// immediately without dealer play.
package blackjack

import (
	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games/cards"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
)

// Result is how a finished hand ended.
type Result string

const (
	ResultNone       Result = ""
	ResultNatural    Result = "blackjack"
	ResultPlayerBust Result = "player_bust"
	ResultDealerBust Result = "dealer_bust"
	ResultPlayerWin  Result = "player_win"
	ResultDealerWin  Result = "dealer_win"
	ResultPush       Result = "push"
)

// Score sums a hand, demoting aces from 11 to 1 while the total exceeds 21.
// soft reports whether an ace is still counted as 11.
func Score(hand []cards.Card) (total int, soft bool) {
	aces := 0
	for _, c := range hand {
		total += int(c.Value)
		if c.Rank == "A" {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total, aces > 0
}

// IsNatural reports a two card 21.
func IsNatural(hand []cards.Card) bool {
	total, _ := Score(hand)
	return len(hand) == 2 && total == 21
}

// Outcome is the frozen card sequence of a finished round.
type Outcome struct {
	Player []cards.Card `json:"player"`
	Dealer []cards.Card `json:"dealer"`
	Result Result       `json:"result"`
}

// Kind implements the outcome union.
func (Outcome) Kind() domain.OutcomeKind { return domain.KindBlackjack }

// Resolve prices a finished outcome.
func Resolve(o Outcome, t paytable.BlackjackTable, stake int64) domain.RoundResult {
	switch o.Result {
	case ResultNatural:
		return domain.Paid(domain.StakeTimes(stake, t.Natural), t.Natural)
	case ResultDealerBust, ResultPlayerWin:
		return domain.Paid(domain.StakeTimes(stake, t.Win), t.Win)
	case ResultPush:
		return domain.Paid(domain.StakeTimes(stake, t.Push), t.Push)
	case ResultNone:
		return domain.NewRoundResult()
	default:
		return domain.Lost()
	}
}

// Round is one hand in progress. It owns its deck.
type Round struct {
	table  paytable.BlackjackTable
	deck   *cards.Deck
	player []cards.Card
	dealer []cards.Card
	result Result
	phase  domain.Phase
}

// Deal shuffles a fresh deck and deals player, dealer, player, dealer.
func Deal(src rng.Source, table paytable.BlackjackTable) (*Round, error) {
	deck := cards.NewFrenchDeck()
	deck.Shuffle(src)
	return dealFrom(deck, table)
}

func dealFrom(deck *cards.Deck, table paytable.BlackjackTable) (*Round, error) {
	r := &Round{table: table, deck: deck, phase: domain.PhaseActive}
	for i := 0; i < 2; i++ {
		if err := r.draw(&r.player); err != nil {
			return nil, err
		}
		if err := r.draw(&r.dealer); err != nil {
			return nil, err
		}
	}

	if IsNatural(r.player) {
		r.finish(ResultNatural)
	}
	return r, nil
}

func (r *Round) draw(hand *[]cards.Card) error {
	c, err := r.deck.Draw()
	if err != nil {
		return err
	}
	*hand = append(*hand, c)
	return nil
}

func (r *Round) finish(res Result) {
	r.result = res
	if res == ResultPlayerBust || res == ResultDealerWin {
		r.phase = domain.PhaseBusted
	} else {
		r.phase = domain.PhaseCompleted
	}
}

// Hit draws one player card. Going over 21 ends the round.
func (r *Round) Hit() error {
	if r.phase.Terminal() {
		return domain.ErrRoundOver
	}
	if err := r.draw(&r.player); err != nil {
		return err
	}
	if total, _ := Score(r.player); total > 21 {
		r.finish(ResultPlayerBust)
	}
	return nil
}

// Stand plays the dealer hand and settles.
func (r *Round) Stand() error {
	if r.phase.Terminal() {
		return domain.ErrRoundOver
	}
	for r.dealerHits() {
		if err := r.draw(&r.dealer); err != nil {
			return err
		}
	}

	player, _ := Score(r.player)
	dealer, _ := Score(r.dealer)
	switch {
	case dealer > 21:
		r.finish(ResultDealerBust)
	case player > dealer:
		r.finish(ResultPlayerWin)
	case player == dealer:
		r.finish(ResultPush)
	default:
		r.finish(ResultDealerWin)
	}
	return nil
}

func (r *Round) dealerHits() bool {
	total, soft := Score(r.dealer)
	if total < r.table.DealerStand {
		return true
	}
	return total == r.table.DealerStand && soft && r.table.DealerHitsSoft
}

// Phase reports the state machine position.
func (r *Round) Phase() domain.Phase { return r.phase }

// Outcome snapshots the cards dealt so far.
func (r *Round) Outcome() Outcome {
	return Outcome{
		Player: append([]cards.Card(nil), r.player...),
		Dealer: append([]cards.Card(nil), r.dealer...),
		Result: r.result,
	}
}

// View is the player-facing state. The dealer hole card stays hidden until
// the round ends.
type View struct {
	Player      []cards.Card `json:"player"`
	PlayerScore int          `json:"player_score"`
	Dealer      []cards.Card `json:"dealer"`
	DealerScore int          `json:"dealer_score"`
	Result      Result       `json:"result,omitempty"`
	Phase       domain.Phase `json:"phase"`
}

// View renders the round for the client.
func (r *Round) View() View {
	v := View{Player: r.Outcome().Player, Result: r.result, Phase: r.phase}
	v.PlayerScore, _ = Score(r.player)
	if r.phase.Terminal() {
		v.Dealer = r.Outcome().Dealer
	} else if len(r.dealer) > 0 {
		v.Dealer = []cards.Card{r.dealer[0]}
	}
	v.DealerScore, _ = Score(v.Dealer)
	return v
}
