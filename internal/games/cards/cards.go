// Package cards builds, shuffles and deals single-use decks.
package cards

import (
	"errors"
	"fmt"

	"github.com/alexbotov/minigames/internal/rng"
)

// ErrDeckEmpty is returned when drawing from an exhausted deck.
var ErrDeckEmpty = errors.New("deck is empty")

// Card is one dealt card. Value is the rank's numeric worth in the game the
// deck was built for.
type Card struct {
	Suit  string  `json:"suit"`
	Rank  string  `json:"rank"`
	Value float64 `json:"value"`
}

func (c Card) String() string {
	return fmt.Sprintf("%s-%s", c.Rank, c.Suit)
}

// Deck is an ordered pile; Draw pops from the end.
type Deck struct {
	cards []Card
}

var (
	frenchSuits  = []string{"hearts", "diamonds", "clubs", "spades"}
	frenchRanks  = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}
	spanishSuits = []string{"oros", "copas", "espadas", "bastos"}
	spanishRanks = []string{"1", "2", "3", "4", "5", "6", "7", "sota", "caballo", "rey"}
)

// NewFrenchDeck returns the 52 card blackjack deck. Aces count 11, court
// cards 10.
func NewFrenchDeck() *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for _, s := range frenchSuits {
		for i, r := range frenchRanks {
			var v float64
			switch {
			case r == "A":
				v = 11
			case i >= 9:
				v = 10
			default:
				v = float64(i + 1)
			}
			d.cards = append(d.cards, Card{Suit: s, Rank: r, Value: v})
		}
	}
	return d
}

// NewSpanishDeck returns the 40 card deck used by seven-and-a-half. Figures
// count one half.
func NewSpanishDeck() *Deck {
	d := &Deck{cards: make([]Card, 0, 40)}
	for _, s := range spanishSuits {
		for i, r := range spanishRanks {
			v := float64(i + 1)
			if i >= 7 {
				v = 0.5
			}
			d.cards = append(d.cards, Card{Suit: s, Rank: r, Value: v})
		}
	}
	return d
}

// FromCards builds a deck whose top card is the last element of cs.
func FromCards(cs []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cs...)}
}

// Shuffle applies a uniform random permutation.
func (d *Deck) Shuffle(src rng.Source) {
	rng.Shuffle(src, len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrDeckEmpty
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, nil
}

// Len reports the cards left.
func (d *Deck) Len() int { return len(d.cards) }

// Cards returns a copy of the remaining cards, bottom first.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}
