package sevenhalf

import (
	"testing"

	"github.com/alexbotov/minigames/internal/games/cards"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

func testTable(t *testing.T) paytable.SevenHalfTable {
	t.Helper()
	table, err := paytable.Default()
	if err != nil {
		t.Fatalf("Failed to load paytable: %v", err)
	}
	return table.SevenHalf
}

func c(rank string, value float64) cards.Card {
	return cards.Card{Suit: "oros", Rank: rank, Value: value}
}

func TestResolve(t *testing.T) {
	table := testTable(t)
	two := decimal.NewFromInt(2)

	cases := []struct {
		name string
		o    Outcome
		want int64
	}{
		{
			name: "ExactSevenAndHalfDoublesPrize",
			o:    Outcome{Player: []cards.Card{c("7", 7), c("rey", 0.5)}, Banker: []cards.Card{c("3", 3), c("4", 4)}, Bonus: c("1", 1), Prize: two},
			want: 400,
		},
		{
			name: "PlayerHigher",
			o:    Outcome{Player: []cards.Card{c("5", 5), c("2", 2)}, Banker: []cards.Card{c("3", 3), c("1", 1)}, Bonus: c("6", 6), Prize: two},
			want: 200,
		},
		{
			name: "BankerBust",
			o:    Outcome{Player: []cards.Card{c("1", 1), c("sota", 0.5)}, Banker: []cards.Card{c("6", 6), c("5", 5)}, Bonus: c("7", 7), Prize: decimal.RequireFromString("1.5")},
			want: 150,
		},
		{
			name: "PlayerBustPaysNothing",
			o:    Outcome{Player: []cards.Card{c("6", 6), c("4", 4)}, Banker: []cards.Card{c("1", 1), c("2", 2)}, Bonus: c("7", 7), Prize: decimal.NewFromInt(100)},
			want: 0,
		},
		{
			name: "BankerHigherLoses",
			o:    Outcome{Player: []cards.Card{c("1", 1), c("2", 2)}, Banker: []cards.Card{c("3", 3), c("4", 4)}, Bonus: c("7", 7), Prize: two},
			want: 0,
		},
		{
			name: "TieLoses",
			o:    Outcome{Player: []cards.Card{c("1", 1), c("2", 2)}, Banker: []cards.Card{c("2", 2), c("1", 1)}, Bonus: c("7", 7), Prize: two},
			want: 0,
		},
		{
			name: "BonusAloneOnBust",
			o:    Outcome{Player: []cards.Card{c("6", 6), c("4", 4)}, Banker: []cards.Card{c("1", 1), c("2", 2)}, Bonus: c("6", 6), Prize: two},
			want: 500,
		},
		{
			name: "BonusStacksOnWin",
			o:    Outcome{Player: []cards.Card{c("5", 5), c("2", 2)}, Banker: []cards.Card{c("3", 3), c("1", 1)}, Bonus: c("5", 5), Prize: decimal.NewFromInt(10)},
			want: 1500,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.o, table, 100)
			if got.Coins() != tc.want {
				t.Errorf("Expected %d, got %d (verdict %+v)", tc.want, got.Coins(), Judge(tc.o, table))
			}
			if !got.Terminal {
				t.Error("Scratch card result should be terminal")
			}
		})
	}
}

func TestPrizeFixedAtDeal(t *testing.T) {
	table := testTable(t)
	src := rng.NewSeeded(11)

	o, err := Deal(src, table)
	if err != nil {
		t.Fatal(err)
	}
	valid := false
	for _, p := range table.Prizes {
		if p.Multiplier.Equal(o.Prize) {
			valid = true
		}
	}
	if !valid {
		t.Errorf("Prize %s is not on the ladder", o.Prize)
	}

	// Resolution never re-rolls the prize.
	first := Resolve(o, table, 100)
	second := Resolve(o, table, 100)
	if !first.TotalWin.Equal(second.TotalWin) {
		t.Errorf("Resolution is not pure: %s vs %s", first.TotalWin, second.TotalWin)
	}
}

func TestDealDistinctCards(t *testing.T) {
	table := testTable(t)
	src := rng.New()
	for i := 0; i < 500; i++ {
		o, err := Deal(src, table)
		if err != nil {
			t.Fatal(err)
		}
		if len(o.Player) != 2 || len(o.Banker) != 2 {
			t.Fatalf("Unexpected hand sizes %d/%d", len(o.Player), len(o.Banker))
		}
		seen := make(map[string]bool)
		all := append(append(append([]cards.Card{}, o.Player...), o.Banker...), o.Bonus)
		for _, card := range all {
			if seen[card.String()] {
				t.Fatalf("Card %s dealt twice", card)
			}
			seen[card.String()] = true
		}
	}
}

func TestPrizeSkewsLow(t *testing.T) {
	table := testTable(t)
	src := rng.New()
	low := 0
	const n = 5000
	for i := 0; i < n; i++ {
		o, err := Deal(src, table)
		if err != nil {
			t.Fatal(err)
		}
		if o.Prize.LessThanOrEqual(decimal.NewFromInt(2)) {
			low++
		}
	}
	if float64(low)/n < 0.8 {
		t.Errorf("Expected low prizes to dominate, got %d/%d", low, n)
	}
}
