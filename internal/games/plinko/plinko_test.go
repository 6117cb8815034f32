package plinko

import (
	"testing"

	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

func setupTest(t *testing.T) paytable.PlinkoTable {
	t.Helper()
	table, err := paytable.Default()
	if err != nil {
		t.Fatalf("Failed to load paytable: %v", err)
	}
	return table.Plinko
}

func TestBoardLayout(t *testing.T) {
	table := setupTest(t)
	b := NewBoard(table)

	want := 0
	for r := 0; r < table.Rows; r++ {
		want += r + 3
	}
	if len(b.Pegs()) != want {
		t.Errorf("Expected %d pegs, got %d", want, len(b.Pegs()))
	}
	if len(table.Bins) != 13 {
		t.Errorf("Expected 13 bins, got %d", len(table.Bins))
	}
}

func TestBinOfStrictContainment(t *testing.T) {
	table := setupTest(t)
	b := NewBoard(table)

	tests := []struct {
		x    float64
		want int
	}{
		{-260, 0},
		{-220.0001, 0},
		{-220, 1},
		{0, 6},
		{-20.0001, 5},
		{259.999, 12},
		{260, -1},
		{-260.5, -1},
	}
	for _, tt := range tests {
		if got := b.BinOf(tt.x); got != tt.want {
			t.Errorf("BinOf(%v) = %d, want %d", tt.x, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	table := setupTest(t)

	if res := Resolve(Outcome{Bin: 0}, table, 100); res.Coins() != 1000 {
		t.Errorf("Edge bin should pay 1000, got %d", res.Coins())
	}
	if res := Resolve(Outcome{Bin: 12}, table, 100); res.Coins() != 1000 {
		t.Errorf("Edge bin should pay 1000, got %d", res.Coins())
	}
	res := Resolve(Outcome{Bin: 6}, table, 100)
	if res.Coins() != 30 {
		t.Errorf("Centre bin should pay 30, got %d", res.Coins())
	}
	if res.AppliedMultiplier.LessThan(decimal.NewFromInt(1)) {
		t.Error("Applied multiplier must not drop below 1")
	}
}

func TestDropLandsInBin(t *testing.T) {
	table := setupTest(t)
	b := NewBoard(table)
	src := rng.New()

	counts := make([]int, len(table.Bins))
	for i := 0; i < 500; i++ {
		o := b.Drop(src)
		if o.Bin < 0 || o.Bin >= len(table.Bins) {
			t.Fatalf("Ball landed outside the bins: %d", o.Bin)
		}
		if o.Frames > table.MaxFrames {
			t.Fatalf("Simulation ran %d frames", o.Frames)
		}
		last := o.Path[len(o.Path)-1]
		if b.BinOf(last.X) != o.Bin {
			t.Fatalf("Path ends in bin %d, outcome says %d", b.BinOf(last.X), o.Bin)
		}
		counts[o.Bin]++
	}

	distinct := 0
	for _, n := range counts {
		if n > 0 {
			distinct++
		}
	}
	if distinct < 3 {
		t.Errorf("Drops should spread over the bins: %v", counts)
	}
}

func TestDropDeterministic(t *testing.T) {
	table := setupTest(t)
	b := NewBoard(table)
	for seed := uint64(1); seed <= 20; seed++ {
		a := b.Drop(rng.NewSeeded(seed))
		c := b.Drop(rng.NewSeeded(seed))
		if a.Bin != c.Bin || a.Frames != c.Frames {
			t.Fatalf("Seed %d gave %d/%d and %d/%d", seed, a.Bin, a.Frames, c.Bin, c.Frames)
		}
	}
}

func TestReturnToPlayer(t *testing.T) {
	table := setupTest(t)
	b := NewBoard(table)
	src := rng.NewSeeded(7)

	const drops = 40000
	counts := make([]int, len(table.Bins))
	var paid int64
	for i := 0; i < drops; i++ {
		o := b.Drop(src)
		counts[o.Bin]++
		paid += Resolve(o, table, 100).Coins()
	}

	centre := counts[len(counts)/2]
	if counts[0] >= centre || counts[len(counts)-1] >= centre {
		t.Errorf("Edge bins should land less often than the centre: %v", counts)
	}
	if counts[0]+counts[len(counts)-1] >= drops/10 {
		t.Errorf("Edge bins hit too often: %v", counts)
	}
	rtp := float64(paid) / float64(drops*100)
	if rtp <= 0.9 || rtp >= 1 {
		t.Errorf("RTP %.3f should sit just under 1, counts %v", rtp, counts)
	}
}
