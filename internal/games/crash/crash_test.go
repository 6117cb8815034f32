package crash

import (
	"errors"
	"testing"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/shopspring/decimal"
)

func setupTest(t *testing.T) paytable.CrashTable {
	t.Helper()
	table, err := paytable.Default()
	if err != nil {
		t.Fatalf("Failed to load paytable: %v", err)
	}
	return table.Crash
}

func TestPoint(t *testing.T) {
	table := setupTest(t)
	tests := []struct {
		u    float64
		want string
	}{
		{0.5, "1.98"},
		{0, "1"},
		{0.01, "1"},
		{0.9, "9.9"},
		{0.999999999, "1000"},
	}
	for _, tt := range tests {
		got := Point(tt.u, table)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Point(%v) = %s, want %s", tt.u, got, tt.want)
		}
	}
}

func TestMultiplier(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "1"},
		{4060, "1.5"},
		{7000, "2.01"},
		{10000, "2.71"},
	}
	for _, tt := range tests {
		got := Multiplier(time.Duration(tt.ms)*time.Millisecond, 0.1)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Multiplier(%dms) = %s, want %s", tt.ms, got, tt.want)
		}
	}
}

func TestCashOut(t *testing.T) {
	table := setupTest(t)
	start := time.Unix(1_700_000_000, 0)

	t.Run("BeforePointPays", func(t *testing.T) {
		r, err := Start(rng.NewScripted(0.5), table, start, decimal.Zero)
		if err != nil {
			t.Fatal(err)
		}
		m, err := r.CashOut(start.Add(4060 * time.Millisecond))
		if err != nil {
			t.Fatalf("CashOut failed: %v", err)
		}
		if !m.Equal(decimal.RequireFromString("1.5")) {
			t.Errorf("Expected 1.50, got %s", m)
		}
		if res := Resolve(r.Outcome(), 100); res.Coins() != 150 {
			t.Errorf("Expected 150, got %d", res.Coins())
		}
		if r.Phase() != domain.PhaseCashedOut {
			t.Errorf("Expected cashed_out, got %s", r.Phase())
		}
	})

	t.Run("AfterPointRejected", func(t *testing.T) {
		r, _ := Start(rng.NewScripted(0.5), table, start, decimal.Zero)
		_, err := r.CashOut(start.Add(7000 * time.Millisecond))
		if !errors.Is(err, domain.ErrRoundOver) {
			t.Fatalf("Expected ErrRoundOver, got %v", err)
		}
		if r.Phase() != domain.PhaseBusted {
			t.Errorf("Expected busted, got %s", r.Phase())
		}
		if res := Resolve(r.Outcome(), 100); res.Coins() != 0 {
			t.Errorf("Busted round paid %d", res.Coins())
		}
	})

	t.Run("SecondCashOutRejected", func(t *testing.T) {
		r, _ := Start(rng.NewScripted(0.5), table, start, decimal.Zero)
		if _, err := r.CashOut(start.Add(time.Second)); err != nil {
			t.Fatal(err)
		}
		if _, err := r.CashOut(start.Add(2 * time.Second)); !errors.Is(err, domain.ErrRoundOver) {
			t.Errorf("Expected ErrRoundOver, got %v", err)
		}
	})

	t.Run("TickBusts", func(t *testing.T) {
		r, _ := Start(rng.NewScripted(0.5), table, start, decimal.Zero)
		if m := r.Tick(start.Add(time.Second)); r.Phase() != domain.PhaseActive || !m.Equal(decimal.RequireFromString("1.1")) {
			t.Errorf("Expected active at 1.10, got %s at %s", r.Phase(), m)
		}
		r.Tick(r.CrashesAt().Add(time.Millisecond))
		if r.Phase() != domain.PhaseBusted {
			t.Errorf("Expected busted after the crash time, got %s", r.Phase())
		}
	})

	t.Run("AutoCashOut", func(t *testing.T) {
		r, err := Start(rng.NewScripted(0.5), table, start, decimal.RequireFromString("1.5"))
		if err != nil {
			t.Fatal(err)
		}
		r.Tick(start.Add(5 * time.Second))
		if r.Phase() != domain.PhaseCashedOut {
			t.Fatalf("Expected automatic cash-out, got %s", r.Phase())
		}
		if res := Resolve(r.Outcome(), 100); res.Coins() != 150 {
			t.Errorf("Expected 150, got %d", res.Coins())
		}
	})

	t.Run("AutoCashOutAbovePointBusts", func(t *testing.T) {
		r, _ := Start(rng.NewScripted(0.5), table, start, decimal.NewFromInt(3))
		r.Tick(start.Add(8 * time.Second))
		if r.Phase() != domain.PhaseBusted {
			t.Errorf("Expected busted, got %s", r.Phase())
		}
	})

	t.Run("InvalidAutoCashOut", func(t *testing.T) {
		_, err := Start(rng.NewScripted(0.5), table, start, decimal.RequireFromString("0.5"))
		if !errors.Is(err, domain.ErrInvalidBet) {
			t.Errorf("Expected ErrInvalidBet, got %v", err)
		}
	})
}

func TestViewHidesPoint(t *testing.T) {
	table := setupTest(t)
	start := time.Unix(1_700_000_000, 0)
	r, _ := Start(rng.NewScripted(0.5), table, start, decimal.Zero)

	if v := r.View(start.Add(time.Second)); v.Point != nil {
		t.Error("Point visible while active")
	}
	r.Tick(start.Add(10 * time.Second))
	if v := r.View(start.Add(10 * time.Second)); v.Point == nil || !v.Point.Equal(decimal.RequireFromString("1.98")) {
		t.Errorf("Expected point revealed after bust, got %+v", v.Point)
	}
}
