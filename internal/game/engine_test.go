package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alexbotov/minigames/internal/audit"
	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games/gates"
	"github.com/alexbotov/minigames/internal/games/roulette"
	"github.com/alexbotov/minigames/internal/lock"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/alexbotov/minigames/internal/round"
	"github.com/alexbotov/minigames/internal/wallet"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const startingBalance = 1000

var epoch = time.Unix(1_700_000_000, 0)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedResult struct {
	game   domain.GameID
	result domain.GameResult
}

type recordingStats struct {
	mu      sync.Mutex
	results []recordedResult
}

func (r *recordingStats) RecordGameResult(ctx context.Context, gameID domain.GameID, res domain.GameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, recordedResult{gameID, res})
}

func (r *recordingStats) all() []recordedResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedResult(nil), r.results...)
}

// flakyLedger fails the next failAdds credits and every removal while
// failRemove is set.
type flakyLedger struct {
	*wallet.Memory
	mu         sync.Mutex
	failAdds   int
	failRemove bool
}

func (l *flakyLedger) RemoveCoins(ctx context.Context, playerID string, amount int64) (bool, error) {
	l.mu.Lock()
	fail := l.failRemove
	l.mu.Unlock()
	if fail {
		return false, fmt.Errorf("%w: connection refused", domain.ErrLedgerUnavailable)
	}
	return l.Memory.RemoveCoins(ctx, playerID, amount)
}

func (l *flakyLedger) AddCoins(ctx context.Context, playerID string, amount int64) error {
	l.mu.Lock()
	if l.failAdds > 0 {
		l.failAdds--
		l.mu.Unlock()
		return fmt.Errorf("%w: connection reset", domain.ErrLedgerUnavailable)
	}
	l.mu.Unlock()
	return l.Memory.AddCoins(ctx, playerID, amount)
}

type testEnv struct {
	engine  *Engine
	ledger  *flakyLedger
	journal *round.Memory
	stats   *recordingStats
	clock   *fakeClock
	logs    *observer.ObservedLogs
}

func setupTestEngine(t *testing.T, src rng.Source) *testEnv {
	t.Helper()
	table, err := paytable.Default()
	if err != nil {
		t.Fatalf("Failed to load paytable: %v", err)
	}
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	env := &testEnv{
		ledger:  &flakyLedger{Memory: wallet.NewMemory(startingBalance)},
		journal: round.NewMemory(),
		stats:   &recordingStats{},
		clock:   &fakeClock{now: epoch},
		logs:    logs,
	}
	env.engine = New(table, Options{
		Ledger:    env.ledger,
		Journal:   env.journal,
		Stats:     env.stats,
		Audit:     audit.New(nil, logger),
		Logger:    logger,
		RNG:       src,
		Clock:     env.clock.Now,
		LargeWin:  5000,
		LiveRound: 10 * time.Second,
		LiveSalt:  0x5eed,
	})
	return env
}

func (env *testEnv) balance(t *testing.T, playerID string) int64 {
	t.Helper()
	b, err := env.engine.Balance(context.Background(), playerID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	return b
}

func (env *testEnv) auditCount(eventType string) int {
	return env.logs.FilterField(zap.String("type", eventType)).Len()
}

func (env *testEnv) pending(t *testing.T) int {
	t.Helper()
	p, err := env.journal.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(p)
}

func TestGetGames(t *testing.T) {
	env := setupTestEngine(t, rng.New())

	games := env.engine.GetGames()
	if len(games) != len(domain.AllGames) {
		t.Fatalf("Expected %d games, got %d", len(domain.AllGames), len(games))
	}

	g, err := env.engine.GetGame(domain.GameMines)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if g.MinBet <= 0 || g.MaxBet < g.MinBet || !g.Enabled {
		t.Errorf("Unexpected catalog entry %+v", g)
	}

	if _, err := env.engine.GetGame("poker"); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("Expected ErrGameNotFound, got %v", err)
	}
}

func TestPlaySettlesAndCredits(t *testing.T) {
	ctx := context.Background()
	// Pocket 0 for every spin.
	env := setupTestEngine(t, rng.NewScripted(0))

	res, err := env.engine.Play(ctx, PlayRequest{
		PlayerID: "p1",
		GameID:   domain.GameRoulette,
		Bets:     []roulette.Bet{{ID: "red", Amount: 50}, {ID: "n-0", Amount: 10}},
	})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if res.Stake != 60 || res.Cost != 60 {
		t.Errorf("Expected stake and cost 60, got %d/%d", res.Stake, res.Cost)
	}
	if res.Win != 360 {
		t.Errorf("Expected win 360, got %d", res.Win)
	}
	if !res.Multiplier.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected multiplier 6, got %s", res.Multiplier)
	}
	if res.Phase != domain.PhaseCompleted {
		t.Errorf("Expected completed, got %s", res.Phase)
	}
	if res.Balance != startingBalance-60+360 || env.balance(t, "p1") != res.Balance {
		t.Errorf("Expected balance %d, got %d", startingBalance-60+360, res.Balance)
	}

	rec, err := env.engine.GetRound(ctx, "p1", res.RoundID)
	if err != nil {
		t.Fatalf("GetRound failed: %v", err)
	}
	if rec.Status != domain.RoundCompleted || rec.Win != 360 || len(rec.Outcome) == 0 {
		t.Errorf("Unexpected journal record %+v", rec)
	}
	if _, err := env.engine.GetRound(ctx, "p2", res.RoundID); !errors.Is(err, round.ErrNotFound) {
		t.Errorf("Another player's round should be hidden, got %v", err)
	}

	results := env.stats.all()
	if len(results) != 1 {
		t.Fatalf("Expected 1 stats record, got %d", len(results))
	}
	if got := results[0]; got.game != domain.GameRoulette || got.result.PlayerID != "p1" ||
		got.result.Bet != 60 || got.result.Win != 360 || got.result.Custom["multiplier"] != 6 {
		t.Errorf("Unexpected stats record %+v", got)
	}
}

func TestPlayBalanceConservation(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewSeeded(42))

	for _, id := range []domain.GameID{domain.GameSlots, domain.GamePlinko, domain.GameSevenHalf, domain.GameGates} {
		t.Run(string(id), func(t *testing.T) {
			for i := 0; i < 20; i++ {
				before := env.balance(t, "p1")
				res, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: id, Stake: 10})
				if err != nil {
					t.Fatalf("Play failed: %v", err)
				}
				if res.Win < 0 {
					t.Fatalf("Negative win %d", res.Win)
				}
				if res.Multiplier.LessThan(decimal.NewFromInt(1)) {
					t.Fatalf("Multiplier %s below 1", res.Multiplier)
				}
				if after := env.balance(t, "p1"); after != before-res.Cost+res.Win {
					t.Fatalf("Balance %d, want %d - %d + %d", after, before, res.Cost, res.Win)
				}
				// A triggered bonus blocks paid spins; clear it for the next loop.
				env.engine.session("p1", domain.GameGates).bonus = gates.BonusState{}
			}
		})
	}
	if n := env.pending(t); n != 0 {
		t.Errorf("Expected no pending rounds, got %d", n)
	}
}

func TestPlayGatesAnte(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewSeeded(7))

	var steps []gates.Step
	res, err := env.engine.PlayStream(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GameGates, Stake: 100, Ante: true},
		func(s gates.Step) error {
			steps = append(steps, s)
			return nil
		})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if res.Stake != 100 || res.Cost != 125 {
		t.Errorf("Expected stake 100 cost 125, got %d/%d", res.Stake, res.Cost)
	}
	o, ok := res.Outcome.(gates.Outcome)
	if !ok {
		t.Fatalf("Expected gates outcome, got %T", res.Outcome)
	}
	if len(steps) != len(o.Steps) {
		t.Errorf("Streamed %d steps, outcome has %d", len(steps), len(o.Steps))
	}
	if env.balance(t, "p1") != startingBalance-125+res.Win {
		t.Errorf("Balance %d, want %d", env.balance(t, "p1"), startingBalance-125+res.Win)
	}
}

func TestPlayStreamStopsDelivering(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewSeeded(3))

	calls := 0
	res, err := env.engine.PlayStream(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GameGates, Stake: 10},
		func(gates.Step) error {
			calls++
			return errors.New("client gone")
		})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected delivery to stop after 1 step, got %d", calls)
	}
	if len(res.Outcome.(gates.Outcome).Steps) == 0 {
		t.Error("Spin should still be completed")
	}
}

func TestInvalidBetBeforeDraw(t *testing.T) {
	ctx := context.Background()
	src := rng.NewScripted(0.5)
	env := setupTestEngine(t, src)

	tests := []struct {
		name string
		req  PlayRequest
		want error
	}{
		{"ZeroStake", PlayRequest{PlayerID: "p1", GameID: domain.GameSlots, Stake: 0}, domain.ErrInvalidBet},
		{"NegativeStake", PlayRequest{PlayerID: "p1", GameID: domain.GamePlinko, Stake: -5}, domain.ErrInvalidBet},
		{"AboveMax", PlayRequest{PlayerID: "p1", GameID: domain.GameSlots, Stake: 50001}, domain.ErrInvalidBet},
		{"UnknownBet", PlayRequest{PlayerID: "p1", GameID: domain.GameRoulette, Bets: []roulette.Bet{{ID: "n-37", Amount: 5}}}, domain.ErrInvalidBet},
		{"NoBets", PlayRequest{PlayerID: "p1", GameID: domain.GameRoulette}, domain.ErrInvalidBet},
		{"UnknownGame", PlayRequest{PlayerID: "p1", GameID: "poker", Stake: 10}, ErrGameNotFound},
		{"MultiStep", PlayRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 10}, domain.ErrInvalidAction},
		{"Live", PlayRequest{PlayerID: "p1", GameID: domain.GameLiveRoulette, Stake: 10}, domain.ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.engine.Play(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if src.Calls() != 0 {
		t.Errorf("Rejected bets consumed %d random values", src.Calls())
	}
	if env.balance(t, "p1") != startingBalance {
		t.Errorf("Rejected bets changed the balance to %d", env.balance(t, "p1"))
	}
}

func TestInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	src := rng.NewScripted(0.5)
	env := setupTestEngine(t, src)
	env.ledger.Set("p1", 50)

	_, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GameSlots, Stake: 100})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	_, err = env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 100})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	if env.balance(t, "p1") != 50 {
		t.Errorf("Balance changed to %d", env.balance(t, "p1"))
	}
	if src.Calls() != 0 {
		t.Errorf("Nothing should be drawn, got %d draws", src.Calls())
	}
	if n := env.pending(t); n != 0 {
		t.Errorf("Expected no journaled rounds, got %d pending", n)
	}

	// The lock was released: a covered stake plays.
	if _, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GameSlots, Stake: 50}); err != nil {
		t.Errorf("Play after rejection failed: %v", err)
	}
}

func TestLedgerUnavailable(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewSeeded(1))

	t.Run("Removal", func(t *testing.T) {
		env.ledger.failRemove = true
		defer func() { env.ledger.failRemove = false }()

		_, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GamePlinko, Stake: 100})
		if !errors.Is(err, domain.ErrLedgerUnavailable) {
			t.Fatalf("Expected ErrLedgerUnavailable, got %v", err)
		}
		if env.auditCount(audit.EventLedgerFailure) != 1 {
			t.Error("Expected a ledger_failure audit event")
		}
	})

	t.Run("CreditVoidsAndRefunds", func(t *testing.T) {
		env.ledger.failAdds = 1
		// Every plinko bin pays something on a 100 stake, so a credit is due.
		_, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GamePlinko, Stake: 100})
		if !errors.Is(err, domain.ErrLedgerUnavailable) {
			t.Fatalf("Expected ErrLedgerUnavailable, got %v", err)
		}
		if env.balance(t, "p1") != startingBalance {
			t.Errorf("Stake not refunded: balance %d", env.balance(t, "p1"))
		}
		if env.auditCount(audit.EventRoundVoided) != 1 {
			t.Error("Expected a round_voided audit event")
		}
		if n := env.pending(t); n != 0 {
			t.Errorf("Voided round left %d pending", n)
		}
		if len(env.stats.all()) != 0 {
			t.Error("Voided rounds must not reach stats")
		}
	})

	t.Run("FailedRefundStaysPending", func(t *testing.T) {
		env.ledger.failAdds = 2
		_, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GamePlinko, Stake: 100})
		if !errors.Is(err, domain.ErrLedgerUnavailable) {
			t.Fatalf("Expected ErrLedgerUnavailable, got %v", err)
		}
		if env.auditCount(audit.EventRefundFailed) != 1 {
			t.Error("Expected a refund_failed audit event")
		}
		if n := env.pending(t); n != 1 {
			t.Fatalf("Expected 1 pending round, got %d", n)
		}

		n, err := env.engine.Recover(ctx)
		if err != nil || n != 1 {
			t.Fatalf("Recover = %d, %v", n, err)
		}
		if env.balance(t, "p1") != startingBalance {
			t.Errorf("Recover did not refund: balance %d", env.balance(t, "p1"))
		}
	})
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.New())

	// A round interrupted between removal and settlement.
	rec := round.New("p1", domain.GameSlots, 100, 100)
	if err := env.journal.Begin(ctx, rec); err != nil {
		t.Fatal(err)
	}
	env.ledger.Set("p1", startingBalance-100)

	n, err := env.engine.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 recovered round, got %d", n)
	}
	if env.balance(t, "p1") != startingBalance {
		t.Errorf("Expected refund to %d, got %d", startingBalance, env.balance(t, "p1"))
	}

	got, err := env.journal.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RoundVoided || got.Reason != "interrupted" {
		t.Errorf("Unexpected record %+v", got)
	}
	if env.auditCount(audit.EventRoundRecovered) != 1 {
		t.Error("Expected a round_recovered audit event")
	}

	if n, _ := env.engine.Recover(ctx); n != 0 {
		t.Errorf("Second Recover voided %d rounds", n)
	}
}

func TestRoundInProgressAcrossGames(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewScripted(0.5))

	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 100}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 100}); !errors.Is(err, ErrRoundInProgress) {
		t.Errorf("Expected ErrRoundInProgress, got %v", err)
	}
	if _, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GameSlots, Stake: 10}); !errors.Is(err, ErrRoundInProgress) {
		t.Errorf("Expected ErrRoundInProgress for another game, got %v", err)
	}
	if env.balance(t, "p1") != startingBalance-100 {
		t.Errorf("Rejected rounds changed the balance: %d", env.balance(t, "p1"))
	}

	// Other players are unaffected.
	if _, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p2", GameID: domain.GameSlots, Stake: 10}); err != nil {
		t.Errorf("Play for p2 failed: %v", err)
	}
}

func TestRoundOutlivesLockExpiry(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewScripted(0))
	env.engine.locker = lock.NewMemory(20 * time.Millisecond)

	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameMines, Stake: 100, Mines: 1}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)

	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameBlackjack, Stake: 100}); !errors.Is(err, ErrRoundInProgress) {
		t.Fatalf("Expected ErrRoundInProgress after the store lock expired, got %v", err)
	}
	if _, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GamePlinko, Stake: 10}); !errors.Is(err, ErrRoundInProgress) {
		t.Fatalf("Expected ErrRoundInProgress for a one-shot game, got %v", err)
	}
	if env.balance(t, "p1") != startingBalance-100 {
		t.Errorf("Rejected rounds changed the balance: %d", env.balance(t, "p1"))
	}

	if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionReveal, Cell: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionCashOut}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GamePlinko, Stake: 10}); err != nil {
		t.Errorf("Play after settlement failed: %v", err)
	}
}

func TestFinishedCrashRoundFreesPlayer(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewScripted(0.5))

	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 100}); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(10 * time.Second)

	if _, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GameSlots, Stake: 10}); err != nil {
		t.Fatalf("Play after the crash failed: %v", err)
	}
	v, err := env.engine.Session(ctx, "p1", domain.GameCrash)
	if err != nil {
		t.Fatal(err)
	}
	if v.Phase != domain.PhaseIdle || v.Last == nil || v.Last.Phase != domain.PhaseBusted {
		t.Errorf("Expected the crash round settled as busted, got %+v", v)
	}
}

func TestConcurrentRoundsOnePlayer(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.New())
	ids := []domain.GameID{domain.GameSlots, domain.GamePlinko, domain.GameSevenHalf, domain.GameRoulette}

	var (
		mu        sync.Mutex
		cost, won int64
		wg        sync.WaitGroup
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(id domain.GameID) {
			defer wg.Done()
			req := PlayRequest{PlayerID: "p1", GameID: id, Stake: 10}
			if id == domain.GameRoulette {
				req.Bets = []roulette.Bet{{ID: "black", Amount: 10}}
			}
			res, err := env.engine.Play(ctx, req)
			if errors.Is(err, ErrRoundInProgress) {
				return
			}
			if err != nil {
				t.Errorf("Play failed: %v", err)
				return
			}
			mu.Lock()
			cost += res.Cost
			won += res.Win
			mu.Unlock()
		}(ids[i%len(ids)])
	}
	wg.Wait()

	if got := env.balance(t, "p1"); got != startingBalance-cost+won {
		t.Errorf("Balance %d, want %d", got, startingBalance-cost+won)
	}
	if n := env.pending(t); n != 0 {
		t.Errorf("Expected no pending rounds, got %d", n)
	}
}

func TestBlackjackRound(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewSeeded(11))

	if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameBlackjack, Action: ActionStand}); !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("Expected ErrNoActiveRound, got %v", err)
	}

	var res *Result
	var err error
	for i := 0; i < 20; i++ {
		res, err = env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameBlackjack, Stake: 100})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if res.Phase == domain.PhaseActive {
			break
		}
		// A natural settles on the deal.
		if res.Win != 250 {
			t.Fatalf("Natural paid %d, want 250", res.Win)
		}
	}
	if res.Phase != domain.PhaseActive {
		t.Fatal("Every deal was a natural")
	}

	view, err := env.engine.Session(ctx, "p1", domain.GameBlackjack)
	if err != nil {
		t.Fatal(err)
	}
	if view.Phase != domain.PhaseActive || view.Round == nil || view.Round.RoundID != res.RoundID {
		t.Errorf("Unexpected session %+v", view)
	}

	before := env.balance(t, "p1")
	if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameBlackjack, Action: ActionReveal}); !errors.Is(err, domain.ErrInvalidAction) {
		t.Errorf("Expected ErrInvalidAction, got %v", err)
	}

	final, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameBlackjack, Action: ActionStand})
	if err != nil {
		t.Fatalf("Stand failed: %v", err)
	}
	if !final.Phase.Terminal() {
		t.Errorf("Expected a terminal phase, got %s", final.Phase)
	}
	if got := env.balance(t, "p1"); got != before+final.Win {
		t.Errorf("Balance %d, want %d", got, before+final.Win)
	}
	switch final.Win {
	case 0, 100, 200:
	default:
		t.Errorf("Unexpected blackjack payout %d", final.Win)
	}

	view, _ = env.engine.Session(ctx, "p1", domain.GameBlackjack)
	if view.Phase != domain.PhaseIdle || view.Last == nil || view.Last.RoundID != res.RoundID {
		t.Errorf("Expected idle session with last round, got %+v", view)
	}
	if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameBlackjack, Action: ActionHit}); !errors.Is(err, ErrNoActiveRound) {
		t.Errorf("Expected ErrNoActiveRound after settlement, got %v", err)
	}
}

func TestMinesRound(t *testing.T) {
	ctx := context.Background()

	t.Run("RejectsMineCount", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0))
		for _, k := range []int{0, 25} {
			_, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameMines, Stake: 100, Mines: k})
			if !errors.Is(err, domain.ErrInvalidBet) {
				t.Errorf("Mines %d: expected ErrInvalidBet, got %v", k, err)
			}
		}
		if env.balance(t, "p1") != startingBalance {
			t.Error("Rejected start changed the balance")
		}
	})

	t.Run("AllowedCounts", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0))
		env.engine.table.Mines.Allowed = []int{1, 3}
		_, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameMines, Stake: 100, Mines: 2})
		if !errors.Is(err, domain.ErrInvalidBet) {
			t.Errorf("Mines 2: expected ErrInvalidBet, got %v", err)
		}
		if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameMines, Stake: 100, Mines: 3}); err != nil {
			t.Errorf("Mines 3 should be offered: %v", err)
		}
	})

	// The scripted source places the single mine on cell 0.
	t.Run("CashOut", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0))
		if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameMines, Stake: 100, Mines: 1}); err != nil {
			t.Fatal(err)
		}
		if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionCashOut}); !errors.Is(err, domain.ErrInvalidAction) {
			t.Errorf("Cash-out before a reveal: expected ErrInvalidAction, got %v", err)
		}
		res, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionReveal, Cell: 1})
		if err != nil || res.Phase != domain.PhaseActive {
			t.Fatalf("Reveal: %v, %+v", err, res)
		}
		if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionReveal, Cell: 1}); !errors.Is(err, domain.ErrInvalidAction) {
			t.Errorf("Second reveal of a cell: expected ErrInvalidAction, got %v", err)
		}
		res, err = env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionCashOut})
		if err != nil {
			t.Fatalf("CashOut failed: %v", err)
		}
		if res.Phase != domain.PhaseCashedOut || res.Win != 101 {
			t.Errorf("Expected cashed out for 101, got %s for %d", res.Phase, res.Win)
		}
		if env.balance(t, "p1") != startingBalance-100+101 {
			t.Errorf("Unexpected balance %d", env.balance(t, "p1"))
		}
	})

	t.Run("CreditFailureVoids", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0))
		if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameMines, Stake: 100, Mines: 1}); err != nil {
			t.Fatal(err)
		}
		if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionReveal, Cell: 1}); err != nil {
			t.Fatal(err)
		}
		env.ledger.failAdds = 1
		if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionCashOut}); !errors.Is(err, domain.ErrLedgerUnavailable) {
			t.Fatalf("Expected ErrLedgerUnavailable, got %v", err)
		}
		if env.balance(t, "p1") != startingBalance {
			t.Errorf("Stake not refunded: balance %d", env.balance(t, "p1"))
		}
		v, err := env.engine.Session(ctx, "p1", domain.GameMines)
		if err != nil {
			t.Fatal(err)
		}
		if v.Phase != domain.PhaseIdle || v.Last == nil || v.Last.Phase != domain.PhaseVoided {
			t.Errorf("Expected an idle session with a voided last round, got %+v", v)
		}
	})

	t.Run("Hazard", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0))
		if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameMines, Stake: 100, Mines: 1}); err != nil {
			t.Fatal(err)
		}
		res, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameMines, Action: ActionReveal, Cell: 0})
		if err != nil {
			t.Fatalf("Reveal failed: %v", err)
		}
		if res.Phase != domain.PhaseBusted || res.Win != 0 {
			t.Errorf("Expected busted for 0, got %s for %d", res.Phase, res.Win)
		}
		if env.balance(t, "p1") != startingBalance-100 {
			t.Errorf("Unexpected balance %d", env.balance(t, "p1"))
		}
	})
}

// The scripted source puts the crash point at 0.99/0.5 = 1.98, reached after
// about 6.8 seconds.
func TestCrashRound(t *testing.T) {
	ctx := context.Background()

	t.Run("CashOutInTime", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0.5))
		if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 100}); err != nil {
			t.Fatal(err)
		}
		env.clock.Advance(2 * time.Second)
		res, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameCrash, Action: ActionCashOut})
		if err != nil {
			t.Fatalf("CashOut failed: %v", err)
		}
		if res.Phase != domain.PhaseCashedOut || res.Win != 122 {
			t.Errorf("Expected cashed out for 122, got %s for %d", res.Phase, res.Win)
		}
		if !res.Multiplier.Equal(decimal.RequireFromString("1.22")) {
			t.Errorf("Expected multiplier 1.22, got %s", res.Multiplier)
		}
	})

	t.Run("CashOutTooLate", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0.5))
		if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 100}); err != nil {
			t.Fatal(err)
		}
		env.clock.Advance(10 * time.Second)
		res, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameCrash, Action: ActionCashOut})
		if !errors.Is(err, domain.ErrRoundOver) {
			t.Fatalf("Expected ErrRoundOver, got %v", err)
		}
		if res == nil || res.Phase != domain.PhaseBusted || res.Win != 0 {
			t.Fatalf("Expected the settled busted round, got %+v", res)
		}
		if env.balance(t, "p1") != startingBalance-100 {
			t.Errorf("Unexpected balance %d", env.balance(t, "p1"))
		}
		if n := env.pending(t); n != 0 {
			t.Errorf("Busted round still pending")
		}
	})

	t.Run("AutoCashOutOnSessionRead", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0.5))
		_, err := env.engine.Start(ctx, StartRequest{
			PlayerID: "p1", GameID: domain.GameCrash, Stake: 100,
			AutoCashOut: decimal.RequireFromString("1.5"),
		})
		if err != nil {
			t.Fatal(err)
		}
		env.clock.Advance(10 * time.Second)

		view, err := env.engine.Session(ctx, "p1", domain.GameCrash)
		if err != nil {
			t.Fatal(err)
		}
		if view.Phase != domain.PhaseIdle || view.Last == nil {
			t.Fatalf("Expected the round settled, got %+v", view)
		}
		if view.Last.Phase != domain.PhaseCashedOut || view.Last.Win != 150 {
			t.Errorf("Expected auto cash-out for 150, got %s for %d", view.Last.Phase, view.Last.Win)
		}
		if env.balance(t, "p1") != startingBalance+50 {
			t.Errorf("Unexpected balance %d", env.balance(t, "p1"))
		}
	})

	t.Run("AutoCashOutCreditFails", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0.5))
		_, err := env.engine.Start(ctx, StartRequest{
			PlayerID: "p1", GameID: domain.GameCrash, Stake: 100,
			AutoCashOut: decimal.RequireFromString("1.5"),
		})
		if err != nil {
			t.Fatal(err)
		}
		env.clock.Advance(10 * time.Second)
		env.ledger.failAdds = 1

		view, err := env.engine.Session(ctx, "p1", domain.GameCrash)
		if err != nil {
			t.Fatal(err)
		}
		if view.Last == nil || view.Last.Phase != domain.PhaseVoided {
			t.Fatalf("Expected the round voided, got %+v", view.Last)
		}
		if n := env.logs.FilterMessage("failed to settle expired round").Len(); n != 1 {
			t.Errorf("Expected the settle failure logged once, got %d", n)
		}
		if env.balance(t, "p1") != startingBalance {
			t.Errorf("Stake not refunded, balance %d", env.balance(t, "p1"))
		}
	})

	t.Run("RejectsAutoCashOut", func(t *testing.T) {
		env := setupTestEngine(t, rng.NewScripted(0.5))
		_, err := env.engine.Start(ctx, StartRequest{
			PlayerID: "p1", GameID: domain.GameCrash, Stake: 100,
			AutoCashOut: decimal.NewFromInt(1),
		})
		if !errors.Is(err, domain.ErrInvalidBet) {
			t.Errorf("Expected ErrInvalidBet, got %v", err)
		}
	})
}

// Obstacles for the scripted source arrive at 1500, 2200, 2900 ms.
func TestDinoRunRound(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewScripted(0))

	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameDinoRun, Stake: 100}); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(1200 * time.Millisecond)
	if _, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameDinoRun, Action: ActionJump}); err != nil {
		t.Fatalf("Jump failed: %v", err)
	}
	env.clock.Advance(800 * time.Millisecond)
	res, err := env.engine.Act(ctx, ActRequest{PlayerID: "p1", GameID: domain.GameDinoRun, Action: ActionCashOut})
	if err != nil {
		t.Fatalf("CashOut failed: %v", err)
	}
	if res.Phase != domain.PhaseCashedOut || res.Win != 120 {
		t.Errorf("Expected cashed out for 120, got %s for %d", res.Phase, res.Win)
	}

	// An abandoned run collides and settles on the next start.
	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameDinoRun, Stake: 100}); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(5 * time.Second)
	res, err = env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameDinoRun, Stake: 100})
	if err != nil {
		t.Fatalf("Start after a collision failed: %v", err)
	}
	if res.Phase != domain.PhaseActive {
		t.Errorf("Expected a fresh active run, got %s", res.Phase)
	}
	if got := env.balance(t, "p1"); got != startingBalance-100+120-100-100 {
		t.Errorf("Unexpected balance %d", got)
	}
}

func TestGatesFreeSpins(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewSeeded(5))

	if _, err := env.engine.Spin(ctx, "p1", nil); !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("Expected ErrInvalidAction without a bonus, got %v", err)
	}

	s := env.engine.session("p1", domain.GameGates)
	s.bonus = gates.BonusState{Active: true, SpinsRemaining: 2, Stake: 20}

	if _, err := env.engine.Play(ctx, PlayRequest{PlayerID: "p1", GameID: domain.GameGates, Stake: 20}); !errors.Is(err, domain.ErrInvalidAction) {
		t.Errorf("Paid spin during the bonus: expected ErrInvalidAction, got %v", err)
	}

	var total int64
	for i := 0; ; i++ {
		if i > 50 {
			t.Fatal("Bonus never ended")
		}
		before := env.balance(t, "p1")
		res, err := env.engine.Spin(ctx, "p1", nil)
		if err != nil {
			t.Fatalf("Spin failed: %v", err)
		}
		if !res.Free || res.Cost != 0 || res.Stake != 20 {
			t.Errorf("Unexpected free spin %+v", res)
		}
		if got := env.balance(t, "p1"); got != before+res.Win {
			t.Fatalf("Free spin balance %d, want %d", got, before+res.Win)
		}
		total += res.Win
		if res.Transition != nil && res.Transition.Ended {
			if res.Transition.BonusWin != total {
				t.Errorf("Bonus win %d, want %d", res.Transition.BonusWin, total)
			}
			if res.Bonus != nil {
				t.Error("Ended bonus still reported")
			}
			break
		}
		if res.Bonus == nil || !res.Bonus.Active {
			t.Fatalf("Bonus missing mid-run: %+v", res)
		}
	}

	view, err := env.engine.Session(ctx, "p1", domain.GameGates)
	if err != nil {
		t.Fatal(err)
	}
	if view.Bonus != nil {
		t.Errorf("Expected no bonus after it ended, got %+v", view.Bonus)
	}
}

func TestFailedFreeSpinIsConsumed(t *testing.T) {
	ctx := context.Background()
	// 0.99 fills every grid with one pay symbol, so each free spin wins.
	env := setupTestEngine(t, rng.NewScripted(0.99))
	s := env.engine.session("p1", domain.GameGates)
	s.bonus = gates.BonusState{Active: true, SpinsRemaining: 2, Stake: 20}

	env.ledger.failAdds = 1
	if _, err := env.engine.Spin(ctx, "p1", nil); !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("Expected ErrLedgerUnavailable, got %v", err)
	}
	if s.bonus.SpinsRemaining != 1 {
		t.Fatalf("Voided spin not consumed: %+v", s.bonus)
	}
	if env.balance(t, "p1") != startingBalance {
		t.Errorf("Voided free spin moved the balance to %d", env.balance(t, "p1"))
	}

	res, err := env.engine.Spin(ctx, "p1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Transition == nil || !res.Transition.Ended || res.Transition.BonusWin != res.Win {
		t.Errorf("Expected the bonus to end paying only the settled spin, got %+v", res.Transition)
	}
	if _, err := env.engine.Spin(ctx, "p1", nil); !errors.Is(err, domain.ErrInvalidAction) {
		t.Errorf("Expected no spins left, got %v", err)
	}
}

func TestLargeWinAudited(t *testing.T) {
	ctx := context.Background()
	// Pocket 0 pays a straight-up 36 times.
	env := setupTestEngine(t, rng.NewScripted(0))

	if _, err := env.engine.Play(ctx, PlayRequest{
		PlayerID: "p1", GameID: domain.GameRoulette,
		Bets: []roulette.Bet{{ID: "n-0", Amount: 200}},
	}); err != nil {
		t.Fatal(err)
	}
	if env.auditCount(audit.EventLargeWin) != 1 {
		t.Error("Expected a large_win audit event")
	}
}

func TestShutdownVoidsActiveRounds(t *testing.T) {
	ctx := context.Background()
	env := setupTestEngine(t, rng.NewScripted(0.5))

	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 100}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Live().PlaceBets(ctx, "p2", []roulette.Bet{{ID: "odd", Amount: 40}}); err != nil {
		t.Fatal(err)
	}

	if n := env.engine.Shutdown(ctx); n != 2 {
		t.Errorf("Expected 2 voided rounds, got %d", n)
	}
	for _, p := range []string{"p1", "p2"} {
		if env.balance(t, p) != startingBalance {
			t.Errorf("%s not refunded: %d", p, env.balance(t, p))
		}
	}
	if n := env.pending(t); n != 0 {
		t.Errorf("Expected no pending rounds, got %d", n)
	}

	// The lock was released with the void.
	if _, err := env.engine.Start(ctx, StartRequest{PlayerID: "p1", GameID: domain.GameCrash, Stake: 100}); err != nil {
		t.Errorf("Start after shutdown void failed: %v", err)
	}
}
