package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/games/roulette"
	"go.uber.org/zap"
)

// LiveTable is the shared roulette wheel. Time is cut into fixed buckets;
// the number of a bucket comes from a generator seeded with the bucket index
// and the table salt, so every viewer sees the same spin. Bets are accepted
// for the open bucket and settled when it closes.
type LiveTable struct {
	engine *Engine
	round  time.Duration
	salt   uint64

	mu      sync.Mutex
	pending map[int64][]*active
	bets    map[string][]roulette.Bet // round id -> bets
	closed  int64
	last    *LiveResult
	subs    map[chan LiveResult]struct{}
}

func newLiveTable(e *Engine, round time.Duration, salt uint64) *LiveTable {
	return &LiveTable{
		engine:  e,
		round:   round,
		salt:    salt,
		pending: make(map[int64][]*active),
		bets:    make(map[string][]roulette.Bet),
		closed:  -1,
		subs:    make(map[chan LiveResult]struct{}),
	}
}

// LiveResult is a closed bucket.
type LiveResult struct {
	Bucket   int64     `json:"bucket"`
	Number   int       `json:"number"`
	Color    string    `json:"color"`
	ClosedAt time.Time `json:"closed_at"`
	Settled  int       `json:"settled"`
}

// LiveTicket acknowledges accepted bets.
type LiveTicket struct {
	RoundID  string    `json:"round_id"`
	Bucket   int64     `json:"bucket"`
	ClosesAt time.Time `json:"closes_at"`
	Stake    int64     `json:"stake"`
	Balance  int64     `json:"balance"`
}

// LiveState is the table as of now.
type LiveState struct {
	Bucket      int64       `json:"bucket"`
	ClosesAt    time.Time   `json:"closes_at"`
	RoundLength int64       `json:"round_length_ms"`
	Last        *LiveResult `json:"last,omitempty"`
}

// PlaceBets removes the total stake and queues the bets on the open
// bucket. The player's round lock is only held while the stake is taken;
// the table settles the ticket later.
func (t *LiveTable) PlaceBets(ctx context.Context, playerID string, bets []roulette.Bet) (*LiveTicket, error) {
	e := t.engine
	total, err := roulette.Validate(bets)
	if err != nil {
		return nil, err
	}
	if err := e.checkStake(domain.GameLiveRoulette, total); err != nil {
		return nil, err
	}

	a, err := e.open(ctx, playerID, domain.GameLiveRoulette, total, total)
	if err != nil {
		return nil, err
	}
	e.unlock(a)

	t.mu.Lock()
	bucket := roulette.Bucket(e.clock(), t.round)
	if bucket <= t.closed {
		bucket = t.closed + 1
	}
	t.pending[bucket] = append(t.pending[bucket], a)
	t.bets[a.record.ID] = append([]roulette.Bet(nil), bets...)
	t.mu.Unlock()

	return &LiveTicket{
		RoundID:  a.record.ID,
		Bucket:   bucket,
		ClosesAt: roulette.BucketStart(bucket+1, t.round),
		Stake:    total,
		Balance:  e.balanceOrZero(ctx, playerID),
	}, nil
}

// Current reports the open bucket and the last result.
func (t *LiveTable) Current() LiveState {
	now := t.engine.clock()
	b := roulette.Bucket(now, t.round)
	t.mu.Lock()
	defer t.mu.Unlock()
	return LiveState{
		Bucket:      b,
		ClosesAt:    roulette.BucketStart(b+1, t.round),
		RoundLength: t.round.Milliseconds(),
		Last:        t.last,
	}
}

// Close spins bucket and settles every ticket on it and on any earlier
// bucket still open. Subscribers receive the result.
func (t *LiveTable) Close(ctx context.Context, bucket int64) LiveResult {
	t.mu.Lock()
	var due []int64
	for b := range t.pending {
		if b <= bucket {
			due = append(due, b)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	batches := make(map[int64][]*active, len(due))
	bets := make(map[string][]roulette.Bet)
	for _, b := range due {
		batches[b] = t.pending[b]
		for _, a := range t.pending[b] {
			bets[a.record.ID] = t.bets[a.record.ID]
			delete(t.bets, a.record.ID)
		}
		delete(t.pending, b)
	}
	if bucket > t.closed {
		t.closed = bucket
	}
	t.mu.Unlock()

	settled := 0
	for _, b := range due {
		n := roulette.LiveNumber(b, t.salt)
		for _, a := range batches[b] {
			o := roulette.Outcome{Number: n, Bets: bets[a.record.ID]}
			if _, _, err := t.engine.settle(ctx, a, o); err != nil {
				t.engine.logger.Warn("live bet not settled",
					zap.String("round_id", a.record.ID), zap.Error(err))
				continue
			}
			if b == bucket {
				settled++
			}
		}
	}

	n := roulette.LiveNumber(bucket, t.salt)
	res := LiveResult{
		Bucket:   bucket,
		Number:   n,
		Color:    roulette.Color(n),
		ClosedAt: roulette.BucketStart(bucket+1, t.round),
		Settled:  settled,
	}

	t.mu.Lock()
	t.last = &res
	for ch := range t.subs {
		select {
		case ch <- res:
		default:
			// slow viewer; it catches up from Current
		}
	}
	t.mu.Unlock()
	return res
}

// Subscribe returns a channel of closed buckets and a cancel func.
func (t *LiveTable) Subscribe(buffer int) (<-chan LiveResult, func()) {
	ch := make(chan LiveResult, buffer)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()
	return ch, func() {
		t.mu.Lock()
		delete(t.subs, ch)
		t.mu.Unlock()
	}
}

// Run closes each bucket as its time runs out until ctx ends.
func (t *LiveTable) Run(ctx context.Context) error {
	for {
		now := t.engine.clock()
		b := roulette.Bucket(now, t.round)
		timer := time.NewTimer(roulette.BucketStart(b+1, t.round).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		res := t.Close(ctx, b)
		t.engine.logger.Debug("live bucket closed",
			zap.Int64("bucket", res.Bucket), zap.Int("number", res.Number), zap.Int("settled", res.Settled))
	}
}

func (t *LiveTable) voidPending(ctx context.Context, reason string) int {
	t.mu.Lock()
	var all []*active
	for b, batch := range t.pending {
		all = append(all, batch...)
		delete(t.pending, b)
	}
	t.bets = make(map[string][]roulette.Bet)
	t.mu.Unlock()

	for _, a := range all {
		t.engine.void(ctx, a, reason)
	}
	return len(all)
}
