// Package stats records finished rounds for reporting. Recording is fire
// and forget: payouts never wait on it and a failed sink never fails a round.
package stats

import (
	"context"
	"errors"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Recorder is what the engine reports finished rounds to.
type Recorder interface {
	RecordGameResult(ctx context.Context, gameID domain.GameID, res domain.GameResult)
}

// Sink delivers one result somewhere.
type Sink interface {
	Record(ctx context.Context, gameID domain.GameID, res domain.GameResult) error
}

// Nop discards everything.
type Nop struct{}

// RecordGameResult implements Recorder.
func (Nop) RecordGameResult(context.Context, domain.GameID, domain.GameResult) {}

// Dispatcher fans results out to its sinks on a bounded worker pool. When
// every worker is busy the result is dropped with a warning.
type Dispatcher struct {
	pool    *ants.Pool
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
}

// NewDispatcher creates a dispatcher with size workers.
func NewDispatcher(size int, logger *zap.Logger, sinks ...Sink) (*Dispatcher, error) {
	d := &Dispatcher{
		sinks:   sinks,
		logger:  logger.Named("stats"),
		timeout: 5 * time.Second,
	}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			d.logger.Error("stats sink panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	return d, nil
}

// RecordGameResult implements Recorder.
func (d *Dispatcher) RecordGameResult(ctx context.Context, gameID domain.GameID, res domain.GameResult) {
	// The request context ends with the response; the sinks outlive it.
	base := context.WithoutCancel(ctx)
	err := d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		for _, s := range d.sinks {
			if err := s.Record(ctx, gameID, res); err != nil {
				d.logger.Warn("failed to record game result",
					zap.String("game_id", string(gameID)),
					zap.String("player_id", res.PlayerID),
					zap.Error(err))
			}
		}
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		d.logger.Warn("stats pool full, dropping result",
			zap.String("game_id", string(gameID)),
			zap.String("player_id", res.PlayerID))
	} else if err != nil {
		d.logger.Warn("stats pool unavailable", zap.Error(err))
	}
}

// Close waits up to timeout for queued work and stops the workers.
func (d *Dispatcher) Close(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}

// Log writes each result as a structured log line.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log sink.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("results")}
}

// Record implements Sink.
func (l *Log) Record(ctx context.Context, gameID domain.GameID, res domain.GameResult) error {
	fields := []zap.Field{
		zap.String("game_id", string(gameID)),
		zap.String("player_id", res.PlayerID),
		zap.Int64("bet", res.Bet),
		zap.Int64("win", res.Win),
	}
	for k, v := range res.Custom {
		fields = append(fields, zap.Float64(k, v))
	}
	l.logger.Info("game result", fields...)
	return nil
}
