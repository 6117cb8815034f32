package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexbotov/minigames/internal/api"
	"github.com/alexbotov/minigames/internal/audit"
	"github.com/alexbotov/minigames/internal/auth"
	"github.com/alexbotov/minigames/internal/config"
	"github.com/alexbotov/minigames/internal/database"
	"github.com/alexbotov/minigames/internal/game"
	"github.com/alexbotov/minigames/internal/lock"
	"github.com/alexbotov/minigames/internal/paytable"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/alexbotov/minigames/internal/round"
	"github.com/alexbotov/minigames/internal/stats"
	"github.com/alexbotov/minigames/internal/wallet"
	"github.com/alexbotov/minigames/pkg/profilestore"
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder = zapcore.NewJSONEncoder(encCfg)
	if cfg.Development() {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)}
	if cfg.Log.File != "" {
		file := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), file, level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting minigames server", zap.String("env", cfg.Env), zap.String("port", cfg.Server.Port))

	table, err := loadPaytable(cfg.Game.PaytableFile)
	if err != nil {
		return err
	}

	opts := game.Options{
		Logger:    logger,
		LargeWin:  cfg.Game.LargeWin,
		LiveRound: cfg.Game.LiveRoundLength,
		LiveSalt:  cfg.Game.LiveSalt,
	}

	// Ledger, journal and audit trail
	var sinks []stats.Sink
	switch {
	case cfg.Profile.URL != "":
		client := profilestore.NewClient(&profilestore.ClientConfig{
			BaseURL:    cfg.Profile.URL,
			APIKey:     cfg.Profile.APIKey,
			APISecret:  cfg.Profile.APISecret,
			Timeout:    cfg.Profile.Timeout,
			RetryCount: cfg.Profile.RetryCount,
		})
		opts.Ledger = wallet.NewRemote(client)
		sinks = append(sinks, stats.NewProfile(client))
		logger.Info("ledger backed by profile service", zap.String("url", cfg.Profile.URL))
	case cfg.Database.DSN == "":
		opts.Ledger = wallet.NewMemory(cfg.Game.StartingBalance)
		logger.Warn("no database configured, ledger and rounds kept in memory")
	}

	if cfg.Database.DSN != "" {
		db, err := database.New(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		if opts.Ledger == nil {
			opts.Ledger = wallet.NewPostgres(db.DB, cfg.Game.StartingBalance)
		}
		opts.Journal = round.NewPostgres(db.DB)
		opts.Audit = audit.New(db.DB, logger)
	} else {
		opts.Audit = audit.New(nil, logger)
	}

	// Round locks
	if cfg.Redis.Addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		opts.Locker = lock.NewRedis(rdb, "minigames:lock:", cfg.Game.LockTTL)
	} else {
		opts.Locker = lock.NewMemory(cfg.Game.LockTTL)
	}

	// Stats
	if cfg.AMQP.URL != "" {
		publisher, err := stats.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	sinks = append(sinks, stats.NewLog(logger))
	dispatcher, err := stats.NewDispatcher(cfg.Game.StatsWorkers, logger, sinks...)
	if err != nil {
		return fmt.Errorf("failed to start stats dispatcher: %w", err)
	}
	opts.Stats = dispatcher

	rngSvc := rng.New()
	health, err := rngSvc.HealthCheck()
	opts.Audit.RNGHealth(ctx, health, err)
	if err != nil {
		return fmt.Errorf("rng health check failed: %w", err)
	}
	opts.RNG = rngSvc

	engine := game.New(table, opts)
	if n, err := engine.Recover(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("voided interrupted rounds", zap.Int("count", n))
	}

	handlerOpts := []api.Option{api.WithPacing(api.Pacing{
		Cascade:   cfg.Game.CascadeDelay,
		FreeSpin:  cfg.Game.FreeSpinDelay,
		CrashTick: cfg.Game.CrashTick,
	}), api.WithAudit(opts.Audit)}
	if cfg.Development() {
		handlerOpts = append(handlerOpts, api.WithDevTokens())
	}
	handler := api.New(auth.New(cfg.Auth.JWTSecret), engine, rngSvc, logger, handlerOpts...)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.SetupRouter(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return engine.Live().Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Game.ShutdownDeadline)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
		if n := engine.Shutdown(shutdownCtx); n > 0 {
			logger.Warn("voided active rounds", zap.Int("count", n))
		}
		return dispatcher.Close(5 * time.Second)
	})

	return g.Wait()
}

func loadPaytable(path string) (*paytable.Table, error) {
	if path == "" {
		return paytable.Default()
	}
	t, err := paytable.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load paytable %s: %w", path, err)
	}
	return t, nil
}
