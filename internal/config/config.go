// Package config provides configuration management for the minigame server
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server
type Config struct {
	Env      string
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Profile  ProfileConfig
	Auth     AuthConfig
	Game     GameConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LogConfig selects the log destination. An empty File logs to stderr.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// DatabaseConfig holds database configuration. An empty DSN keeps the
// ledger and the round journal in memory.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// RedisConfig holds the lock store. An empty Addr uses in-process locks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AMQPConfig holds the stats broker. An empty URL disables publishing.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// ProfileConfig holds the remote profile service. When URL is set it backs
// the ledger and receives game results.
type ProfileConfig struct {
	URL        string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	RetryCount int
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// GameConfig holds engine and paytable settings
type GameConfig struct {
	PaytableFile     string
	StartingBalance  int64
	LargeWin         int64
	LockTTL          time.Duration
	LiveRoundLength  time.Duration
	LiveSalt         uint64
	FreeSpinDelay    time.Duration
	CascadeDelay     time.Duration
	CrashTick        time.Duration
	StatsWorkers     int
	ShutdownDeadline time.Duration
}

// Load reads .env when present, then the environment, with defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env: getEnv("MINIGAMES_ENV", "production"),
		Server: ServerConfig{
			Port:         getEnv("MINIGAMES_PORT", "8080"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:      getEnv("MINIGAMES_LOG_LEVEL", "info"),
			File:       getEnv("MINIGAMES_LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("MINIGAMES_LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("MINIGAMES_LOG_MAX_BACKUPS", 5),
		},
		Database: DatabaseConfig{
			Driver: getEnv("MINIGAMES_DB_DRIVER", "postgres"),
			DSN:    getEnv("MINIGAMES_DB_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("MINIGAMES_REDIS_ADDR", ""),
			Password: getEnv("MINIGAMES_REDIS_PASSWORD", ""),
			DB:       getEnvInt("MINIGAMES_REDIS_DB", 0),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("MINIGAMES_AMQP_URL", ""),
			Exchange: getEnv("MINIGAMES_AMQP_EXCHANGE", "minigames.results"),
		},
		Profile: ProfileConfig{
			URL:        getEnv("MINIGAMES_PROFILE_URL", ""),
			APIKey:     getEnv("MINIGAMES_PROFILE_KEY", ""),
			APISecret:  getEnv("MINIGAMES_PROFILE_SECRET", ""),
			Timeout:    getEnvDuration("MINIGAMES_PROFILE_TIMEOUT", 10*time.Second),
			RetryCount: getEnvInt("MINIGAMES_PROFILE_RETRIES", 3),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("MINIGAMES_JWT_SECRET", "minigames-dev-secret-change-in-production"),
		},
		Game: GameConfig{
			PaytableFile:     getEnv("MINIGAMES_PAYTABLE_FILE", ""),
			StartingBalance:  int64(getEnvInt("MINIGAMES_STARTING_BALANCE", 10000)),
			LargeWin:         int64(getEnvInt("MINIGAMES_LARGE_WIN", 100000)),
			LockTTL:          getEnvDuration("MINIGAMES_LOCK_TTL", 5*time.Minute),
			LiveRoundLength:  getEnvMillis("MINIGAMES_LIVE_ROUND_MS", 30*time.Second),
			LiveSalt:         getEnvUint("MINIGAMES_LIVE_SALT", 0x5eed),
			FreeSpinDelay:    getEnvMillis("MINIGAMES_FREE_SPIN_DELAY_MS", 1500*time.Millisecond),
			CascadeDelay:     getEnvMillis("MINIGAMES_CASCADE_DELAY_MS", 400*time.Millisecond),
			CrashTick:        getEnvMillis("MINIGAMES_CRASH_TICK_MS", 100*time.Millisecond),
			StatsWorkers:     getEnvInt("MINIGAMES_STATS_WORKERS", 8),
			ShutdownDeadline: getEnvDuration("MINIGAMES_SHUTDOWN_DEADLINE", 15*time.Second),
		},
	}
}

// Development reports whether the server runs in development mode.
func (c *Config) Development() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if n, err := strconv.ParseUint(os.Getenv(key), 0, 64); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return defaultValue
}
