// Package config loads daemon configuration from the environment. Every
// key has a default; GAVEL_-prefixed environment variables override them
// (GAVEL_HTTP_ADDR, GAVEL_DATABASE_URL, ...).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Command pipeline.
	LockWait            time.Duration `mapstructure:"LOCK_WAIT"`
	LockHold            time.Duration `mapstructure:"LOCK_HOLD"`
	RetryMax            uint64        `mapstructure:"RETRY_MAX"`
	RetryInitialBackoff time.Duration `mapstructure:"RETRY_INITIAL_BACKOFF"`

	// Timing wheel.
	WheelTick       time.Duration `mapstructure:"WHEEL_TICK"`
	WheelSize       int           `mapstructure:"WHEEL_SIZE"`
	DispatchWorkers int           `mapstructure:"DISPATCH_WORKERS"`
	DispatchQueue   int           `mapstructure:"DISPATCH_QUEUE"`

	// Durable scheduler.
	JobLease         time.Duration `mapstructure:"JOB_LEASE"`
	JobMaxAttempts   int           `mapstructure:"JOB_MAX_ATTEMPTS"`
	JobSweepInterval time.Duration `mapstructure:"JOB_SWEEP_INTERVAL"`

	// DefaultRevealWindow applies to sealed auctions created without an
	// explicit reveal window.
	DefaultRevealWindow time.Duration `mapstructure:"DEFAULT_REVEAL_WINDOW"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GAVEL")
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("LOCK_WAIT", 5*time.Second)
	v.SetDefault("LOCK_HOLD", 30*time.Second)
	v.SetDefault("RETRY_MAX", 3)
	v.SetDefault("RETRY_INITIAL_BACKOFF", 50*time.Millisecond)

	v.SetDefault("WHEEL_TICK", 100*time.Millisecond)
	v.SetDefault("WHEEL_SIZE", 512)
	v.SetDefault("DISPATCH_WORKERS", 10)
	v.SetDefault("DISPATCH_QUEUE", 1000)

	v.SetDefault("JOB_LEASE", 5*time.Minute)
	v.SetDefault("JOB_MAX_ATTEMPTS", 3)
	v.SetDefault("JOB_SWEEP_INTERVAL", 30*time.Second)

	v.SetDefault("DEFAULT_REVEAL_WINDOW", time.Hour)
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
