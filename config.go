package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/threes-sim/engine/nbastats"
	"github.com/threes-sim/engine/simulation"
)

// Config contains process configuration
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error
	LogLevel string `koanf:"log_level"`

	// Addr is the HTTP listen address, e.g. ":8080"
	Addr string `koanf:"addr"`

	// DatabaseURL enables run persistence when set; without it run
	// history lives in memory only
	DatabaseURL string `koanf:"database_url"`

	// RedisAddr enables stats response caching when set
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`

	// Workers sets the simulation worker count per run
	Workers int `koanf:"workers"`

	// DefaultGames and MaxGames bound a run's simulated-game count
	DefaultGames int `koanf:"default_games"`
	MaxGames     int `koanf:"max_games"`

	// BootstrapSamples sets the default attempt-volume resample count
	BootstrapSamples int `koanf:"bootstrap_samples"`

	// DefaultSeason overrides the calendar-derived season, e.g. "2023-24"
	DefaultSeason string `koanf:"default_season"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":8080",
		CacheTTL:         nbastats.DefaultCacheTTL,
		Workers:          runtime.NumCPU(),
		DefaultGames:     10000,
		MaxGames:         200000,
		BootstrapSamples: simulation.DefaultBootstrapSamples,
	}
}

// LoadConfig builds a Config by layering defaults, an optional YAML file,
// and environment variables. Order of precedence (low -> high):
//  1. defaults
//  2. file (YAML) if THREES_CONFIG is set
//  3. env (prefix THREES_, e.g. THREES_ADDR, THREES_MAX_GAMES)
func LoadConfig() (*Config, error) {
	cfg := *defaultConfig()

	k := koanf.New(".")
	if path := os.Getenv("THREES_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	envProvider := env.Provider("THREES_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "THREES_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr must not be empty")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.DefaultGames < 1 {
		return nil, fmt.Errorf("default_games must be positive, got %d", cfg.DefaultGames)
	}
	if cfg.MaxGames < cfg.DefaultGames {
		return nil, fmt.Errorf("max_games %d is below default_games %d", cfg.MaxGames, cfg.DefaultGames)
	}
	if cfg.BootstrapSamples < 1 {
		return nil, fmt.Errorf("bootstrap_samples must be positive, got %d", cfg.BootstrapSamples)
	}
	return &cfg, nil
}
