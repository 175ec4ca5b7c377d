// Package config loads engine configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
)

// Config holds all engine configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Store struct {
		// Backend is one of "memory", "redis", "postgres".
		Backend  string                  `yaml:"backend"`
		Redis    docstore.RedisConfig    `yaml:"redis"`
		Postgres docstore.PostgresConfig `yaml:"postgres"`
	} `yaml:"store"`

	Mining struct {
		// BaseRate is the unboosted earn rate in units per second.
		BaseRate float64 `yaml:"base_rate"`
		// SessionHours is how long a started mining session accrues.
		SessionHours int `yaml:"session_hours"`
		// PhaseRates enables the network-size phase schedule; when true
		// each sweep pass rederives the base rate from the phase table
		// and the roster size, overriding BaseRate.
		PhaseRates bool `yaml:"phase_rates"`
	} `yaml:"mining"`

	Claim struct {
		// PerMinute caps claim attempts per user.
		PerMinute int `yaml:"per_minute"`
		Burst     int `yaml:"burst"`
	} `yaml:"claim"`

	Sweep struct {
		Enabled bool `yaml:"enabled"`
		// Cron is a robfig/cron spec for the daily activity/claim sweep.
		Cron string `yaml:"cron"`
		// MinClaim is the smallest accrued amount the sweep will claim.
		MinClaim float64 `yaml:"min_claim"`
	} `yaml:"sweep"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Store.Backend = "memory"
	cfg.Mining.BaseRate = 0.00125
	cfg.Mining.SessionHours = 24
	cfg.Claim.PerMinute = 2
	cfg.Claim.Burst = 2
	cfg.Sweep.Enabled = true
	cfg.Sweep.Cron = "0 10 4 * * *"
	cfg.Sweep.MinClaim = 0.001
	cfg.Metrics.Addr = ":9109"
	return cfg
}

// Load reads config from a YAML file, then applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Store.Postgres.DSN = v
	}
	if v := os.Getenv("MINING_BASE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Mining.BaseRate = f
		}
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SWEEP_CRON"); v != "" {
		cfg.Sweep.Cron = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store backend redis requires store.redis.addr")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store backend postgres requires store.postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.Mining.BaseRate <= 0 {
		return fmt.Errorf("mining.base_rate must be positive, got %v", c.Mining.BaseRate)
	}
	if c.Mining.SessionHours <= 0 {
		return fmt.Errorf("mining.session_hours must be positive, got %d", c.Mining.SessionHours)
	}
	if c.Claim.PerMinute <= 0 {
		return fmt.Errorf("claim.per_minute must be positive, got %d", c.Claim.PerMinute)
	}
	return nil
}
