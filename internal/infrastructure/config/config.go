package config

import (
	"errors"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		ReviewEveryMin int `toml:"review_every_min"`
	} `toml:"app"`

	SQLite struct {
		Path string `toml:"path"`
	} `toml:"sqlite"`

	Redis struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
	} `toml:"redis"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`

	Upstream struct {
		BaseURL         string `toml:"base_url"`
		Currency        string `toml:"currency"`
		FetchTimeoutSec int    `toml:"fetch_timeout_sec"`
	} `toml:"upstream"`

	Cache struct {
		BatchSize         int      `toml:"batch_size"`
		ListTTLMin        int      `toml:"list_ttl_min"`
		ChartTTLMin       int      `toml:"chart_ttl_min"`
		RefreshEveryMin   int      `toml:"refresh_every_min"`
		ScheduledRateKeys []string `toml:"scheduled_rate_keys"` // e.g. "rate:USD:EUR"
	} `toml:"cache"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.ReviewEveryMin <= 0 {
		cfg.App.ReviewEveryMin = 5
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/folio.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "folio"
	}
	if cfg.Upstream.FetchTimeoutSec <= 0 {
		cfg.Upstream.FetchTimeoutSec = 10
	}
	if cfg.Upstream.Currency == "" {
		cfg.Upstream.Currency = "usd"
	}
	if cfg.Cache.BatchSize <= 0 {
		cfg.Cache.BatchSize = 50
	}
	if cfg.Cache.ListTTLMin <= 0 {
		cfg.Cache.ListTTLMin = 10
	}
	if cfg.Cache.ChartTTLMin <= 0 {
		cfg.Cache.ChartTTLMin = 60
	}
	if cfg.Cache.RefreshEveryMin <= 0 {
		cfg.Cache.RefreshEveryMin = 60
	}
}

func validate(cfg *Config) error {
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	cfg.Cache.ScheduledRateKeys = normalizeKeys(cfg.Cache.ScheduledRateKeys)
	return nil
}

func normalizeKeys(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, k := range in {
		t := strings.TrimSpace(k)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
