package config

import (
	"fmt"
	"os"
	"time"

	"remindme/internal/delivery"
	"remindme/internal/scheduler"
	"remindme/internal/storage"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full application configuration, loaded from a TOML file.
// Every section has a working default so the server runs with no config
// file at all (memory storage, log-only delivery).
type Config struct {
	Server    ServerConfig        `toml:"server"`
	Storage   storage.Config      `toml:"storage"`
	SMTP      delivery.SMTPConfig `toml:"smtp"`
	Scheduler scheduler.Config    `toml:"scheduler"`
	Limits    LimitsConfig        `toml:"limits"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// LimitsConfig tunes the HTTP middleware.
type LimitsConfig struct {
	RateLimit  int           `toml:"rate_limit"`
	RateWindow time.Duration `toml:"rate_window"`
	CacheTTL   time.Duration `toml:"cache_ttl"`
}

func Default() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8080"},
		Storage:   storage.Config{Backend: "memory"},
		Scheduler: scheduler.DefaultConfig(),
		Limits: LimitsConfig{
			RateLimit:  100,
			RateWindow: time.Minute,
			CacheTTL:   5 * time.Minute,
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
