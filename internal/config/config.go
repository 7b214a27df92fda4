package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig carries every tunable of the gamesync daemon. Values come from
// an optional YAML file (GAMESYNC_CONFIG) overridden by the environment.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	RedisURL string `yaml:"redis_url"`

	BridgeWSURL string `yaml:"bridge_ws_url"`

	ChessComBaseURL string `yaml:"chesscom_base_url"`
	LichessBaseURL  string `yaml:"lichess_base_url"`

	FetchLimit        int `yaml:"fetch_limit"`
	FetchTimeoutSec   int `yaml:"fetch_timeout_sec"`
	BridgeMaxAttempts int `yaml:"bridge_max_attempts"`
}

// Load reads the YAML file when present, then applies environment overrides.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8090",
		ChessComBaseURL:   "https://api.chess.com",
		LichessBaseURL:    "https://lichess.org",
		FetchLimit:        20,
		FetchTimeoutSec:   10,
		BridgeMaxAttempts: 5,
	}

	if path := strings.TrimSpace(os.Getenv("GAMESYNC_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("BRIDGE_WS_URL")); v != "" {
		cfg.BridgeWSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHESSCOM_BASE_URL")); v != "" {
		cfg.ChessComBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL")); v != "" {
		cfg.LichessBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("FETCH_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FETCH_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BRIDGE_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BridgeMaxAttempts = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return cfg, nil
}
