// Package config loads runtime settings from the environment. A .env file
// in the working directory is applied first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// DatabaseDSN is the postgres connection string for the persistence
	// collaborator. Empty selects the in-memory store.
	DatabaseDSN string

	// SessionTimeout is how long a session may go without polling before
	// the sweeper evicts it.
	SessionTimeout time.Duration

	// SweepInterval is how often the idle sweeper scans.
	SweepInterval time.Duration

	// MatchRequireMaps makes a NoMap slot block match start. When false,
	// NoMap occupants sit the round out.
	MatchRequireMaps bool

	// ChannelEchoSender includes the author in chat fan-out.
	ChannelEchoSender bool

	// Debug switches zap to development output.
	Debug bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:              getenv("BANCHOD_ADDR", ":8080"),
		DatabaseDSN:       getenv("BANCHOD_DATABASE_DSN", ""),
		MatchRequireMaps:  getbool("BANCHOD_MATCH_REQUIRE_MAPS", true),
		ChannelEchoSender: getbool("BANCHOD_CHANNEL_ECHO_SENDER", false),
		Debug:             getbool("BANCHOD_DEBUG", false),
	}

	var err error
	if cfg.SessionTimeout, err = getdur("BANCHOD_SESSION_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getdur("BANCHOD_SWEEP_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SweepInterval <= 0 || cfg.SessionTimeout <= 0 {
		return nil, fmt.Errorf("config: timeout and interval must be positive")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getdur(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
