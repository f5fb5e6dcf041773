package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvDBPath     = "LEDGER_DB_PATH"
	EnvAddr       = "LEDGER_ADDR"
	EnvLogLevel   = "LEDGER_LOG_LEVEL"
	EnvLogPretty  = "LEDGER_LOG_PRETTY"
	EnvAlwaysOpen = "LEDGER_ALWAYS_OPEN"
)

// Load reads path (or starts from Default when path is empty), then
// applies a .env file if one exists and the LEDGER_* environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = readFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := getEnv(EnvDBPath, ""); v != "" {
		c.Store.Type = "sqlite"
		c.Store.DBPath = v
	}
	c.Server.Addr = getEnv(EnvAddr, c.Server.Addr)
	c.Log.Level = getEnv(EnvLogLevel, c.Log.Level)
	c.Log.Pretty = getEnvAsBool(EnvLogPretty, c.Log.Pretty)
	c.Session.AlwaysOpen = getEnvAsBool(EnvAlwaysOpen, c.Session.AlwaysOpen)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
