package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rustyeddy/ledger/market"
	"github.com/rustyeddy/ledger/risk"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete ledger service configuration.
type Config struct {
	Store     StoreConfig     `json:"store" yaml:"store"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Policy    PolicyConfig    `json:"policy" yaml:"policy"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Accounts  []AccountSeed   `json:"accounts,omitempty" yaml:"accounts,omitempty"`
	Stocks    []StockSeed     `json:"stocks,omitempty" yaml:"stocks,omitempty"`
}

type StoreConfig struct {
	Type   string `json:"type" yaml:"type"` // "memory" or "sqlite"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr"`
	TradeRate   float64  `json:"trade_rate" yaml:"trade_rate"` // trades per second, 0 disables limiting
	TradeBurst  int      `json:"trade_burst" yaml:"trade_burst"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// SessionConfig describes the trading calendar. Open and Close use
// "15:04", holidays "2006-01-02", both in Timezone.
type SessionConfig struct {
	Timezone   string   `json:"timezone" yaml:"timezone"`
	Open       string   `json:"open" yaml:"open"`
	Close      string   `json:"close" yaml:"close"`
	Holidays   []string `json:"holidays,omitempty" yaml:"holidays,omitempty"`
	AlwaysOpen bool     `json:"always_open" yaml:"always_open"`
}

type PolicyConfig struct {
	PriceCollar string `json:"price_collar" yaml:"price_collar"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// VolumeReset overrides the cron spec of the daily volume reset.
	// Empty means weekdays at session open.
	VolumeReset string `json:"volume_reset,omitempty" yaml:"volume_reset,omitempty"`
}

// AccountSeed is an account created at startup if it does not exist.
type AccountSeed struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Currency string `json:"currency" yaml:"currency"`
	Cash     string `json:"cash" yaml:"cash"`
}

// StockSeed registers a stock and publishes its initial quote.
type StockSeed struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Sector string `json:"sector" yaml:"sector"`
	Price  string `json:"price" yaml:"price"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON).
// Settings missing from the file keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("store.db_path required for sqlite store")
		}
	default:
		return fmt.Errorf("store.type must be 'memory' or 'sqlite'")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.TradeRate < 0 {
		return fmt.Errorf("server.trade_rate must not be negative")
	}
	if c.Server.TradeRate > 0 && c.Server.TradeBurst <= 0 {
		return fmt.Errorf("server.trade_burst must be positive when trade_rate is set")
	}

	if _, err := c.MarketSession(); err != nil {
		return err
	}
	if _, err := c.RiskPolicy(); err != nil {
		return err
	}

	accounts := make(map[string]bool)
	for i, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[%d].id is required", i)
		}
		if accounts[a.ID] {
			return fmt.Errorf("accounts[%d]: duplicate id %q", i, a.ID)
		}
		accounts[a.ID] = true
		if a.Currency == "" {
			return fmt.Errorf("accounts[%d].currency is required", i)
		}
		cash, err := decimal.NewFromString(a.Cash)
		if err != nil || cash.IsNegative() {
			return fmt.Errorf("accounts[%d].cash must be a non-negative decimal", i)
		}
	}

	stocks := make(map[string]bool)
	for i, s := range c.Stocks {
		if s.Symbol == "" {
			return fmt.Errorf("stocks[%d].symbol is required", i)
		}
		if stocks[s.Symbol] {
			return fmt.Errorf("stocks[%d]: duplicate symbol %q", i, s.Symbol)
		}
		stocks[s.Symbol] = true
		price, err := decimal.NewFromString(s.Price)
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("stocks[%d].price must be a positive decimal", i)
		}
	}
	return nil
}

// MarketSession builds the trading calendar.
func (c *Config) MarketSession() (market.Session, error) {
	s := c.Session
	return market.ParseSession(s.Timezone, s.Open, s.Close, s.Holidays, s.AlwaysOpen)
}

// RiskPolicy builds the validator policy. An empty collar uses the default.
func (c *Config) RiskPolicy() (risk.Policy, error) {
	p := risk.DefaultPolicy()
	if c.Policy.PriceCollar == "" {
		return p, nil
	}
	collar, err := decimal.NewFromString(c.Policy.PriceCollar)
	if err != nil || collar.IsNegative() {
		return risk.Policy{}, fmt.Errorf("policy.price_collar must be a non-negative decimal")
	}
	p.PriceCollar = collar
	return p, nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Type:   "sqlite",
			DBPath: "./ledger.db",
		},
		Server: ServerConfig{
			Addr:       ":8080",
			TradeRate:  50,
			TradeBurst: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Session: SessionConfig{
			Timezone: "America/New_York",
			Open:     "09:30",
			Close:    "16:00",
		},
		Policy: PolicyConfig{
			PriceCollar: "0.10",
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
		},
	}
}
