package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for ammd.
type Config struct {
	ListenAddress   string          `yaml:"listen"`
	DatabasePath    string          `yaml:"database"`
	OperatorAccount string          `yaml:"operator_account"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	Tokens          []TokenConfig   `yaml:"tokens"`
	Pools           []PairConfig    `yaml:"pools"`
	Fees            FeeConfig       `yaml:"fees"`
	MaxSlippagePct  float64         `yaml:"max_slippage_pct"`
	RecencyWindow   Duration        `yaml:"recency_window"`
	AnchorSymbols   []string        `yaml:"anchors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles the mutating endpoints per client. A zero
// requests_per_minute leaves them unthrottled.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LedgerConfig points at the external asset-ledger API.
type LedgerConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// TokenConfig describes one registry entry.
type TokenConfig struct {
	ID           uint32 `yaml:"id"`
	Symbol       string `yaml:"symbol"`
	Name         string `yaml:"name"`
	Address      string `yaml:"address"`
	Decimals     uint8  `yaml:"decimals"`
	NetworkFee   string `yaml:"network_fee"`
	SupportsPull bool   `yaml:"supports_pull"`
}

// PairConfig names a pool to ensure at startup.
type PairConfig struct {
	Base  string `yaml:"base"`
	Quote string `yaml:"quote"`
}

// FeeConfig sets the default fee parameters applied to new pools.
type FeeConfig struct {
	RateBps          uint16 `yaml:"rate_bps"`
	ProtocolShareBps uint16 `yaml:"protocol_share_bps"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7082"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/ammd.sqlite"
	}
	if cfg.Ledger.Timeout.Duration == 0 {
		cfg.Ledger.Timeout.Duration = 10 * time.Second
	}
	if cfg.Fees.RateBps == 0 {
		cfg.Fees.RateBps = 30
	}
	if cfg.MaxSlippagePct <= 0 {
		cfg.MaxSlippagePct = 2
	}
	if cfg.RecencyWindow.Duration == 0 {
		cfg.RecencyWindow.Duration = 10 * time.Minute
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.OperatorAccount) == "" {
		return fmt.Errorf("operator account must be configured")
	}
	if strings.TrimSpace(cfg.Ledger.Endpoint) == "" {
		return fmt.Errorf("ledger endpoint must be configured")
	}
	if len(cfg.Tokens) < 2 {
		return fmt.Errorf("at least two tokens must be configured")
	}
	if cfg.Fees.ProtocolShareBps > cfg.Fees.RateBps {
		return fmt.Errorf("protocol fee share cannot exceed the fee rate")
	}
	seenIDs := make(map[uint32]struct{}, len(cfg.Tokens))
	seenSymbols := make(map[string]struct{}, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("token %d missing symbol", token.ID)
		}
		if _, dup := seenIDs[token.ID]; dup {
			return fmt.Errorf("duplicate token id %d", token.ID)
		}
		if _, dup := seenSymbols[symbol]; dup {
			return fmt.Errorf("duplicate token symbol %s", symbol)
		}
		seenIDs[token.ID] = struct{}{}
		seenSymbols[symbol] = struct{}{}
	}
	for _, anchor := range cfg.AnchorSymbols {
		symbol := strings.ToUpper(strings.TrimSpace(anchor))
		if _, ok := seenSymbols[symbol]; !ok {
			return fmt.Errorf("anchor %s is not a configured token", anchor)
		}
	}
	for _, pair := range cfg.Pools {
		base := strings.ToUpper(strings.TrimSpace(pair.Base))
		quote := strings.ToUpper(strings.TrimSpace(pair.Quote))
		if base == quote {
			return fmt.Errorf("pool %s/%s pairs a token with itself", pair.Base, pair.Quote)
		}
		if _, ok := seenSymbols[base]; !ok {
			return fmt.Errorf("pool base %s is not a configured token", pair.Base)
		}
		if _, ok := seenSymbols[quote]; !ok {
			return fmt.Errorf("pool quote %s is not a configured token", pair.Quote)
		}
	}
	return nil
}
