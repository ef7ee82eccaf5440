// Package config loads the session configuration from YAML with environment
// variable overrides for venue credentials.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

// Modes of a session.
const (
	ModeLive     = "live"
	ModePaper    = "paper"
	ModeBacktest = "backtest"
)

// Placeholder values that mean "not configured".
var placeholderKeys = map[string]struct{}{
	"":                {},
	"YOUR-API-KEY":    {},
	"YOUR-API-SECRET": {},
	"YOUR-WALLET":     {},
}

// Credentials hold the per-venue secret material. Centralized venues use
// Key/Secret, decentralized venues use Wallet (hex private key).
type Credentials struct {
	Key    string `yaml:"key,omitempty"`
	Secret string `yaml:"secret,omitempty"`
	Wallet string `yaml:"wallet,omitempty"`

	// Optional per-venue fee overrides (percent).
	MakerFee string `yaml:"maker_fee,omitempty"`
	TakerFee string `yaml:"taker_fee,omitempty"`
}

// Missing reports whether the credential is absent or a placeholder.
func (c Credentials) Missing() bool {
	if c.Wallet != "" {
		_, isPlaceholder := placeholderKeys[c.Wallet]
		return isPlaceholder
	}
	if _, ok := placeholderKeys[c.Key]; ok {
		return true
	}
	_, ok := placeholderKeys[c.Secret]
	return ok
}

// Config is the validated session configuration.
type Config struct {
	Venue   string
	Mode    string
	Symbols []string

	OrderType   domain.OrderType
	SlippagePct decimal.Decimal
	SettleDelay time.Duration
	Latency     time.Duration

	Future   bool
	Leverage int
	Isolated bool

	// Fee overrides in percent; zero means "use venue/credential rates".
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal

	// Starting balances for the simulator.
	Currency decimal.Decimal
	Asset    decimal.Decimal

	CatalogDir string
	JournalDir string
	StateDir   string

	Secrets map[string]Credentials
}

type configTmp struct {
	Venue   string   `yaml:"venue"`
	Mode    string   `yaml:"mode"`
	Symbols []string `yaml:"symbols"`

	OrderType   string        `yaml:"order_type,omitempty"`
	SlippagePct string        `yaml:"slippage_pct,omitempty"`
	SettleDelay time.Duration `yaml:"settle_delay,omitempty"`
	Latency     time.Duration `yaml:"latency,omitempty"`

	Future   bool `yaml:"future,omitempty"`
	Leverage int  `yaml:"leverage,omitempty"`
	Isolated bool `yaml:"isolated,omitempty"`

	MakerFee string `yaml:"maker_fee,omitempty"`
	TakerFee string `yaml:"taker_fee,omitempty"`

	Balance struct {
		Currency string `yaml:"currency"`
		Asset    string `yaml:"asset"`
	} `yaml:"balance,omitempty"`

	CatalogDir string `yaml:"catalog_dir,omitempty"`
	JournalDir string `yaml:"journal_dir,omitempty"`
	StateDir   string `yaml:"state_dir,omitempty"`

	Secrets map[string]Credentials `yaml:"secrets,omitempty"`
}

// Load reads and validates the YAML config at path.
func Load(path string) (*Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(payload, &tmp); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return fromTmp(tmp)
}

func fromTmp(tmp configTmp) (*Config, error) {
	if tmp.Venue == "" {
		return nil, fmt.Errorf("'venue' is required")
	}

	cfg := &Config{
		Venue:       tmp.Venue,
		Mode:        tmp.Mode,
		Symbols:     tmp.Symbols,
		SettleDelay: tmp.SettleDelay,
		Latency:     tmp.Latency,
		Future:      tmp.Future,
		Leverage:    tmp.Leverage,
		Isolated:    tmp.Isolated,
		CatalogDir:  tmp.CatalogDir,
		JournalDir:  tmp.JournalDir,
		StateDir:    tmp.StateDir,
		Secrets:     tmp.Secrets,
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePaper
	}
	switch cfg.Mode {
	case ModeLive, ModePaper, ModeBacktest:
	default:
		return nil, fmt.Errorf("invalid 'mode': %s", cfg.Mode)
	}

	switch tmp.OrderType {
	case "", string(domain.OrderTypeMaker):
		cfg.OrderType = domain.OrderTypeMaker
	case string(domain.OrderTypeTaker):
		cfg.OrderType = domain.OrderTypeTaker
	default:
		return nil, fmt.Errorf("invalid 'order_type': %s", tmp.OrderType)
	}

	var err error
	if cfg.SlippagePct, err = decimalOrDefault(tmp.SlippagePct, "0.045"); err != nil {
		return nil, fmt.Errorf("invalid 'slippage_pct': %w", err)
	}
	if cfg.MakerFee, err = decimalOrDefault(tmp.MakerFee, "0"); err != nil {
		return nil, fmt.Errorf("invalid 'maker_fee': %w", err)
	}
	if cfg.TakerFee, err = decimalOrDefault(tmp.TakerFee, "0"); err != nil {
		return nil, fmt.Errorf("invalid 'taker_fee': %w", err)
	}
	if cfg.Currency, err = decimalOrDefault(tmp.Balance.Currency, "1000"); err != nil {
		return nil, fmt.Errorf("invalid 'balance.currency': %w", err)
	}
	if cfg.Asset, err = decimalOrDefault(tmp.Balance.Asset, "0"); err != nil {
		return nil, fmt.Errorf("invalid 'balance.asset': %w", err)
	}

	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("'settle_delay' must not be negative")
	}
	if cfg.Secrets == nil {
		cfg.Secrets = make(map[string]Credentials)
	}
	applyEnvCredentials(cfg)

	return cfg, nil
}

// CredentialsFor resolves the credentials for a venue.
func (c *Config) CredentialsFor(venue string) Credentials {
	return c.Secrets[venue]
}

// applyEnvCredentials lets VENUE_API_KEY / VENUE_API_SECRET / VENUE_WALLET
// environment variables override the YAML secrets block.
func applyEnvCredentials(cfg *Config) {
	for _, venue := range []string{cfg.Venue, "binance", "bybit", "hyperliquid"} {
		prefix := strings.ToUpper(venue)
		creds := cfg.Secrets[venue]
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			creds.Key = v
		}
		if v := os.Getenv(prefix + "_API_SECRET"); v != "" {
			creds.Secret = v
		}
		if v := os.Getenv(prefix + "_WALLET"); v != "" {
			creds.Wallet = v
		}
		cfg.Secrets[venue] = creds
	}
}

func decimalOrDefault(s, def string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		s = def
	}
	return decimal.NewFromString(s)
}
