package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is assembled from an optional yaml file plus the environment.
// Credentials come from the environment only (BACKPACK_API_KEY,
// BACKPACK_API_SECRET); a .env file is loaded best-effort first.
type Config struct {
	APIKey     string      `yaml:"-"`
	APISecret  string      `yaml:"-"`
	BaseURL    string      `yaml:"base_url"`
	Symbol     string      `yaml:"symbol"`
	QuoteAsset string      `yaml:"quote_asset"`
	Exchange   HTTPConfig  `yaml:"exchange"`
	Risk       RiskConfig  `yaml:"risk"`
	State      StateConfig `yaml:"state"`
}

type HTTPConfig struct {
	WindowMs           int64 `yaml:"window_ms"`
	HTTPTimeoutSec     int64 `yaml:"http_timeout_sec"`
	RefreshIntervalSec int64 `yaml:"refresh_interval_sec"`
}

type RiskConfig struct {
	MaxPositionSize Decimal `yaml:"max_position_size"`
	RiskPercentage  Decimal `yaml:"risk_percentage"`
	BlockOnNoEquity bool    `yaml:"block_on_no_equity"`
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the optional yaml file at path (empty path skips it), overlays
// the environment, and validates. Missing credentials are a fatal
// configuration error surfaced here, before any request is made.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			if err == nil {
				return Config{}, fmt.Errorf("config must contain a single YAML document")
			}
			return Config{}, err
		}
	}

	cfg.APIKey = os.Getenv("BACKPACK_API_KEY")
	cfg.APISecret = os.Getenv("BACKPACK_API_SECRET")
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("DEFAULT_SYMBOL"); v != "" {
		cfg.Symbol = v
	}

	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.APISecret = strings.TrimSpace(c.APISecret)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.QuoteAsset = strings.ToUpper(strings.TrimSpace(c.QuoteAsset))
	c.State.Dir = strings.TrimSpace(c.State.Dir)
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.backpack.exchange"
	}
	if c.Symbol == "" {
		c.Symbol = "SOL_USDC"
	}
	if c.QuoteAsset == "" {
		if _, quote, ok := SplitSymbol(c.Symbol); ok {
			c.QuoteAsset = quote
		} else {
			c.QuoteAsset = "USDC"
		}
	}
	if c.Exchange.WindowMs == 0 {
		c.Exchange.WindowMs = 5000
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 10
	}
	if c.Exchange.RefreshIntervalSec == 0 {
		c.Exchange.RefreshIntervalSec = 10
	}
	if c.Risk.MaxPositionSize.Cmp(decimal.Zero) == 0 {
		c.Risk.MaxPositionSize = Decimal{decimal.NewFromInt(1000)}
	}
	if c.Risk.RiskPercentage.Cmp(decimal.Zero) == 0 {
		c.Risk.RiskPercentage = Decimal{decimal.NewFromInt(2)}
	}
}

func (c Config) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("BACKPACK_API_KEY and BACKPACK_API_SECRET are required")
	}
	if err := validateURL(c.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("base_url %v", err)
	}
	if !isValidSymbol(c.Symbol) {
		return fmt.Errorf("symbol must look like BASE_QUOTE, e.g. SOL_USDC")
	}
	if c.Exchange.WindowMs < 1 || c.Exchange.WindowMs > 60000 {
		return fmt.Errorf("exchange.window_ms must be between 1 and 60000")
	}
	if c.Exchange.HTTPTimeoutSec < 1 || c.Exchange.HTTPTimeoutSec > 120 {
		return fmt.Errorf("exchange.http_timeout_sec must be between 1 and 120")
	}
	if c.Exchange.RefreshIntervalSec < 0 || c.Exchange.RefreshIntervalSec > 3600 {
		return fmt.Errorf("exchange.refresh_interval_sec must be between 0 and 3600")
	}
	if c.Risk.MaxPositionSize.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("risk.max_position_size must be > 0")
	}
	if c.Risk.RiskPercentage.Cmp(decimal.Zero) <= 0 || c.Risk.RiskPercentage.Cmp(decimal.NewFromInt(100)) > 0 {
		return fmt.Errorf("risk.risk_percentage must be in (0, 100]")
	}
	return nil
}

// SplitSymbol breaks a BASE_QUOTE pair into its assets.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	parts := strings.Split(symbol, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func isValidSymbol(v string) bool {
	_, _, ok := SplitSymbol(v)
	return ok
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
