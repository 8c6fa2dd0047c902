// Package config provides configuration management for the trading desk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tradedesk/internal/errors"
	"tradedesk/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Account       AccountConfig      `mapstructure:"account"`
	Trading       TradingConfig      `mapstructure:"trading"`
	MarketData    MarketDataConfig   `mapstructure:"market_data"`
	Poller        PollerConfig       `mapstructure:"poller"`
	Simulators    SimulatorConfig    `mapstructure:"simulators"`
	Server        ServerConfig       `mapstructure:"server"`
	Journal       JournalConfig      `mapstructure:"journal"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       logging.LogConfig  `mapstructure:"logging"`
	UI            UIConfig           `mapstructure:"ui"`
}

// AccountConfig holds the seed ledger of the simulated trader.
type AccountConfig struct {
	InitialCapital        float64 `mapstructure:"initial_capital"`
	BuyingPower           float64 `mapstructure:"buying_power"`
	DayTradingBuyingPower float64 `mapstructure:"day_trading_buying_power"`
	SeedHistory           bool    `mapstructure:"seed_history"`
}

// TradingConfig holds engine timing and commission settings.
type TradingConfig struct {
	CommissionRate  float64       `mapstructure:"commission_rate"`
	FeeFloor        float64       `mapstructure:"fee_floor"`
	FeeCap          float64       `mapstructure:"fee_cap"`
	MarketDelay     time.Duration `mapstructure:"market_delay"`
	CheckDelay      time.Duration `mapstructure:"check_delay"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	FillProbability float64       `mapstructure:"fill_probability"`
	DayOrderTTL     time.Duration `mapstructure:"day_order_ttl"`
	PriceSource     string        `mapstructure:"price_source"` // simulated, poller
}

// MarketDataConfig holds provider, cache and rate limit settings.
type MarketDataConfig struct {
	Policy            string        `mapstructure:"policy"` // live, synthetic, auto
	BaseURL           string        `mapstructure:"base_url"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	MinInterval       time.Duration `mapstructure:"min_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	DefaultRetryAfter time.Duration `mapstructure:"default_retry_after"`
	CryptoSymbols     []string      `mapstructure:"crypto_symbols"`
	BreakerFailures   int           `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
}

// PollerConfig holds market poller settings.
type PollerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// SimulatorConfig holds analytics and notification simulator settings.
type SimulatorConfig struct {
	AnalyticsEnabled     bool          `mapstructure:"analytics_enabled"`
	AnalyticsInterval    time.Duration `mapstructure:"analytics_interval"`
	NotificationsEnabled bool          `mapstructure:"notifications_enabled"`
	ConnectDelay         time.Duration `mapstructure:"connect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectSuccessRate float64       `mapstructure:"reconnect_success_rate"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// JournalConfig holds the event journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // ":memory:" keeps nothing past process life
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Level   string        `mapstructure:"level"` // all, trades_only, errors_only
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialCapital:        50000,
			BuyingPower:           200000,
			DayTradingBuyingPower: 200000,
			SeedHistory:           true,
		},
		Trading: TradingConfig{
			CommissionRate:  0.005,
			FeeFloor:        1,
			FeeCap:          10,
			MarketDelay:     time.Second,
			CheckDelay:      2 * time.Second,
			CheckInterval:   2 * time.Second,
			FillProbability: 0.3,
			DayOrderTTL:     24 * time.Hour,
			PriceSource:     "simulated",
		},
		MarketData: MarketDataConfig{
			Policy:            "auto",
			BaseURL:           "https://api.coingecko.com/api/v3",
			CacheTTL:          30 * time.Second,
			MinInterval:       6 * time.Second,
			MaxRetries:        3,
			RequestTimeout:    10 * time.Second,
			MaxBackoff:        10 * time.Second,
			DefaultRetryAfter: 60 * time.Second,
			CryptoSymbols:     []string{"BTC", "ETH", "SOL", "TRX", "ADA", "DOT", "MATIC"},
			BreakerFailures:   5,
			BreakerTimeout:    time.Minute,
		},
		Poller: PollerConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
		},
		Simulators: SimulatorConfig{
			AnalyticsEnabled:     true,
			AnalyticsInterval:    30 * time.Second,
			NotificationsEnabled: true,
			ConnectDelay:         time.Second,
			MaxReconnectAttempts: 5,
			ReconnectSuccessRate: 0.7,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			Mode:         "release",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    ":memory:",
		},
		Notifications: NotificationConfig{
			Enabled: false,
			Level:   "all",
		},
		Logging: logging.DefaultLogConfig(),
		UI: UIConfig{
			ColorEnabled: true,
			DateFormat:   "02-Jan-2006",
			TimeFormat:   "15:04:05",
		},
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/tradedesk"
	}
	return filepath.Join(home, ".config", "tradedesk")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A missing .env is not an error.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// First run: write the template and continue on defaults.
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADEDESK_MARKET_POLICY"); v != "" {
		cfg.MarketData.Policy = v
	}
	if v := os.Getenv("COINGECKO_BASE_URL"); v != "" {
		cfg.MarketData.BaseURL = v
	}
	if v := os.Getenv("TRADEDESK_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TRADEDESK_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("TRADEDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRADEDESK_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
	if v := os.Getenv("TRADEDESK_INITIAL_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Account.InitialCapital = f
		}
	}
}

// Validate validates the configuration. Failures wrap ErrConfigInvalid.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigInvalid, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}

	if c.Trading.CommissionRate < 0 || c.Trading.CommissionRate > 1 {
		return fmt.Errorf("commission_rate must be between 0 and 1")
	}
	if c.Trading.FeeFloor < 0 || c.Trading.FeeCap < c.Trading.FeeFloor {
		return fmt.Errorf("fee_floor must be non-negative and not exceed fee_cap")
	}
	if c.Trading.FillProbability < 0 || c.Trading.FillProbability > 1 {
		return fmt.Errorf("fill_probability must be between 0 and 1")
	}
	if c.Trading.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive")
	}
	switch c.Trading.PriceSource {
	case "", "simulated", "poller":
	default:
		return fmt.Errorf("invalid price_source: %s (must be 'simulated' or 'poller')", c.Trading.PriceSource)
	}

	switch c.MarketData.Policy {
	case "", "live", "synthetic", "auto":
	default:
		return fmt.Errorf("invalid market data policy: %s (must be 'live', 'synthetic' or 'auto')", c.MarketData.Policy)
	}
	if c.MarketData.CacheTTL < 0 || c.MarketData.MinInterval < 0 {
		return fmt.Errorf("cache_ttl and min_interval must be non-negative")
	}
	if c.MarketData.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}

	if c.Poller.Enabled && c.Poller.Interval <= 0 {
		return fmt.Errorf("poller interval must be positive")
	}
	if c.Simulators.ReconnectSuccessRate < 0 || c.Simulators.ReconnectSuccessRate > 1 {
		return fmt.Errorf("reconnect_success_rate must be between 0 and 1")
	}

	switch c.Notifications.Level {
	case "", "all", "trades_only", "errors_only":
	default:
		return fmt.Errorf("invalid notification level: %s", c.Notifications.Level)
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("webhook url required when webhook notifications are enabled")
	}

	return nil
}

// UsesPollerPrices returns true if the engine quotes from the market poller.
func (c *Config) UsesPollerPrices() bool {
	return c.Trading.PriceSource == "poller"
}
