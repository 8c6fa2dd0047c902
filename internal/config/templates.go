package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# tradedesk configuration

[account]
# Seed capital of the simulated trader
initial_capital = 50000.0
buying_power = 200000.0
day_trading_buying_power = 200000.0
# Load the three historical demo trades on start
seed_history = true

[trading]
# Commission: max(min(value * rate, fee_cap), fee_floor)
commission_rate = 0.005
fee_floor = 1.0
fee_cap = 10.0
# Simulated exchange latency for market orders
market_delay = "1s"
# First check of resting orders after placement, then every check_interval
check_delay = "2s"
check_interval = "2s"
# Probability that a resting limit order fills on a check
fill_probability = 0.3
day_order_ttl = "24h"
# Price source for executions: simulated, poller
price_source = "simulated"

[market_data]
# Data source policy: live, synthetic, auto
policy = "auto"
base_url = "https://api.coingecko.com/api/v3"
cache_ttl = "30s"
# Minimum spacing between provider calls
min_interval = "6s"
max_retries = 3
request_timeout = "10s"
max_backoff = "10s"
default_retry_after = "60s"
crypto_symbols = ["BTC", "ETH", "SOL", "TRX", "ADA", "DOT", "MATIC"]
breaker_failures = 5
breaker_timeout = "1m"

[poller]
enabled = true
interval = "5s"

[simulators]
analytics_enabled = true
analytics_interval = "30s"
notifications_enabled = true
connect_delay = "1s"
max_reconnect_attempts = 5
reconnect_success_rate = 0.7

[server]
addr = ":8080"
# gin mode: debug, release, test
mode = "release"
read_timeout = "15s"
write_timeout = "15s"

[journal]
enabled = true
# ":memory:" keeps the journal for the life of the process only
path = ":memory:"

[notifications]
enabled = false
# Notification level: all, trades_only, errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""

[logging]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30

[ui]
# Enable colored output
color_enabled = true
date_format = "02-Jan-2006"
time_format = "15:04:05"
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// TemplatePath returns where the config template lives for configDir.
func TemplatePath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
