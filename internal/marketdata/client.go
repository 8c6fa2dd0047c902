package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"tradedesk/internal/errors"
	"tradedesk/internal/logging"
	"tradedesk/internal/resilience"
	"tradedesk/pkg/utils"
)

const (
	providerName     = "coingecko"
	defaultBaseURL   = "https://api.coingecko.com/api/v3"
	defaultUserAgent = "tradedesk/1.0"
	maxResponseBytes = 4 << 20
)

// SimplePrice is one coin of a /simple/price response.
type SimplePrice struct {
	USD           float64 `json:"usd"`
	USDMarketCap  float64 `json:"usd_market_cap"`
	USD24hVol     float64 `json:"usd_24h_vol"`
	USD24hChange  float64 `json:"usd_24h_change"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}

// CoinMarket is one entry of a /coins/markets response.
type CoinMarket struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	CurrentPrice             float64 `json:"current_price"`
	MarketCap                float64 `json:"market_cap"`
	MarketCapRank            int     `json:"market_cap_rank"`
	TotalVolume              float64 `json:"total_volume"`
	PriceChange24h           float64 `json:"price_change_24h"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
	SparklineIn7d            *struct {
		Price []float64 `json:"price"`
	} `json:"sparkline_in_7d,omitempty"`
}

// ClientConfig holds configuration for the CoinGecko client.
type ClientConfig struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Limiter    *Limiter
	Breaker    *resilience.CircuitBreaker
	Retry      utils.RetryConfig
	Clock      clock.Clock
	Logger     zerolog.Logger
}

// CoinGeckoClient calls the public CoinGecko API. Every call waits for a
// limiter slot, is retried per the retry config and runs behind the
// circuit breaker.
type CoinGeckoClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *Limiter
	breaker   *resilience.CircuitBreaker
	retry     utils.RetryConfig
	clock     clock.Clock
	logger    zerolog.Logger
}

// NewCoinGeckoClient creates a client. Nil collaborators take defaults.
func NewCoinGeckoClient(cfg ClientConfig) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter(6*time.Second, cfg.Clock)
	}
	if cfg.Breaker == nil {
		bc := resilience.DefaultCircuitBreakerConfig()
		bc.Clock = cfg.Clock
		cfg.Breaker = resilience.NewCircuitBreaker(providerName, bc)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = utils.DefaultRetryConfig()
	}
	if cfg.Retry.Clock == nil {
		cfg.Retry.Clock = cfg.Clock
	}

	return &CoinGeckoClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      cfg.HTTPClient,
		limiter:   cfg.Limiter,
		breaker:   cfg.Breaker,
		retry:     cfg.Retry,
		clock:     cfg.Clock,
		logger:    logging.WithComponent(cfg.Logger, providerName),
	}
}

// SimplePrice fetches spot prices with 24h change, volume and market cap.
func (c *CoinGeckoClient) SimplePrice(ctx context.Context, ids []string) (map[string]SimplePrice, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")
	q.Set("include_market_cap", "true")
	q.Set("include_last_updated_at", "true")

	var out map[string]SimplePrice
	if err := c.get(ctx, "/simple/price", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Markets fetches market rows with 7 day sparklines.
func (c *CoinGeckoClient) Markets(ctx context.Context, ids []string) ([]CoinMarket, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", strings.Join(ids, ","))
	q.Set("order", "market_cap_desc")
	q.Set("per_page", "50")
	q.Set("page", "1")
	q.Set("sparkline", "true")
	q.Set("price_change_percentage", "24h")

	var out []CoinMarket
	if err := c.get(ctx, "/coins/markets", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping probes the API. The result is nil when the body is not a JSON object.
func (c *CoinGeckoClient) Ping(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/ping", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BreakerStats exposes the circuit breaker state.
func (c *CoinGeckoClient) BreakerStats() resilience.CircuitBreakerStats {
	return c.breaker.Stats()
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return utils.Retry(ctx, c.retry, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			return c.do(ctx, path, query, out)
		})
	})
}

func (c *CoinGeckoClient) do(ctx context.Context, path string, query url.Values, out any) (err error) {
	start := c.clock.Now()
	defer func() {
		logging.LogAPICall(c.logger, http.MethodGet, path, c.clock.Since(start), err)
	}()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewProviderError(providerName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		perr := errors.NewProviderError(providerName, resp.StatusCode, "rate limited", errors.ErrRateLimited)
		perr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn().Dur("retry_after", perr.RetryAfter).Str("endpoint", path).Msg("Rate limited by provider")
		return perr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewProviderError(providerName, resp.StatusCode, http.StatusText(resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.NewProviderError(providerName, resp.StatusCode, "read body", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewProviderError(providerName, resp.StatusCode, fmt.Sprintf("decode %s", path), err)
	}
	return nil
}

// parseRetryAfter reads a delay in seconds. Missing or malformed values return zero.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
