package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"

	"tradedesk/internal/errors"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/resilience"
)

const defaultServerURL = "http://127.0.0.1:8080"

// APIError is a non-success response from the desk API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// Client talks to a running `tradedesk serve`.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultServerURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// TradeQuery filters the trades listing.
type TradeQuery struct {
	Symbol string `url:"symbol,omitempty"`
	Limit  int    `url:"limit,omitempty"`
}

type orderQuery struct {
	Status string `url:"status,omitempty"`
}

type marketQuery struct {
	Symbols string `url:"symbols,omitempty"`
}

// PlaceOrder submits an order. A rejected order is not an error: the
// result carries the reason.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	var res models.OrderResult
	err := c.do(ctx, http.MethodPost, "/v1/orders", nil, req, &res, http.StatusUnprocessableEntity)
	return res, err
}

// CancelOrder cancels a pending order. Unknown and finished orders come
// back as unsuccessful results.
func (c *Client) CancelOrder(ctx context.Context, id string) (models.OrderResult, error) {
	var res models.OrderResult
	err := c.do(ctx, http.MethodDelete, "/v1/orders/"+url.PathEscape(id), nil, nil, &res,
		http.StatusNotFound, http.StatusUnprocessableEntity)
	return res, err
}

// GetOrder fetches one order.
func (c *Client) GetOrder(ctx context.Context, id string) (models.Order, error) {
	var o models.Order
	err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(id), nil, nil, &o)
	return o, err
}

// ListOrders lists orders, optionally filtered by status.
func (c *Client) ListOrders(ctx context.Context, status string) ([]models.Order, error) {
	var out []models.Order
	err := c.do(ctx, http.MethodGet, "/v1/orders", orderQuery{Status: status}, nil, &out)
	return out, err
}

// Trades lists executed trades, newest first.
func (c *Client) Trades(ctx context.Context, q TradeQuery) ([]models.Trade, error) {
	var out []models.Trade
	err := c.do(ctx, http.MethodGet, "/v1/trades", q, nil, &out)
	return out, err
}

// Positions lists open positions.
func (c *Client) Positions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	err := c.do(ctx, http.MethodGet, "/v1/positions", nil, nil, &out)
	return out, err
}

// Account fetches the account ledger.
func (c *Client) Account(ctx context.Context) (models.Account, error) {
	var out models.Account
	err := c.do(ctx, http.MethodGet, "/v1/account", nil, nil, &out)
	return out, err
}

// Stats fetches the trading statistics.
func (c *Client) Stats(ctx context.Context) (models.TradingStats, error) {
	var out models.TradingStats
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, nil, &out)
	return out, err
}

// Market fetches market records. With no symbols it returns the full
// traditional plus crypto set.
func (c *Client) Market(ctx context.Context, symbols []string) ([]models.MarketDatum, error) {
	var out []models.MarketDatum
	err := c.do(ctx, http.MethodGet, "/v1/market", marketQuery{Symbols: strings.Join(symbols, ",")}, nil, &out)
	return out, err
}

// MarketHealth probes the market data provider through the API.
func (c *Client) MarketHealth(ctx context.Context) (models.APIHealth, error) {
	var out models.APIHealth
	err := c.do(ctx, http.MethodGet, "/v1/market/health", nil, nil, &out)
	return out, err
}

// CacheStats describes the market data cache.
func (c *Client) CacheStats(ctx context.Context) (models.CacheStats, error) {
	var out models.CacheStats
	err := c.do(ctx, http.MethodGet, "/v1/market/cache", nil, nil, &out)
	return out, err
}

// ClearCache empties the market data cache.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/market/cache", nil, nil, nil)
}

// Instruments fetches the poller snapshot.
func (c *Client) Instruments(ctx context.Context) (marketdata.PriceUpdate, error) {
	var out marketdata.PriceUpdate
	err := c.do(ctx, http.MethodGet, "/v1/instruments", nil, nil, &out)
	return out, err
}

// Watchlist fetches the watchlist.
func (c *Client) Watchlist(ctx context.Context) ([]models.WatchlistItem, error) {
	var out []models.WatchlistItem
	err := c.do(ctx, http.MethodGet, "/v1/watchlist", nil, nil, &out)
	return out, err
}

// AddToWatchlist adds symbol and returns the new watchlist.
func (c *Client) AddToWatchlist(ctx context.Context, symbol string) ([]models.WatchlistItem, error) {
	var out []models.WatchlistItem
	body := map[string]string{"symbol": symbol}
	err := c.do(ctx, http.MethodPost, "/v1/watchlist", nil, body, &out)
	return out, err
}

// RemoveFromWatchlist removes symbol and returns the new watchlist.
func (c *Client) RemoveFromWatchlist(ctx context.Context, symbol string) ([]models.WatchlistItem, error) {
	var out []models.WatchlistItem
	err := c.do(ctx, http.MethodDelete, "/v1/watchlist/"+url.PathEscape(symbol), nil, nil, &out)
	return out, err
}

// Health fetches the aggregated health report. An unhealthy desk is
// reported in the result, not as an error.
func (c *Client) Health(ctx context.Context) (resilience.SystemHealth, error) {
	var out resilience.SystemHealth
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out, http.StatusServiceUnavailable)
	return out, err
}

// do sends a request and decodes the JSON response into out. Statuses in
// accept are decoded like successes.
func (c *Client) do(ctx context.Context, method, path string, params, body, out any, accept ...int) error {
	u := c.baseURL + path
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return errors.Wrap(err, "encoding query")
		}
		if enc := v.Encode(); enc != "" {
			u += "?" + enc
		}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}

	if resp.StatusCode >= http.StatusBadRequest && !accepted(resp.StatusCode, accept) {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

func accepted(status int, accept []int) bool {
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}
