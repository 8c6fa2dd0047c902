package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tradedesk/internal/errors"
	"tradedesk/internal/logging"
	"tradedesk/internal/models"
)

// SourcePolicy selects where market records come from.
type SourcePolicy string

const (
	// PolicyAuto serves fresh cache entries, otherwise fetches, falling back
	// to stale entries and then synthetic records.
	PolicyAuto SourcePolicy = "auto"
	// PolicyLive always refetches; failures fall back like PolicyAuto.
	PolicyLive SourcePolicy = "live"
	// PolicySynthetic never calls the provider.
	PolicySynthetic SourcePolicy = "synthetic"
)

// Valid reports whether the policy is known.
func (p SourcePolicy) Valid() bool {
	switch p {
	case PolicyAuto, PolicyLive, PolicySynthetic:
		return true
	}
	return false
}

// DefaultCryptoSymbols are fetched by GetAllMarketData.
var DefaultCryptoSymbols = []string{"BTC", "ETH", "SOL", "TRX", "ADA", "DOT", "MATIC"}

// Feed is the provider API used by the service.
type Feed interface {
	SimplePrice(ctx context.Context, ids []string) (map[string]SimplePrice, error)
	Markets(ctx context.Context, ids []string) ([]CoinMarket, error)
	Ping(ctx context.Context) (map[string]any, error)
}

type cryptoPayload struct {
	Prices map[string]SimplePrice
	Coins  []CoinMarket
}

// ServiceConfig holds configuration for the market data service.
type ServiceConfig struct {
	Policy        SourcePolicy
	Feed          Feed
	Synthetic     *SyntheticSource
	CacheTTL      time.Duration
	CryptoSymbols []string
	Clock         clock.Clock
	Logger        zerolog.Logger
}

// Service returns normalized market records. It never fails: provider
// errors degrade to stale cache entries and then to synthetic records,
// each tagged with its source.
type Service struct {
	policy        SourcePolicy
	feed          Feed
	synthetic     *SyntheticSource
	cache         *Cache[cryptoPayload]
	cryptoSymbols []string
	clock         clock.Clock
	logger        zerolog.Logger
}

// NewService creates a market data service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if !cfg.Policy.Valid() {
		cfg.Policy = PolicyAuto
	}
	if cfg.Feed == nil {
		cfg.Policy = PolicySynthetic
	}
	if cfg.Synthetic == nil {
		cfg.Synthetic = NewSyntheticSource(cfg.Clock, nil)
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if len(cfg.CryptoSymbols) == 0 {
		cfg.CryptoSymbols = DefaultCryptoSymbols
	}
	logger := logging.WithComponent(cfg.Logger, "market-data")

	return &Service{
		policy:        cfg.Policy,
		feed:          cfg.Feed,
		synthetic:     cfg.Synthetic,
		cache:         NewCache[cryptoPayload](cfg.CacheTTL, cfg.Clock, logger),
		cryptoSymbols: cfg.CryptoSymbols,
		clock:         cfg.Clock,
		logger:        logger,
	}
}

// Policy returns the active source policy.
func (s *Service) Policy() SourcePolicy {
	return s.policy
}

// GetLiveCryptoData returns one record per requested symbol in request
// order. An empty request uses the configured crypto symbols.
func (s *Service) GetLiveCryptoData(ctx context.Context, symbols []string) []models.MarketDatum {
	if len(symbols) == 0 {
		symbols = s.cryptoSymbols
	}
	if s.policy == PolicySynthetic {
		return s.synthetic.CryptoAll(symbols)
	}

	ids := coinIDsFor(symbols)
	if len(ids) == 0 {
		s.logger.Debug().Strs("symbols", symbols).Msg("No mapped symbols, serving synthetic data")
		return s.synthetic.CryptoAll(symbols)
	}

	key := "crypto-" + strings.Join(ids, ",")
	if s.policy == PolicyLive {
		s.cache.Expire(key)
	}

	payload, outcome, err := s.cache.Fetch(ctx, key, func(ctx context.Context) (cryptoPayload, error) {
		return s.fetchCrypto(ctx, ids)
	})
	if err != nil {
		s.logger.Warn().Err(err).Strs("symbols", symbols).Msg("Market data unavailable, serving synthetic data")
		return s.synthetic.CryptoAll(symbols)
	}

	source := models.SourceLive
	if outcome == OutcomeStale {
		source = models.SourceDegraded
	}
	return s.normalize(payload, symbols, source)
}

func (s *Service) fetchCrypto(ctx context.Context, ids []string) (cryptoPayload, error) {
	prices, err := s.feed.SimplePrice(ctx, ids)
	if err != nil {
		return cryptoPayload{}, errors.Wrap(err, "fetch prices")
	}
	coins, err := s.feed.Markets(ctx, ids)
	if err != nil {
		return cryptoPayload{}, errors.Wrap(err, "fetch markets")
	}
	return cryptoPayload{Prices: prices, Coins: coins}, nil
}

// normalize maps provider data onto requested symbols. Symbols without
// both a price row and a market row take the synthetic record.
func (s *Service) normalize(p cryptoPayload, symbols []string, source models.DataSource) []models.MarketDatum {
	coins := make(map[string]CoinMarket, len(p.Coins))
	for _, c := range p.Coins {
		coins[c.ID] = c
	}

	out := make([]models.MarketDatum, 0, len(symbols))
	for _, sym := range symbols {
		id, ok := CoinID(sym)
		if !ok {
			out = append(out, s.synthetic.Crypto(sym))
			continue
		}
		price, hasPrice := p.Prices[id]
		coin, hasCoin := coins[id]
		if !hasPrice || !hasCoin {
			out = append(out, s.synthetic.Crypto(sym))
			continue
		}

		var raw []float64
		if coin.SparklineIn7d != nil {
			raw = coin.SparklineIn7d.Price
		}
		updated := s.clock.Now()
		if price.LastUpdatedAt > 0 {
			updated = time.Unix(price.LastUpdatedAt, 0).UTC()
		}
		name := coin.Name
		if name == "" {
			name = sym
		}

		// usd_24h_change is a percentage; the absolute move comes from the
		// markets endpoint or is derived from the pre-change price.
		px := firstNonZero(price.USD, coin.CurrentPrice)
		pct := firstNonZero(price.USD24hChange, coin.PriceChangePercentage24h)
		change := coin.PriceChange24h
		if change == 0 {
			change = changeFromPercent(px, pct)
		}

		out = append(out, models.MarketDatum{
			Symbol:           sym,
			Name:             name,
			Price:            px,
			Change24h:        change,
			ChangePercent24h: pct,
			Volume24h:        firstNonZero(price.USD24hVol, coin.TotalVolume),
			MarketCap:        firstNonZero(price.USDMarketCap, coin.MarketCap),
			Sparkline:        NormalizeSparkline(raw),
			LastUpdated:      updated,
			Source:           source,
		})
	}
	return out
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// changeFromPercent returns the absolute move that takes the pre-change
// price to price when it is pct percent of that pre-change price.
func changeFromPercent(price, pct float64) float64 {
	if 100+pct == 0 {
		return 0
	}
	return price * pct / (100 + pct)
}

func coinIDsFor(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		id, ok := CoinID(sym)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// GetTraditionalAssets returns the synthetic index, forex and commodity records.
func (s *Service) GetTraditionalAssets() []models.MarketDatum {
	return s.synthetic.Traditional()
}

// GetAllMarketData returns traditional assets followed by the configured
// crypto symbols. Both halves are gathered concurrently.
func (s *Service) GetAllMarketData(ctx context.Context) []models.MarketDatum {
	var traditional, crypto []models.MarketDatum

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		traditional = s.GetTraditionalAssets()
		return nil
	})
	g.Go(func() error {
		crypto = s.GetLiveCryptoData(gctx, s.cryptoSymbols)
		return nil
	})
	_ = g.Wait()

	out := make([]models.MarketDatum, 0, len(traditional)+len(crypto))
	out = append(out, traditional...)
	return append(out, crypto...)
}

// Quote returns the current price of symbol from the market records.
func (s *Service) Quote(ctx context.Context, symbol string) (float64, error) {
	for _, d := range s.GetTraditionalAssets() {
		if d.Symbol == symbol {
			return d.Price, nil
		}
	}
	data := s.GetLiveCryptoData(ctx, []string{symbol})
	if len(data) == 1 && data[0].Price > 0 {
		return data[0].Price, nil
	}
	return 0, errors.Wrapf(errors.ErrPriceUnavailable, "quote %s", symbol)
}

// CheckAPIHealth pings the provider: healthy when it answers with a JSON
// object, degraded when it answers with anything else, down on error.
func (s *Service) CheckAPIHealth(ctx context.Context) models.APIHealth {
	if s.feed == nil {
		return models.APIHealth{Status: "down"}
	}
	start := s.clock.Now()
	resp, err := s.feed.Ping(ctx)
	latency := s.clock.Since(start)

	switch {
	case err != nil:
		s.logger.Debug().Err(err).Msg("Provider health check failed")
		return models.APIHealth{Status: "down", Latency: latency}
	case resp == nil:
		return models.APIHealth{Status: "degraded", Latency: latency}
	default:
		return models.APIHealth{Status: "healthy", Latency: latency}
	}
}

// ClearCache drops every cached provider response.
func (s *Service) ClearCache() {
	s.cache.Clear()
	s.logger.Info().Msg("Market data cache cleared")
}

// GetCacheStats describes the provider response cache.
func (s *Service) GetCacheStats() models.CacheStats {
	return s.cache.Stats()
}
