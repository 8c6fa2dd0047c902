package marketdata

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"tradedesk/internal/models"
)

// coinIDs maps ticker symbols to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"TRX":   "tron",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"DOGE":  "dogecoin",
	"LTC":   "litecoin",
	"LINK":  "chainlink",
}

// CoinID returns the CoinGecko id for symbol.
func CoinID(symbol string) (string, bool) {
	id, ok := coinIDs[symbol]
	return id, ok
}

type mockQuote struct {
	name   string
	price  float64
	change float64 // percent
}

var mockCrypto = map[string]mockQuote{
	"BTC":   {"Bitcoin", 43250, 2.1},
	"ETH":   {"Ethereum", 2239, -1.23},
	"SOL":   {"Solana", 98.45, 3.7},
	"TRX":   {"Tron", 0.1234, -1.2},
	"ADA":   {"Cardano", 0.45, 1.8},
	"DOT":   {"Polkadot", 7.23, -2.1},
	"MATIC": {"Polygon", 0.92, 4.2},
	"DOGE":  {"Dogecoin", 0.08, 5.3},
	"LTC":   {"Litecoin", 72.34, -0.8},
	"LINK":  {"Chainlink", 14.56, 2.9},
}

type traditionalAsset struct {
	symbol        string
	name          string
	price         float64
	priceJitter   float64
	change        float64
	changeJitter  float64
	percent       float64
	percentJitter float64
}

var traditionalAssets = []traditionalAsset{
	{"DJ30", "Dow Jones 30", 42229.55, 100, 245.67, 50, 1.11, 0.5},
	{"EURUSD", "EUR/USD", 1.15172, 0.01, 0.002, 0.001, 0.17, 0.1},
	{"OIL", "Crude Oil", 73.99, 2, 0.52, 1, 0.07, 0.5},
	{"GOLD", "Gold", 3367.97, 20, -2.7, 5, -0.08, 0.2},
}

// SyntheticSource produces mock market records from fixed tables with
// small random variation.
type SyntheticSource struct {
	clock clock.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticSource creates a source. A nil rng is seeded from the wall clock.
func NewSyntheticSource(clk clock.Clock, rng *rand.Rand) *SyntheticSource {
	if clk == nil {
		clk = clock.New()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SyntheticSource{clock: clk, rng: rng}
}

// jitter returns a value uniformly spread over ±width/2.
func (s *SyntheticSource) jitter(width float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.rng.Float64() - 0.5) * width
}

func (s *SyntheticSource) random() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Crypto returns a mock record for symbol. Unknown symbols price at 1 with
// no change.
func (s *SyntheticSource) Crypto(symbol string) models.MarketDatum {
	mock, ok := mockCrypto[symbol]
	if !ok {
		mock = mockQuote{name: symbol, price: 1}
	}

	price := mock.price * (1 + s.jitter(0.1)/100)
	percent := mock.change + s.jitter(0.5)

	return models.MarketDatum{
		Symbol:           symbol,
		Name:             mock.name,
		Price:            price,
		Change24h:        changeFromPercent(price, percent),
		ChangePercent24h: percent,
		Volume24h:        s.random() * 1e9,
		MarketCap:        price * s.random() * 1e9,
		Sparkline:        s.TrendSparkline(percent),
		LastUpdated:      s.clock.Now(),
		Source:           models.SourceMock,
	}
}

// CryptoAll returns mock records for symbols in order.
func (s *SyntheticSource) CryptoAll(symbols []string) []models.MarketDatum {
	out := make([]models.MarketDatum, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, s.Crypto(sym))
	}
	return out
}

// Traditional returns the index, forex and commodity records.
func (s *SyntheticSource) Traditional() []models.MarketDatum {
	now := s.clock.Now()
	out := make([]models.MarketDatum, 0, len(traditionalAssets))
	for _, a := range traditionalAssets {
		out = append(out, models.MarketDatum{
			Symbol:           a.symbol,
			Name:             a.name,
			Price:            a.price + s.jitter(a.priceJitter),
			Change24h:        a.change + s.jitter(a.changeJitter),
			ChangePercent24h: a.percent + s.jitter(a.percentJitter),
			Sparkline:        s.TrendSparkline(a.percent),
			LastUpdated:      now,
			Source:           models.SourceMock,
		})
	}
	return out
}

// TrendSparkline generates SparklinePoints values starting near 100 that
// drift in the direction of changePercent. Values never go below zero.
func (s *SyntheticSource) TrendSparkline(changePercent float64) []float64 {
	trend := -1.0
	if changePercent > 0 {
		trend = 1.0
	}
	out := make([]float64, SparklinePoints)
	value := 100.0
	for i := range out {
		influence := float64(i) / SparklinePoints * trend * math.Abs(changePercent*0.3)
		value += s.jitter(1) + influence
		out[i] = math.Max(0, value)
	}
	return out
}
