package broker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"tradedesk/internal/errors"
)

// basePrices seeds SimulatedPrices.
var basePrices = map[string]float64{
	"AAPL":  173.50,
	"TSLA":  248.42,
	"GOOGL": 2750.80,
	"MSFT":  338.45,
	"AMZN":  3247.15,
	"BTC":   43250,
	"ETH":   2950,
	"BNB":   315.80,
}

const defaultBasePrice = 100.0

// SimulatedPrices quotes a fixed base price with up to ±1% random variation.
type SimulatedPrices struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedPrices creates a SimulatedPrices. A nil rng is seeded from the wall clock.
func NewSimulatedPrices(rng *rand.Rand) *SimulatedPrices {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimulatedPrices{rng: rng}
}

// Quote implements PriceSource.
func (s *SimulatedPrices) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	base, ok := basePrices[symbol]
	if !ok {
		base = defaultBasePrice
	}

	s.mu.Lock()
	variation := (s.rng.Float64() - 0.5) * 0.02
	s.mu.Unlock()

	return base * (1 + variation), nil
}

// FixedPrices quotes exactly the prices it holds. Unknown symbols fail.
type FixedPrices struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewFixedPrices creates a FixedPrices seeded with prices.
func NewFixedPrices(prices map[string]float64) *FixedPrices {
	fp := &FixedPrices{prices: make(map[string]float64, len(prices))}
	for k, v := range prices {
		fp.prices[k] = v
	}
	return fp
}

// Set updates the price of symbol.
func (f *FixedPrices) Set(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

// Delete removes symbol so later quotes fail.
func (f *FixedPrices) Delete(symbol string) {
	f.mu.Lock()
	delete(f.prices, symbol)
	f.mu.Unlock()
}

// Quote implements PriceSource.
func (f *FixedPrices) Quote(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	price, ok := f.prices[symbol]
	if !ok || price <= 0 {
		return 0, errors.Wrapf(errors.ErrPriceUnavailable, "quote %s", symbol)
	}
	return price, nil
}
