package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/errors"
	"tradedesk/internal/models"
)

func newTestPoller(seed int64) (*Poller, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	return NewPoller(PollerConfig{
		Interval: 5 * time.Second,
		Clock:    clk,
		Rand:     rand.New(rand.NewSource(seed)),
		Logger:   zerolog.Nop(),
	}), clk
}

// Feature: tradedesk, Property 6: Polled prices respect their floor
//
// Property: For any seed and any number of polls, every instrument stays at
// or above its kind's price floor, its percent change is derived from its
// cumulative change, and watchlist entries mirror the tracked instrument.
func TestProperty_PollerInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("floors and derived percent hold", prop.ForAll(
		func(seed int64, ticks int) bool {
			p, _ := newTestPoller(seed)
			for i := 0; i < ticks; i++ {
				p.tick()
			}

			prices := make(map[string]models.Instrument)
			for _, inst := range p.Instruments() {
				if inst.Price < priceFloor(inst.Kind) {
					return false
				}
				if math.Abs(inst.ChangePercent-percentChange(inst.Price, inst.Change)) > 1e-9 {
					return false
				}
				if inst.Volume < 0 {
					return false
				}
				prices[inst.Symbol] = inst
			}
			for _, w := range p.Watchlist() {
				inst, ok := prices[w.Symbol]
				if ok && (w.Price != inst.Price || w.ChangePercent != inst.ChangePercent) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

func TestPollerClampedTicksKeepOpeningPrice(t *testing.T) {
	p, _ := newTestPoller(7)

	idx := p.index["ADA"]
	p.mu.Lock()
	p.instruments[idx].Price = 0.00002
	p.instruments[idx].Change = 0
	p.mu.Unlock()

	for i := 0; i < 50; i++ {
		p.tick()
		inst := p.Instruments()[idx]
		require.GreaterOrEqual(t, inst.Price, priceFloor(models.AssetCrypto))
		assert.InDelta(t, 0.00002, inst.Price-inst.Change, 1e-12, "tick %d", i)
		assert.GreaterOrEqual(t, inst.ChangePercent, -100.0)
	}
}

func TestPollerTickPublishesSnapshot(t *testing.T) {
	p, _ := newTestPoller(7)

	var got []Event
	unsubscribe := p.Subscribe(func(e Event) { got = append(got, e) })
	defer unsubscribe()

	p.tick()
	require.Len(t, got, 1)
	assert.Equal(t, EventPriceUpdate, got[0].Type)

	update, ok := got[0].Data.(PriceUpdate)
	require.True(t, ok)
	assert.Len(t, update.Stocks, 5)
	assert.Len(t, update.Crypto, 5)
	assert.Equal(t, p.Prices(), update.Prices())
}

func TestPollerWatchlist(t *testing.T) {
	p, _ := newTestPoller(1)

	var events []Event
	unsubscribe := p.Subscribe(func(e Event) { events = append(events, e) })
	defer unsubscribe()

	require.Len(t, p.Watchlist(), 8)

	require.NoError(t, p.AddToWatchlist("AAPL"))
	list := p.Watchlist()
	require.Len(t, list, 9)
	assert.Equal(t, "AAPL", list[8].Symbol)
	assert.Equal(t, "Apple Inc.", list[8].Name)

	assert.ErrorIs(t, p.AddToWatchlist("AAPL"), errors.ErrAlreadyWatched)
	assert.ErrorIs(t, p.AddToWatchlist("NVDA"), errors.ErrAlreadyWatched)
	assert.ErrorIs(t, p.AddToWatchlist("XYZ"), errors.ErrSymbolNotFound)

	require.NoError(t, p.RemoveFromWatchlist("MSFT"))
	assert.Len(t, p.Watchlist(), 8)
	assert.ErrorIs(t, p.RemoveFromWatchlist("MSFT"), errors.ErrDataNotFound)

	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, EventWatchlistUpdate, e.Type)
	}
	last, ok := events[1].Data.([]models.WatchlistItem)
	require.True(t, ok)
	for _, w := range last {
		assert.NotEqual(t, "MSFT", w.Symbol)
	}
}

func TestPollerMovers(t *testing.T) {
	p, _ := newTestPoller(3)

	gainers := p.TopGainers()
	losers := p.TopLosers()
	require.Len(t, gainers, 10)
	require.Len(t, losers, 10)

	// Initial universe: TSLA has the largest gain and BNB the largest loss.
	assert.Equal(t, "TSLA", gainers[0].Symbol)
	assert.Equal(t, "BNB", losers[0].Symbol)
	for i := 1; i < len(gainers); i++ {
		assert.GreaterOrEqual(t, gainers[i-1].ChangePercent, gainers[i].ChangePercent)
		assert.LessOrEqual(t, losers[i-1].ChangePercent, losers[i].ChangePercent)
	}
}

func TestPollerHistoryAndQuote(t *testing.T) {
	p, clk := newTestPoller(5)

	full := p.PriceHistory("BTC", 0)
	require.Len(t, full, historyDays)
	assert.Equal(t, clk.Now(), full[len(full)-1].Timestamp)
	assert.Equal(t, clk.Now().AddDate(0, 0, -29), full[0].Timestamp)

	week := p.PriceHistory("BTC", 7)
	require.Len(t, week, 7)
	assert.Equal(t, full[23:], week)
	assert.Empty(t, p.PriceHistory("XYZ", 7))

	for _, pt := range p.PriceHistory("ADA", 0) {
		assert.GreaterOrEqual(t, pt.Price, cryptoPriceFloor)
		assert.GreaterOrEqual(t, pt.Volume, int64(1_000_000))
	}

	price, err := p.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 173.50, price)

	_, err = p.Quote(context.Background(), "XYZ")
	assert.ErrorIs(t, err, errors.ErrPriceUnavailable)
}

func TestPollerStartStopRestart(t *testing.T) {
	p, clk := newTestPoller(9)
	var updates int32
	unsubscribe := p.Subscribe(func(e Event) {
		if e.Type == EventPriceUpdate {
			atomic.AddInt32(&updates, 1)
		}
	})
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())

	clk.Add(5 * time.Second)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&updates) == 1 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.IsRunning())
	clk.Add(20 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&updates))

	require.NoError(t, p.Start(ctx))
	defer p.Stop()
	clk.Add(5 * time.Second)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&updates) == 2 }, time.Second, 5*time.Millisecond)
}

func TestVolatility(t *testing.T) {
	assert.Equal(t, 500.0, Volatility(models.AssetCrypto, "BTC"))
	assert.Equal(t, 50.0, Volatility(models.AssetCrypto, "DOGE"))
	assert.Equal(t, 8.0, Volatility(models.AssetStock, "TSLA"))
	assert.Equal(t, 3.0, Volatility(models.AssetStock, "IBM"))
}
