package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"tradedesk/internal/errors"
	"tradedesk/internal/logging"
	"tradedesk/internal/models"
	"tradedesk/internal/stream"
)

const (
	stockPriceFloor  = 0.01
	cryptoPriceFloor = 0.00001
	historyDays      = 30
	moversLimit      = 10
)

var stockVolatility = map[string]float64{
	"AAPL":  2.5,
	"TSLA":  8.0,
	"GOOGL": 3.0,
	"MSFT":  2.0,
	"AMZN":  4.0,
	"NVDA":  6.0,
	"META":  5.0,
}

var cryptoVolatility = map[string]float64{
	"BTC": 500,
	"ETH": 80,
	"BNB": 15,
	"ADA": 0.02,
	"SOL": 5.0,
}

// Volatility returns the per-poll price swing for an instrument.
func Volatility(kind models.AssetKind, symbol string) float64 {
	if kind == models.AssetCrypto {
		if v, ok := cryptoVolatility[symbol]; ok {
			return v
		}
		return 50
	}
	if v, ok := stockVolatility[symbol]; ok {
		return v
	}
	return 3.0
}

func priceFloor(kind models.AssetKind) float64 {
	if kind == models.AssetCrypto {
		return cryptoPriceFloor
	}
	return stockPriceFloor
}

func defaultInstruments() []models.Instrument {
	return []models.Instrument{
		{Symbol: "AAPL", Name: "Apple Inc.", Kind: models.AssetStock, Price: 173.50, Change: 1.75, ChangePercent: 1.02, Volume: 45234567, MarketCap: 2735e9, Sector: "Technology", Exchange: "NASDAQ"},
		{Symbol: "TSLA", Name: "Tesla Inc.", Kind: models.AssetStock, Price: 248.42, Change: 9.12, ChangePercent: 3.81, Volume: 23456789, MarketCap: 789e9, Sector: "Automotive", Exchange: "NASDAQ"},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", Kind: models.AssetStock, Price: 2750.80, Change: 15.30, ChangePercent: 0.56, Volume: 1234567, MarketCap: 1800e9, Sector: "Technology", Exchange: "NASDAQ"},
		{Symbol: "MSFT", Name: "Microsoft Corp.", Kind: models.AssetStock, Price: 338.45, Change: -2.15, ChangePercent: -0.63, Volume: 18765432, MarketCap: 2520e9, Sector: "Technology", Exchange: "NASDAQ"},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", Kind: models.AssetStock, Price: 3247.15, Change: 21.85, ChangePercent: 0.68, Volume: 2345678, MarketCap: 1650e9, Sector: "Consumer Discretionary", Exchange: "NASDAQ"},
		{Symbol: "BTC", Name: "Bitcoin", Kind: models.AssetCrypto, Price: 43250, Change: 912, ChangePercent: 2.15, Volume: 15234567890, MarketCap: 847e9, Rank: 1},
		{Symbol: "ETH", Name: "Ethereum", Kind: models.AssetCrypto, Price: 2950, Change: 58, ChangePercent: 2.00, Volume: 8765432109, MarketCap: 354e9, Rank: 2},
		{Symbol: "BNB", Name: "Binance Coin", Kind: models.AssetCrypto, Price: 315.80, Change: -5.45, ChangePercent: -1.70, Volume: 987654321, MarketCap: 48.5e9, Rank: 3},
		{Symbol: "ADA", Name: "Cardano", Kind: models.AssetCrypto, Price: 0.485, Change: 0.012, ChangePercent: 2.54, Volume: 543219876, MarketCap: 17.2e9, Rank: 8},
		{Symbol: "SOL", Name: "Solana", Kind: models.AssetCrypto, Price: 98.45, Change: 3.21, ChangePercent: 3.37, Volume: 234567890, MarketCap: 42.3e9, Rank: 5},
	}
}

var defaultWatchlist = []struct {
	symbol string
	name   string
	kind   models.AssetKind
	price  float64
	change float64
	pct    float64
}{
	{"GOOGL", "Alphabet Inc.", models.AssetStock, 2750.80, 15.30, 0.56},
	{"MSFT", "Microsoft Corp.", models.AssetStock, 338.45, -2.15, -0.63},
	{"AMZN", "Amazon.com Inc.", models.AssetStock, 3247.15, 21.85, 0.68},
	{"NVDA", "NVIDIA Corp.", models.AssetStock, 495.22, 8.45, 1.74},
	{"META", "Meta Platforms", models.AssetStock, 276.43, -3.21, -1.15},
	{"ADA", "Cardano", models.AssetCrypto, 0.485, 0.012, 2.54},
	{"SOL", "Solana", models.AssetCrypto, 98.45, 3.21, 3.37},
	{"DOT", "Polkadot", models.AssetCrypto, 7.23, -0.15, -2.03},
}

// PollerConfig holds configuration for the price poller.
type PollerConfig struct {
	Interval time.Duration
	Clock    clock.Clock
	Rand     *rand.Rand
	Logger   zerolog.Logger
	// Instruments overrides the default universe.
	Instruments []models.Instrument
}

// Poller random-walks a fixed instrument universe on a ticker and
// publishes every new snapshot. It also owns the watchlist and the
// generated price history.
type Poller struct {
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger
	bus      *stream.Bus[Event]

	opMu sync.Mutex

	mu          sync.RWMutex
	rng         *rand.Rand
	instruments []models.Instrument
	index       map[string]int
	watchlist   []models.WatchlistItem
	history     map[string][]models.PricePoint

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewPoller creates a poller and generates 30 days of price history.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Instruments == nil {
		cfg.Instruments = defaultInstruments()
	}
	logger := logging.WithComponent(cfg.Logger, "poller")

	p := &Poller{
		clock:       cfg.Clock,
		interval:    cfg.Interval,
		logger:      logger,
		bus:         stream.NewBus[Event]("market", logger),
		rng:         cfg.Rand,
		instruments: append([]models.Instrument(nil), cfg.Instruments...),
		index:       make(map[string]int, len(cfg.Instruments)),
		history:     make(map[string][]models.PricePoint, len(cfg.Instruments)),
	}
	for i, inst := range p.instruments {
		p.index[inst.Symbol] = i
	}

	now := p.clock.Now()
	for _, w := range defaultWatchlist {
		p.watchlist = append(p.watchlist, models.WatchlistItem{
			Symbol: w.symbol, Name: w.name, Kind: w.kind,
			Price: w.price, Change: w.change, ChangePercent: w.pct,
			AddedAt: now,
		})
	}
	p.generateHistory(now)

	return p
}

func (p *Poller) generateHistory(now time.Time) {
	for _, inst := range p.instruments {
		price := inst.Price
		if price <= 0 {
			price = 100
		}
		vol := Volatility(inst.Kind, inst.Symbol)
		floor := priceFloor(inst.Kind)
		points := make([]models.PricePoint, 0, historyDays)
		for i := historyDays - 1; i >= 0; i-- {
			price = math.Max(floor, price+(p.rng.Float64()-0.5)*vol)
			points = append(points, models.PricePoint{
				Timestamp: now.AddDate(0, 0, -i),
				Price:     price,
				Volume:    p.rng.Int63n(10_000_000) + 1_000_000,
			})
		}
		p.history[inst.Symbol] = points
	}
}

// Subscribe registers a poller event listener.
func (p *Poller) Subscribe(listener func(Event)) (unsubscribe func()) {
	return p.bus.Subscribe(listener)
}

// Bus exposes the poller event bus.
func (p *Poller) Bus() *stream.Bus[Event] {
	return p.bus
}

// Start begins polling. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	ticker := p.clock.Ticker(p.interval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()

	p.logger.Info().Dur("interval", p.interval).Msg("Price poller started")
	return nil
}

// Stop halts polling. Prices, watchlist and history are kept, so a later
// Start resumes from the current state.
func (p *Poller) Stop() {
	p.lifeMu.Lock()
	if !p.running {
		p.lifeMu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.lifeMu.Unlock()

	p.wg.Wait()
	p.logger.Info().Msg("Price poller stopped")
}

// IsRunning reports whether the poller is started.
func (p *Poller) IsRunning() bool {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	return p.running
}

// tick moves every price by (r - 0.5) * volatility and publishes the snapshot.
func (p *Poller) tick() {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	for i := range p.instruments {
		inst := &p.instruments[i]
		move := (p.rng.Float64() - 0.5) * Volatility(inst.Kind, inst.Symbol)
		prev := inst.Price
		inst.Price = math.Max(priceFloor(inst.Kind), prev+move)
		// Only the applied move counts; a clamped tick moves less than drawn.
		inst.Change += inst.Price - prev
		inst.ChangePercent = percentChange(inst.Price, inst.Change)

		volumeSwing := 1e6
		if inst.Kind == models.AssetCrypto {
			volumeSwing = 1e7
		}
		inst.Volume = math.Max(0, inst.Volume+math.Floor((p.rng.Float64()-0.5)*volumeSwing))
	}
	for i := range p.watchlist {
		w := &p.watchlist[i]
		if idx, ok := p.index[w.Symbol]; ok {
			inst := p.instruments[idx]
			w.Price = inst.Price
			w.Change = inst.Change
			w.ChangePercent = inst.ChangePercent
		}
	}
	update := p.snapshotLocked()
	p.mu.Unlock()

	p.bus.Publish(Event{Type: EventPriceUpdate, Data: update, Timestamp: p.clock.Now()})
}

// percentChange derives the percent move from the cumulative change and
// the price before it.
func percentChange(price, change float64) float64 {
	base := price - change
	if base == 0 {
		return 0
	}
	return change / base * 100
}

func (p *Poller) snapshotLocked() PriceUpdate {
	var u PriceUpdate
	for _, inst := range p.instruments {
		if inst.Kind == models.AssetCrypto {
			u.Crypto = append(u.Crypto, inst)
		} else {
			u.Stocks = append(u.Stocks, inst)
		}
	}
	return u
}

// Snapshot returns the current prices split by kind.
func (p *Poller) Snapshot() PriceUpdate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// Instruments returns every tracked instrument.
func (p *Poller) Instruments() []models.Instrument {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Instrument(nil), p.instruments...)
}

// Prices returns symbol → current price.
func (p *Poller) Prices() map[string]float64 {
	return p.Snapshot().Prices()
}

// Quote implements the trading engine's price source.
func (p *Poller) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.index[symbol]
	if !ok {
		return 0, errors.Wrapf(errors.ErrPriceUnavailable, "quote %s", symbol)
	}
	return p.instruments[idx].Price, nil
}

// TopGainers returns up to ten instruments with the highest percent change.
func (p *Poller) TopGainers() []models.Instrument {
	all := p.Instruments()
	sort.SliceStable(all, func(i, j int) bool { return all[i].ChangePercent > all[j].ChangePercent })
	return limit(all, moversLimit)
}

// TopLosers returns up to ten instruments with the lowest percent change.
func (p *Poller) TopLosers() []models.Instrument {
	all := p.Instruments()
	sort.SliceStable(all, func(i, j int) bool { return all[i].ChangePercent < all[j].ChangePercent })
	return limit(all, moversLimit)
}

func limit[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// PriceHistory returns the last days daily points for symbol. A
// non-positive days returns the full history.
func (p *Poller) PriceHistory(symbol string, days int) []models.PricePoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h := p.history[symbol]
	if days > 0 && days < len(h) {
		h = h[len(h)-days:]
	}
	return append([]models.PricePoint(nil), h...)
}

// Watchlist returns the followed symbols in insertion order.
func (p *Poller) Watchlist() []models.WatchlistItem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.WatchlistItem(nil), p.watchlist...)
}

// AddToWatchlist follows a tracked instrument.
func (p *Poller) AddToWatchlist(symbol string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	for _, w := range p.watchlist {
		if w.Symbol == symbol {
			p.mu.Unlock()
			return errors.Wrapf(errors.ErrAlreadyWatched, "%s", symbol)
		}
	}
	idx, ok := p.index[symbol]
	if !ok {
		p.mu.Unlock()
		return errors.Wrapf(errors.ErrSymbolNotFound, "%s", symbol)
	}
	inst := p.instruments[idx]
	p.watchlist = append(p.watchlist, models.WatchlistItem{
		Symbol:        inst.Symbol,
		Name:          inst.Name,
		Kind:          inst.Kind,
		Price:         inst.Price,
		Change:        inst.Change,
		ChangePercent: inst.ChangePercent,
		AddedAt:       p.clock.Now(),
	})
	list := append([]models.WatchlistItem(nil), p.watchlist...)
	p.mu.Unlock()

	p.bus.Publish(Event{Type: EventWatchlistUpdate, Data: list, Timestamp: p.clock.Now()})
	return nil
}

// RemoveFromWatchlist unfollows symbol.
func (p *Poller) RemoveFromWatchlist(symbol string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	found := -1
	for i, w := range p.watchlist {
		if w.Symbol == symbol {
			found = i
			break
		}
	}
	if found < 0 {
		p.mu.Unlock()
		return errors.Wrapf(errors.ErrDataNotFound, "watchlist %s", symbol)
	}
	p.watchlist = append(p.watchlist[:found], p.watchlist[found+1:]...)
	list := append([]models.WatchlistItem(nil), p.watchlist...)
	p.mu.Unlock()

	p.bus.Publish(Event{Type: EventWatchlistUpdate, Data: list, Timestamp: p.clock.Now()})
	return nil
}
