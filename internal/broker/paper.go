package broker

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradedesk/internal/errors"
	"tradedesk/internal/logging"
	"tradedesk/internal/models"
	"tradedesk/internal/stream"
)

// PaperBroker is the in-memory trading engine.
//
// Every mutating operation holds opMu from its first state change until
// its last event is delivered, so subscribers see fully reconciled state
// and events arrive in mutation order. Listeners may call the read
// methods during delivery but must not call mutating methods
// synchronously.
type PaperBroker struct {
	clock  clock.Clock
	prices PriceSource
	fill   FillStrategy
	fees   FeeSchedule
	logger zerolog.Logger
	bus    *stream.Bus[Event]

	initialCapital decimal.Decimal
	marketDelay    time.Duration
	checkDelay     time.Duration
	checkInterval  time.Duration
	dayOrderTTL    time.Duration

	opMu sync.Mutex

	mu        sync.RWMutex
	orders    map[string]*models.Order
	orderSeq  []string
	trades    []models.Trade
	positions map[string]*holding
	ledger    ledger

	lifeMu  sync.Mutex
	timers  map[*clock.Timer]struct{}
	baseCtx context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// holding is a position with its exact quantity and cost basis.
type holding struct {
	view  models.Position
	qty   decimal.Decimal
	avg   decimal.Decimal
	price decimal.Decimal
}

type ledger struct {
	balance               decimal.Decimal
	available             decimal.Decimal
	realized              decimal.Decimal
	fees                  decimal.Decimal
	equity                decimal.Decimal
	unrealized            decimal.Decimal
	buyingPower           float64
	dayTradingBuyingPower float64
}

// PaperBrokerConfig holds configuration for the paper broker.
type PaperBrokerConfig struct {
	Clock        clock.Clock
	Prices       PriceSource
	FillStrategy FillStrategy
	Fees         *FeeSchedule
	Logger       *zerolog.Logger

	InitialCapital        float64
	BuyingPower           float64
	DayTradingBuyingPower float64
	// SeedHistory loads three historical trades that debit the ledger
	// without opening positions.
	SeedHistory bool

	MarketDelay   time.Duration
	CheckDelay    time.Duration
	CheckInterval time.Duration
	DayOrderTTL   time.Duration
}

// NewPaperBroker creates a new paper trading engine. Zero config values take defaults.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Prices == nil {
		cfg.Prices = NewSimulatedPrices(nil)
	}
	if cfg.FillStrategy == nil {
		cfg.FillStrategy = NewRandomFill(0.3, nil)
	}
	fees := DefaultFeeSchedule()
	if cfg.Fees != nil {
		fees = *cfg.Fees
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = 50000
	}
	if cfg.BuyingPower == 0 {
		cfg.BuyingPower = cfg.InitialCapital * 4
	}
	if cfg.DayTradingBuyingPower == 0 {
		cfg.DayTradingBuyingPower = cfg.BuyingPower
	}
	if cfg.MarketDelay == 0 {
		cfg.MarketDelay = time.Second
	}
	if cfg.CheckDelay == 0 {
		cfg.CheckDelay = 2 * time.Second
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 2 * time.Second
	}
	if cfg.DayOrderTTL == 0 {
		cfg.DayOrderTTL = 24 * time.Hour
	}

	logger = logging.WithComponent(logger, "paper-broker")
	capital := decimal.NewFromFloat(cfg.InitialCapital)

	p := &PaperBroker{
		clock:          cfg.Clock,
		prices:         cfg.Prices,
		fill:           cfg.FillStrategy,
		fees:           fees,
		logger:         logger,
		bus:            stream.NewBus[Event]("trading", logger),
		initialCapital: capital,
		marketDelay:    cfg.MarketDelay,
		checkDelay:     cfg.CheckDelay,
		checkInterval:  cfg.CheckInterval,
		dayOrderTTL:    cfg.DayOrderTTL,
		orders:         make(map[string]*models.Order),
		positions:      make(map[string]*holding),
		ledger: ledger{
			balance:               capital,
			available:             capital,
			equity:                capital,
			buyingPower:           cfg.BuyingPower,
			dayTradingBuyingPower: cfg.DayTradingBuyingPower,
		},
		timers:  make(map[*clock.Timer]struct{}),
		baseCtx: context.Background(),
	}

	if cfg.SeedHistory {
		p.seedHistory()
	}

	return p
}

// Start launches the periodic check of resting orders.
func (p *PaperBroker) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.baseCtx = runCtx
	p.cancel = cancel
	p.running = true

	ticker := p.clock.Ticker(p.checkInterval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.checkPendingOrders(runCtx)
			}
		}
	}()

	p.logger.Info().Dur("check_interval", p.checkInterval).Msg("Paper broker started")
	return nil
}

// Stop stops the periodic check and cancels scheduled executions.
// Orders stay pending; a later Start resumes checking them.
func (p *PaperBroker) Stop() {
	p.lifeMu.Lock()
	for t := range p.timers {
		t.Stop()
		delete(p.timers, t)
	}
	if !p.running {
		p.lifeMu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.baseCtx = context.Background()
	p.lifeMu.Unlock()

	p.wg.Wait()
	p.logger.Info().Msg("Paper broker stopped")
}

// Subscribe registers a trading event listener.
func (p *PaperBroker) Subscribe(listener func(Event)) (unsubscribe func()) {
	return p.bus.Subscribe(listener)
}

// Bus exposes the trading event bus for bridges such as the stream hub.
func (p *PaperBroker) Bus() *stream.Bus[Event] {
	return p.bus
}

// PlaceOrder validates and records a new order, then schedules its execution.
// Business rule violations are reported in the result, never as a panic or error.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req models.OrderRequest) models.OrderResult {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := validateRequest(req); err != nil {
		return p.reject(req, err)
	}

	// Reference price for the buying power check.
	var refPrice decimal.Decimal
	if req.Side == models.OrderSideBuy {
		if req.Type.NeedsLimitPrice() {
			refPrice = decimal.NewFromFloat(req.LimitPrice)
		} else {
			quote, err := p.prices.Quote(ctx, req.Symbol)
			if err != nil || quote <= 0 {
				p.logger.Debug().Err(err).Str("symbol", req.Symbol).Msg("Reference price lookup failed")
				return p.reject(req, errors.ErrPriceUnavailable)
			}
			refPrice = decimal.NewFromFloat(quote)
		}
	}

	now := p.clock.Now()
	tif := req.TimeInForce
	if tif == "" {
		tif = models.TimeInForceGTC
	}

	p.mu.Lock()
	qty := decimal.NewFromFloat(req.Quantity)
	switch req.Side {
	case models.OrderSideBuy:
		if qty.Mul(refPrice).GreaterThan(p.ledger.available) {
			p.mu.Unlock()
			return p.reject(req, errors.ErrInsufficientBuyingPower)
		}
	case models.OrderSideSell:
		h, ok := p.positions[req.Symbol]
		if !ok || h.qty.LessThan(qty) {
			p.mu.Unlock()
			return p.reject(req, errors.ErrInsufficientPosition)
		}
	}

	order := &models.Order{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Name:        req.Name,
		Type:        req.Type,
		Side:        req.Side,
		Quantity:    req.Quantity,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		TimeInForce: tif,
		Status:      models.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if tif == models.TimeInForceDay {
		expires := now.Add(p.dayOrderTTL)
		order.ExpiresAt = &expires
	}
	p.orders[order.ID] = order
	p.orderSeq = append(p.orderSeq, order.ID)
	placed := *order
	p.mu.Unlock()

	logging.LogOrder(p.logger, placed.ID, placed.Symbol, string(placed.Side), string(placed.Status))
	p.emit(EventOrderPlaced, placed)

	if placed.Type == models.OrderTypeMarket {
		p.schedule(p.marketDelay, func(ctx context.Context) { p.executeOrder(ctx, placed.ID) })
	} else {
		p.schedule(p.checkDelay, p.checkPendingOrders)
	}

	return models.OrderResult{Success: true, OrderID: placed.ID}
}

func validateRequest(req models.OrderRequest) error {
	if req.Symbol == "" {
		return errors.ErrMissingSymbol
	}
	if !req.Side.Valid() {
		return errors.ErrInvalidSide
	}
	if !req.Type.Valid() {
		return errors.ErrInvalidOrderType
	}
	if req.TimeInForce != "" && !req.TimeInForce.Valid() {
		return errors.ErrInvalidTimeInForce
	}
	if !finite(req.Quantity) || req.Quantity <= 0 {
		return errors.ErrInvalidQuantity
	}
	if !finite(req.LimitPrice) || (req.Type.NeedsLimitPrice() && req.LimitPrice <= 0) {
		return errors.ErrLimitPriceRequired
	}
	if !finite(req.StopPrice) || (req.Type.NeedsStopPrice() && req.StopPrice <= 0) {
		return errors.ErrStopPriceRequired
	}
	return nil
}

// finite reports whether v is neither NaN nor an infinity. Decimal
// conversion panics on both.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (p *PaperBroker) reject(req models.OrderRequest, err error) models.OrderResult {
	p.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("type", string(req.Type)).
		Float64("quantity", req.Quantity).
		Str("reason", err.Error()).
		Msg("Order rejected")
	return models.OrderResult{Success: false, Error: err.Error()}
}

// CancelOrder cancels a pending order.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) models.OrderResult {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	order, ok := p.orders[orderID]
	if !ok {
		p.mu.Unlock()
		return models.OrderResult{Success: false, OrderID: orderID, Error: errors.ErrOrderNotFound.Error()}
	}
	if order.Status != models.OrderStatusPending {
		p.mu.Unlock()
		return models.OrderResult{Success: false, OrderID: orderID, Error: errors.ErrOrderNotCancellable.Error()}
	}
	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = p.clock.Now()
	cancelled := *order
	p.mu.Unlock()

	logging.LogOrder(p.logger, cancelled.ID, cancelled.Symbol, string(cancelled.Side), string(cancelled.Status))
	p.emit(EventOrderCancelled, cancelled)

	return models.OrderResult{Success: true, OrderID: orderID}
}

// schedule runs fn after d on the engine clock unless the engine is stopped first.
func (p *PaperBroker) schedule(d time.Duration, fn func(ctx context.Context)) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	ctx := p.baseCtx
	var timer *clock.Timer
	timer = p.clock.AfterFunc(d, func() {
		p.lifeMu.Lock()
		_, live := p.timers[timer]
		delete(p.timers, timer)
		p.lifeMu.Unlock()
		if !live || ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
	p.timers[timer] = struct{}{}
}

// checkPendingOrders expires stale orders and evaluates resting ones.
func (p *PaperBroker) checkPendingOrders(ctx context.Context) {
	p.mu.RLock()
	pending := make([]models.Order, 0)
	for _, id := range p.orderSeq {
		o := p.orders[id]
		if o.Status == models.OrderStatusPending && o.Type != models.OrderTypeMarket {
			pending = append(pending, *o)
		}
	}
	p.mu.RUnlock()

	now := p.clock.Now()
	for _, o := range pending {
		if ctx.Err() != nil {
			return
		}
		if o.ExpiresAt != nil && !now.Before(*o.ExpiresAt) {
			p.expireOrder(o.ID)
			continue
		}
		p.evaluateOrder(ctx, o)
	}
}

func (p *PaperBroker) evaluateOrder(ctx context.Context, o models.Order) {
	ready := true
	if o.Type.NeedsStopPrice() {
		price, err := p.prices.Quote(ctx, o.Symbol)
		if err != nil {
			p.logger.Debug().Err(err).Str("order_id", o.ID).Msg("Stop check skipped, no price")
			ready = false
		} else {
			ready = stopTriggered(o, price)
		}
	}

	if ready && p.fill.ShouldFill(o) {
		p.executeOrder(ctx, o.ID)
		return
	}

	if o.TimeInForce.Immediate() {
		p.cancelUnfilled(o.ID)
	}
}

// stopTriggered reports whether price has crossed the order's stop.
func stopTriggered(o models.Order, price float64) bool {
	if o.Side == models.OrderSideBuy {
		return price >= o.StopPrice
	}
	return price <= o.StopPrice
}

func (p *PaperBroker) expireOrder(orderID string) {
	p.transitionPending(orderID, models.OrderStatusExpired, EventOrderExpired)
}

func (p *PaperBroker) cancelUnfilled(orderID string) {
	p.transitionPending(orderID, models.OrderStatusCancelled, EventOrderCancelled)
}

func (p *PaperBroker) transitionPending(orderID string, status models.OrderStatus, event EventType) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	order, ok := p.orders[orderID]
	if !ok || order.Status != models.OrderStatusPending {
		p.mu.Unlock()
		return
	}
	order.Status = status
	order.UpdatedAt = p.clock.Now()
	snapshot := *order
	p.mu.Unlock()

	logging.LogOrder(p.logger, snapshot.ID, snapshot.Symbol, string(snapshot.Side), string(snapshot.Status))
	p.emit(event, snapshot)
}

// executeOrder fills a pending order in full and reconciles the ledger.
// Any failure cancels the order instead of leaving it pending.
func (p *PaperBroker) executeOrder(ctx context.Context, orderID string) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.RLock()
	order, ok := p.orders[orderID]
	if !ok || order.Status != models.OrderStatusPending {
		p.mu.RUnlock()
		return
	}
	snapshot := *order
	p.mu.RUnlock()

	price, priceErr := p.executionPrice(ctx, snapshot)

	p.mu.Lock()
	order, ok = p.orders[orderID]
	if !ok || order.Status != models.OrderStatusPending {
		p.mu.Unlock()
		return
	}

	now := p.clock.Now()
	if priceErr == nil {
		var events []Event
		var trade models.Trade
		trade, events, priceErr = p.fillLocked(order, price, now)
		if priceErr == nil {
			p.mu.Unlock()
			logging.LogTrade(p.logger, trade.Symbol, string(trade.Side), trade.Quantity, trade.Price, trade.Fees)
			for _, e := range events {
				p.bus.Publish(e)
			}
			return
		}
	}

	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = now
	cancelled := *order
	p.mu.Unlock()

	p.logger.Warn().Err(priceErr).Str("order_id", orderID).Str("symbol", cancelled.Symbol).Msg("Order execution failed, cancelling")
	p.emit(EventOrderCancelled, cancelled)
}

// executionPrice is the quote for market and stop orders, the limit price otherwise.
func (p *PaperBroker) executionPrice(ctx context.Context, o models.Order) (decimal.Decimal, error) {
	if o.Type.NeedsLimitPrice() {
		return decimal.NewFromFloat(o.LimitPrice), nil
	}
	quote, err := p.prices.Quote(ctx, o.Symbol)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrPriceUnavailable, "execute %s: %v", o.Symbol, err)
	}
	if quote <= 0 {
		return decimal.Zero, errors.ErrPriceUnavailable
	}
	return decimal.NewFromFloat(quote), nil
}

// fillLocked creates the trade, fills the order and reconciles. It returns
// the events to publish once the state lock is released. Caller holds p.mu.
func (p *PaperBroker) fillLocked(order *models.Order, price decimal.Decimal, now time.Time) (models.Trade, []Event, error) {
	qty := decimal.NewFromFloat(order.Quantity)
	value := qty.Mul(price)
	fees := p.fees.Calculate(value)

	switch order.Side {
	case models.OrderSideBuy:
		if value.Add(fees).GreaterThan(p.ledger.available) {
			return models.Trade{}, nil, errors.ErrInsufficientBuyingPower
		}
	case models.OrderSideSell:
		h, ok := p.positions[order.Symbol]
		if !ok || h.qty.LessThan(qty) {
			return models.Trade{}, nil, errors.ErrInsufficientPosition
		}
	}

	trade := models.Trade{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Name:       order.Name,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price.InexactFloat64(),
		Value:      value.InexactFloat64(),
		Fees:       fees.InexactFloat64(),
		ExecutedAt: now,
	}
	p.trades = append(p.trades, trade)

	order.Status = models.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	order.AverageFillPrice = trade.Price
	order.TotalValue = trade.Value
	order.Fees = trade.Fees
	order.UpdatedAt = now

	events := p.reconcileLocked(trade, qty, price, value, fees, now)
	events = append(events, Event{
		Type:      EventOrderFilled,
		Data:      models.OrderFill{Order: *order, Trade: trade},
		Timestamp: now,
	})
	return trade, events, nil
}

// reconcileLocked applies a trade to positions and the ledger. Caller holds p.mu.
func (p *PaperBroker) reconcileLocked(trade models.Trade, qty, price, value, fees decimal.Decimal, now time.Time) []Event {
	var events []Event

	p.ledger.fees = p.ledger.fees.Add(fees)

	switch trade.Side {
	case models.OrderSideBuy:
		cost := value.Add(fees)
		p.ledger.balance = p.ledger.balance.Sub(cost)
		p.ledger.available = p.ledger.available.Sub(cost)

		h, exists := p.positions[trade.Symbol]
		if exists {
			totalQty := h.qty.Add(qty)
			h.avg = h.qty.Mul(h.avg).Add(value).Div(totalQty)
			h.qty = totalQty
		} else {
			h = &holding{
				view: models.Position{
					Symbol: trade.Symbol,
					Name:   trade.Name,
					Side:   models.PositionLong,
				},
				qty: qty,
				avg: price,
			}
			p.positions[trade.Symbol] = h
		}
		h.reprice(price)

		if !exists {
			events = append(events, Event{Type: EventPositionOpened, Data: h.view, Timestamp: now})
		}

	case models.OrderSideSell:
		h := p.positions[trade.Symbol]
		realized := price.Sub(h.avg).Mul(qty)
		p.ledger.realized = p.ledger.realized.Add(realized)

		proceeds := value.Sub(fees)
		p.ledger.balance = p.ledger.balance.Add(proceeds)
		p.ledger.available = p.ledger.available.Add(proceeds)

		h.qty = h.qty.Sub(qty)
		if h.qty.LessThanOrEqual(decimal.Zero) {
			delete(p.positions, trade.Symbol)
			events = append(events, Event{
				Type:      EventPositionClosed,
				Data:      models.PositionClosed{Symbol: trade.Symbol, FinalPL: realized.InexactFloat64()},
				Timestamp: now,
			})
		} else {
			h.reprice(price)
		}
	}

	p.refreshTotalsLocked()
	events = append(events, Event{Type: EventBalanceUpdated, Data: p.accountLocked(), Timestamp: now})
	return events
}

// reprice recomputes the derived position fields at price.
func (h *holding) reprice(price decimal.Decimal) {
	h.price = price
	cost := h.qty.Mul(h.avg)
	market := h.qty.Mul(price)
	unrealized := market.Sub(cost)
	move := price.Sub(h.avg)

	h.view.Quantity = h.qty.InexactFloat64()
	h.view.AveragePrice = h.avg.InexactFloat64()
	h.view.CurrentPrice = price.InexactFloat64()
	h.view.MarketValue = market.InexactFloat64()
	h.view.UnrealizedPL = unrealized.InexactFloat64()
	h.view.UnrealizedPLPercent = 0
	if cost.IsPositive() {
		h.view.UnrealizedPLPercent = unrealized.Div(cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	h.view.DayChange = move.Mul(h.qty).InexactFloat64()
	h.view.DayChangePercent = 0
	if h.avg.IsPositive() {
		h.view.DayChangePercent = move.Div(h.avg).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
}

// refreshTotalsLocked recomputes equity and unrealized P&L from all positions.
func (p *PaperBroker) refreshTotalsLocked() {
	market := decimal.Zero
	unrealized := decimal.Zero
	for _, h := range p.positions {
		market = market.Add(h.qty.Mul(h.price))
		unrealized = unrealized.Add(h.qty.Mul(h.price.Sub(h.avg)))
	}
	p.ledger.equity = p.ledger.balance.Add(market)
	p.ledger.unrealized = unrealized
}

func (p *PaperBroker) accountLocked() models.Account {
	return models.Account{
		Balance:               p.ledger.balance.InexactFloat64(),
		AvailableBalance:      p.ledger.available.InexactFloat64(),
		TotalEquity:           p.ledger.equity.InexactFloat64(),
		BuyingPower:           p.ledger.buyingPower,
		DayTradingBuyingPower: p.ledger.dayTradingBuyingPower,
		MarginUsed:            0,
		UnrealizedPL:          p.ledger.unrealized.InexactFloat64(),
		RealizedPL:            p.ledger.realized.InexactFloat64(),
		TotalFees:             p.ledger.fees.InexactFloat64(),
	}
}

// UpdatePositionPrices marks held positions to the given prices and emits
// positions-updated when at least one position changed. Non-positive
// prices are ignored.
func (p *PaperBroker) UpdatePositionPrices(prices map[string]float64) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	updated := 0
	for symbol, h := range p.positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		h.reprice(decimal.NewFromFloat(price))
		updated++
	}
	if updated == 0 {
		p.mu.Unlock()
		return
	}
	p.refreshTotalsLocked()
	snapshot := p.positionsLocked()
	p.mu.Unlock()

	p.emit(EventPositionsUpdated, snapshot)
}

func (p *PaperBroker) emit(t EventType, data any) {
	p.bus.Publish(Event{Type: t, Data: data, Timestamp: p.clock.Now()})
}

// GetOrders returns all orders, newest first.
func (p *PaperBroker) GetOrders() []models.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()

	orders := make([]models.Order, 0, len(p.orderSeq))
	for i := len(p.orderSeq) - 1; i >= 0; i-- {
		orders = append(orders, *p.orders[p.orderSeq[i]])
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}

// GetOrdersByStatus returns orders in the given status, newest first.
func (p *PaperBroker) GetOrdersByStatus(status models.OrderStatus) []models.Order {
	all := p.GetOrders()
	filtered := make([]models.Order, 0, len(all))
	for _, o := range all {
		if o.Status == status {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// GetOrder returns a copy of one order.
func (p *PaperBroker) GetOrder(orderID string) (models.Order, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	o, ok := p.orders[orderID]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

// GetTrades returns all trades, newest first.
func (p *PaperBroker) GetTrades() []models.Trade {
	p.mu.RLock()
	trades := make([]models.Trade, 0, len(p.trades))
	for i := len(p.trades) - 1; i >= 0; i-- {
		trades = append(trades, p.trades[i])
	}
	p.mu.RUnlock()

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExecutedAt.After(trades[j].ExecutedAt)
	})
	return trades
}

// GetTradesBySymbol returns the trades of one symbol, newest first.
func (p *PaperBroker) GetTradesBySymbol(symbol string) []models.Trade {
	all := p.GetTrades()
	filtered := make([]models.Trade, 0)
	for _, t := range all {
		if t.Symbol == symbol {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// GetPositions returns all open positions sorted by symbol.
func (p *PaperBroker) GetPositions() []models.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionsLocked()
}

func (p *PaperBroker) positionsLocked() []models.Position {
	positions := make([]models.Position, 0, len(p.positions))
	for _, h := range p.positions {
		positions = append(positions, h.view)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions
}

// GetPosition returns the open position for symbol.
func (p *PaperBroker) GetPosition(symbol string) (models.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h, ok := p.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return h.view, true
}

// GetAccount returns a copy of the account ledger.
func (p *PaperBroker) GetAccount() models.Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.accountLocked()
}

// Ensure PaperBroker implements Broker interface
var _ Broker = (*PaperBroker)(nil)
