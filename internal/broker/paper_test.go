package broker

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/models"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) last(t EventType) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == t {
			return l.events[i], true
		}
	}
	return Event{}, false
}

func newTestBroker(t *testing.T, fill FillStrategy, prices map[string]float64) (*PaperBroker, *clock.Mock, *FixedPrices, *eventLog) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	fp := NewFixedPrices(prices)
	b := NewPaperBroker(PaperBrokerConfig{
		Clock:        clk,
		Prices:       fp,
		FillStrategy: fill,
	})
	log := &eventLog{}
	unsubscribe := b.Subscribe(log.record)
	t.Cleanup(func() {
		unsubscribe()
		b.Stop()
	})
	return b, clk, fp, log
}

func waitForStatus(t *testing.T, b *PaperBroker, id string, status models.OrderStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		o, ok := b.GetOrder(id)
		return ok && o.Status == status
	}, 2*time.Second, 5*time.Millisecond, "order %s never reached %s", id, status)
}

func marketBuy(symbol string, qty float64) models.OrderRequest {
	return models.OrderRequest{Symbol: symbol, Type: models.OrderTypeMarket, Side: models.OrderSideBuy, Quantity: qty}
}

func marketSell(symbol string, qty float64) models.OrderRequest {
	return models.OrderRequest{Symbol: symbol, Type: models.OrderTypeMarket, Side: models.OrderSideSell, Quantity: qty}
}

func TestMarketBuyFillsAfterDelay(t *testing.T) {
	b, clk, _, log := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150.50})

	res := b.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Name: "Apple Inc.", Type: models.OrderTypeMarket, Side: models.OrderSideBuy, Quantity: 10,
	})
	require.True(t, res.Success, res.Error)
	require.NotEmpty(t, res.OrderID)

	o, ok := b.GetOrder(res.OrderID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Equal(t, models.TimeInForceGTC, o.TimeInForce)

	clk.Add(time.Second)
	waitForStatus(t, b, res.OrderID, models.OrderStatusFilled)

	o, _ = b.GetOrder(res.OrderID)
	assert.Equal(t, 10.0, o.FilledQuantity)
	assert.Equal(t, 150.50, o.AverageFillPrice)
	assert.Equal(t, 1505.0, o.TotalValue)
	assert.Equal(t, 7.53, o.Fees)

	acct := b.GetAccount()
	assert.InDelta(t, 48487.47, acct.Balance, 1e-9)
	assert.InDelta(t, 48487.47, acct.AvailableBalance, 1e-9)
	assert.InDelta(t, 7.53, acct.TotalFees, 1e-9)
	assert.InDelta(t, 48487.47+1505, acct.TotalEquity, 1e-9)

	pos, ok := b.GetPosition("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 150.50, pos.AveragePrice)
	assert.Equal(t, "Apple Inc.", pos.Name)
	assert.Equal(t, models.PositionLong, pos.Side)

	trades := b.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, res.OrderID, trades[0].OrderID)

	require.Eventually(t, func() bool { return len(log.types()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []EventType{
		EventOrderPlaced,
		EventPositionOpened,
		EventBalanceUpdated,
		EventOrderFilled,
	}, log.types())

	filled, _ := log.last(EventOrderFilled)
	fill, ok := filled.Data.(models.OrderFill)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusFilled, fill.Order.Status)
	assert.Equal(t, trades[0].ID, fill.Trade.ID)
}

func TestSellClosesPositionAndRealizesProfit(t *testing.T) {
	b, _, prices, log := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150.50})
	ctx := context.Background()

	buy := b.PlaceOrder(ctx, marketBuy("AAPL", 10))
	b.executeOrder(ctx, buy.OrderID)

	prices.Set("AAPL", 160)
	sell := b.PlaceOrder(ctx, marketSell("AAPL", 10))
	require.True(t, sell.Success, sell.Error)
	b.executeOrder(ctx, sell.OrderID)

	_, held := b.GetPosition("AAPL")
	assert.False(t, held)
	assert.Empty(t, b.GetPositions())

	acct := b.GetAccount()
	assert.InDelta(t, 95, acct.RealizedPL, 1e-9)
	assert.InDelta(t, 48487.47+1600-8, acct.Balance, 1e-9)
	assert.InDelta(t, 15.53, acct.TotalFees, 1e-9)
	assert.InDelta(t, acct.Balance, acct.TotalEquity, 1e-9)

	closed, ok := log.last(EventPositionClosed)
	require.True(t, ok)
	assert.Equal(t, models.PositionClosed{Symbol: "AAPL", FinalPL: 95}, closed.Data)
}

func TestPartialSellKeepsAverageCost(t *testing.T) {
	b, _, prices, _ := newTestBroker(t, AlwaysFill, map[string]float64{"TSLA": 200})
	ctx := context.Background()

	r := b.PlaceOrder(ctx, marketBuy("TSLA", 10))
	b.executeOrder(ctx, r.OrderID)

	prices.Set("TSLA", 220)
	r = b.PlaceOrder(ctx, marketSell("TSLA", 4))
	b.executeOrder(ctx, r.OrderID)

	pos, ok := b.GetPosition("TSLA")
	require.True(t, ok)
	assert.Equal(t, 6.0, pos.Quantity)
	assert.Equal(t, 200.0, pos.AveragePrice)
	assert.Equal(t, 220.0, pos.CurrentPrice)
	assert.InDelta(t, 1320, pos.MarketValue, 1e-9)
	assert.InDelta(t, 120, pos.UnrealizedPL, 1e-9)
	assert.InDelta(t, 10, pos.UnrealizedPLPercent, 1e-9)
	assert.InDelta(t, 80, b.GetAccount().RealizedPL, 1e-9)
}

func TestPlaceOrderRejections(t *testing.T) {
	tests := []struct {
		name string
		req  models.OrderRequest
		want string
	}{
		{
			name: "missing symbol",
			req:  models.OrderRequest{Type: models.OrderTypeMarket, Side: models.OrderSideBuy, Quantity: 1},
			want: "symbol is required",
		},
		{
			name: "zero quantity",
			req:  marketBuy("AAPL", 0),
			want: "quantity must be positive",
		},
		{
			name: "negative quantity",
			req:  marketBuy("AAPL", -3),
			want: "quantity must be positive",
		},
		{
			name: "infinite quantity",
			req:  marketBuy("AAPL", math.Inf(1)),
			want: "quantity must be positive",
		},
		{
			name: "NaN quantity",
			req:  marketBuy("AAPL", math.NaN()),
			want: "quantity must be positive",
		},
		{
			name: "infinite limit price",
			req:  models.OrderRequest{Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: math.Inf(1)},
			want: "limit price required for limit orders",
		},
		{
			name: "NaN limit on a market order",
			req:  models.OrderRequest{Symbol: "AAPL", Type: models.OrderTypeMarket, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: math.NaN()},
			want: "limit price required for limit orders",
		},
		{
			name: "infinite stop price",
			req:  models.OrderRequest{Symbol: "AAPL", Type: models.OrderTypeStop, Side: models.OrderSideSell, Quantity: 1, StopPrice: math.Inf(-1)},
			want: "stop price required for stop orders",
		},
		{
			name: "limit without price",
			req:  models.OrderRequest{Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 1},
			want: "limit price required for limit orders",
		},
		{
			name: "stop without price",
			req:  models.OrderRequest{Symbol: "AAPL", Type: models.OrderTypeStop, Side: models.OrderSideBuy, Quantity: 1},
			want: "stop price required for stop orders",
		},
		{
			name: "stop-limit without stop",
			req:  models.OrderRequest{Symbol: "AAPL", Type: models.OrderTypeStopLimit, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 150},
			want: "stop price required for stop orders",
		},
		{
			name: "buy beyond cash",
			req:  marketBuy("AAPL", 1000),
			want: "insufficient buying power",
		},
		{
			name: "limit buy beyond cash",
			req:  models.OrderRequest{Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 100, LimitPrice: 600},
			want: "insufficient buying power",
		},
		{
			name: "sell without holding",
			req:  marketSell("AAPL", 5),
			want: "insufficient position",
		},
		{
			name: "unknown price",
			req:  marketBuy("ZZZ", 1),
			want: "price unavailable",
		},
		{
			name: "bad time in force",
			req:  models.OrderRequest{Symbol: "AAPL", Type: models.OrderTypeMarket, Side: models.OrderSideBuy, Quantity: 1, TimeInForce: "GTD"},
			want: "invalid time in force",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, _, log := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150.50})

			res := b.PlaceOrder(context.Background(), tt.req)
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Error)
			assert.Empty(t, b.GetOrders())
			assert.Empty(t, log.types())
			assert.Equal(t, 50000.0, b.GetAccount().Balance)
		})
	}
}

func TestSellMoreThanHeldIsRejected(t *testing.T) {
	b, _, _, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	r := b.PlaceOrder(ctx, marketBuy("AAPL", 3))
	b.executeOrder(ctx, r.OrderID)

	res := b.PlaceOrder(ctx, marketSell("AAPL", 4))
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient position", res.Error)
}

func TestCancelOrder(t *testing.T) {
	b, _, _, log := newTestBroker(t, NeverFill, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	res := b.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 140,
	})
	require.True(t, res.Success)

	cancel := b.CancelOrder(ctx, res.OrderID)
	assert.True(t, cancel.Success)
	o, _ := b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	assert.Equal(t, []EventType{EventOrderPlaced, EventOrderCancelled}, log.types())

	again := b.CancelOrder(ctx, res.OrderID)
	assert.False(t, again.Success)
	assert.Equal(t, "order cannot be cancelled", again.Error)

	missing := b.CancelOrder(ctx, "nope")
	assert.False(t, missing.Success)
	assert.Equal(t, "order not found", missing.Error)

	// A cancelled order never fills.
	b.executeOrder(ctx, res.OrderID)
	assert.Empty(t, b.GetTrades())
}

func TestCancelFilledOrderFails(t *testing.T) {
	b, _, _, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	r := b.PlaceOrder(ctx, marketBuy("AAPL", 1))
	b.executeOrder(ctx, r.OrderID)

	resting := b.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 140,
	})
	require.True(t, resting.Success)
	require.True(t, b.CancelOrder(ctx, resting.OrderID).Success)

	account := b.GetAccount()
	positions := b.GetPositions()

	res := b.CancelOrder(ctx, r.OrderID)
	assert.False(t, res.Success)
	assert.Equal(t, "order cannot be cancelled", res.Error)
	o, _ := b.GetOrder(r.OrderID)
	assert.Equal(t, models.OrderStatusFilled, o.Status)

	again := b.CancelOrder(ctx, resting.OrderID)
	assert.False(t, again.Success)
	assert.Equal(t, "order cannot be cancelled", again.Error)
	o, _ = b.GetOrder(resting.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)

	assert.Equal(t, account, b.GetAccount())
	assert.Equal(t, positions, b.GetPositions())
}

func TestLimitOrderFillsAtLimitPrice(t *testing.T) {
	b, clk, _, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150})

	res := b.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 2, LimitPrice: 145,
	})
	require.True(t, res.Success)

	clk.Add(2 * time.Second)
	waitForStatus(t, b, res.OrderID, models.OrderStatusFilled)

	trades := b.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, 145.0, trades[0].Price)
	assert.Equal(t, 290.0, trades[0].Value)
	assert.Equal(t, 1.45, trades[0].Fees)
}

func TestLimitOrderRestsUntilFillStrategyAgrees(t *testing.T) {
	var mu sync.Mutex
	allow := false
	fill := FillFunc(func(models.Order) bool {
		mu.Lock()
		defer mu.Unlock()
		return allow
	})
	b, _, _, _ := newTestBroker(t, fill, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	res := b.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 140,
	})

	b.checkPendingOrders(ctx)
	o, _ := b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusPending, o.Status)

	mu.Lock()
	allow = true
	mu.Unlock()

	b.checkPendingOrders(ctx)
	o, _ = b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusFilled, o.Status)
}

func TestStartRunsPeriodicChecks(t *testing.T) {
	var mu sync.Mutex
	checks := 0
	fill := FillFunc(func(models.Order) bool {
		mu.Lock()
		defer mu.Unlock()
		checks++
		return checks >= 3
	})
	b, clk, _, _ := newTestBroker(t, fill, map[string]float64{"AAPL": 150})
	require.NoError(t, b.Start(context.Background()))

	res := b.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 140,
	})

	require.Eventually(t, func() bool {
		clk.Add(2 * time.Second)
		o, _ := b.GetOrder(res.OrderID)
		return o.Status == models.OrderStatusFilled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopOrderTriggersOnCross(t *testing.T) {
	b, _, prices, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	res := b.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeStop, Side: models.OrderSideBuy, Quantity: 1, StopPrice: 155,
	})
	require.True(t, res.Success, res.Error)

	b.checkPendingOrders(ctx)
	o, _ := b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusPending, o.Status)

	prices.Set("AAPL", 156)
	b.checkPendingOrders(ctx)
	o, _ = b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusFilled, o.Status)
	assert.Equal(t, 156.0, o.AverageFillPrice)
}

func TestSellStopLimitFillsAtLimit(t *testing.T) {
	b, _, prices, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	r := b.PlaceOrder(ctx, marketBuy("AAPL", 5))
	b.executeOrder(ctx, r.OrderID)

	res := b.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeStopLimit, Side: models.OrderSideSell, Quantity: 5, StopPrice: 140, LimitPrice: 139,
	})
	require.True(t, res.Success, res.Error)

	b.checkPendingOrders(ctx)
	o, _ := b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusPending, o.Status)

	prices.Set("AAPL", 138)
	b.checkPendingOrders(ctx)
	o, _ = b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusFilled, o.Status)
	assert.Equal(t, 139.0, o.AverageFillPrice)
	assert.InDelta(t, -55, b.GetAccount().RealizedPL, 1e-9)
}

func TestDayOrderExpires(t *testing.T) {
	b, clk, _, log := newTestBroker(t, NeverFill, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	res := b.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 140,
		TimeInForce: models.TimeInForceDay,
	})
	o, _ := b.GetOrder(res.OrderID)
	require.NotNil(t, o.ExpiresAt)
	assert.Equal(t, clk.Now().Add(24*time.Hour), *o.ExpiresAt)

	b.checkPendingOrders(ctx)
	o, _ = b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusPending, o.Status)

	clk.Set(clk.Now().Add(24 * time.Hour))
	b.checkPendingOrders(ctx)
	waitForStatus(t, b, res.OrderID, models.OrderStatusExpired)

	expired, ok := log.last(EventOrderExpired)
	require.True(t, ok)
	assert.Equal(t, res.OrderID, expired.Data.(models.Order).ID)
}

func TestImmediateOrderCancelledWhenUnfilled(t *testing.T) {
	b, _, _, log := newTestBroker(t, NeverFill, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	res := b.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "AAPL", Type: models.OrderTypeLimit, Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 140,
		TimeInForce: models.TimeInForceIOC,
	})
	b.checkPendingOrders(ctx)

	o, _ := b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	assert.Equal(t, []EventType{EventOrderPlaced, EventOrderCancelled}, log.types())
}

func TestExecutionWithoutPriceCancels(t *testing.T) {
	b, clk, prices, log := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150})

	res := b.PlaceOrder(context.Background(), marketBuy("AAPL", 1))
	require.True(t, res.Success)

	prices.Delete("AAPL")
	clk.Add(time.Second)
	waitForStatus(t, b, res.OrderID, models.OrderStatusCancelled)

	assert.Empty(t, b.GetTrades())
	assert.Equal(t, 50000.0, b.GetAccount().Balance)
	require.Eventually(t, func() bool {
		_, ok := log.last(EventOrderCancelled)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestExecutionReChecksCash(t *testing.T) {
	b, _, prices, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	res := b.PlaceOrder(ctx, marketBuy("AAPL", 400))
	require.True(t, res.Success)

	prices.Set("AAPL", 200)
	b.executeOrder(ctx, res.OrderID)

	o, _ := b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	assert.Empty(t, b.GetPositions())
}

func TestStopCancelsScheduledExecution(t *testing.T) {
	b, clk, _, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150})

	res := b.PlaceOrder(context.Background(), marketBuy("AAPL", 1))
	b.Stop()
	clk.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	o, _ := b.GetOrder(res.OrderID)
	assert.Equal(t, models.OrderStatusPending, o.Status)
}

func TestUpdatePositionPrices(t *testing.T) {
	b, _, _, log := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 150.50})
	ctx := context.Background()

	r := b.PlaceOrder(ctx, marketBuy("AAPL", 10))
	b.executeOrder(ctx, r.OrderID)
	before := len(log.types())

	b.UpdatePositionPrices(map[string]float64{"TSLA": 300, "AAPL": 0})
	assert.Len(t, log.types(), before, "no held symbol changed")

	b.UpdatePositionPrices(map[string]float64{"AAPL": 160})
	updated, ok := log.last(EventPositionsUpdated)
	require.True(t, ok)
	positions := updated.Data.([]models.Position)
	require.Len(t, positions, 1)
	assert.Equal(t, 160.0, positions[0].CurrentPrice)
	assert.InDelta(t, 1600, positions[0].MarketValue, 1e-9)
	assert.InDelta(t, 95, positions[0].UnrealizedPL, 1e-9)
	assert.InDelta(t, 95, positions[0].DayChange, 1e-9)

	acct := b.GetAccount()
	assert.InDelta(t, 95, acct.UnrealizedPL, 1e-9)
	assert.InDelta(t, acct.Balance+1600, acct.TotalEquity, 1e-9)
}

func TestOrdersAndTradesNewestFirst(t *testing.T) {
	b, clk, _, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 100, "TSLA": 200})
	ctx := context.Background()

	first := b.PlaceOrder(ctx, marketBuy("AAPL", 1))
	b.executeOrder(ctx, first.OrderID)
	clk.Set(clk.Now().Add(time.Minute))
	second := b.PlaceOrder(ctx, marketBuy("TSLA", 1))
	b.executeOrder(ctx, second.OrderID)

	orders := b.GetOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, second.OrderID, orders[0].ID)
	assert.Equal(t, first.OrderID, orders[1].ID)

	trades := b.GetTrades()
	require.Len(t, trades, 2)
	assert.Equal(t, "TSLA", trades[0].Symbol)
	assert.Len(t, b.GetTradesBySymbol("AAPL"), 1)
	assert.Len(t, b.GetOrdersByStatus(models.OrderStatusFilled), 2)
	assert.Empty(t, b.GetOrdersByStatus(models.OrderStatusPending))

	positions := b.GetPositions()
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, "TSLA", positions[1].Symbol)
}

func TestSeedHistory(t *testing.T) {
	clk := clock.NewMock()
	b := NewPaperBroker(PaperBrokerConfig{Clock: clk, Prices: NewFixedPrices(nil), SeedHistory: true})

	acct := b.GetAccount()
	assert.InDelta(t, 50000-1512.53-1206-21010, acct.Balance, 1e-9)
	assert.InDelta(t, acct.Balance, acct.AvailableBalance, 1e-9)
	assert.InDelta(t, 23.53, acct.TotalFees, 1e-9)
	assert.Equal(t, 200000.0, acct.BuyingPower)
	assert.Empty(t, b.GetPositions())

	trades := b.GetTrades()
	require.Len(t, trades, 3)
	assert.Equal(t, "trade-3", trades[0].ID)
	assert.Equal(t, "trade-1", trades[2].ID)
	assert.Equal(t, clk.Now().Add(-7*24*time.Hour), trades[2].ExecutedAt)

	o, ok := b.GetOrder("order-2")
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusFilled, o.Status)
}

func TestTradingStats(t *testing.T) {
	b, _, _, _ := newTestBroker(t, AlwaysFill, nil)
	assert.Equal(t, models.TradingStats{}, b.GetTradingStats())

	seeded := NewPaperBroker(PaperBrokerConfig{Clock: clock.NewMock(), Prices: NewFixedPrices(nil), SeedHistory: true})
	stats := seeded.GetTradingStats()
	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 0, stats.WinningTrades)
	assert.Equal(t, 3, stats.LosingTrades)
	assert.Equal(t, 0.0, stats.WinRate)
	assert.InDelta(t, -23.53, stats.TotalReturn, 1e-9)
	assert.InDelta(t, 23.53/3, stats.AverageLoss, 1e-9)
	assert.InDelta(t, 23.53/3, stats.ProfitFactor, 1e-9)
	assert.InDelta(t, -23.53/50000*100, stats.TotalReturnPercent, 1e-9)
	assert.InDelta(t, -23.53, stats.MaxDrawdown, 1e-9)
	assert.Equal(t, 1.2, stats.SharpeRatio)
}

func TestTradingStatsCountsProfitableSellWhileHeld(t *testing.T) {
	b, _, prices, _ := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	r := b.PlaceOrder(ctx, marketBuy("AAPL", 10))
	b.executeOrder(ctx, r.OrderID)
	prices.Set("AAPL", 120)
	r = b.PlaceOrder(ctx, marketSell("AAPL", 5))
	b.executeOrder(ctx, r.OrderID)

	stats := b.GetTradingStats()
	assert.Equal(t, 2, stats.TotalTrades)
	assert.Equal(t, 1, stats.WinningTrades)
	assert.Equal(t, 50.0, stats.WinRate)
}

func TestListenerPanicDoesNotBreakEngine(t *testing.T) {
	b, _, _, log := newTestBroker(t, AlwaysFill, map[string]float64{"AAPL": 100})
	b.Subscribe(func(Event) { panic("boom") })
	ctx := context.Background()

	r := b.PlaceOrder(ctx, marketBuy("AAPL", 1))
	require.True(t, r.Success)
	b.executeOrder(ctx, r.OrderID)

	o, _ := b.GetOrder(r.OrderID)
	assert.Equal(t, models.OrderStatusFilled, o.Status)
	assert.Contains(t, log.types(), EventOrderFilled)
}
