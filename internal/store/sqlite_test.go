package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/broker"
	"tradedesk/internal/errors"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/stream"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

var base = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

// Feature: tradedesk, Property 8: Trade round-trip consistency
//
// Property: any trade written to the journal reads back unchanged.
func TestProperty_TradeRoundTrip(t *testing.T) {
	j := newTestJournal(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	symbols := []string{"AAPL", "TSLA", "BTC", "ETH", "MSFT"}
	n := 0

	properties.Property("save then list yields the same trade", prop.ForAll(
		func(symbolIdx int, buy bool, qty, price float64, offset int64) bool {
			ctx := context.Background()
			n++

			side := models.OrderSideSell
			if buy {
				side = models.OrderSideBuy
			}
			value := math.Round(qty*price*100) / 100
			trade := models.Trade{
				ID:         fmt.Sprintf("trade-%d", n),
				OrderID:    fmt.Sprintf("order-%d", n),
				Symbol:     fmt.Sprintf("%s-%d", symbols[symbolIdx%len(symbols)], n),
				Name:       "Test Instrument",
				Side:       side,
				Quantity:   qty,
				Price:      price,
				Value:      value,
				Fees:       math.Max(1, math.Min(value*0.001, 10)),
				ExecutedAt: base.Add(time.Duration(offset) * time.Second),
			}

			if err := j.RecordTrade(ctx, trade); err != nil {
				t.Logf("record: %v", err)
				return false
			}
			got, err := j.ListTrades(ctx, trade.Symbol, 0)
			if err != nil || len(got) != 1 {
				t.Logf("list: %v (%d rows)", err, len(got))
				return false
			}

			r := got[0]
			return r.ID == trade.ID &&
				r.OrderID == trade.OrderID &&
				r.Name == trade.Name &&
				r.Side == trade.Side &&
				r.Quantity == trade.Quantity &&
				r.Price == trade.Price &&
				r.Value == trade.Value &&
				r.Fees == trade.Fees &&
				r.ExecutedAt.Equal(trade.ExecutedAt)
		},
		gen.IntRange(0, 100),
		gen.Bool(),
		gen.Float64Range(0.001, 1000),
		gen.Float64Range(0.01, 100000),
		gen.Int64Range(0, 86400*365),
	))

	properties.TestingRun(t)
}

func TestRecordTradeIgnoresDuplicates(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	trade := models.Trade{ID: "trade-1", OrderID: "order-1", Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1, Price: 150, Value: 150, Fees: 1, ExecutedAt: base}
	require.NoError(t, j.RecordTrade(ctx, trade))
	trade.Price = 999
	require.NoError(t, j.RecordTrade(ctx, trade))

	got, err := j.ListTrades(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 150.0, got[0].Price)
}

func TestListTradesNewestFirstWithLimit(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i, sym := range []string{"AAPL", "TSLA", "AAPL", "AAPL"} {
		require.NoError(t, j.RecordTrade(ctx, models.Trade{
			ID: fmt.Sprintf("trade-%d", i), OrderID: "o", Symbol: sym, Side: models.OrderSideBuy,
			Quantity: 1, Price: 1, Value: 1, Fees: 1, ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := j.ListTrades(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "trade-3", all[0].ID)
	assert.Equal(t, "trade-0", all[3].ID)

	aapl, err := j.ListTrades(ctx, "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, aapl, 2)
	assert.Equal(t, "trade-3", aapl[0].ID)
	assert.Equal(t, "trade-2", aapl[1].ID)

	none, err := j.ListTrades(ctx, "NVDA", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListEventsFilters(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordEvent(ctx, ServiceTrading, "order-placed", models.Order{ID: "order-1", Symbol: "AAPL"}, base))
	require.NoError(t, j.RecordEvent(ctx, ServiceTrading, "order-cancelled", models.Order{ID: "order-1", Symbol: "AAPL"}, base.Add(time.Minute)))
	require.NoError(t, j.RecordEvent(ctx, ServiceMarket, "watchlist-update", []string{"AAPL"}, base.Add(2*time.Minute)))

	all, err := j.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "watchlist-update", all[0].Type)
	assert.Equal(t, "order-placed", all[2].Type)
	assert.True(t, all[2].CreatedAt.Equal(base))

	var order models.Order
	require.NoError(t, json.Unmarshal(all[2].Payload, &order))
	assert.Equal(t, "AAPL", order.Symbol)

	trading, err := j.ListEvents(ctx, EventFilter{Service: ServiceTrading})
	require.NoError(t, err)
	assert.Len(t, trading, 2)

	cancelled, err := j.ListEvents(ctx, EventFilter{Type: "order-cancelled"})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, ServiceTrading, cancelled[0].Service)

	recent, err := j.ListEvents(ctx, EventFilter{Since: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := j.ListEvents(ctx, EventFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ServiceMarket, limited[0].Service)
}

func TestRecordEventRejectsUnencodablePayload(t *testing.T) {
	j := newTestJournal(t)
	err := j.RecordEvent(context.Background(), ServiceTrading, "bad", make(chan int), base)
	assert.Error(t, err)
}

func TestJournalOnDiskPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := NewJournal(path)
	require.NoError(t, err)
	assert.Equal(t, path, j.Path())
	require.NoError(t, j.Ping(ctx))
	require.NoError(t, j.RecordEvent(ctx, ServiceTrading, "balance-updated", models.Account{Balance: 100000}, base))
	require.NoError(t, j.Close())

	err = j.Ping(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDatabaseError))

	reopened, err := NewJournal(path)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "balance-updated", events[0].Type)
}

func TestRecorderJournalsBusEvents(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	trading := stream.NewBus[broker.Event]("trading", zerolog.Nop())
	market := stream.NewBus[marketdata.Event]("market", zerolog.Nop())

	rec := NewRecorder(ctx, j, zerolog.Nop())
	rec.AttachTrading(trading)
	rec.AttachMarket(market)

	fill := models.OrderFill{
		Order: models.Order{ID: "order-1", Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 10},
		Trade: models.Trade{ID: "trade-1", OrderID: "order-1", Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 10, Price: 150, Value: 1500, Fees: 1.5, ExecutedAt: base},
	}
	trading.Publish(broker.Event{Type: broker.EventOrderPlaced, Data: fill.Order, Timestamp: base})
	trading.Publish(broker.Event{Type: broker.EventOrderFilled, Data: fill, Timestamp: base})
	market.Publish(marketdata.Event{Type: marketdata.EventPriceUpdate, Data: marketdata.PriceUpdate{}, Timestamp: base})
	market.Publish(marketdata.Event{Type: marketdata.EventWatchlistUpdate, Data: []models.WatchlistItem{{Symbol: "AAPL"}}, Timestamp: base})

	rec.Close()
	rec.Close()
	assert.Zero(t, trading.Len())
	assert.Zero(t, market.Len())
	assert.Zero(t, rec.Dropped())

	events, err := j.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "watchlist-update", events[0].Type)
	assert.Equal(t, ServiceMarket, events[0].Service)
	assert.Equal(t, "order-filled", events[1].Type)
	assert.Equal(t, "order-placed", events[2].Type)

	trades, err := j.ListTrades(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "trade-1", trades[0].ID)

	// Events published after Close are ignored.
	trading.Publish(broker.Event{Type: broker.EventOrderPlaced, Data: fill.Order, Timestamp: base})
	events, err = j.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestRecorderDrainsQueueAfterContextCancel(t *testing.T) {
	j := newTestJournal(t)
	ctx, cancel := context.WithCancel(context.Background())

	trading := stream.NewBus[broker.Event]("trading", zerolog.Nop())
	rec := NewRecorder(ctx, j, zerolog.Nop())
	rec.AttachTrading(trading)

	for i := 0; i < 20; i++ {
		order := models.Order{ID: fmt.Sprintf("order-%d", i), Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1}
		trading.Publish(broker.Event{Type: broker.EventOrderPlaced, Data: order, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	trading.Publish(broker.Event{Type: broker.EventOrderFilled, Data: models.OrderFill{
		Order: models.Order{ID: "order-0", Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1},
		Trade: models.Trade{ID: "trade-0", OrderID: "order-0", Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1, Price: 150, Value: 150, Fees: 1, ExecutedAt: base},
	}, Timestamp: base.Add(time.Minute)})

	cancel()
	rec.Close()

	events, err := j.ListEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 21)

	trades, err := j.ListTrades(context.Background(), "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "trade-0", trades[0].ID)
}
