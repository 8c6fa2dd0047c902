package broker

import (
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
)

type seedTrade struct {
	id      string
	orderID string
	symbol  string
	name    string
	qty     float64
	price   float64
	value   float64
	fees    float64
	age     time.Duration
}

var seedTrades = []seedTrade{
	{"trade-1", "order-1", "AAPL", "Apple Inc.", 10, 150.50, 1505, 7.53, 7 * 24 * time.Hour},
	{"trade-2", "order-2", "TSLA", "Tesla Inc.", 5, 240, 1200, 6, 5 * 24 * time.Hour},
	{"trade-3", "order-3", "BTC", "Bitcoin", 0.5, 42000, 21000, 10, 3 * 24 * time.Hour},
}

// seedHistory records the historical buys. They debit the ledger but no
// position is opened for them.
func (p *PaperBroker) seedHistory() {
	now := p.clock.Now()
	for _, s := range seedTrades {
		at := now.Add(-s.age)
		p.orders[s.orderID] = &models.Order{
			ID:               s.orderID,
			Symbol:           s.symbol,
			Name:             s.name,
			Type:             models.OrderTypeMarket,
			Side:             models.OrderSideBuy,
			Quantity:         s.qty,
			TimeInForce:      models.TimeInForceGTC,
			Status:           models.OrderStatusFilled,
			FilledQuantity:   s.qty,
			AverageFillPrice: s.price,
			TotalValue:       s.value,
			Fees:             s.fees,
			CreatedAt:        at,
			UpdatedAt:        at,
		}
		p.orderSeq = append(p.orderSeq, s.orderID)
		p.trades = append(p.trades, models.Trade{
			ID:         s.id,
			OrderID:    s.orderID,
			Symbol:     s.symbol,
			Name:       s.name,
			Side:       models.OrderSideBuy,
			Quantity:   s.qty,
			Price:      s.price,
			Value:      s.value,
			Fees:       s.fees,
			ExecutedAt: at,
		})

		cost := decimal.NewFromFloat(s.value).Add(decimal.NewFromFloat(s.fees))
		p.ledger.balance = p.ledger.balance.Sub(cost)
		p.ledger.available = p.ledger.available.Sub(cost)
		p.ledger.fees = p.ledger.fees.Add(decimal.NewFromFloat(s.fees))
	}
	p.refreshTotalsLocked()
}
