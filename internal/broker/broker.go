// Package broker provides the simulated trading engine: order lifecycle,
// fills, fees and account/position reconciliation.
package broker

import (
	"context"

	"tradedesk/internal/models"
)

// Broker defines the interface for trading operations.
type Broker interface {
	// Orders
	PlaceOrder(ctx context.Context, req models.OrderRequest) models.OrderResult
	CancelOrder(ctx context.Context, orderID string) models.OrderResult
	GetOrders() []models.Order
	GetOrdersByStatus(status models.OrderStatus) []models.Order
	GetOrder(orderID string) (models.Order, bool)

	// Trades
	GetTrades() []models.Trade
	GetTradesBySymbol(symbol string) []models.Trade

	// Positions & Account
	GetPositions() []models.Position
	GetPosition(symbol string) (models.Position, bool)
	GetAccount() models.Account
	GetTradingStats() models.TradingStats
	UpdatePositionPrices(prices map[string]float64)

	// Events
	Subscribe(listener func(Event)) (unsubscribe func())
}

// PriceSource resolves the current reference price of a symbol.
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// FillStrategy decides whether a resting order fills on a check.
type FillStrategy interface {
	ShouldFill(order models.Order) bool
}
