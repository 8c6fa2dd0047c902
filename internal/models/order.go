package models

import "time"

// Order represents a trading order.
type Order struct {
	ID               string      `json:"id"`
	Symbol           string      `json:"symbol"`
	Name             string      `json:"name"`
	Type             OrderType   `json:"type"`
	Side             OrderSide   `json:"side"`
	Quantity         float64     `json:"quantity"`
	LimitPrice       float64     `json:"limit_price,omitempty"`
	StopPrice        float64     `json:"stop_price,omitempty"`
	TimeInForce      TimeInForce `json:"time_in_force,omitempty"`
	Status           OrderStatus `json:"status"`
	FilledQuantity   float64     `json:"filled_quantity"`
	AverageFillPrice float64     `json:"average_fill_price"`
	TotalValue       float64     `json:"total_value"`
	Fees             float64     `json:"fees"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	ExpiresAt        *time.Time  `json:"expires_at,omitempty"`
}

// OrderRequest holds the caller-supplied fields of a new order.
type OrderRequest struct {
	Symbol      string      `json:"symbol"`
	Name        string      `json:"name"`
	Type        OrderType   `json:"type"`
	Side        OrderSide   `json:"side"`
	Quantity    float64     `json:"quantity"`
	LimitPrice  float64     `json:"limit_price,omitempty"`
	StopPrice   float64     `json:"stop_price,omitempty"`
	TimeInForce TimeInForce `json:"time_in_force,omitempty"`
}

// OrderResult is the outcome of a placement or cancellation.
// Business rule violations are reported here rather than as Go errors.
type OrderResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Position represents an aggregated holding of one instrument.
type Position struct {
	Symbol              string       `json:"symbol"`
	Name                string       `json:"name"`
	Quantity            float64      `json:"quantity"`
	AveragePrice        float64      `json:"average_price"`
	CurrentPrice        float64      `json:"current_price"`
	MarketValue         float64      `json:"market_value"`
	UnrealizedPL        float64      `json:"unrealized_pl"`
	UnrealizedPLPercent float64      `json:"unrealized_pl_percent"`
	DayChange           float64      `json:"day_change"`
	DayChangePercent    float64      `json:"day_change_percent"`
	Side                PositionSide `json:"side"`
}

// Account is the single ledger of the simulated trader.
type Account struct {
	Balance               float64 `json:"balance"`
	AvailableBalance      float64 `json:"available_balance"`
	TotalEquity           float64 `json:"total_equity"`
	BuyingPower           float64 `json:"buying_power"`
	DayTradingBuyingPower float64 `json:"day_trading_buying_power"`
	MarginUsed            float64 `json:"margin_used"`
	UnrealizedPL          float64 `json:"unrealized_pl"`
	RealizedPL            float64 `json:"realized_pl"`
	TotalFees             float64 `json:"total_fees"`
}
