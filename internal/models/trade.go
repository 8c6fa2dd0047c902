package models

import "time"

// Trade is an immutable execution record. One filled order produces one trade.
type Trade struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Value      float64   `json:"value"`
	Fees       float64   `json:"fees"`
	ExecutedAt time.Time `json:"executed_at"`
}

// TradingStats summarizes trade history against the account.
type TradingStats struct {
	TotalTrades        int     `json:"total_trades"`
	WinningTrades      int     `json:"winning_trades"`
	LosingTrades       int     `json:"losing_trades"`
	WinRate            float64 `json:"win_rate"`
	AverageWin         float64 `json:"average_win"`
	AverageLoss        float64 `json:"average_loss"`
	ProfitFactor       float64 `json:"profit_factor"`
	TotalReturn        float64 `json:"total_return"`
	TotalReturnPercent float64 `json:"total_return_percent"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
}

// PositionClosed is the payload emitted when a holding is fully sold.
type PositionClosed struct {
	Symbol  string  `json:"symbol"`
	FinalPL float64 `json:"final_pl"`
}

// OrderFill is the payload emitted when an order executes.
type OrderFill struct {
	Order Order `json:"order"`
	Trade Trade `json:"trade"`
}
