// Package models provides domain models for the trading desk.
package models

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is known.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop-limit"
)

// Valid reports whether the order type is known.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
		return true
	}
	return false
}

// NeedsLimitPrice reports whether orders of this type carry a limit price.
func (t OrderType) NeedsLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// NeedsStopPrice reports whether orders of this type carry a stop price.
func (t OrderType) NeedsStopPrice() bool {
	return t == OrderTypeStop || t == OrderTypeStopLimit
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusExpired
}

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// Valid reports whether the time in force is known.
func (t TimeInForce) Valid() bool {
	switch t {
	case TimeInForceGTC, TimeInForceDay, TimeInForceIOC, TimeInForceFOK:
		return true
	}
	return false
}

// Immediate reports whether an unfilled order must be cancelled after its first check.
func (t TimeInForce) Immediate() bool {
	return t == TimeInForceIOC || t == TimeInForceFOK
}

// PositionSide is the direction of a holding. Only long is modeled.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// AssetKind distinguishes the instrument families the poller tracks.
type AssetKind string

const (
	AssetStock  AssetKind = "stock"
	AssetCrypto AssetKind = "crypto"
)

// DataSource tags where a market record came from.
type DataSource string

const (
	SourceLive     DataSource = "live"
	SourceMock     DataSource = "mock"
	SourceDegraded DataSource = "degraded"
)
