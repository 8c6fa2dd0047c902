package broker

import "time"

// EventType identifies a trading event.
type EventType string

const (
	EventOrderPlaced      EventType = "order-placed"
	EventOrderFilled      EventType = "order-filled"
	EventOrderCancelled   EventType = "order-cancelled"
	EventOrderExpired     EventType = "order-expired"
	EventPositionOpened   EventType = "position-opened"
	EventPositionClosed   EventType = "position-closed"
	EventPositionsUpdated EventType = "positions-updated"
	EventBalanceUpdated   EventType = "balance-updated"
)

// Event is delivered to trading subscribers. Data holds a copy:
//
//	order-placed, order-cancelled, order-expired  models.Order
//	order-filled                                  models.OrderFill
//	position-opened                               models.Position
//	position-closed                               models.PositionClosed
//	positions-updated                             []models.Position
//	balance-updated                               models.Account
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}
