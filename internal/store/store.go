// Package store persists the trading journal: every service event and
// every executed trade.
package store

import (
	"context"
	"encoding/json"
	"time"

	"tradedesk/internal/models"
)

// EventStore defines the interface for journal persistence.
type EventStore interface {
	// Events
	RecordEvent(ctx context.Context, service, eventType string, payload any, at time.Time) error
	ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error)

	// Trades
	RecordTrade(ctx context.Context, trade models.Trade) error
	ListTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// EventRecord is one journaled event.
type EventRecord struct {
	ID        int64           `json:"id"`
	Service   string          `json:"service"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventFilter represents filters for querying events. Results are newest first.
type EventFilter struct {
	Service string
	Type    string
	Since   time.Time
	Limit   int
}
