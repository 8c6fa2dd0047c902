package marketdata

import (
	"time"

	"tradedesk/internal/models"
)

// EventType identifies a poller event.
type EventType string

const (
	EventPriceUpdate     EventType = "price-update"
	EventWatchlistUpdate EventType = "watchlist-update"
)

// Event is delivered to poller subscribers. Data is a PriceUpdate for
// price-update and a []models.WatchlistItem for watchlist-update.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceUpdate is the snapshot published after every poll.
type PriceUpdate struct {
	Stocks []models.Instrument `json:"stocks"`
	Crypto []models.Instrument `json:"crypto"`
}

// Prices flattens the snapshot to symbol → price.
func (u PriceUpdate) Prices() map[string]float64 {
	out := make(map[string]float64, len(u.Stocks)+len(u.Crypto))
	for _, i := range u.Stocks {
		out[i.Symbol] = i.Price
	}
	for _, i := range u.Crypto {
		out[i.Symbol] = i.Price
	}
	return out
}
