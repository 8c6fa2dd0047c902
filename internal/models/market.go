package models

import "time"

// MarketDatum is the normalized per-symbol record served by the market data layer.
type MarketDatum struct {
	Symbol           string     `json:"symbol"`
	Name             string     `json:"name"`
	Price            float64    `json:"price"`
	Change24h        float64    `json:"change_24h"`
	ChangePercent24h float64    `json:"change_percent_24h"`
	Volume24h        float64    `json:"volume_24h"`
	MarketCap        float64    `json:"market_cap"`
	Sparkline        []float64  `json:"sparkline"`
	LastUpdated      time.Time  `json:"last_updated"`
	Source           DataSource `json:"source"`
}

// Instrument is a tradable symbol tracked by the market poller.
type Instrument struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Kind          AssetKind `json:"kind"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        float64   `json:"volume"`
	MarketCap     float64   `json:"market_cap"`
	Sector        string    `json:"sector,omitempty"`
	Exchange      string    `json:"exchange,omitempty"`
	Rank          int       `json:"rank,omitempty"`
}

// PricePoint is one day of generated price history.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
}

// WatchlistItem is a symbol the user follows.
type WatchlistItem struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Kind          AssetKind `json:"kind"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	AddedAt       time.Time `json:"added_at"`
}

// APIHealth is the result of probing the market data provider.
type APIHealth struct {
	Status  string        `json:"status"` // healthy, degraded, down
	Latency time.Duration `json:"latency"`
}

// CacheStats describes the market data cache.
type CacheStats struct {
	Size        int       `json:"size"`
	Keys        []string  `json:"keys"`
	OldestEntry time.Time `json:"oldest_entry"`
}
