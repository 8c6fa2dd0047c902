package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradedesk/internal/errors"
	"tradedesk/internal/models"
)

// MemoryPath keeps the journal in memory for the life of the process.
const MemoryPath = ":memory:"

// Journal implements EventStore using SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

// NewJournal opens or creates the journal at dbPath. An empty path or
// MemoryPath uses an in-memory database.
func NewJournal(dbPath string) (*Journal, error) {
	if dbPath == "" {
		dbPath = MemoryPath
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == MemoryPath {
		dsn = dbPath + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	j := &Journal{db: db, path: dbPath}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// initSchema creates all required tables and indexes.
func (j *Journal) initSchema() error {
	schema := `
	-- Every event published by a service
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service TEXT NOT NULL,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	-- Executed trades
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		name TEXT,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		value REAL NOT NULL,
		fees REAL NOT NULL,
		executed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_service_type ON events(service, type);
	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_executed ON trades(executed_at);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Path returns the database location.
func (j *Journal) Path() string {
	return j.path
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return errors.Wrap(errors.ErrDatabaseError, err.Error())
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ============================================================================
// Events Methods
// ============================================================================

// RecordEvent stores payload as JSON.
func (j *Journal) RecordEvent(ctx context.Context, service, eventType string, payload any, at time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events (service, type, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, service, eventType, string(body), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListEvents retrieves events, newest first.
func (j *Journal) ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Service != "" {
		where = append(where, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT id, service, type, payload, created_at FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var (
			e       EventRecord
			payload string
		)
		if err := rows.Scan(&e.ID, &e.Service, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// ============================================================================
// Trades Methods
// ============================================================================

// RecordTrade saves a trade. Recording the same trade twice is a no-op.
func (j *Journal) RecordTrade(ctx context.Context, t models.Trade) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades (id, order_id, symbol, name, side, quantity, price, value, fees, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OrderID, t.Symbol, t.Name, string(t.Side), t.Quantity, t.Price, t.Value, t.Fees, t.ExecutedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

// ListTrades retrieves trades newest first. An empty symbol matches all
// symbols and a non-positive limit returns everything.
func (j *Journal) ListTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	query := "SELECT id, order_id, symbol, name, side, quantity, price, value, fees, executed_at FROM trades"
	args := []interface{}{}

	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY executed_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		var (
			t    models.Trade
			name sql.NullString
			side string
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &name, &side, &t.Quantity, &t.Price, &t.Value, &t.Fees, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Name = name.String
		t.Side = models.OrderSide(side)
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

var _ EventStore = (*Journal)(nil)
