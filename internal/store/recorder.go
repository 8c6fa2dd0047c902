package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradedesk/internal/broker"
	"tradedesk/internal/logging"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
)

const (
	ServiceTrading = "trading"
	ServiceMarket  = "market"

	recorderQueueSize = 256
)

// TradingSource publishes broker events.
type TradingSource interface {
	Subscribe(listener func(broker.Event)) (unsubscribe func())
}

// MarketSource publishes poller events.
type MarketSource interface {
	Subscribe(listener func(marketdata.Event)) (unsubscribe func())
}

type entry struct {
	service string
	kind    string
	payload any
	at      time.Time
	trade   *models.Trade
}

// Recorder journals events from the trading and market buses. Writes
// happen on a single background goroutine in publish order.
type Recorder struct {
	store  EventStore
	logger zerolog.Logger
	ctx    context.Context

	mu      sync.Mutex
	closed  bool
	queue   chan entry
	detach  []func()
	done    chan struct{}
	dropped int
}

// NewRecorder starts a recorder writing to store. Writes keep ctx's values
// but not its cancellation: Close drains the queue even after ctx is done.
func NewRecorder(ctx context.Context, store EventStore, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		logger: logging.WithComponent(logger, "journal"),
		ctx:    context.WithoutCancel(ctx),
		queue:  make(chan entry, recorderQueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// AttachTrading records every trading event, plus the trade carried by
// each order-filled event.
func (r *Recorder) AttachTrading(src TradingSource) {
	r.track(src.Subscribe(func(ev broker.Event) {
		e := entry{service: ServiceTrading, kind: string(ev.Type), payload: ev.Data, at: ev.Timestamp}
		if fill, ok := ev.Data.(models.OrderFill); ok {
			t := fill.Trade
			e.trade = &t
		}
		r.enqueue(e)
	}))
}

// AttachMarket records watchlist changes. Price ticks are not journaled.
func (r *Recorder) AttachMarket(src MarketSource) {
	r.track(src.Subscribe(func(ev marketdata.Event) {
		if ev.Type != marketdata.EventWatchlistUpdate {
			return
		}
		r.enqueue(entry{service: ServiceMarket, kind: string(ev.Type), payload: ev.Data, at: ev.Timestamp})
	}))
}

func (r *Recorder) track(unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		unsubscribe()
		return
	}
	r.detach = append(r.detach, unsubscribe)
}

func (r *Recorder) enqueue(e entry) {
	if e.at.IsZero() {
		e.at = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.dropped++
		r.logger.Warn().Str("event", e.kind).Msg("Journal queue full, dropping event")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.store.RecordEvent(r.ctx, e.service, e.kind, e.payload, e.at); err != nil {
			r.logger.Error().Err(err).Str("event", e.kind).Msg("Failed to journal event")
		}
		if e.trade != nil {
			if err := r.store.RecordTrade(r.ctx, *e.trade); err != nil {
				r.logger.Error().Err(err).Str("trade_id", e.trade.ID).Msg("Failed to journal trade")
			}
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close detaches from every source and waits for queued writes to finish.
// It does not close the store.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	detach := r.detach
	r.detach = nil
	r.mu.Unlock()

	for _, fn := range detach {
		fn()
	}

	r.mu.Lock()
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}
