// Package stream provides in-process event delivery: a synchronous
// per-service Bus and a channel-based Hub that fans events out to
// stream clients.
package stream

import (
	"sync"

	"github.com/rs/zerolog"
)

// Bus is a synchronous publish/subscribe channel owned by a single service.
//
// Publish delivers the event to every listener in subscription order
// before returning. Publishes are serialized, so listeners observe events
// in publish order. A panicking listener is logged and skipped; the
// remaining listeners still receive the event.
//
// Listeners may subscribe or unsubscribe during delivery. They must not
// call Publish on the same bus synchronously.
type Bus[E any] struct {
	name   string
	logger zerolog.Logger

	pubMu sync.Mutex

	mu        sync.RWMutex
	listeners []*listener[E]
	nextID    uint64
}

type listener[E any] struct {
	id uint64
	fn func(E)
}

// NewBus creates an empty bus. The name is attached to panic logs.
func NewBus[E any](name string, logger zerolog.Logger) *Bus[E] {
	return &Bus[E]{
		name:   name,
		logger: logger.With().Str("bus", name).Logger(),
	}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, &listener[E]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[E]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Publish delivers event to all current listeners.
func (b *Bus[E]) Publish(event E) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.RLock()
	snapshot := make([]*listener[E], len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, l := range snapshot {
		b.deliver(l, event)
	}
}

func (b *Bus[E]) deliver(l *listener[E], event E) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Uint64("listener", l.id).
				Msg("Event listener panicked")
		}
	}()
	l.fn(event)
}

// Len returns the number of registered listeners.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Clear removes every listener.
func (b *Bus[E]) Clear() {
	b.mu.Lock()
	b.listeners = nil
	b.mu.Unlock()
}

// Name returns the bus name.
func (b *Bus[E]) Name() string {
	return b.name
}
