package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topics published on the hub, one per service bus.
const (
	TopicTrading       = "trading"
	TopicMarket        = "market"
	TopicAnalytics     = "analytics"
	TopicNotifications = "notifications"
)

// AllTopics subscribes to every topic.
const AllTopics = "*"

// Envelope is a service event prepared for stream clients.
type Envelope struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope wraps an event under topic with a fresh id.
func NewEnvelope(topic, eventType string, data any, ts time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Topic:     topic,
		Type:      eventType,
		Data:      data,
		Timestamp: ts,
	}
}

// HubConfig holds configuration for the Stream Hub.
type HubConfig struct {
	// BufferSize is the size of the internal envelope channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of drops before a subscriber is logged as slow.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:                1000,
		SubscriberBufferSize:      100,
		SlowConsumerDropThreshold: 10,
	}
}

// Hub distributes envelopes to channel subscribers and registered consumers.
// Publishing never blocks: when a buffer is full the envelope is dropped
// for that receiver and counted.
type Hub struct {
	config      HubConfig
	logger      zerolog.Logger
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	in          chan Envelope
	done        chan struct{}
	started     bool
	consumers   []Consumer
	consumersMu sync.RWMutex

	// Metrics
	received  uint64
	broadcast uint64
	dropped   uint64
	metricsMu sync.RWMutex
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Topic        string
	Channel      chan Envelope
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a new stream hub with default configuration.
func NewHub(logger zerolog.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a new stream hub with custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	return &Hub{
		config:      config,
		logger:      logger.With().Str("component", "hub").Logger(),
		subscribers: make(map[string][]*Subscriber),
		in:          make(chan Envelope, config.BufferSize),
		consumers:   make([]Consumer, 0),
	}
}

// Start begins the hub's distribution loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go h.loop(ctx, done)
	return nil
}

func (h *Hub) loop(ctx context.Context, done chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case env := <-h.in:
			h.metricsMu.Lock()
			h.received++
			h.metricsMu.Unlock()

			h.fanOut(env)
			h.notifyConsumers(env)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}

	close(h.done)
	h.started = false

	for topic, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, topic)
	}
}

// Subscribe returns a channel receiving envelopes for topic.
// Use AllTopics to receive everything.
func (h *Hub) Subscribe(topic string) <-chan Envelope {
	return h.SubscribeWithID(topic, uuid.NewString())
}

// SubscribeWithID adds a subscriber with a specific ID for a topic.
func (h *Hub) SubscribeWithID(topic, id string) <-chan Envelope {
	if topic == "" {
		topic = AllTopics
	}
	ch := make(chan Envelope, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		Topic:     topic,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[topic] = append(h.subscribers[topic], sub)
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel for a topic and closes it.
func (h *Hub) Unsubscribe(topic string, ch <-chan Envelope) {
	if topic == "" {
		topic = AllTopics
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[topic]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}

	if len(h.subscribers[topic]) == 0 {
		delete(h.subscribers, topic)
	}
}

// Publish queues env for distribution. It never blocks.
func (h *Hub) Publish(env Envelope) {
	select {
	case h.in <- env:
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
	}
}

// fanOut sends env to the topic's subscribers and to wildcard subscribers.
// The read lock is held for the sends so Stop cannot close a channel mid-send.
func (h *Hub) fanOut(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := append([]*Subscriber(nil), h.subscribers[env.Topic]...)
	if env.Topic != AllTopics {
		targets = append(targets, h.subscribers[AllTopics]...)
	}

	for _, sub := range targets {
		select {
		case sub.Channel <- env:
			h.metricsMu.Lock()
			h.broadcast++
			h.metricsMu.Unlock()
		default:
			sub.DroppedCount++
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
			if h.config.SlowConsumerDropThreshold > 0 && sub.DroppedCount == h.config.SlowConsumerDropThreshold {
				h.logger.Warn().
					Str("subscriber", sub.ID).
					Str("topic", sub.Topic).
					Msg("Slow stream subscriber, dropping envelopes")
			}
		}
	}
}

// GetSubscriberCount returns the number of subscribers for a topic.
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}

// GetTotalSubscriberCount returns the total number of subscribers across all topics.
func (h *Hub) GetTotalSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subs := range h.subscribers {
		count += len(subs)
	}
	return count
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	subscribers := h.GetTotalSubscriberCount()

	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	return HubMetrics{
		Received:    h.received,
		Broadcast:   h.broadcast,
		Dropped:     h.dropped,
		Subscribers: subscribers,
	}
}

// HubMetrics contains hub performance metrics.
type HubMetrics struct {
	Received    uint64 `json:"received"`
	Broadcast   uint64 `json:"broadcast"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// IsStarted returns whether the hub is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

// Consumer processes envelopes on the hub's distribution goroutine.
type Consumer interface {
	// OnEnvelope is called for every envelope on a matching topic.
	OnEnvelope(env Envelope)
	// Topics returns the topics this consumer is interested in.
	// Return nil or empty slice to receive all envelopes.
	Topics() []string
}

// RegisterConsumer adds a consumer. Consumers are called in registration
// order, one envelope at a time, so they see envelopes in publish order.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.consumersMu.Unlock()
}

// UnregisterConsumer removes a consumer.
func (h *Hub) UnregisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()

	for i, c := range h.consumers {
		if c == consumer {
			h.consumers = append(h.consumers[:i:i], h.consumers[i+1:]...)
			break
		}
	}
}

func (h *Hub) notifyConsumers(env Envelope) {
	h.consumersMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consumersMu.RUnlock()

	for _, consumer := range consumers {
		topics := consumer.Topics()
		if len(topics) == 0 || containsTopic(topics, env.Topic) {
			h.safeConsume(consumer, env)
		}
	}
}

func (h *Hub) safeConsume(consumer Consumer, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("topic", env.Topic).Msg("Hub consumer panicked")
		}
	}()
	consumer.OnEnvelope(env)
}

func containsTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}

// ConsumerFunc is a function adapter for Consumer interface.
type ConsumerFunc struct {
	topics []string
	fn     func(Envelope)
}

// NewConsumerFunc creates a new ConsumerFunc.
func NewConsumerFunc(topics []string, fn func(Envelope)) *ConsumerFunc {
	return &ConsumerFunc{
		topics: topics,
		fn:     fn,
	}
}

// OnEnvelope implements Consumer.
func (c *ConsumerFunc) OnEnvelope(env Envelope) {
	if c.fn != nil {
		c.fn(env)
	}
}

// Topics implements Consumer.
func (c *ConsumerFunc) Topics() []string {
	return c.topics
}

// Forward republishes every event of bus on the hub under topic.
// convert extracts the event type, payload and time.
func Forward[E any](bus *Bus[E], hub *Hub, topic string, convert func(E) (string, any, time.Time)) (unsubscribe func()) {
	return bus.Subscribe(func(e E) {
		typ, data, ts := convert(e)
		hub.Publish(NewEnvelope(topic, typ, data, ts))
	})
}
