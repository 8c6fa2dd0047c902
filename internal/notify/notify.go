// Package notify forwards trading events to notification channels and
// hosts the simulated push connection used by the dashboard stream.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradedesk/internal/broker"
	"tradedesk/internal/config"
	"tradedesk/internal/logging"
	"tradedesk/internal/models"
	"tradedesk/internal/security"
	"tradedesk/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendTrade(ctx context.Context, fill models.OrderFill) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrade NotificationType = "trade"
	NotificationAlert NotificationType = "alert"
	NotificationError NotificationType = "error"
	NotificationInfo  NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// EventSource is anything publishing trading events, such as the paper broker.
type EventSource interface {
	Subscribe(listener func(broker.Event)) (unsubscribe func())
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	logger   zerolog.Logger
	now      func() time.Time
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier with a log channel and, when
// configured, a webhook channel.
func NewMultiNotifier(cfg *config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	logger = logging.WithComponent(logger, "notifier")
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0, 2),
		level:    NotificationLevel(cfg.Level),
		logger:   logger,
		now:      time.Now,
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	mn.channels = append(mn.channels, NewLogChannel(logger))
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookChannel(cfg.Webhook))
		logger.Info().Str("url", security.MaskURL(cfg.Webhook.URL)).Msg("Webhook notifications enabled")
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Level returns the active level filter.
func (mn *MultiNotifier) Level() NotificationLevel {
	return mn.level
}

// shouldSend checks if a notification should be sent based on the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return notifType == NotificationTrade
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = mn.now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendTrade sends a trade notification.
func (mn *MultiNotifier) SendTrade(ctx context.Context, fill models.OrderFill) error {
	t := fill.Trade
	title := fmt.Sprintf("Trade Executed: %s %s", strings.ToUpper(string(t.Side)), t.Symbol)
	message := fmt.Sprintf(
		"Symbol: %s\nSide: %s\nQuantity: %s\nPrice: %s\nValue: %s\nFees: %s",
		t.Symbol,
		t.Side,
		utils.FormatQuantity(t.Quantity),
		utils.FormatCurrency(t.Price),
		utils.FormatCurrency(t.Value),
		utils.FormatCurrency(t.Fees),
	)

	return mn.Send(ctx, Notification{
		Type:    NotificationTrade,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"order_id": fill.Order.ID,
			"trade_id": t.ID,
			"symbol":   t.Symbol,
			"side":     t.Side,
			"quantity": t.Quantity,
			"price":    t.Price,
			"value":    t.Value,
			"fees":     t.Fees,
		},
		Timestamp: t.ExecutedAt,
	})
}

// SendPositionClosed sends a realized P&L notification.
func (mn *MultiNotifier) SendPositionClosed(ctx context.Context, closed models.PositionClosed) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationTrade,
		Title:   fmt.Sprintf("Position Closed: %s", closed.Symbol),
		Message: fmt.Sprintf("Symbol: %s\nRealized P&L: %s", closed.Symbol, utils.FormatPnL(closed.FinalPL)),
		Data: map[string]interface{}{
			"symbol":   closed.Symbol,
			"final_pl": closed.FinalPL,
		},
	})
}

// SendOrderCancelled sends an alert for a cancelled order.
func (mn *MultiNotifier) SendOrderCancelled(ctx context.Context, order models.Order) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationAlert,
		Title:   fmt.Sprintf("Order Cancelled: %s %s", strings.ToUpper(string(order.Side)), order.Symbol),
		Message: fmt.Sprintf("Order %s for %s %s was cancelled", order.ID, utils.FormatQuantity(order.Quantity), order.Symbol),
		Data: map[string]interface{}{
			"order_id": order.ID,
			"symbol":   order.Symbol,
			"side":     order.Side,
			"quantity": order.Quantity,
		},
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Error Occurred",
		Message: fmt.Sprintf("Context: %s\nError: %v", errContext, err),
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// Attach forwards order-filled, position-closed and order-cancelled events
// from src. Delivery runs on its own goroutine so slow channels never hold
// up the publisher. The returned function detaches and waits for queued
// notifications to drain.
func (mn *MultiNotifier) Attach(ctx context.Context, src EventSource) (detach func()) {
	queue := make(chan broker.Event, 64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range queue {
			if err := mn.dispatch(ctx, ev); err != nil {
				mn.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Notification failed")
			}
		}
	}()

	var mu sync.Mutex
	closed := false
	unsubscribe := src.Subscribe(func(ev broker.Event) {
		switch ev.Type {
		case broker.EventOrderFilled, broker.EventPositionClosed, broker.EventOrderCancelled:
		default:
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case queue <- ev:
		default:
			mn.logger.Warn().Str("event", string(ev.Type)).Msg("Notification queue full, dropping event")
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(queue)
			mu.Unlock()
			<-done
		})
	}
}

func (mn *MultiNotifier) dispatch(ctx context.Context, ev broker.Event) error {
	switch data := ev.Data.(type) {
	case models.OrderFill:
		return mn.SendTrade(ctx, data)
	case models.PositionClosed:
		return mn.SendPositionClosed(ctx, data)
	case models.Order:
		return mn.SendOrderCancelled(ctx, data)
	default:
		return fmt.Errorf("unexpected payload %T for %s", ev.Data, ev.Type)
	}
}

// LogChannel writes notifications to the structured log.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a LogChannel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Name returns the name of the channel.
func (l *LogChannel) Name() string {
	return "log"
}

// IsEnabled returns whether the channel is enabled.
func (l *LogChannel) IsEnabled() bool {
	return true
}

// Send logs the notification.
func (l *LogChannel) Send(_ context.Context, n Notification) error {
	ev := l.logger.Info()
	if n.Type == NotificationError {
		ev = l.logger.Error()
	}
	ev.Str("type", string(n.Type)).
		Fields(n.Data).
		Time("at", n.Timestamp).
		Msg(n.Title)
	return nil
}

// WebhookChannel sends notifications via HTTP webhook.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookChannel creates a new WebhookChannel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the channel.
func (w *WebhookChannel) Name() string {
	return "webhook"
}

// IsEnabled returns whether the channel is enabled.
func (w *WebhookChannel) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tradedesk/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

var _ Notifier = (*MultiNotifier)(nil)
