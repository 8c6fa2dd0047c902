package notify

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"tradedesk/internal/logging"
	"tradedesk/internal/models"
	"tradedesk/internal/stream"
)

// SimulatorConfig holds configuration for the push connection simulator.
type SimulatorConfig struct {
	// ConnectDelay is how long Connect stays in connecting.
	ConnectDelay time.Duration
	// MinInterval and MaxInterval bound the random gap between messages.
	MinInterval time.Duration
	MaxInterval time.Duration
	// MaxReconnectAttempts caps reconnects after a connection issue.
	MaxReconnectAttempts int
	// SuccessRate is the chance each reconnect attempt succeeds.
	SuccessRate float64
	Clock       clock.Clock
	Rand        *rand.Rand
	Logger      zerolog.Logger
}

// DefaultSimulatorConfig returns the stock timings.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		ConnectDelay:         time.Second,
		MinInterval:          15 * time.Second,
		MaxInterval:          30 * time.Second,
		MaxReconnectAttempts: 5,
		SuccessRate:          0.7,
	}
}

// burst is the message schedule sent right after a connection opens.
var burst = []struct {
	after time.Duration
	kind  models.MessageType
}{
	{2 * time.Second, models.MessageUserActivity},
	{4 * time.Second, models.MessageAnalyticsUpdate},
	{6 * time.Second, models.MessageNotification},
}

var randomKinds = []models.MessageType{
	models.MessageUserActivity,
	models.MessageAnalyticsUpdate,
	models.MessageUserStatus,
	models.MessageNotification,
}

var sampleNotifications = []models.Notification{
	{Kind: "info", Title: "System Update", Message: "The system was updated successfully", Severity: "info"},
	{Kind: "warning", Title: "High CPU Usage", Message: "CPU usage is high (85%)", Severity: "warning"},
	{Kind: "success", Title: "Backup Complete", Message: "The backup finished successfully", Severity: "success"},
	{Kind: "error", Title: "Failed Login Attempt", Message: "Suspicious activity detected", Severity: "error"},
}

// Simulator mimics a push connection: it moves through connection states,
// delivers random messages while connected and reconnects with
// exponential backoff after a simulated failure. Status changes and
// messages go to separate buses.
type Simulator struct {
	cfg    SimulatorConfig
	clock  clock.Clock
	logger zerolog.Logger

	statusBus  *stream.Bus[models.ConnectionStatus]
	messageBus *stream.Bus[models.Message]

	// opMu serializes transitions and their events.
	opMu sync.Mutex

	mu       sync.Mutex
	rng      *rand.Rand
	status   models.ConnectionStatus
	attempts int
	gen      uint64
	timers   map[*clock.Timer]struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSimulator creates a disconnected simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	def := DefaultSimulatorConfig()
	if cfg.ConnectDelay <= 0 {
		cfg.ConnectDelay = def.ConnectDelay
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.SuccessRate <= 0 || cfg.SuccessRate > 1 {
		cfg.SuccessRate = def.SuccessRate
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := logging.WithComponent(cfg.Logger, "push-simulator")

	return &Simulator{
		cfg:        cfg,
		clock:      cfg.Clock,
		logger:     logger,
		statusBus:  stream.NewBus[models.ConnectionStatus]("connection-status", logger),
		messageBus: stream.NewBus[models.Message]("messages", logger),
		rng:        cfg.Rand,
		status:     models.StatusDisconnected,
		timers:     make(map[*clock.Timer]struct{}),
	}
}

// OnStatusChange registers a connection status listener.
func (s *Simulator) OnStatusChange(listener func(models.ConnectionStatus)) (unsubscribe func()) {
	return s.statusBus.Subscribe(listener)
}

// OnMessage registers a message listener.
func (s *Simulator) OnMessage(listener func(models.Message)) (unsubscribe func()) {
	return s.messageBus.Subscribe(listener)
}

// Status returns the current connection status.
func (s *Simulator) Status() models.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ReconnectAttempts returns the number of reconnects since the last
// successful connection.
func (s *Simulator) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Connect moves to connecting and, after the connect delay, to connected.
func (s *Simulator) Connect() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	gen := s.resetLocked()
	s.setStatus(models.StatusConnecting)
	s.after(s.cfg.ConnectDelay, gen, func() {
		s.mu.Lock()
		s.attempts = 0
		s.mu.Unlock()
		s.startUpdates(gen)
		s.setStatus(models.StatusConnected)
	})
}

// Disconnect drops the connection and cancels pending timers.
func (s *Simulator) Disconnect() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.resetLocked()
	s.setStatus(models.StatusDisconnected)
}

// SimulateConnectionIssue fails the connection and starts reconnecting.
func (s *Simulator) SimulateConnectionIssue() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	gen := s.resetLocked()
	s.setStatus(models.StatusError)
	s.attemptReconnect(gen)
}

// SendUserUpdate pushes a user update to message listeners when connected.
func (s *Simulator) SendUserUpdate(data any) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.send(models.Message{Type: models.MessageUserUpdate, Data: data, Timestamp: s.clock.Now()})
}

// Close stops every timer and waits for the message loop to exit.
func (s *Simulator) Close() {
	s.opMu.Lock()
	s.resetLocked()
	s.opMu.Unlock()
	s.wg.Wait()
}

// attemptReconnect waits 2^attempt seconds and then succeeds with the
// configured probability. Exhausted attempts leave the status at error.
// Caller holds opMu.
func (s *Simulator) attemptReconnect(gen uint64) {
	s.mu.Lock()
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.mu.Unlock()
		s.logger.Warn().Int("attempts", s.cfg.MaxReconnectAttempts).Msg("Giving up reconnecting")
		s.setStatus(models.StatusError)
		return
	}
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	s.logger.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("Reconnecting")

	defer s.setStatus(models.StatusConnecting)
	s.after(backoff, gen, func() {
		s.mu.Lock()
		ok := s.rng.Float64() < s.cfg.SuccessRate
		if ok {
			s.attempts = 0
		}
		s.mu.Unlock()

		if !ok {
			s.attemptReconnect(gen)
			return
		}
		s.startUpdates(gen)
		s.setStatus(models.StatusConnected)
	})
}

// resetLocked invalidates pending timers and the message loop and returns
// the new generation. Caller holds opMu.
func (s *Simulator) resetLocked() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*clock.Timer]struct{})
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return s.gen
}

// after runs fn under opMu once d has elapsed, unless the generation moved on.
func (s *Simulator) after(d time.Duration, gen uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t *clock.Timer
	t = s.clock.AfterFunc(d, func() {
		s.opMu.Lock()
		defer s.opMu.Unlock()

		s.mu.Lock()
		delete(s.timers, t)
		stale := gen != s.gen
		s.mu.Unlock()
		if !stale {
			fn()
		}
	})
	s.timers[t] = struct{}{}
}

// startUpdates schedules the opening burst and the periodic message loop.
// Caller holds opMu.
func (s *Simulator) startUpdates(gen uint64) {
	for _, b := range burst {
		kind := b.kind
		s.after(b.after, gen, func() { s.emit(kind) })
	}

	s.mu.Lock()
	spread := s.cfg.MaxInterval - s.cfg.MinInterval
	interval := s.cfg.MinInterval + time.Duration(s.rng.Float64()*float64(spread))
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	ticker := s.clock.Ticker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.opMu.Lock()
				s.mu.Lock()
				current := gen == s.gen
				kind := randomKinds[s.rng.Intn(len(randomKinds))]
				s.mu.Unlock()
				if current {
					s.emit(kind)
				}
				s.opMu.Unlock()
			}
		}
	}()
}

// emit builds a message of the given kind and sends it. Caller holds opMu.
func (s *Simulator) emit(kind models.MessageType) {
	s.mu.Lock()
	data := s.sampleLocked(kind)
	s.mu.Unlock()
	s.send(models.Message{Type: kind, Data: data, Timestamp: s.clock.Now()})
}

func (s *Simulator) sampleLocked(kind models.MessageType) any {
	switch kind {
	case models.MessageUserActivity:
		activities := []map[string]any{
			{"type": "login", "user": "Alice Morgan", "user_id": "1"},
			{"type": "logout", "user": "Ben Carter", "user_id": "2"},
			{"type": "profile_update", "user": "Chris Dalton", "user_id": "3"},
			{"type": "registration", "user": "New User", "user_id": "new"},
		}
		a := activities[s.rng.Intn(len(activities))]
		a["timestamp"] = s.clock.Now()
		return a
	case models.MessageAnalyticsUpdate:
		switch s.rng.Intn(3) {
		case 0:
			return map[string]any{"metric": "active_users", "value": s.rng.Intn(50) + 1000, "change": (s.rng.Float64() - 0.5) * 10}
		case 1:
			return map[string]any{"metric": "total_users", "value": s.rng.Intn(100) + 1200, "change": s.rng.Float64() * 5}
		default:
			return map[string]any{"metric": "new_registrations", "value": s.rng.Intn(20) + 80, "change": (s.rng.Float64() - 0.5) * 15}
		}
	case models.MessageUserStatus:
		statuses := []string{"active", "inactive", "pending"}
		return map[string]any{
			"user_id":    string(rune('1' + s.rng.Intn(5))),
			"status":     statuses[s.rng.Intn(len(statuses))],
			"updated_by": "system",
		}
	default:
		return sampleNotifications[s.rng.Intn(len(sampleNotifications))]
	}
}

// send delivers msg only while connected. Caller holds opMu.
func (s *Simulator) send(msg models.Message) {
	if s.Status() != models.StatusConnected {
		return
	}
	s.messageBus.Publish(msg)
}

// setStatus records and announces a status. Caller holds opMu.
func (s *Simulator) setStatus(status models.ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.logger.Debug().Str("status", string(status)).Msg("Connection status changed")
	s.statusBus.Publish(status)
}
