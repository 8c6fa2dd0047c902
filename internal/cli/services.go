package cli

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"tradedesk/internal/analytics"
	"tradedesk/internal/broker"
	"tradedesk/internal/config"
	"tradedesk/internal/errors"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/models"
	"tradedesk/internal/notify"
	"tradedesk/internal/resilience"
	"tradedesk/internal/server"
	"tradedesk/internal/store"
	"tradedesk/internal/stream"
	"tradedesk/pkg/utils"
)

// Services holds every running component of the desk.
type Services struct {
	Clock     clock.Clock
	Hub       *stream.Hub
	Market    *marketdata.Service
	Poller    *marketdata.Poller
	Broker    *broker.PaperBroker
	Analytics *analytics.Simulator
	Push      *notify.Simulator
	Notifier  *notify.MultiNotifier
	Journal   *store.Journal
	Recorder  *store.Recorder
	Health    *resilience.HealthMonitor

	logger      zerolog.Logger
	quotes      broker.PriceSource
	pollerMarks bool
	detach      []func()
	started     []func()
	shutdown    context.CancelFunc
}

// NewServices builds the components described by cfg. Nothing runs until Start.
func NewServices(cfg *config.Config, clk clock.Clock, logger zerolog.Logger) (*Services, error) {
	if clk == nil {
		clk = clock.New()
	}
	seed := clk.Now().UnixNano()
	s := &Services{
		Clock:  clk,
		Hub:    stream.NewHub(logger),
		logger: logger,
	}

	s.Market = marketdata.NewService(marketdata.ServiceConfig{
		Policy:        marketdata.SourcePolicy(cfg.MarketData.Policy),
		Feed:          newFeed(cfg.MarketData, clk, logger),
		Synthetic:     marketdata.NewSyntheticSource(clk, rand.New(rand.NewSource(seed))),
		CacheTTL:      cfg.MarketData.CacheTTL,
		CryptoSymbols: cfg.MarketData.CryptoSymbols,
		Clock:         clk,
		Logger:        logger,
	})

	if cfg.Poller.Enabled || cfg.UsesPollerPrices() {
		s.Poller = marketdata.NewPoller(marketdata.PollerConfig{
			Interval: cfg.Poller.Interval,
			Clock:    clk,
			Rand:     rand.New(rand.NewSource(seed + 1)),
			Logger:   logger,
		})
	}

	var prices broker.PriceSource = broker.NewSimulatedPrices(rand.New(rand.NewSource(seed + 2)))
	if cfg.UsesPollerPrices() {
		prices = s.Poller
	}
	s.quotes = prices
	s.pollerMarks = cfg.UsesPollerPrices()
	fees := broker.NewFeeSchedule(cfg.Trading.CommissionRate, cfg.Trading.FeeFloor, cfg.Trading.FeeCap)
	s.Broker = broker.NewPaperBroker(broker.PaperBrokerConfig{
		Clock:                 clk,
		Prices:                prices,
		FillStrategy:          broker.NewRandomFill(cfg.Trading.FillProbability, rand.New(rand.NewSource(seed+3))),
		Fees:                  &fees,
		Logger:                &logger,
		InitialCapital:        cfg.Account.InitialCapital,
		BuyingPower:           cfg.Account.BuyingPower,
		DayTradingBuyingPower: cfg.Account.DayTradingBuyingPower,
		SeedHistory:           cfg.Account.SeedHistory,
		MarketDelay:           cfg.Trading.MarketDelay,
		CheckDelay:            cfg.Trading.CheckDelay,
		CheckInterval:         cfg.Trading.CheckInterval,
		DayOrderTTL:           cfg.Trading.DayOrderTTL,
	})

	if cfg.Simulators.AnalyticsEnabled {
		s.Analytics = analytics.NewSimulator(analytics.Config{
			Interval: cfg.Simulators.AnalyticsInterval,
			Clock:    clk,
			Rand:     rand.New(rand.NewSource(seed + 4)),
			Logger:   logger,
		})
	}

	if cfg.Simulators.NotificationsEnabled {
		pc := notify.DefaultSimulatorConfig()
		pc.ConnectDelay = cfg.Simulators.ConnectDelay
		pc.MaxReconnectAttempts = cfg.Simulators.MaxReconnectAttempts
		pc.SuccessRate = cfg.Simulators.ReconnectSuccessRate
		pc.Clock = clk
		pc.Rand = rand.New(rand.NewSource(seed + 5))
		pc.Logger = logger
		s.Push = notify.NewSimulator(pc)
	}

	if cfg.Notifications.Enabled {
		s.Notifier = notify.NewMultiNotifier(&cfg.Notifications, logger)
	}

	if cfg.Journal.Enabled {
		journal, err := store.NewJournal(cfg.Journal.Path)
		if err != nil {
			return nil, errors.Wrap(err, "opening journal")
		}
		s.Journal = journal
	}

	s.Health = resilience.NewHealthMonitor(resilience.HealthMonitorConfig{
		CheckTimeout:       5 * time.Second,
		MemoryThresholdMB:  500,
		GoroutineThreshold: 1000,
		Clock:              clk,
		Logger:             logger,
	})
	s.registerHealth()

	return s, nil
}

func newFeed(cfg config.MarketDataConfig, clk clock.Clock, logger zerolog.Logger) marketdata.Feed {
	if marketdata.SourcePolicy(cfg.Policy) == marketdata.PolicySynthetic {
		return nil
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries
	retry.MaxDelay = cfg.MaxBackoff
	retry.AttemptTimeout = cfg.RequestTimeout
	retry.DefaultRetryAfter = cfg.DefaultRetryAfter
	retry.Clock = clk

	breaker := resilience.DefaultCircuitBreakerConfig()
	if cfg.BreakerFailures > 0 {
		breaker.FailureThreshold = cfg.BreakerFailures
	}
	if cfg.BreakerTimeout > 0 {
		breaker.Timeout = cfg.BreakerTimeout
	}
	breaker.Clock = clk

	return marketdata.NewCoinGeckoClient(marketdata.ClientConfig{
		BaseURL:    cfg.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Limiter:    marketdata.NewLimiter(cfg.MinInterval, clk),
		Breaker:    resilience.NewCircuitBreaker("coingecko", breaker),
		Retry:      retry,
		Clock:      clk,
		Logger:     logger,
	})
}

func (s *Services) registerHealth() {
	if journal := s.Journal; journal != nil {
		s.Health.RegisterComponent("journal", func(ctx context.Context) resilience.ComponentHealth {
			h := resilience.ComponentHealth{Name: "journal", Status: resilience.HealthStatusHealthy}
			if err := journal.Ping(ctx); err != nil {
				h.Status = resilience.HealthStatusUnhealthy
				h.Message = err.Error()
			}
			return h
		})
	}

	s.Health.RegisterComponent("market-data", func(ctx context.Context) resilience.ComponentHealth {
		api := s.Market.CheckAPIHealth(ctx)
		h := resilience.ComponentHealth{
			Name:    "market-data",
			Status:  resilience.HealthStatusHealthy,
			Latency: api.Latency,
			Details: map[string]any{"policy": s.Market.Policy(), "provider": api.Status},
		}
		// Synthetic records keep the desk usable when the provider is down.
		if api.Status != "healthy" && s.Market.Policy() != marketdata.PolicySynthetic {
			h.Status = resilience.HealthStatusDegraded
			h.Message = "provider " + api.Status
		}
		return h
	})
}

// Start wires the buses to the hub, journal and notifier, then starts
// every component. Stop undoes it in reverse.
func (s *Services) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.shutdown = cancel

	if err := s.Hub.Start(runCtx); err != nil {
		cancel()
		return errors.Wrap(err, "starting hub")
	}
	s.started = append(s.started, s.Hub.Stop)

	s.bridge(runCtx)

	if s.Journal != nil {
		s.Recorder = store.NewRecorder(runCtx, s.Journal, s.logger)
		s.Recorder.AttachTrading(s.Broker)
		if s.Poller != nil {
			s.Recorder.AttachMarket(s.Poller)
		}
	}
	if s.Notifier != nil {
		s.detach = append(s.detach, s.Notifier.Attach(runCtx, s.Broker))
	}

	if s.Poller != nil {
		if err := s.Poller.Start(runCtx); err != nil {
			s.Stop()
			return errors.Wrap(err, "starting poller")
		}
		s.started = append(s.started, s.Poller.Stop)
	}
	if err := s.Broker.Start(runCtx); err != nil {
		s.Stop()
		return errors.Wrap(err, "starting broker")
	}
	s.started = append(s.started, s.Broker.Stop)

	if s.Analytics != nil {
		if err := s.Analytics.Start(runCtx); err != nil {
			s.Stop()
			return errors.Wrap(err, "starting analytics")
		}
		s.started = append(s.started, s.Analytics.Stop)
	}
	if s.Push != nil {
		s.Push.Connect()
		s.started = append(s.started, s.Push.Close)
	}

	s.logger.Info().
		Str("market_policy", string(s.Market.Policy())).
		Bool("poller", s.Poller != nil).
		Bool("journal", s.Journal != nil).
		Msg("Services started")
	return nil
}

// bridge forwards every service bus to the hub and marks positions to
// market on every poller tick.
func (s *Services) bridge(ctx context.Context) {
	s.detach = append(s.detach, stream.Forward(s.Broker.Bus(), s.Hub, stream.TopicTrading,
		func(e broker.Event) (string, any, time.Time) { return string(e.Type), e.Data, e.Timestamp }))

	if s.Poller != nil {
		s.detach = append(s.detach, stream.Forward(s.Poller.Bus(), s.Hub, stream.TopicMarket,
			func(e marketdata.Event) (string, any, time.Time) { return string(e.Type), e.Data, e.Timestamp }))
		s.detach = append(s.detach, s.bridgePrices(ctx))
	}

	if s.Analytics != nil {
		s.detach = append(s.detach, s.Analytics.Subscribe(func(m models.Metrics) {
			s.Hub.Publish(stream.NewEnvelope(stream.TopicAnalytics, "metrics-update", m, s.Clock.Now()))
		}))
	}

	if s.Push != nil {
		s.detach = append(s.detach,
			s.Push.OnMessage(func(m models.Message) {
				s.Hub.Publish(stream.NewEnvelope(stream.TopicNotifications, string(m.Type), m.Data, m.Timestamp))
			}),
			s.Push.OnStatusChange(func(st models.ConnectionStatus) {
				s.Hub.Publish(stream.NewEnvelope(stream.TopicNotifications, "connection-status", st, s.Clock.Now()))
			}),
		)
	}
}

// bridgePrices reprices positions from a goroutine; bus listeners must
// not call the engine's mutating methods inline. Only the newest snapshot
// is kept when the engine falls behind.
func (s *Services) bridgePrices(ctx context.Context) (detach func()) {
	latest := make(chan marketdata.PriceUpdate, 1)
	unsubscribe := s.Poller.Subscribe(func(e marketdata.Event) {
		update, ok := e.Data.(marketdata.PriceUpdate)
		if e.Type != marketdata.EventPriceUpdate || !ok {
			return
		}
		select {
		case <-latest:
		default:
		}
		latest <- update
	})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case update := <-latest:
				s.Broker.UpdatePositionPrices(s.markPrices(ctx, update))
			}
		}
	}()

	return func() {
		unsubscribe()
		close(stop)
		<-done
	}
}

// markPrices returns the prices positions are marked at: the poller's
// snapshot when it feeds the engine, otherwise a fresh quote per holding
// from the engine's own price source.
func (s *Services) markPrices(ctx context.Context, update marketdata.PriceUpdate) map[string]float64 {
	if s.pollerMarks {
		return update.Prices()
	}
	out := make(map[string]float64)
	for _, pos := range s.Broker.GetPositions() {
		price, err := s.quotes.Quote(ctx, pos.Symbol)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", pos.Symbol).Msg("Mark skipped, no price")
			continue
		}
		out[pos.Symbol] = price
	}
	return out
}

// Stop halts every component and closes the journal. It is safe to call
// more than once.
func (s *Services) Stop() {
	for i := len(s.started) - 1; i >= 0; i-- {
		s.started[i]()
	}
	s.started = nil

	for _, fn := range s.detach {
		fn()
	}
	s.detach = nil

	if s.Recorder != nil {
		s.Recorder.Close()
		if n := s.Recorder.Dropped(); n > 0 {
			s.logger.Warn().Int("dropped", n).Msg("Journal dropped events")
		}
		s.Recorder = nil
	}
	if s.shutdown != nil {
		s.shutdown()
		s.shutdown = nil
	}
	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Closing journal")
		}
		s.Journal = nil
	}
}

// Deps returns the API dependencies.
func (s *Services) Deps() server.Deps {
	deps := server.Deps{
		Broker:    s.Broker,
		Market:    s.Market,
		Poller:    s.Poller,
		Analytics: s.Analytics,
		Hub:       s.Hub,
		Health:    s.Health,
		Logger:    s.logger,
	}
	// Journal stays a nil interface when disabled.
	if s.Journal != nil {
		deps.Journal = s.Journal
	}
	return deps
}
