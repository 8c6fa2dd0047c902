// Package analytics simulates the engagement and platform metrics shown
// next to the trading desk. Metrics are generated once and their latest
// points drift on a ticker.
package analytics

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

const (
	historyDays  = 30
	driftFactor  = 0.05
	funnelOrigin = 10000
)

var funnelSteps = []string{
	"Landing Page Visit",
	"Sign Up Start",
	"Account Created",
	"Email Verified",
	"First Action",
	"Active User",
}

var topPages = []models.PageStat{
	{Page: "/dashboard", Views: 15420, AvgTime: 185, BounceRate: 23.5},
	{Page: "/users", Views: 12850, AvgTime: 245, BounceRate: 31.2},
	{Page: "/analytics", Views: 9640, AvgTime: 320, BounceRate: 18.7},
	{Page: "/settings", Views: 7230, AvgTime: 156, BounceRate: 42.1},
	{Page: "/reports", Views: 5940, AvgTime: 280, BounceRate: 25.8},
}

// band describes how a daily series is generated: value in [base, base+spread),
// change in ±changeWidth/2 and a previous value offset from the base.
type band struct {
	base, spread, changeWidth, prevBase float64
	whole                               bool
}

var (
	dailyActiveBand = band{base: 800, spread: 200, changeWidth: 20, prevBase: 780, whole: true}
	sessionBand     = band{base: 120, spread: 300, changeWidth: 30, prevBase: 115}
	bounceBand      = band{base: 30, spread: 40, changeWidth: 10, prevBase: 32}
	pagesBand       = band{base: 2, spread: 5, changeWidth: 1, prevBase: 1.9}
	conversionBand  = band{base: 2, spread: 10, changeWidth: 2, prevBase: 1.8}
	revenueBand     = band{base: 20000, spread: 50000, changeWidth: 10000, prevBase: 18000}
	pageLoadBand    = band{base: 0.5, spread: 2, changeWidth: 0.5, prevBase: 0.6}
	errorRateBand   = band{base: 0.1, spread: 2, changeWidth: 0.5, prevBase: 0.15}
	uptimeBand      = band{base: 99, spread: 1, changeWidth: 0.1, prevBase: 98.9}
)

// Config holds configuration for the analytics simulator.
type Config struct {
	Interval time.Duration
	Clock    clock.Clock
	Rand     *rand.Rand
	Logger   zerolog.Logger
}

// Simulator owns a Metrics snapshot and nudges it every interval.
type Simulator struct {
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger
	bus      *stream.Bus[models.Metrics]

	opMu sync.Mutex

	mu      sync.RWMutex
	rng     *rand.Rand
	metrics models.Metrics

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewSimulator creates a simulator with 30 days of generated metrics.
func NewSimulator(cfg Config) *Simulator {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := logging.WithComponent(cfg.Logger, "analytics")

	s := &Simulator{
		clock:    cfg.Clock,
		interval: cfg.Interval,
		logger:   logger,
		bus:      stream.NewBus[models.Metrics]("analytics", logger),
		rng:      cfg.Rand,
	}
	s.metrics = s.generate(s.clock.Now())
	return s
}

func (s *Simulator) generate(now time.Time) models.Metrics {
	dates := make([]string, historyDays)
	for i := range dates {
		dates[i] = now.AddDate(0, 0, -(historyDays - 1 - i)).Format("2006-01-02")
	}

	return models.Metrics{
		DailyActiveUsers:       s.series(dates, dailyActiveBand),
		AverageSessionDuration: s.series(dates, sessionBand),
		BounceRate:             s.series(dates, bounceBand),
		PagesPerSession:        s.series(dates, pagesBand),
		ConversionRate:         s.series(dates, conversionBand),
		Revenue:                s.series(dates, revenueBand),
		PageLoadTime:           s.series(dates, pageLoadBand),
		ErrorRate:              s.series(dates, errorRateBand),
		Uptime:                 s.series(dates, uptimeBand),
		TopPages:               append([]models.PageStat(nil), topPages...),
	}
}

func (s *Simulator) series(dates []string, b band) []models.TrendPoint {
	out := make([]models.TrendPoint, len(dates))
	for i, d := range dates {
		value := s.rng.Float64()*b.spread + b.base
		prev := s.rng.Float64()*b.spread + b.prevBase
		if b.whole {
			value = math.Floor(value)
			prev = math.Floor(prev)
		}
		out[i] = models.TrendPoint{
			Date:          d,
			Value:         value,
			Change:        (s.rng.Float64() - 0.5) * b.changeWidth,
			PreviousValue: prev,
		}
	}
	return out
}

// Subscribe registers a listener for metric snapshots.
func (s *Simulator) Subscribe(listener func(models.Metrics)) (unsubscribe func()) {
	return s.bus.Subscribe(listener)
}

// Start begins periodic updates. Calling Start twice is a no-op.
func (s *Simulator) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	ticker := s.clock.Ticker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Update()
			}
		}
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("Analytics simulator started")
	return nil
}

// Stop halts periodic updates.
func (s *Simulator) Stop() {
	s.lifeMu.Lock()
	if !s.running {
		s.lifeMu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.lifeMu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Analytics simulator stopped")
}

// Update moves the latest point of the engagement series by up to ±2.5%
// of its value and notifies subscribers.
func (s *Simulator) Update() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	for _, series := range []*[]models.TrendPoint{
		&s.metrics.DailyActiveUsers,
		&s.metrics.AverageSessionDuration,
		&s.metrics.BounceRate,
		&s.metrics.ConversionRate,
	} {
		data := *series
		if len(data) == 0 {
			continue
		}
		latest := &data[len(data)-1]
		change := (s.rng.Float64() - 0.5) * latest.Value * driftFactor
		latest.Value = math.Max(0, latest.Value+change)
		latest.Change = change
	}
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.bus.Publish(snapshot)
}

// Metrics returns a copy of the current metrics.
func (s *Simulator) Metrics() models.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Simulator) copyLocked() models.Metrics {
	m := s.metrics
	clone := func(in []models.TrendPoint) []models.TrendPoint {
		return append([]models.TrendPoint(nil), in...)
	}
	m.DailyActiveUsers = clone(m.DailyActiveUsers)
	m.AverageSessionDuration = clone(m.AverageSessionDuration)
	m.BounceRate = clone(m.BounceRate)
	m.PagesPerSession = clone(m.PagesPerSession)
	m.ConversionRate = clone(m.ConversionRate)
	m.Revenue = clone(m.Revenue)
	m.PageLoadTime = clone(m.PageLoadTime)
	m.ErrorRate = clone(m.ErrorRate)
	m.Uptime = clone(m.Uptime)
	m.TopPages = append([]models.PageStat(nil), m.TopPages...)
	return m
}

// ConversionFunnel derives a six step funnel from 10000 visitors, losing
// 10 to 40 percent of users at each step after the first.
func (s *Simulator) ConversionFunnel() []models.FunnelStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := funnelOrigin
	out := make([]models.FunnelStep, len(funnelSteps))
	for i, step := range funnelSteps {
		if i == 0 {
			out[i] = models.FunnelStep{Step: step, Users: users, ConversionRate: 100}
			continue
		}
		dropoff := 0.1 + s.rng.Float64()*0.3
		users = int(math.Floor(float64(users) * (1 - dropoff)))
		out[i] = models.FunnelStep{
			Step:           step,
			Users:          users,
			ConversionRate: float64(users) / funnelOrigin * 100,
			DropoffRate:    dropoff * 100,
		}
	}
	return out
}
