package resilience

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string         `json:"name"`
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	LastCheck time.Time      `json:"last_check"`
	Latency   time.Duration  `json:"latency"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthMonitorConfig holds health monitor configuration.
type HealthMonitorConfig struct {
	CheckTimeout       time.Duration
	MemoryThresholdMB  uint64
	GoroutineThreshold int
	Clock              clock.Clock
	Logger             zerolog.Logger
}

// DefaultHealthMonitorConfig returns default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckTimeout:       5 * time.Second,
		MemoryThresholdMB:  500,
		GoroutineThreshold: 1000,
		Logger:             zerolog.Nop(),
	}
}

// HealthMonitor runs registered component checks on demand.
type HealthMonitor struct {
	mu sync.RWMutex

	checkTimeout       time.Duration
	memoryThreshold    uint64
	goroutineThreshold int
	clock              clock.Clock
	logger             zerolog.Logger

	startTime       time.Time
	components      map[string]HealthCheck
	componentHealth map[string]ComponentHealth
	overallStatus   HealthStatus

	totalChecks     int64
	failedChecks    int64
	panicRecoveries int64
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor(config HealthMonitorConfig) *HealthMonitor {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 5 * time.Second
	}
	return &HealthMonitor{
		checkTimeout:       config.CheckTimeout,
		memoryThreshold:    config.MemoryThresholdMB * 1024 * 1024,
		goroutineThreshold: config.GoroutineThreshold,
		clock:              clk,
		logger:             config.Logger,
		startTime:          clk.Now(),
		components:         make(map[string]HealthCheck),
		componentHealth:    make(map[string]ComponentHealth),
		overallStatus:      HealthStatusUnknown,
	}
}

// RegisterComponent registers a health check for a component.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// Check runs every component check concurrently plus the runtime checks
// and returns the aggregated report.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	components := make(map[string]HealthCheck, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(components)+2)

	for name, check := range components {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()
			defer m.recoverPanic(n, results)

			start := m.clock.Now()
			health := c(ctx)
			health.Name = n
			health.LastCheck = m.clock.Now()
			if health.Latency == 0 {
				health.Latency = m.clock.Since(start)
			}
			results <- health
		}(name, check)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		results <- m.checkMemory()
	}()
	go func() {
		defer wg.Done()
		results <- m.checkGoroutines()
	}()

	wg.Wait()
	close(results)

	m.mu.Lock()
	m.totalChecks++
	hasUnhealthy := false
	hasDegraded := false
	for health := range results {
		m.componentHealth[health.Name] = health
		switch health.Status {
		case HealthStatusUnhealthy:
			hasUnhealthy = true
			m.failedChecks++
			m.logger.Warn().Str("component", health.Name).Str("message", health.Message).Msg("Component unhealthy")
		case HealthStatusDegraded:
			hasDegraded = true
		}
	}

	switch {
	case hasUnhealthy:
		m.overallStatus = HealthStatusUnhealthy
	case hasDegraded:
		m.overallStatus = HealthStatusDegraded
	default:
		m.overallStatus = HealthStatusHealthy
	}
	m.mu.Unlock()

	return m.GetHealth()
}

func (m *HealthMonitor) checkMemory() ComponentHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	health := ComponentHealth{
		Name:      "memory",
		LastCheck: m.clock.Now(),
		Details: map[string]any{
			"alloc_mb": memStats.Alloc / 1024 / 1024,
			"sys_mb":   memStats.Sys / 1024 / 1024,
			"num_gc":   memStats.NumGC,
		},
	}

	if m.memoryThreshold > 0 && memStats.Alloc > m.memoryThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("Memory usage high: %d MB", memStats.Alloc/1024/1024)
	} else {
		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Memory usage: %d MB", memStats.Alloc/1024/1024)
	}

	return health
}

func (m *HealthMonitor) checkGoroutines() ComponentHealth {
	numGoroutines := runtime.NumGoroutine()

	health := ComponentHealth{
		Name:      "goroutines",
		LastCheck: m.clock.Now(),
		Details:   map[string]any{"count": numGoroutines},
	}

	if m.goroutineThreshold > 0 && numGoroutines > m.goroutineThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("High goroutine count: %d", numGoroutines)
	} else {
		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Goroutine count: %d", numGoroutines)
	}

	return health
}

func (m *HealthMonitor) recoverPanic(component string, results chan<- ComponentHealth) {
	if r := recover(); r != nil {
		m.mu.Lock()
		m.panicRecoveries++
		m.mu.Unlock()

		m.logger.Error().Str("component", component).Interface("panic", r).Msg("Health check panicked")
		results <- ComponentHealth{
			Name:      component,
			Status:    HealthStatusUnhealthy,
			Message:   fmt.Sprintf("Panic recovered: %v", r),
			LastCheck: m.clock.Now(),
		}
	}
}

// GetHealth returns the result of the last Check.
func (m *HealthMonitor) GetHealth() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make([]ComponentHealth, 0, len(m.componentHealth))
	for _, h := range m.componentHealth {
		components = append(components, h)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return SystemHealth{
		Status:          m.overallStatus,
		Uptime:          m.clock.Since(m.startTime),
		StartTime:       m.startTime,
		Components:      components,
		Goroutines:      runtime.NumGoroutine(),
		TotalChecks:     m.totalChecks,
		FailedChecks:    m.failedChecks,
		PanicRecoveries: m.panicRecoveries,
	}
}

// GetComponentHealth returns health for a specific component.
func (m *HealthMonitor) GetComponentHealth(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health, ok := m.componentHealth[name]
	return health, ok
}

// IsHealthy returns true if the system is healthy.
func (m *HealthMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overallStatus == HealthStatusHealthy
}

// SystemHealth represents overall system health.
type SystemHealth struct {
	Status          HealthStatus      `json:"status"`
	Uptime          time.Duration     `json:"uptime"`
	StartTime       time.Time         `json:"start_time"`
	Components      []ComponentHealth `json:"components"`
	Goroutines      int               `json:"goroutines"`
	TotalChecks     int64             `json:"total_checks"`
	FailedChecks    int64             `json:"failed_checks"`
	PanicRecoveries int64             `json:"panic_recoveries"`
}
