package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"tradedesk/pkg/utils"
)

// Limiter spaces provider calls at least MinInterval apart. Waiting
// callers queue in reservation order.
type Limiter struct {
	clock   clock.Clock
	spacing time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewLimiter creates a limiter allowing one call per spacing. A zero
// spacing disables limiting.
func NewLimiter(spacing time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return &Limiter{
		clock:   clk,
		spacing: spacing,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the next call slot. A cancelled wait releases its slot.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	l.mu.Unlock()

	delay := r.DelayFrom(now)
	if err := utils.Sleep(ctx, l.clock, delay); err != nil {
		l.mu.Lock()
		r.CancelAt(l.clock.Now())
		l.mu.Unlock()
		return err
	}
	return nil
}

// Spacing returns the minimum gap between calls.
func (l *Limiter) Spacing() time.Duration {
	return l.spacing
}
