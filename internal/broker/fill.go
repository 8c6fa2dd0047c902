package broker

import (
	"math/rand"
	"sync"
	"time"

	"tradedesk/internal/models"
)

// FillFunc adapts a function to FillStrategy.
type FillFunc func(order models.Order) bool

// ShouldFill implements FillStrategy.
func (f FillFunc) ShouldFill(order models.Order) bool {
	return f(order)
}

var (
	// AlwaysFill fills every resting order on its first check.
	AlwaysFill FillStrategy = FillFunc(func(models.Order) bool { return true })
	// NeverFill leaves resting orders pending.
	NeverFill FillStrategy = FillFunc(func(models.Order) bool { return false })
)

// RandomFill fills with a fixed probability per check, modelling
// intermittent fill conditions rather than an order book.
type RandomFill struct {
	probability float64
	mu          sync.Mutex
	rng         *rand.Rand
}

// NewRandomFill creates a RandomFill. A nil rng is seeded from the wall clock.
func NewRandomFill(probability float64, rng *rand.Rand) *RandomFill {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomFill{probability: probability, rng: rng}
}

// ShouldFill implements FillStrategy.
func (r *RandomFill) ShouldFill(models.Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.probability
}
