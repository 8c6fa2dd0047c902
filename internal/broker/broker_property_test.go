package broker

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"tradedesk/internal/models"
)

// Feature: tradedesk, Property 1: Fees are clamped to the schedule and rounded to cents
//
// Property: For any non-negative trade value, the fee lies within
// [floor, cap], equals value*rate when that is inside the band, and has
// at most two decimal places.
func TestProperty_FeesClampedAndRounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	schedule := DefaultFeeSchedule()

	properties.Property("fee within floor and cap", prop.ForAll(
		func(value float64) bool {
			fee := schedule.Calculate(decimal.NewFromFloat(value))
			return fee.GreaterThanOrEqual(schedule.Floor) && fee.LessThanOrEqual(schedule.Cap)
		},
		gen.Float64Range(0, 1e7),
	))

	properties.Property("fee has cent precision", prop.ForAll(
		func(value float64) bool {
			fee := schedule.Calculate(decimal.NewFromFloat(value))
			return fee.Equal(fee.Round(2))
		},
		gen.Float64Range(0, 1e7),
	))

	properties.Property("fee is proportional inside the band", prop.ForAll(
		func(value float64) bool {
			// 200..2000 maps to 1..10 at 0.5%
			fee := schedule.CalculateFloat(value)
			return math.Abs(fee-value*0.005) <= 0.005+1e-9
		},
		gen.Float64Range(200, 2000),
	))

	properties.TestingRun(t)
}

// Feature: tradedesk, Property 2: Buys accumulate a weighted average and conserve cash
//
// Property: For any two buys of the same symbol, the position quantity is
// the sum, the average price is the quantity-weighted mean, the balance
// equals capital minus every trade's value and fees, and total equity is
// balance plus market value.
func TestProperty_BuysWeightedAverageAndLedger(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("two buys reconcile", prop.ForAll(
		func(q1, q2 int, p1, p2 float64) bool {
			const capital = 1e9
			prices := NewFixedPrices(map[string]float64{"ETH": p1})
			b := NewPaperBroker(PaperBrokerConfig{
				Clock:          clock.NewMock(),
				Prices:         prices,
				FillStrategy:   AlwaysFill,
				InitialCapital: capital,
			})
			ctx := context.Background()

			r1 := b.PlaceOrder(ctx, models.OrderRequest{Symbol: "ETH", Type: models.OrderTypeMarket, Side: models.OrderSideBuy, Quantity: float64(q1)})
			if !r1.Success {
				return false
			}
			b.executeOrder(ctx, r1.OrderID)

			prices.Set("ETH", p2)
			r2 := b.PlaceOrder(ctx, models.OrderRequest{Symbol: "ETH", Type: models.OrderTypeMarket, Side: models.OrderSideBuy, Quantity: float64(q2)})
			if !r2.Success {
				return false
			}
			b.executeOrder(ctx, r2.OrderID)

			pos, ok := b.GetPosition("ETH")
			if !ok {
				return false
			}
			wantQty := float64(q1 + q2)
			wantAvg := (float64(q1)*p1 + float64(q2)*p2) / wantQty
			if pos.Quantity != wantQty || math.Abs(pos.AveragePrice-wantAvg) > 1e-6*wantAvg {
				return false
			}

			spent := 0.0
			for _, tr := range b.GetTrades() {
				spent += tr.Value + tr.Fees
			}
			acct := b.GetAccount()
			if math.Abs(acct.Balance-(capital-spent)) > 1e-3 {
				return false
			}
			if acct.Balance != acct.AvailableBalance {
				return false
			}
			return math.Abs(acct.TotalEquity-(acct.Balance+pos.MarketValue)) < 1e-3
		},
		gen.IntRange(1, 500),
		gen.IntRange(1, 500),
		gen.Float64Range(1, 5000),
		gen.Float64Range(1, 5000),
	))

	properties.TestingRun(t)
}

// Feature: tradedesk, Property 3: A round trip realizes the price difference
//
// Property: Buying and then selling the whole quantity closes the position
// and realizes (sell - buy) * quantity.
func TestProperty_RoundTripRealizesDifference(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("round trip closes position", prop.ForAll(
		func(qty int, buy, sell float64) bool {
			prices := NewFixedPrices(map[string]float64{"SOL": buy})
			b := NewPaperBroker(PaperBrokerConfig{
				Clock:          clock.NewMock(),
				Prices:         prices,
				FillStrategy:   AlwaysFill,
				InitialCapital: 1e9,
			})
			ctx := context.Background()

			r := b.PlaceOrder(ctx, models.OrderRequest{Symbol: "SOL", Type: models.OrderTypeMarket, Side: models.OrderSideBuy, Quantity: float64(qty)})
			b.executeOrder(ctx, r.OrderID)

			prices.Set("SOL", sell)
			r = b.PlaceOrder(ctx, models.OrderRequest{Symbol: "SOL", Type: models.OrderTypeMarket, Side: models.OrderSideSell, Quantity: float64(qty)})
			if !r.Success {
				return false
			}
			b.executeOrder(ctx, r.OrderID)

			if _, held := b.GetPosition("SOL"); held {
				return false
			}
			want := (sell - buy) * float64(qty)
			return math.Abs(b.GetAccount().RealizedPL-want) < 1e-6*math.Max(1, math.Abs(want))
		},
		gen.IntRange(1, 200),
		gen.Float64Range(1, 1000),
		gen.Float64Range(1, 1000),
	))

	properties.TestingRun(t)
}
