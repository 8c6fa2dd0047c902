package broker

import "github.com/shopspring/decimal"

// FeeSchedule is a percentage commission clamped to [Floor, Cap].
type FeeSchedule struct {
	Rate  decimal.Decimal
	Floor decimal.Decimal
	Cap   decimal.Decimal
}

// DefaultFeeSchedule charges 0.5% with a $1 minimum and a $10 maximum.
func DefaultFeeSchedule() FeeSchedule {
	return NewFeeSchedule(0.005, 1, 10)
}

// NewFeeSchedule builds a schedule from float settings.
func NewFeeSchedule(rate, floor, cap float64) FeeSchedule {
	return FeeSchedule{
		Rate:  decimal.NewFromFloat(rate),
		Floor: decimal.NewFromFloat(floor),
		Cap:   decimal.NewFromFloat(cap),
	}
}

// Calculate returns max(min(value*rate, cap), floor) rounded to cents.
func (f FeeSchedule) Calculate(value decimal.Decimal) decimal.Decimal {
	fee := decimal.Max(decimal.Min(value.Mul(f.Rate), f.Cap), f.Floor)
	return fee.Round(2)
}

// CalculateFloat is Calculate for float values.
func (f FeeSchedule) CalculateFloat(value float64) float64 {
	return f.Calculate(decimal.NewFromFloat(value)).InexactFloat64()
}
