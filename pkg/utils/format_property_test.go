package utils

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property 12: Currency formatting produces grouped dollar amounts
//
// For any amount, FormatCurrency should:
// 1. Start with $ (or -$)
// 2. Have exactly 2 decimal places
// 3. Group the integer part in threes
// 4. Preserve the numeric value when parsed back
func TestProperty9_CurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	grouped := regexp.MustCompile(`^\d{1,3}(,\d{3})*$`)

	properties.Property("FormatCurrency produces grouped format", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCurrency(amount)

			prefix := "$"
			if amount < 0 && fmt.Sprintf("%.2f", -amount) != "0.00" {
				prefix = "-$"
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("Expected %s prefix for %f, got %s", prefix, amount, formatted)
				return false
			}

			parts := strings.Split(strings.TrimPrefix(strings.TrimPrefix(formatted, "-"), "$"), ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("Expected 2 decimal places for %f, got %s", amount, formatted)
				return false
			}

			if !grouped.MatchString(parts[0]) {
				t.Logf("Invalid grouping for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatCurrency preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCurrency(amount)
			parsed := parseCurrency(formatted)

			roundedAmount := math.Round(amount*100) / 100
			if math.Abs(parsed-roundedAmount) > 0.01 {
				t.Logf("Value not preserved: original=%f, formatted=%s, parsed=%f", amount, formatted, parsed)
				return false
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatPercent produces correct format", prop.ForAll(
		func(value float64) bool {
			formatted := FormatPercent(value)
			if !strings.HasSuffix(formatted, "%") {
				return false
			}
			if value > 0 && !strings.HasPrefix(formatted, "+") {
				return false
			}
			return true
		},
		gen.Float64Range(-100, 100),
	))

	properties.Property("FormatCompact uses correct units", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCompact(amount)
			abs := math.Abs(amount)

			switch {
			case abs >= 1e12:
				return strings.HasSuffix(formatted, "T")
			case abs >= 1e9:
				return strings.HasSuffix(formatted, "B")
			case abs >= 1e6:
				return strings.HasSuffix(formatted, "M")
			case abs >= 1e3:
				return strings.HasSuffix(formatted, "K")
			}
			return strings.Contains(formatted, "$") && !strings.ContainsAny(formatted, "KMBT")
		},
		gen.Float64Range(-1e13, 1e13),
	))

	properties.TestingRun(t)
}

func TestFormatQuantity(t *testing.T) {
	cases := map[float64]string{
		10:       "10",
		0.5:      "0.5",
		1.25:     "1.25",
		0.000012: "0.000012",
		0:        "0",
	}
	for in, want := range cases {
		if got := FormatQuantity(in); got != want {
			t.Errorf("FormatQuantity(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCurrencyExamples(t *testing.T) {
	cases := map[float64]string{
		48487.47:    "$48,487.47",
		1505:        "$1,505.00",
		-7.53:       "-$7.53",
		999:         "$999.00",
		1234567.891: "$1,234,567.89",
	}
	for in, want := range cases {
		if got := FormatCurrency(in); got != want {
			t.Errorf("FormatCurrency(%v) = %q, want %q", in, got, want)
		}
	}
}

func parseCurrency(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		return -v
	}
	return v
}
