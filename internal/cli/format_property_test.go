package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// Feature: tradedesk, Property 11: Truncation never exceeds the limit
//
// For any string and any limit, TruncateString returns at most limit runes,
// and returns the input unchanged when it already fits.
func TestProperty_TruncateString(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("TruncateString respects the limit", prop.ForAll(
		func(s string, limit int) bool {
			out := TruncateString(s, limit)
			n := utf8.RuneCountInString(out)
			if utf8.RuneCountInString(s) <= limit {
				return out == s
			}
			if limit > 3 && !strings.HasSuffix(out, "...") {
				return false
			}
			return n == limit
		},
		gen.AnyString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

// TestFormatDurationExamples tests specific duration renderings
func TestFormatDurationExamples(t *testing.T) {
	testCases := []struct {
		d        time.Duration
		expected string
	}{
		{250 * time.Millisecond, "250ms"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{50 * time.Hour, "2d 2h"},
		{-45 * time.Second, "45s"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatDuration(tc.d))
		})
	}
}

func TestFormatChangeAndShortID(t *testing.T) {
	assert.Equal(t, "+1.25 (+0.72%)", FormatChange(1.25, 0.72))
	assert.Equal(t, "-3.00 (-1.50%)", FormatChange(-3, -1.5))
	assert.Equal(t, "0.00 (0.00%)", FormatChange(0, 0))

	assert.Equal(t, "0f8fad5b", ShortID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Equal(t, "trade-1", ShortID("trade-1"))
	assert.Equal(t, "seed", ShortID("seed"))
	assert.Equal(t, "-", FormatTime(time.Time{}, time.RFC3339))
}

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	out := newOutput(&buf, false, false)

	tbl := NewTable(out, "SYMBOL", "QTY")
	tbl.AddRow("AAPL", "10")
	tbl.AddRow("GOOGL", "2.5")
	tbl.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"SYMBOL  QTY",
		strings.Repeat("─", 11),
		"AAPL    10",
		"GOOGL   2.5",
	}, lines)
}

func TestColoredOutputKeepsAlignment(t *testing.T) {
	var buf bytes.Buffer
	out := newOutput(&buf, false, true)

	colored := out.PnL(95)
	assert.Contains(t, colored, "\x1b[")
	assert.Equal(t, len("+$95.00"), visibleLen(colored))
	assert.Equal(t, "+$95.00", newOutput(&buf, false, false).PnL(95))
	assert.Equal(t, "SELL", newOutput(&buf, false, false).Side("sell"))
}
