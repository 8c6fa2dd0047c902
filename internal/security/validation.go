// Package security validates and sanitizes untrusted input and masks
// secrets before they reach logs or terminal output.
package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Symbols are uppercase tickers such as AAPL, BRK.B or BTC-USD.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.&-]{0,19}$`)

// ValidationError reports an input field that failed validation.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// NormalizeSymbol trims and uppercases symbol and checks its format.
func NormalizeSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	if symbol == "" {
		return "", &ValidationError{Field: "symbol", Value: symbol, Message: "symbol cannot be empty"}
	}
	if len(symbol) > 20 {
		return "", &ValidationError{Field: "symbol", Value: symbol, Message: "symbol too long (max 20 characters)"}
	}
	if !symbolPattern.MatchString(symbol) {
		return "", &ValidationError{Field: "symbol", Value: symbol, Message: "invalid symbol format"}
	}
	return symbol, nil
}

// SanitizeText strips control characters from free-form text such as an
// instrument display name.
func SanitizeText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskURL keeps the scheme and host of raw and masks the rest. Webhook
// URLs usually carry their token in the path or query.
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MaskCredential(raw)
	}
	rest := strings.TrimPrefix(raw, u.Scheme+"://"+u.Host)
	if u.User != nil {
		rest = strings.TrimPrefix(raw, u.Scheme+"://"+u.User.String()+"@"+u.Host)
	}
	if rest == "" || rest == "/" {
		return u.Scheme + "://" + u.Host + rest
	}
	return u.Scheme + "://" + u.Host + "/" + MaskCredential(strings.TrimPrefix(rest, "/"))
}
