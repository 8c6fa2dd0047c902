// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Order validation and lifecycle errors. Their messages are surfaced
// verbatim in OrderResult.Error.
var (
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrInvalidOrderType        = errors.New("invalid order type")
	ErrInvalidSide             = errors.New("invalid order side")
	ErrMissingSymbol           = errors.New("symbol is required")
	ErrInvalidTimeInForce      = errors.New("invalid time in force")
	ErrLimitPriceRequired      = errors.New("limit price required for limit orders")
	ErrStopPriceRequired       = errors.New("stop price required for stop orders")
	ErrInsufficientBuyingPower = errors.New("insufficient buying power")
	ErrInsufficientPosition    = errors.New("insufficient position")
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderNotCancellable     = errors.New("order cannot be cancelled")
	ErrPriceUnavailable        = errors.New("price unavailable")
)

// Infrastructure errors.
var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrConfigInvalid  = errors.New("invalid configuration")
	ErrDataNotFound   = errors.New("data not found")
	ErrDatabaseError  = errors.New("database error")
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrAlreadyWatched = errors.New("symbol already in watchlist")
)

// ProviderError represents a failed call to an external market data provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error [%s] HTTP %d: %s: %v", e.Provider, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error [%s] HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether the provider answered 429.
func (e *ProviderError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider string, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
