package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpstreamUnavailable is returned when the market data provider could not be reached,
	// timed out, or answered with a non-2xx status and no cached fallback exists.
	ErrUpstreamUnavailable = errors.New("market data provider unavailable")

	// ErrBatchUnsupported signals that the provider does not accept a multi-symbol quote request
	ErrBatchUnsupported = errors.New("multi-symbol quote lookup not supported by provider")

	// ErrPortfolioNotFound is returned when a portfolio id does not exist
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrInvalidHolding is returned for empty symbols or non-positive amounts
	ErrInvalidHolding = errors.New("invalid holding")
)

// UnresolvedQuotesError accompanies a partial quote map after an upstream failure.
// Symbols lists the entries that map to nil because nothing serveable was cached.
type UnresolvedQuotesError struct {
	Symbols []string
	Err     error
}

func (e *UnresolvedQuotesError) Error() string {
	return fmt.Sprintf("no cached quote for %s: %v", strings.Join(e.Symbols, ","), e.Err)
}

// Unwrap matches both the upstream cause and ErrUpstreamUnavailable
func (e *UnresolvedQuotesError) Unwrap() []error {
	if errors.Is(e.Err, ErrUpstreamUnavailable) {
		return []error{e.Err}
	}
	return []error{ErrUpstreamUnavailable, e.Err}
}

// PartialQuotes returns the unresolved symbols when err only reports a partial lookup
func PartialQuotes(err error) ([]string, bool) {
	var unresolved *UnresolvedQuotesError
	if errors.As(err, &unresolved) {
		return unresolved.Symbols, true
	}
	return nil, false
}
