package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnresolvedQuotesError_Matches(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		match []error
	}{
		{"network cause", errors.New("connection refused"), []error{ErrUpstreamUnavailable}},
		{"deadline cause", context.DeadlineExceeded, []error{ErrUpstreamUnavailable, context.DeadlineExceeded}},
		{"already upstream", fmt.Errorf("status 503: %w", ErrUpstreamUnavailable), []error{ErrUpstreamUnavailable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &UnresolvedQuotesError{Symbols: []string{"NEWCOIN", "ODD"}, Err: tt.cause}
			for _, target := range tt.match {
				assert.ErrorIs(t, err, target)
			}
			assert.Contains(t, err.Error(), "NEWCOIN,ODD")
		})
	}
}

func TestPartialQuotes(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", &UnresolvedQuotesError{Symbols: []string{"NEWCOIN"}, Err: ErrUpstreamUnavailable})

	symbols, ok := PartialQuotes(wrapped)
	require.True(t, ok)
	assert.Equal(t, []string{"NEWCOIN"}, symbols)

	symbols, ok = PartialQuotes(ErrUpstreamUnavailable)
	assert.False(t, ok)
	assert.Nil(t, symbols)

	_, ok = PartialQuotes(nil)
	assert.False(t, ok)
}
