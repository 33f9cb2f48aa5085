package marketdata

import (
	"context"
	"fmt"

	"github.com/aristath/cryptofolio/internal/domain"
)

// fetchStrategy resolves a set of symbols with a bounded number of upstream calls
type fetchStrategy interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
}

// batchStrategy uses a single multi-symbol request
type batchStrategy struct {
	provider domain.MarketDataProvider
}

func (s batchStrategy) Name() string { return "batch" }

func (s batchStrategy) Fetch(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	return s.provider.GetQuotes(ctx, symbols)
}

// listingStrategy walks the ranked listing page by page and filters client-side.
// It stops as soon as every symbol is found, a short page is returned, or maxPages is reached.
type listingStrategy struct {
	provider domain.MarketDataProvider
	pageSize int
	maxPages int
}

func (s listingStrategy) Name() string { return "listing" }

func (s listingStrategy) Fetch(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		wanted[sym] = true
	}

	found := make(map[string]domain.Quote, len(symbols))
	for page := 0; page < s.maxPages; page++ {
		start := page*s.pageSize + 1
		quotes, err := s.provider.GetListings(ctx, start, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("listing page %d: %w", page+1, err)
		}

		for _, q := range quotes {
			if !wanted[q.Symbol] {
				continue
			}
			// Ranked order, first occurrence is the dominant asset for the ticker
			if _, seen := found[q.Symbol]; !seen {
				found[q.Symbol] = q
			}
		}

		if len(found) == len(wanted) || len(quotes) < s.pageSize {
			break
		}
	}

	return found, nil
}
