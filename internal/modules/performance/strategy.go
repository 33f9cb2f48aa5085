package performance

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/cryptofolio/internal/domain"
)

// ResolveStrategy computes performance for a set of portfolios
type ResolveStrategy interface {
	Name() string
	Resolve(ctx context.Context, portfolios []domain.Portfolio) (map[string]*domain.PortfolioPerformance, error)
}

// BatchStrategy resolves the union of all portfolios' symbols with exactly one gateway call
// and computes every portfolio from the shared quote map.
type BatchStrategy struct {
	Gateway     domain.QuoteGateway
	Build       func(p *domain.Portfolio, quotes map[string]*domain.Quote) *domain.PortfolioPerformance
	Concurrency int
	Log         zerolog.Logger
}

// Name returns the strategy name for logging
func (s *BatchStrategy) Name() string { return "batch" }

// Resolve fails as a whole when the shared quote lookup fails outright. A partial lookup
// is used as is: only holdings of the unresolved symbols are valued at zero.
func (s *BatchStrategy) Resolve(ctx context.Context, portfolios []domain.Portfolio) (map[string]*domain.PortfolioPerformance, error) {
	symbols := UnionSymbols(portfolios)

	quotes := map[string]*domain.Quote{}
	if len(symbols) > 0 {
		var err error
		quotes, err = s.Gateway.GetQuotesBySymbols(ctx, symbols)
		if err != nil {
			unresolved, partial := domain.PartialQuotes(err)
			if !partial || quotes == nil || ctx.Err() != nil {
				return nil, fmt.Errorf("batch quote lookup for %d symbols: %w", len(symbols), err)
			}
			s.Log.Warn().
				Err(err).
				Strs("unresolved", unresolved).
				Int("portfolios", len(portfolios)).
				Msg("Shared quote lookup partially failed")
		}
	}

	results := make(map[string]*domain.PortfolioPerformance, len(portfolios))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit(s.Concurrency))
	for i := range portfolios {
		p := &portfolios[i]
		g.Go(func() error {
			perf := s.Build(p, quotes)
			mu.Lock()
			results[p.ID] = perf
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// PerItemFallbackStrategy computes each portfolio in its own isolated task.
// A failing portfolio is logged and left out; it never fails its siblings.
type PerItemFallbackStrategy struct {
	Calculate   func(ctx context.Context, p *domain.Portfolio) (*domain.PortfolioPerformance, error)
	Concurrency int
	Log         zerolog.Logger
}

// Name returns the strategy name for logging
func (s *PerItemFallbackStrategy) Name() string { return "per_item_fallback" }

// Resolve only returns an error when ctx is done
func (s *PerItemFallbackStrategy) Resolve(ctx context.Context, portfolios []domain.Portfolio) (map[string]*domain.PortfolioPerformance, error) {
	results := make(map[string]*domain.PortfolioPerformance, len(portfolios))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(concurrencyLimit(s.Concurrency))
	for i := range portfolios {
		p := &portfolios[i]
		g.Go(func() error {
			perf, err := s.Calculate(ctx, p)
			if err != nil {
				s.Log.Warn().Err(err).Str("portfolio_id", p.ID).Msg("Portfolio performance failed")
				return nil
			}
			mu.Lock()
			results[p.ID] = perf
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// UnionSymbols returns the deduplicated normalized symbols of all portfolios
func UnionSymbols(portfolios []domain.Portfolio) []string {
	seen := make(map[string]bool)
	var symbols []string
	for i := range portfolios {
		for _, sym := range portfolios[i].Symbols() {
			if !seen[sym] {
				seen[sym] = true
				symbols = append(symbols, sym)
			}
		}
	}
	return symbols
}

const defaultConcurrency = 8

func concurrencyLimit(n int) int {
	if n <= 0 {
		return defaultConcurrency
	}
	return n
}
