package performance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptofolio/internal/domain"
)

// Options tunes the performance service
type Options struct {
	// QuoteFreshWindow is the quote age beyond which a quote counts as stale in metrics
	QuoteFreshWindow time.Duration
	// Concurrency bounds per-portfolio fan-out
	Concurrency int
}

// Service is the entry point for portfolio performance
type Service struct {
	portfolios domain.PortfolioProvider
	quotes     domain.QuoteGateway
	history    domain.HistoricalPriceSource
	opts       Options
	log        zerolog.Logger
	now        func() time.Time

	batch    ResolveStrategy
	fallback ResolveStrategy
}

// NewService creates a performance service
func NewService(
	portfolios domain.PortfolioProvider,
	quotes domain.QuoteGateway,
	history domain.HistoricalPriceSource,
	opts Options,
	log zerolog.Logger,
) *Service {
	if opts.QuoteFreshWindow <= 0 {
		opts.QuoteFreshWindow = 5 * time.Minute
	}

	s := &Service{
		portfolios: portfolios,
		quotes:     quotes,
		history:    history,
		opts:       opts,
		log:        log.With().Str("service", "performance").Logger(),
		now:        time.Now,
	}
	s.batch = &BatchStrategy{
		Gateway:     quotes,
		Build:       s.build,
		Concurrency: opts.Concurrency,
		Log:         s.log,
	}
	s.fallback = &PerItemFallbackStrategy{
		Calculate:   s.CalculatePerformance,
		Concurrency: opts.Concurrency,
		Log:         s.log,
	}
	return s
}

// WithClock replaces the time source (tests)
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CalculatePerformance values one portfolio with a single gateway lookup.
// Gateway failures degrade to zero-valued rows for the affected symbols only; quotes the
// gateway could still serve are kept. Only cancellation is returned as an error.
func (s *Service) CalculatePerformance(ctx context.Context, p *domain.Portfolio) (*domain.PortfolioPerformance, error) {
	if p == nil {
		return nil, domain.ErrPortfolioNotFound
	}
	if len(p.Holdings) == 0 {
		return zeroPerformance(p.ID), nil
	}

	quotes, err := s.quotes.GetQuotesBySymbols(ctx, p.Symbols())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("performance for %s: %w", p.ID, ctxErr)
		}
		if unresolved, partial := domain.PartialQuotes(err); partial && quotes != nil {
			s.log.Warn().
				Err(err).
				Str("portfolio_id", p.ID).
				Strs("unresolved", unresolved).
				Msg("Quote lookup partially failed, valuing unresolved holdings at zero")
		} else {
			s.log.Warn().
				Err(err).
				Str("portfolio_id", p.ID).
				Msg("Quote lookup failed, returning zero-valued holdings")
			quotes = nil
		}
	}

	return s.build(p, quotes), nil
}

// CalculateMany values many portfolios with one shared gateway lookup. If that lookup fails,
// each portfolio is retried in isolation and failing portfolios are left out of the result.
func (s *Service) CalculateMany(ctx context.Context, portfolios []domain.Portfolio) (map[string]*domain.PortfolioPerformance, error) {
	if len(portfolios) == 0 {
		return map[string]*domain.PortfolioPerformance{}, nil
	}

	results, err := s.batch.Resolve(ctx, portfolios)
	if err == nil {
		return results, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	s.log.Warn().
		Err(err).
		Int("portfolios", len(portfolios)).
		Str("strategy", s.fallback.Name()).
		Msg("Batch resolution failed, falling back to per-portfolio calculation")

	return s.fallback.Resolve(ctx, portfolios)
}

// CalculateByID loads a portfolio and values it
func (s *Service) CalculateByID(ctx context.Context, id string) (*domain.PortfolioPerformance, error) {
	p, err := s.portfolios.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.CalculatePerformance(ctx, p)
}

// CalculateAll values every stored portfolio
func (s *Service) CalculateAll(ctx context.Context) (map[string]*domain.PortfolioPerformance, error) {
	portfolios, err := s.portfolios.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolios: %w", err)
	}
	return s.CalculateMany(ctx, portfolios)
}

// build computes a portfolio from an already resolved quote map. No I/O.
func (s *Service) build(p *domain.Portfolio, quotes map[string]*domain.Quote) *domain.PortfolioPerformance {
	rows := make([]domain.HoldingPerformance, 0, len(p.Holdings))
	var lastUpdated time.Time
	stale := 0
	seenStale := make(map[string]bool)

	for _, h := range p.Holdings {
		sym := domain.NormalizeSymbol(h.Symbol)
		q := quotes[sym]
		if q == nil {
			s.log.Warn().
				Str("portfolio_id", p.ID).
				Str("symbol", sym).
				Msg("No quote for holding, valuing at zero")
		} else {
			if q.FetchedAt.After(lastUpdated) {
				lastUpdated = q.FetchedAt
			}
			if !seenStale[sym] && s.now().Sub(q.FetchedAt) > s.opts.QuoteFreshWindow {
				seenStale[sym] = true
				stale++
			}
		}
		rows = append(rows, ComputeHoldingPerformance(h, q))
	}

	perf := AggregatePortfolio(rows)
	perf.PortfolioID = p.ID
	perf.Metrics.LastUpdated = lastUpdated
	perf.Metrics.StaleQuotes = stale
	return &perf
}

// IsNotFound reports whether err means the portfolio does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrPortfolioNotFound)
}
