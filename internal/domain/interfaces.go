package domain

import "context"

// PortfolioProvider is the read-only view of the persistence layer used by the performance core.
// The core never writes portfolio or holding records through it.
type PortfolioProvider interface {
	// GetByID returns the portfolio or ErrPortfolioNotFound
	GetByID(ctx context.Context, id string) (*Portfolio, error)

	// GetAll returns every portfolio with its holdings
	GetAll(ctx context.Context) ([]Portfolio, error)
}

// QuoteGateway resolves live quotes for a set of symbols
type QuoteGateway interface {
	// GetQuotesBySymbols returns one entry per requested (normalized) symbol.
	// Unknown symbols map to nil. Implementations must not issue one upstream call per symbol.
	GetQuotesBySymbols(ctx context.Context, symbols []string) (map[string]*Quote, error)
}

// HistoricalPriceSource provides daily price series for a symbol
type HistoricalPriceSource interface {
	GetHistoricalSeries(ctx context.Context, symbol string, days int) ([]PricePoint, error)
}

// MarketDataProvider is the upstream API contract the gateway is built on
type MarketDataProvider interface {
	// GetQuotes fetches quotes for all symbols in one request.
	// Returns ErrBatchUnsupported if the provider cannot serve multi-symbol lookups.
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)

	// GetListings fetches one page of the top-N listing (start is 1-based)
	GetListings(ctx context.Context, start, limit int) ([]Quote, error)

	// GetDailyCloses fetches the last count daily closes for symbol
	GetDailyCloses(ctx context.Context, symbol string, count int) ([]PricePoint, error)

	GetFearGreed(ctx context.Context) (*FearGreedIndex, error)
	GetGlobalMetrics(ctx context.Context) (*GlobalMetrics, error)
}
