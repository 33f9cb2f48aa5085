package performance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/aristath/cryptofolio/internal/domain"
)

var testNow = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// stubGateway records every lookup and answers through fn
type stubGateway struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(ctx context.Context, symbols []string) (map[string]*domain.Quote, error)
}

func (g *stubGateway) GetQuotesBySymbols(ctx context.Context, symbols []string) (map[string]*domain.Quote, error) {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)

	g.mu.Lock()
	g.calls = append(g.calls, sorted)
	g.mu.Unlock()

	return g.fn(ctx, symbols)
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// quoteBook answers lookups from a fixed table; symbols not in the table map to nil
func quoteBook(book map[string]*domain.Quote) func(ctx context.Context, symbols []string) (map[string]*domain.Quote, error) {
	return func(ctx context.Context, symbols []string) (map[string]*domain.Quote, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := make(map[string]*domain.Quote, len(symbols))
		for _, s := range symbols {
			sym := domain.NormalizeSymbol(s)
			out[sym] = book[sym]
		}
		return out, nil
	}
}

func testQuote(symbol, price, pct string) *domain.Quote {
	return &domain.Quote{
		Symbol:           symbol,
		Price:            decimal.RequireFromString(price),
		PercentChange24h: decimal.RequireFromString(pct),
		FetchedAt:        testNow.Add(-time.Minute),
	}
}

func holding(symbol, amount string) domain.Holding {
	return domain.Holding{ID: "h-" + symbol, Symbol: symbol, Amount: decimal.RequireFromString(amount)}
}

func portfolio(id string, holdings ...domain.Holding) domain.Portfolio {
	return domain.Portfolio{ID: id, Name: id, Holdings: holdings}
}

// MockPortfolioProvider is a mock portfolio store
type MockPortfolioProvider struct {
	mock.Mock
}

func (m *MockPortfolioProvider) GetByID(ctx context.Context, id string) (*domain.Portfolio, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Portfolio), args.Error(1)
}

func (m *MockPortfolioProvider) GetAll(ctx context.Context) ([]domain.Portfolio, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Portfolio), args.Error(1)
}

// stubHistory serves fixed series and fails for symbols without one
type stubHistory struct {
	mu     sync.Mutex
	series map[string][]domain.PricePoint
	days   []int
}

func (h *stubHistory) GetHistoricalSeries(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	h.mu.Lock()
	h.days = append(h.days, days)
	h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ps, ok := h.series[symbol]
	if !ok {
		return nil, domain.ErrUpstreamUnavailable
	}
	return ps, nil
}
