package performance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/cryptofolio/internal/domain"
)

const (
	MinHistoryDays = 1
	MaxHistoryDays = 365
)

// ClampHistoryDays bounds a requested history length to [MinHistoryDays, MaxHistoryDays]
func ClampHistoryDays(days int) int {
	if days < MinHistoryDays {
		return MinHistoryDays
	}
	if days > MaxHistoryDays {
		return MaxHistoryDays
	}
	return days
}

// ApproximateHistory estimates the portfolio's value for each of the last days calendar
// days (UTC), oldest first, from today's holdings and each symbol's daily closes.
// A symbol without data contributes 0, so totals can understate the true value.
func (s *Service) ApproximateHistory(ctx context.Context, p *domain.Portfolio, days int) ([]domain.DataPoint, error) {
	if p == nil {
		return nil, domain.ErrPortfolioNotFound
	}
	days = ClampHistoryDays(days)

	today := truncateDay(s.now())
	points := make([]domain.DataPoint, days)
	for i := range points {
		points[i] = domain.DataPoint{
			Date:  today.AddDate(0, 0, i-days+1),
			Value: decimal.Zero,
		}
	}

	series, err := s.fetchSeries(ctx, p.Symbols(), days)
	if err != nil {
		return nil, err
	}

	for _, h := range p.Holdings {
		if !h.Amount.IsPositive() {
			continue
		}
		ps := series[domain.NormalizeSymbol(h.Symbol)]
		if len(ps) == 0 {
			continue
		}
		for i := range points {
			if price, ok := nearestPrice(ps, points[i].Date); ok {
				points[i].Value = points[i].Value.Add(h.Amount.Mul(price))
			}
		}
	}

	return points, nil
}

// ApproximateHistoryByID loads a portfolio and approximates its history
func (s *Service) ApproximateHistoryByID(ctx context.Context, id string, days int) ([]domain.DataPoint, error) {
	p, err := s.portfolios.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ApproximateHistory(ctx, p, days)
}

// fetchSeries loads each symbol's series concurrently, sorted by time.
// Failed lookups are logged and yield no series; only cancellation is an error.
func (s *Service) fetchSeries(ctx context.Context, symbols []string, days int) (map[string][]domain.PricePoint, error) {
	out := make(map[string][]domain.PricePoint, len(symbols))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(concurrencyLimit(s.opts.Concurrency))
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			ps, err := s.history.GetHistoricalSeries(ctx, sym, days)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", sym).Msg("No historical series, symbol contributes 0")
				return nil
			}
			sorted := make([]domain.PricePoint, len(ps))
			copy(sorted, ps)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i].Timestamp.Before(sorted[j].Timestamp)
			})

			mu.Lock()
			out[sym] = sorted
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("history approximation cancelled: %w", err)
	}
	return out, nil
}

// nearestPrice finds the close for day in a series sorted by timestamp.
// A point on the same calendar day wins; otherwise the point closest to midday.
func nearestPrice(ps []domain.PricePoint, day time.Time) (decimal.Decimal, bool) {
	if len(ps) == 0 {
		return decimal.Zero, false
	}

	dayStart := truncateDay(day)
	idx := sort.Search(len(ps), func(i int) bool {
		return !ps[i].Timestamp.Before(dayStart)
	})

	if idx < len(ps) && truncateDay(ps[idx].Timestamp).Equal(dayStart) {
		// Prefer the latest point of the day (the close)
		last := idx
		for last+1 < len(ps) && truncateDay(ps[last+1].Timestamp).Equal(dayStart) {
			last++
		}
		return ps[last].Price, true
	}

	target := dayStart.Add(12 * time.Hour)
	best := -1
	bestDelta := time.Duration(1<<63 - 1)
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= len(ps) {
			continue
		}
		delta := ps[i].Timestamp.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if delta < bestDelta {
			bestDelta = delta
			best = i
		}
	}
	if best < 0 {
		return decimal.Zero, false
	}
	return ps[best].Price, true
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
