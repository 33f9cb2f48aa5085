// Package performance computes portfolio valuations and 24h performance from live quotes,
// resolves quotes for many portfolios with a single upstream lookup, and approximates
// historical portfolio value from daily price series.
package performance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/cryptofolio/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ComputeHoldingPerformance values one holding against its quote.
// A nil quote yields a zero-valued row flagged QuoteMissing. Amounts <= 0 contribute no value.
func ComputeHoldingPerformance(h domain.Holding, q *domain.Quote) domain.HoldingPerformance {
	hp := domain.HoldingPerformance{
		Symbol:                domain.NormalizeSymbol(h.Symbol),
		Amount:                h.Amount,
		CurrentPrice:          decimal.Zero,
		TotalValue:            decimal.Zero,
		PriceChange24h:        decimal.Zero,
		PriceChangePercent24h: decimal.Zero,
		PortfolioWeight:       decimal.Zero,
	}

	if q == nil {
		hp.QuoteMissing = true
		return hp
	}

	hp.CurrentPrice = q.Price
	hp.PriceChangePercent24h = q.PercentChange24h
	hp.MarketCap = q.MarketCap
	hp.Volume24h = q.Volume24h

	if !h.Amount.IsPositive() {
		return hp
	}

	hp.TotalValue = h.Amount.Mul(q.Price)
	hp.PriceChange24h = hp.TotalValue.Mul(q.PercentChange24h).Div(hundred)

	return hp
}

// AggregatePortfolio sums holding rows into portfolio totals, assigns weights, the
// allocation breakdown and the top/worst performers. The input slice is not modified.
// Each row is treated independently, including repeated symbols.
func AggregatePortfolio(holdings []domain.HoldingPerformance) domain.PortfolioPerformance {
	rows := make([]domain.HoldingPerformance, len(holdings))
	copy(rows, holdings)

	totalValue := decimal.Zero
	totalChange := decimal.Zero
	for _, hp := range rows {
		totalValue = totalValue.Add(hp.TotalValue)
		totalChange = totalChange.Add(hp.PriceChange24h)
	}

	weightedROI := decimal.Zero
	for i := range rows {
		rows[i].PortfolioWeight = weightOf(rows[i].TotalValue, totalValue)
		weightedROI = weightedROI.Add(
			rows[i].PortfolioWeight.Mul(rows[i].PriceChangePercent24h).Div(hundred),
		)
	}

	top, worst := rankPerformers(rows)

	return domain.PortfolioPerformance{
		TotalValue:            totalValue,
		TotalChange24h:        totalChange,
		TotalChangePercent24h: ChangePercent24h(totalValue, totalChange),
		WeightedROI:           weightedROI,
		Holdings:              rows,
		Allocation:            allocation(rows),
		Metrics: domain.PerformanceMetrics{
			AssetCount:     len(rows),
			TopPerformer:   top,
			WorstPerformer: worst,
		},
	}
}

// ChangePercent24h returns change relative to the value 24h ago:
// change / (value - change) * 100.
// When the previous value is not positive the current value is used as denominator,
// and when that is zero as well the result is zero.
func ChangePercent24h(value, change decimal.Decimal) decimal.Decimal {
	previous := value.Sub(change)
	if previous.IsPositive() {
		return change.Mul(hundred).Div(previous)
	}
	if value.IsZero() {
		return decimal.Zero
	}
	return change.Mul(hundred).Div(value.Abs())
}

func weightOf(value, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return value.Mul(hundred).Div(total)
}

// rankPerformers returns copies of the highest and lowest 24h movers among rows with value.
// Ties keep holding order.
func rankPerformers(rows []domain.HoldingPerformance) (*domain.HoldingPerformance, *domain.HoldingPerformance) {
	ranked := make([]domain.HoldingPerformance, 0, len(rows))
	for _, hp := range rows {
		if hp.TotalValue.IsPositive() {
			ranked = append(ranked, hp)
		}
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PriceChangePercent24h.GreaterThan(ranked[j].PriceChangePercent24h)
	})

	top := ranked[0]
	worst := ranked[len(ranked)-1]
	return &top, &worst
}

// allocation lists valued holdings by descending value
func allocation(rows []domain.HoldingPerformance) []domain.AllocationSlice {
	slices := make([]domain.AllocationSlice, 0, len(rows))
	for _, hp := range rows {
		if !hp.TotalValue.IsPositive() {
			continue
		}
		slices = append(slices, domain.AllocationSlice{
			Symbol:  hp.Symbol,
			Value:   hp.TotalValue,
			Percent: hp.PortfolioWeight,
		})
	}

	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].Value.GreaterThan(slices[j].Value)
	})

	return slices
}

// zeroPerformance is the result for a portfolio with nothing to value
func zeroPerformance(portfolioID string) *domain.PortfolioPerformance {
	perf := AggregatePortfolio(nil)
	perf.PortfolioID = portfolioID
	return &perf
}
