package performance

import (
	"github.com/aristath/cryptofolio/internal/domain"
	"github.com/aristath/cryptofolio/pkg/formulas"
)

// SMAWindow is the moving average length applied to approximated history
const SMAWindow = 7

// HistorySummary describes an approximated value series
type HistorySummary struct {
	Days                 int        `json:"days"`
	Start                float64    `json:"start"`
	End                  float64    `json:"end"`
	High                 float64    `json:"high"`
	Low                  float64    `json:"low"`
	Mean                 float64    `json:"mean"`
	StdDev               float64    `json:"std_dev"`
	ChangePercent        float64    `json:"change_percent"`
	AnnualizedVolatility float64    `json:"annualized_volatility"`
	MaxDrawdownPercent   float64    `json:"max_drawdown_percent"`
	SMA                  *float64   `json:"sma_7d"`
	SMASeries            []*float64 `json:"sma_7d_series"`
}

// SummarizeHistory computes descriptive statistics of an approximated history
func SummarizeHistory(points []domain.DataPoint) HistorySummary {
	summary := HistorySummary{Days: len(points), SMASeries: []*float64{}}
	if len(points) == 0 {
		return summary
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value.InexactFloat64()
	}

	summary.Start = values[0]
	summary.End = values[len(values)-1]
	summary.High = values[0]
	summary.Low = values[0]
	for _, v := range values[1:] {
		if v > summary.High {
			summary.High = v
		}
		if v < summary.Low {
			summary.Low = v
		}
	}

	summary.Mean = formulas.Mean(values)
	summary.StdDev = formulas.StdDev(values)
	if summary.Start != 0 {
		summary.ChangePercent = (summary.End - summary.Start) / summary.Start * 100
	}
	summary.AnnualizedVolatility = formulas.AnnualizedVolatility(formulas.CalculateReturns(values))
	summary.MaxDrawdownPercent = formulas.MaxDrawdown(values) * 100
	summary.SMA = formulas.CalculateSMA(values, SMAWindow)
	summary.SMASeries = formulas.SMASeries(values, SMAWindow)

	return summary
}
