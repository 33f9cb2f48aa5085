// Package formulas provides statistics over price and value series
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// CryptoTradingDays is the number of trading days per year for 24/7 markets
const CryptoTradingDays = 365

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// CalculateReturns converts values to fractional period returns.
// Returns[i] = (Value[i+1] - Value[i]) / Value[i]; periods starting at 0 yield 0.
func CalculateReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility scales the standard deviation of daily returns to a year
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(CryptoTradingDays)
}

// MaxDrawdown returns the largest peak-to-trough decline as a positive fraction
func MaxDrawdown(values []float64) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func isNaN(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
