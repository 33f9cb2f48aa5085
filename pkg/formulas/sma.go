package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateSMA returns the latest simple moving average, or nil with fewer than length values
func CalculateSMA(values []float64, length int) *float64 {
	if length <= 0 || len(values) < length {
		return nil
	}

	sma := talib.Sma(values, length)
	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	return nil
}

// SMASeries returns the moving average aligned with values.
// The first length-1 entries are nil because the window is not yet full.
func SMASeries(values []float64, length int) []*float64 {
	out := make([]*float64, len(values))
	if length <= 0 || len(values) < length {
		return out
	}

	sma := talib.Sma(values, length)
	for i := length - 1; i < len(sma) && i < len(values); i++ {
		if isNaN(sma[i]) {
			continue
		}
		v := sma[i]
		out[i] = &v
	}
	return out
}
