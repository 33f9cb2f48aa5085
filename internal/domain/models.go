// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a market snapshot for one symbol.
// Quotes are never mutated after they are fetched; a newer quote replaces an older one.
type Quote struct {
	Symbol           string           `json:"symbol"`
	Name             string           `json:"name,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	PercentChange24h decimal.Decimal  `json:"percent_change_24h"`
	PercentChange7d  decimal.Decimal  `json:"percent_change_7d"`
	MarketCap        *decimal.Decimal `json:"market_cap,omitempty"`
	Volume24h        *decimal.Decimal `json:"volume_24h,omitempty"`
	LastUpdated      time.Time        `json:"last_updated"`
	FetchedAt        time.Time        `json:"fetched_at"`
}

// Holding is one symbol/amount row of a portfolio
type Holding struct {
	ID     string          `json:"id"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// Portfolio is a read-only snapshot of a user's portfolio as stored by the persistence layer
type Portfolio struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Holdings    []Holding `json:"holdings"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Symbols returns the normalized symbols referenced by the portfolio, in holding order,
// without duplicates.
func (p *Portfolio) Symbols() []string {
	seen := make(map[string]bool, len(p.Holdings))
	symbols := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		sym := NormalizeSymbol(h.Symbol)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	return symbols
}

// HoldingPerformance is the derived, per-request valuation of a single holding
type HoldingPerformance struct {
	Symbol                string           `json:"symbol"`
	Amount                decimal.Decimal  `json:"amount"`
	CurrentPrice          decimal.Decimal  `json:"current_price"`
	TotalValue            decimal.Decimal  `json:"total_value"`
	PriceChange24h        decimal.Decimal  `json:"price_change_24h"`
	PriceChangePercent24h decimal.Decimal  `json:"price_change_percent_24h"`
	MarketCap             *decimal.Decimal `json:"market_cap,omitempty"`
	Volume24h             *decimal.Decimal `json:"volume_24h,omitempty"`
	PortfolioWeight       decimal.Decimal  `json:"portfolio_weight"`
	QuoteMissing          bool             `json:"quote_missing"`
}

// PerformanceMetrics holds portfolio level summary values
type PerformanceMetrics struct {
	AssetCount     int                 `json:"asset_count"`
	TopPerformer   *HoldingPerformance `json:"top_performer"`
	WorstPerformer *HoldingPerformance `json:"worst_performer"`
	LastUpdated    time.Time           `json:"last_updated"`
	StaleQuotes    int                 `json:"stale_quotes"`
}

// AllocationSlice is one entry of the asset allocation breakdown
type AllocationSlice struct {
	Symbol  string          `json:"symbol"`
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// PortfolioPerformance is the computed performance of one portfolio
type PortfolioPerformance struct {
	PortfolioID           string               `json:"portfolio_id"`
	TotalValue            decimal.Decimal      `json:"total_value"`
	TotalChange24h        decimal.Decimal      `json:"total_change_24h"`
	TotalChangePercent24h decimal.Decimal      `json:"total_change_percent_24h"`
	WeightedROI           decimal.Decimal      `json:"weighted_roi"`
	Holdings              []HoldingPerformance `json:"holdings"`
	Allocation            []AllocationSlice    `json:"allocation"`
	Metrics               PerformanceMetrics   `json:"metrics"`
}

// DataPoint is one day of approximated portfolio value
type DataPoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// PricePoint is one daily close of a historical series
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// FearGreedIndex is the market sentiment reading
type FearGreedIndex struct {
	Value          int       `json:"value"`
	Classification string    `json:"classification"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GlobalMetrics is the aggregate crypto market state
type GlobalMetrics struct {
	TotalMarketCap       decimal.Decimal `json:"total_market_cap"`
	TotalVolume24h       decimal.Decimal `json:"total_volume_24h"`
	BTCDominance         decimal.Decimal `json:"btc_dominance"`
	ETHDominance         decimal.Decimal `json:"eth_dominance"`
	ActiveCryptocurrency int             `json:"active_cryptocurrencies"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// NormalizeSymbol returns the canonical (trimmed, uppercase) form of a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
