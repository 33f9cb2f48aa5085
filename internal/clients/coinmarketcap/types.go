package coinmarketcap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/cryptofolio/internal/domain"
)

// apiStatus is the status envelope present on every response
type apiStatus struct {
	Timestamp    string  `json:"timestamp"`
	ErrorCode    int     `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	CreditCount  int     `json:"credit_count"`
}

type usdQuote struct {
	Price            decimal.Decimal  `json:"price"`
	Volume24h        *decimal.Decimal `json:"volume_24h"`
	PercentChange24h decimal.Decimal  `json:"percent_change_24h"`
	PercentChange7d  decimal.Decimal  `json:"percent_change_7d"`
	MarketCap        *decimal.Decimal `json:"market_cap"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// cryptoEntry is one asset as returned by both the quotes and the listings endpoints
type cryptoEntry struct {
	ID          int                 `json:"id"`
	Name        string              `json:"name"`
	Symbol      string              `json:"symbol"`
	CMCRank     *int                `json:"cmc_rank"`
	LastUpdated time.Time           `json:"last_updated"`
	Quote       map[string]usdQuote `json:"quote"`
}

// toQuote converts the entry's USD quote. ok is false when no USD quote is present.
func (e cryptoEntry) toQuote(fetchedAt time.Time) (domain.Quote, bool) {
	q, ok := e.Quote[convertCurrency]
	if !ok {
		return domain.Quote{}, false
	}

	lastUpdated := q.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = e.LastUpdated
	}

	return domain.Quote{
		Symbol:           domain.NormalizeSymbol(e.Symbol),
		Name:             e.Name,
		Price:            q.Price,
		PercentChange24h: q.PercentChange24h,
		PercentChange7d:  q.PercentChange7d,
		MarketCap:        q.MarketCap,
		Volume24h:        q.Volume24h,
		LastUpdated:      lastUpdated,
		FetchedAt:        fetchedAt,
	}, true
}

type quotesResponse struct {
	Status apiStatus                `json:"status"`
	Data   map[string][]cryptoEntry `json:"data"`
}

type listingsResponse struct {
	Status apiStatus     `json:"status"`
	Data   []cryptoEntry `json:"data"`
}

type ohlcvQuote struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

type ohlcvBar struct {
	TimeOpen  time.Time             `json:"time_open"`
	TimeClose time.Time             `json:"time_close"`
	Quote     map[string]ohlcvQuote `json:"quote"`
}

type ohlcvSeries struct {
	ID     int        `json:"id"`
	Name   string     `json:"name"`
	Symbol string     `json:"symbol"`
	Quotes []ohlcvBar `json:"quotes"`
}

type ohlcvResponse struct {
	Status apiStatus                `json:"status"`
	Data   map[string][]ohlcvSeries `json:"data"`
}

type fearGreedResponse struct {
	Status apiStatus `json:"status"`
	Data   struct {
		Value               int       `json:"value"`
		ValueClassification string    `json:"value_classification"`
		UpdateTime          time.Time `json:"update_time"`
	} `json:"data"`
}

type globalMetricsResponse struct {
	Status apiStatus `json:"status"`
	Data   struct {
		BTCDominance           decimal.Decimal `json:"btc_dominance"`
		ETHDominance           decimal.Decimal `json:"eth_dominance"`
		ActiveCryptocurrencies int             `json:"active_cryptocurrencies"`
		LastUpdated            time.Time       `json:"last_updated"`
		Quote                  map[string]struct {
			TotalMarketCap decimal.Decimal `json:"total_market_cap"`
			TotalVolume24h decimal.Decimal `json:"total_volume_24h"`
		} `json:"quote"`
	} `json:"data"`
}
