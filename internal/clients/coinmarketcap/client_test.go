package coinmarketcap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptofolio/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient("test-key",
		WithBaseURL(srv.URL),
		WithLogger(zerolog.Nop()),
		WithRateLimit(6000),
		WithTimeout(2*time.Second),
	)
	return client, srv
}

const quotesBody = `{
  "status": {"error_code": 0, "error_message": null},
  "data": {
    "BTC": [{
      "id": 1, "name": "Bitcoin", "symbol": "BTC", "cmc_rank": 1,
      "last_updated": "2024-05-01T12:00:00.000Z",
      "quote": {"USD": {
        "price": 60000.12, "volume_24h": 25000000000, "percent_change_24h": 2.5,
        "percent_change_7d": -1.25, "market_cap": 1180000000000,
        "last_updated": "2024-05-01T12:00:00.000Z"
      }}
    }],
    "ETH": [
      {"id": 9999, "name": "Fake Ether", "symbol": "ETH", "cmc_rank": 4200,
       "last_updated": "2024-05-01T12:00:00.000Z",
       "quote": {"USD": {"price": 0.01, "percent_change_24h": 0, "percent_change_7d": 0,
                 "last_updated": "2024-05-01T12:00:00.000Z"}}},
      {"id": 1027, "name": "Ethereum", "symbol": "ETH", "cmc_rank": 2,
       "last_updated": "2024-05-01T12:00:00.000Z",
       "quote": {"USD": {"price": 3000, "volume_24h": null, "percent_change_24h": -5,
                 "percent_change_7d": 3, "market_cap": null,
                 "last_updated": "2024-05-01T12:00:00.000Z"}}}
    ]
  }
}`

func TestGetQuotes_ParsesBatchResponse(t *testing.T) {
	var captured *http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(quotesBody))
	})

	quotes, err := client.GetQuotes(context.Background(), []string{"btc", " ETH ", "NOPE"})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, quotesPath, captured.URL.Path)
	assert.Equal(t, "BTC,ETH,NOPE", captured.URL.Query().Get("symbol"))
	assert.Equal(t, "true", captured.URL.Query().Get("skip_invalid"))
	assert.Equal(t, "test-key", captured.Header.Get(apiKeyHeader))

	require.Len(t, quotes, 2)

	btc := quotes["BTC"]
	assert.Equal(t, "Bitcoin", btc.Name)
	assert.True(t, btc.Price.Equal(decimal.RequireFromString("60000.12")))
	assert.True(t, btc.PercentChange24h.Equal(decimal.RequireFromString("2.5")))
	require.NotNil(t, btc.MarketCap)
	assert.True(t, btc.MarketCap.Equal(decimal.NewFromInt(1180000000000)))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), btc.LastUpdated.UTC())
	assert.False(t, btc.FetchedAt.IsZero())

	eth := quotes["ETH"]
	assert.Equal(t, "Ethereum", eth.Name, "best ranked asset wins a shared ticker")
	assert.True(t, eth.Price.Equal(decimal.NewFromInt(3000)))
	assert.Nil(t, eth.MarketCap)
	assert.Nil(t, eth.Volume24h)

	_, ok := quotes["NOPE"]
	assert.False(t, ok)
}

func TestGetQuotes_EmptyInputSkipsRequest(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	quotes, err := client.GetQuotes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestGetQuotes_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name       string
		status     int
		body       string
		wantTarget error
	}{
		{
			name:       "plan does not support endpoint",
			status:     http.StatusForbidden,
			body:       `{"status":{"error_code":1006,"error_message":"Your API Key subscription plan doesn't support this endpoint."}}`,
			wantTarget: domain.ErrBatchUnsupported,
		},
		{
			name:       "endpoint missing",
			status:     http.StatusNotFound,
			body:       `not found`,
			wantTarget: domain.ErrBatchUnsupported,
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"status":{"error_code":1008,"error_message":"You've exceeded your API Key's HTTP request rate limit."}}`,
			wantTarget: domain.ErrUpstreamUnavailable,
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       ``,
			wantTarget: domain.ErrUpstreamUnavailable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			_, err := client.GetQuotes(context.Background(), []string{"BTC"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantTarget)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, quotesPath, apiErr.Endpoint)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestAPIError_NotFoundOnOtherEndpointIsUnavailable(t *testing.T) {
	err := &APIError{StatusCode: http.StatusNotFound, Endpoint: listingsPath, Message: "x"}
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, domain.ErrBatchUnsupported)
}

func TestGet_MalformedBodyIsUpstreamUnavailable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [`))
	})

	_, err := client.GetQuotes(context.Background(), []string{"BTC"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestGet_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetQuotes(ctx, []string{"BTC"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetListings(t *testing.T) {
	var captured *http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Write([]byte(`{
		  "status": {"error_code": 0},
		  "data": [
		    {"id": 1, "name": "Bitcoin", "symbol": "BTC", "cmc_rank": 1,
		     "quote": {"USD": {"price": 60000, "percent_change_24h": 1, "percent_change_7d": 2,
		               "last_updated": "2024-05-01T12:00:00Z"}}},
		    {"id": 2, "name": "NoUSD", "symbol": "XXX", "quote": {}}
		  ]
		}`))
	})

	quotes, err := client.GetListings(context.Background(), 0, 100)
	require.NoError(t, err)

	assert.Equal(t, listingsPath, captured.URL.Path)
	assert.Equal(t, "1", captured.URL.Query().Get("start"))
	assert.Equal(t, "100", captured.URL.Query().Get("limit"))

	require.Len(t, quotes, 1)
	assert.Equal(t, "BTC", quotes[0].Symbol)
}

func TestGetDailyCloses_SortsOldestFirst(t *testing.T) {
	var captured *http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Write([]byte(`{
		  "status": {"error_code": 0},
		  "data": {"BTC": [{
		    "id": 1, "name": "Bitcoin", "symbol": "BTC",
		    "quotes": [
		      {"time_open": "2024-04-30T00:00:00Z", "time_close": "2024-04-30T23:59:59Z",
		       "quote": {"USD": {"close": 61000, "timestamp": "2024-04-30T23:59:59Z"}}},
		      {"time_open": "2024-04-29T00:00:00Z", "time_close": "2024-04-29T23:59:59Z",
		       "quote": {"USD": {"close": 59000, "timestamp": "2024-04-29T23:59:59Z"}}}
		    ]
		  }]}
		}`))
	})

	points, err := client.GetDailyCloses(context.Background(), "btc", 2)
	require.NoError(t, err)

	assert.Equal(t, ohlcvPath, captured.URL.Path)
	assert.Equal(t, "daily", captured.URL.Query().Get("time_period"))
	assert.Equal(t, "2", captured.URL.Query().Get("count"))

	require.Len(t, points, 2)
	assert.True(t, points[0].Price.Equal(decimal.NewFromInt(59000)))
	assert.True(t, points[1].Price.Equal(decimal.NewFromInt(61000)))
	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp))
}

func TestGetDailyCloses_UnknownSymbol(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": {"error_code": 0}, "data": {}}`))
	})

	points, err := client.GetDailyCloses(context.Background(), "NOPE", 5)
	require.NoError(t, err)
	assert.Empty(t, points)

	_, err = client.GetDailyCloses(context.Background(), "  ", 5)
	assert.Error(t, err)
}

func TestGetFearGreed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fearGreedPath, r.URL.Path)
		w.Write([]byte(`{"status": {"error_code": 0}, "data": {"value": 27, "value_classification": "Fear", "update_time": "2024-05-01T10:00:00.000Z"}}`))
	})

	idx, err := client.GetFearGreed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 27, idx.Value)
	assert.Equal(t, "Fear", idx.Classification)
	assert.Equal(t, 2024, idx.UpdatedAt.Year())
}

func TestGetGlobalMetrics(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, globalMetricsPath, r.URL.Path)
		w.Write([]byte(`{
		  "status": {"error_code": 0},
		  "data": {
		    "btc_dominance": 54.2, "eth_dominance": 16.1, "active_cryptocurrencies": 9876,
		    "last_updated": "2024-05-01T12:00:00Z",
		    "quote": {"USD": {"total_market_cap": 2300000000000, "total_volume_24h": 80000000000}}
		  }
		}`))
	})

	metrics, err := client.GetGlobalMetrics(context.Background())
	require.NoError(t, err)
	assert.True(t, metrics.BTCDominance.Equal(decimal.RequireFromString("54.2")))
	assert.True(t, metrics.TotalMarketCap.Equal(decimal.NewFromInt(2300000000000)))
	assert.Equal(t, 9876, metrics.ActiveCryptocurrency)
}

func TestWithRateLimit_IgnoresNonPositive(t *testing.T) {
	c := NewClient("", WithRateLimit(0))
	assert.NotNil(t, c.limiter)
	assert.Equal(t, DefaultRateLimitPerMinute, c.limiter.Burst())
}
