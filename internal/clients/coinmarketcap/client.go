// Package coinmarketcap provides a client for the CoinMarketCap Pro API
package coinmarketcap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/cryptofolio/internal/domain"
)

const (
	DefaultBaseURL            = "https://pro-api.coinmarketcap.com"
	DefaultTimeout            = 15 * time.Second
	DefaultRateLimitPerMinute = 30

	apiKeyHeader    = "X-CMC_PRO_API_KEY"
	convertCurrency = "USD"

	quotesPath        = "/v2/cryptocurrency/quotes/latest"
	listingsPath      = "/v1/cryptocurrency/listings/latest"
	ohlcvPath         = "/v2/cryptocurrency/ohlcv/historical"
	fearGreedPath     = "/v3/fear-and-greed/latest"
	globalMetricsPath = "/v1/global-metrics/quotes/latest"

	// Status codes the API uses when the key's plan does not cover an endpoint
	errorCodePlanUnsupported   = 1006
	errorCodePlanLimitExceeded = 1007
)

// Client implements domain.MarketDataProvider against the CoinMarketCap API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log.With().Str("client", "coinmarketcap").Logger()
	}
}

// WithRateLimit sets the per-minute request quota
func WithRateLimit(requestsPerMinute int) ClientOption {
	return func(c *Client) {
		if requestsPerMinute <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new CoinMarketCap client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zerolog.Nop(),
		now: time.Now,
	}
	WithRateLimit(DefaultRateLimitPerMinute)(c)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-2xx API response
type APIError struct {
	StatusCode int
	ErrorCode  int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coinmarketcap API error: %s (status: %d, code: %d, endpoint: %s)",
		e.Message, e.StatusCode, e.ErrorCode, e.Endpoint)
}

// Unwrap lets callers match API failures against the domain sentinel errors
func (e *APIError) Unwrap() error {
	if e.Endpoint == quotesPath && e.batchUnsupported() {
		return domain.ErrBatchUnsupported
	}
	return domain.ErrUpstreamUnavailable
}

func (e *APIError) batchUnsupported() bool {
	return e.StatusCode == http.StatusNotFound ||
		e.ErrorCode == errorCodePlanUnsupported ||
		e.ErrorCode == errorCodePlanLimitExceeded
}

// get performs a rate-limited GET request and decodes the JSON body into result
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	c.log.Debug().Str("path", path).Str("query", params.Encode()).Msg("CoinMarketCap API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("request %s: %w", path, ctxErr)
		}
		return fmt.Errorf("request %s: %v: %w", path, err, domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return newAPIError(resp.StatusCode, path, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %v: %w", path, err, domain.ErrUpstreamUnavailable)
	}

	return nil
}

// newAPIError builds an APIError, preferring the status envelope's message over the raw body
func newAPIError(statusCode int, endpoint string, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    strings.TrimSpace(string(body)),
		Endpoint:   endpoint,
	}

	var envelope struct {
		Status apiStatus `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.ErrorCode = envelope.Status.ErrorCode
		if envelope.Status.ErrorMessage != nil {
			apiErr.Message = *envelope.Status.ErrorMessage
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}

	return apiErr
}

// GetQuotes fetches latest quotes for all symbols in a single request.
// Symbols the API does not know are absent from the result.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	result := make(map[string]domain.Quote, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if sym := domain.NormalizeSymbol(s); sym != "" {
			normalized = append(normalized, sym)
		}
	}

	params := url.Values{}
	params.Set("symbol", strings.Join(normalized, ","))
	params.Set("convert", convertCurrency)
	params.Set("skip_invalid", "true")

	var resp quotesResponse
	if err := c.get(ctx, quotesPath, params, &resp); err != nil {
		return nil, err
	}

	fetchedAt := c.now()
	for key, entries := range resp.Data {
		if q, ok := pickEntry(entries, fetchedAt); ok {
			result[domain.NormalizeSymbol(key)] = q
		}
	}

	c.log.Debug().
		Int("requested", len(normalized)).
		Int("resolved", len(result)).
		Msg("Fetched quotes")

	return result, nil
}

// pickEntry chooses among assets sharing a ticker, preferring the best ranked one
func pickEntry(entries []cryptoEntry, fetchedAt time.Time) (domain.Quote, bool) {
	if len(entries) == 0 {
		return domain.Quote{}, false
	}

	sorted := make([]cryptoEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].CMCRank, sorted[j].CMCRank
		if ri == nil {
			return false
		}
		if rj == nil {
			return true
		}
		return *ri < *rj
	})

	for _, e := range sorted {
		if q, ok := e.toQuote(fetchedAt); ok {
			return q, true
		}
	}
	return domain.Quote{}, false
}

// GetListings fetches one page of the market cap ranked listing. start is 1-based.
func (c *Client) GetListings(ctx context.Context, start, limit int) ([]domain.Quote, error) {
	if start < 1 {
		start = 1
	}

	params := url.Values{}
	params.Set("start", strconv.Itoa(start))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("convert", convertCurrency)

	var resp listingsResponse
	if err := c.get(ctx, listingsPath, params, &resp); err != nil {
		return nil, err
	}

	fetchedAt := c.now()
	quotes := make([]domain.Quote, 0, len(resp.Data))
	for _, e := range resp.Data {
		if q, ok := e.toQuote(fetchedAt); ok {
			quotes = append(quotes, q)
		}
	}

	return quotes, nil
}

// GetDailyCloses fetches the last count daily closes for a symbol, oldest first
func (c *Client) GetDailyCloses(ctx context.Context, symbol string, count int) ([]domain.PricePoint, error) {
	sym := domain.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, errors.New("symbol is required")
	}
	if count < 1 {
		count = 1
	}

	params := url.Values{}
	params.Set("symbol", sym)
	params.Set("time_period", "daily")
	params.Set("count", strconv.Itoa(count))
	params.Set("convert", convertCurrency)

	var resp ohlcvResponse
	if err := c.get(ctx, ohlcvPath, params, &resp); err != nil {
		return nil, err
	}

	var series *ohlcvSeries
	for key, entries := range resp.Data {
		if domain.NormalizeSymbol(key) == sym && len(entries) > 0 {
			series = &entries[0]
			break
		}
	}
	if series == nil {
		return []domain.PricePoint{}, nil
	}

	points := make([]domain.PricePoint, 0, len(series.Quotes))
	for _, bar := range series.Quotes {
		q, ok := bar.Quote[convertCurrency]
		if !ok {
			continue
		}
		ts := bar.TimeClose
		if ts.IsZero() {
			ts = q.Timestamp
		}
		points = append(points, domain.PricePoint{Timestamp: ts.UTC(), Price: q.Close})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	return points, nil
}

// GetFearGreed fetches the latest fear and greed index reading
func (c *Client) GetFearGreed(ctx context.Context) (*domain.FearGreedIndex, error) {
	var resp fearGreedResponse
	if err := c.get(ctx, fearGreedPath, nil, &resp); err != nil {
		return nil, err
	}

	return &domain.FearGreedIndex{
		Value:          resp.Data.Value,
		Classification: resp.Data.ValueClassification,
		UpdatedAt:      resp.Data.UpdateTime,
	}, nil
}

// GetGlobalMetrics fetches aggregate market metrics
func (c *Client) GetGlobalMetrics(ctx context.Context) (*domain.GlobalMetrics, error) {
	params := url.Values{}
	params.Set("convert", convertCurrency)

	var resp globalMetricsResponse
	if err := c.get(ctx, globalMetricsPath, params, &resp); err != nil {
		return nil, err
	}

	metrics := &domain.GlobalMetrics{
		BTCDominance:         resp.Data.BTCDominance,
		ETHDominance:         resp.Data.ETHDominance,
		ActiveCryptocurrency: resp.Data.ActiveCryptocurrencies,
		UpdatedAt:            resp.Data.LastUpdated,
	}
	if usd, ok := resp.Data.Quote[convertCurrency]; ok {
		metrics.TotalMarketCap = usd.TotalMarketCap
		metrics.TotalVolume24h = usd.TotalVolume24h
	}

	return metrics, nil
}

// Ensure Client implements the provider contract
var _ domain.MarketDataProvider = (*Client)(nil)
