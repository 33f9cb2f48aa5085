// Package marketdata resolves quotes and price history for sets of symbols on top of the
// upstream market data provider, with caching, request coalescing and stale fallback.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/cryptofolio/internal/clientdata"
	"github.com/aristath/cryptofolio/internal/domain"
	"github.com/aristath/cryptofolio/internal/quotecache"
)

// DefaultTimeout bounds one shared upstream fetch
const DefaultTimeout = 10 * time.Second

// DefaultBatchRetryInterval is how long the listing strategy is used after the provider
// rejects multi-symbol lookups, before the batch endpoint is tried again
const DefaultBatchRetryInterval = time.Hour

// Options tunes the gateway
type Options struct {
	Timeout         time.Duration
	QuoteFreshTTL   time.Duration
	QuoteStaleTTL   time.Duration
	HistoryTTL      time.Duration
	ListingPageSize int
	ListingMaxPages int
	// BatchRetryInterval bounds how long a batch-unsupported verdict is trusted
	BatchRetryInterval time.Duration
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		Timeout:         DefaultTimeout,
		QuoteFreshTTL:   quotecache.QuoteFreshTTL,
		QuoteStaleTTL:   quotecache.QuoteStaleTTL,
		HistoryTTL:      quotecache.HistoryFreshTTL,
		ListingPageSize: 200,
		ListingMaxPages: 5,

		BatchRetryInterval: DefaultBatchRetryInterval,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.QuoteFreshTTL <= 0 {
		o.QuoteFreshTTL = d.QuoteFreshTTL
	}
	if o.QuoteStaleTTL <= 0 {
		o.QuoteStaleTTL = d.QuoteStaleTTL
	}
	if o.HistoryTTL <= 0 {
		o.HistoryTTL = d.HistoryTTL
	}
	if o.ListingPageSize <= 0 {
		o.ListingPageSize = d.ListingPageSize
	}
	if o.ListingMaxPages <= 0 {
		o.ListingMaxPages = d.ListingMaxPages
	}
	if o.BatchRetryInterval <= 0 {
		o.BatchRetryInterval = d.BatchRetryInterval
	}
	return o
}

// CacheStats reports both in-memory caches
type CacheStats struct {
	Quotes  quotecache.Stats `json:"quotes"`
	History quotecache.Stats `json:"history"`
}

// Gateway implements domain.QuoteGateway and domain.HistoricalPriceSource
type Gateway struct {
	provider domain.MarketDataProvider
	quotes   *quotecache.Cache[domain.Quote]
	history  *quotecache.Cache[[]domain.PricePoint]
	store    *clientdata.Repository
	opts     Options
	log      zerolog.Logger

	batch   fetchStrategy
	listing fetchStrategy
	// unix nanos of the last batch-unsupported answer, 0 when batch lookups are assumed to work
	batchUnsupportedAt atomic.Int64
	now                func() time.Time

	quoteGroup   singleflight.Group
	historyGroup singleflight.Group
}

// NewGateway creates a gateway. store is optional; when set, fetched quotes and series
// survive restarts and back the in-memory cache during upstream outages.
func NewGateway(provider domain.MarketDataProvider, store *clientdata.Repository, opts Options, log zerolog.Logger) *Gateway {
	opts = opts.withDefaults()
	return &Gateway{
		provider: provider,
		quotes:   quotecache.New[domain.Quote](opts.QuoteFreshTTL, opts.QuoteStaleTTL),
		history:  quotecache.New[[]domain.PricePoint](opts.HistoryTTL, opts.HistoryTTL),
		store:    store,
		opts:     opts,
		log:      log.With().Str("service", "market_data_gateway").Logger(),
		now:      time.Now,
		batch:    batchStrategy{provider: provider},
		listing: listingStrategy{
			provider: provider,
			pageSize: opts.ListingPageSize,
			maxPages: opts.ListingMaxPages,
		},
	}
}

// WithClock replaces the time source of the gateway and both caches. Intended for tests.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	g.quotes.WithClock(now)
	g.history.WithClock(now)
	return g
}

// QuoteFreshTTL is the window within which a quote is considered live
func (g *Gateway) QuoteFreshTTL() time.Duration {
	return g.opts.QuoteFreshTTL
}

// GetQuotesBySymbols returns exactly one entry per normalized requested symbol.
// Unknown symbols map to nil. Symbols missing from the fresh cache are resolved with one
// shared upstream fetch; if that fails, stale cache entries are served. Symbols with nothing
// serveable map to nil and are reported by a *domain.UnresolvedQuotesError returned together
// with the map. A cancelled caller gets a nil map.
func (g *Gateway) GetQuotesBySymbols(ctx context.Context, symbols []string) (map[string]*domain.Quote, error) {
	requested := normalizeSymbols(symbols)
	result := make(map[string]*domain.Quote, len(requested))
	if len(requested) == 0 {
		return result, nil
	}

	missing := make([]string, 0, len(requested))
	for _, sym := range requested {
		if q, ok := g.quotes.Get(sym); ok {
			q := q
			result[sym] = &q
			continue
		}
		missing = append(missing, sym)
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, fetchErr := g.fetchShared(ctx, missing)

	// A cancelled caller gets an error, never a partial map
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("quote lookup cancelled: %w", err)
	}

	if fetchErr != nil {
		return g.serveStale(result, missing, fetchErr)
	}

	for _, sym := range missing {
		if q, ok := fetched[sym]; ok {
			q := q
			result[sym] = &q
		} else {
			result[sym] = nil
		}
	}

	return result, nil
}

// fetchShared coalesces concurrent fetches of the same symbol set. The upstream call runs
// detached from every caller on the gateway timeout, so one caller's cancellation or
// deadline cannot fail its peers. Each caller waits only as long as its own ctx allows.
func (g *Gateway) fetchShared(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	key := strings.Join(symbols, ",")

	ch := g.quoteGroup.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.Timeout)
		defer cancel()
		return g.fetchUpstream(fetchCtx, symbols)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]domain.Quote), nil
	}
}

// fetchUpstream runs the batch strategy, falling back to the listing strategy once
func (g *Gateway) fetchUpstream(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	strategy := g.batch
	if g.batchDisabled() {
		strategy = g.listing
	}

	start := time.Now()
	quotes, err := strategy.Fetch(ctx, symbols)
	if err != nil && errors.Is(err, domain.ErrBatchUnsupported) && strategy == g.batch {
		g.batchUnsupportedAt.Store(g.now().UnixNano())
		g.log.Warn().
			Err(err).
			Dur("retry_after", g.opts.BatchRetryInterval).
			Msg("Batch quote endpoint unsupported, switching to listing strategy")
		strategy = g.listing
		quotes, err = strategy.Fetch(ctx, symbols)
	}
	if err != nil {
		g.log.Warn().
			Err(err).
			Str("strategy", strategy.Name()).
			Int("symbols", len(symbols)).
			Msg("Upstream quote fetch failed")
		return nil, err
	}

	g.storeQuotes(quotes)

	g.log.Debug().
		Str("strategy", strategy.Name()).
		Int("requested", len(symbols)).
		Int("resolved", len(quotes)).
		Dur("duration", time.Since(start)).
		Msg("Fetched quotes")

	return quotes, nil
}

// batchDisabled reports whether the last batch-unsupported answer is still trusted
func (g *Gateway) batchDisabled() bool {
	at := g.batchUnsupportedAt.Load()
	if at == 0 {
		return false
	}
	if g.now().Sub(time.Unix(0, at)) < g.opts.BatchRetryInterval {
		return true
	}
	g.batchUnsupportedAt.CompareAndSwap(at, 0)
	return false
}

func (g *Gateway) storeQuotes(quotes map[string]domain.Quote) {
	for sym, q := range quotes {
		g.quotes.Set(sym, q)
	}

	if g.store == nil || len(quotes) == 0 {
		return
	}

	entries := make(map[string]interface{}, len(quotes))
	for sym, q := range quotes {
		entries[sym] = q
	}
	// Durable rows expire with the stale window so they are never served past it
	if err := g.store.StoreMany(clientdata.TableQuotes, entries, g.opts.QuoteStaleTTL); err != nil {
		g.log.Warn().Err(err).Msg("Failed to persist quotes")
	}
}

// serveStale fills missing symbols from stale cache tiers after an upstream failure.
// Whatever cannot be served maps to nil; the rest of result is kept.
func (g *Gateway) serveStale(result map[string]*domain.Quote, missing []string, fetchErr error) (map[string]*domain.Quote, error) {
	var unresolved []string
	stale := 0

	for _, sym := range missing {
		if q, _, ok := g.quotes.Lookup(sym); ok {
			q := q
			result[sym] = &q
			stale++
			continue
		}
		if q, ok := g.loadDurableQuote(sym); ok {
			result[sym] = &q
			stale++
			continue
		}
		result[sym] = nil
		unresolved = append(unresolved, sym)
	}

	g.log.Warn().
		Err(fetchErr).
		Int("stale", stale).
		Strs("unresolved", unresolved).
		Msg("Upstream failed, serving stale quotes")

	if len(unresolved) > 0 {
		return result, &domain.UnresolvedQuotesError{Symbols: unresolved, Err: fetchErr}
	}
	return result, nil
}

func (g *Gateway) loadDurableQuote(sym string) (domain.Quote, bool) {
	if g.store == nil {
		return domain.Quote{}, false
	}

	data, err := g.store.GetIfFresh(clientdata.TableQuotes, sym)
	if err != nil || data == nil {
		return domain.Quote{}, false
	}

	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		g.log.Warn().Err(err).Str("symbol", sym).Msg("Discarding unreadable cached quote")
		return domain.Quote{}, false
	}
	return q, true
}

// Sweep evicts expired entries from both caches
func (g *Gateway) Sweep() int {
	return g.quotes.Sweep() + g.history.Sweep()
}

// Stats returns cache statistics
func (g *Gateway) Stats() CacheStats {
	return CacheStats{
		Quotes:  g.quotes.Stats(),
		History: g.history.Stats(),
	}
}

// normalizeSymbols upper-cases, trims, drops empties and deduplicates, in sorted order
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym := domain.NormalizeSymbol(s)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

var (
	_ domain.QuoteGateway          = (*Gateway)(nil)
	_ domain.HistoricalPriceSource = (*Gateway)(nil)
)
