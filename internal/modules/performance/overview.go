package performance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/cryptofolio/internal/clientdata"
	"github.com/aristath/cryptofolio/internal/domain"
	"github.com/aristath/cryptofolio/internal/quotecache"
)

// OverviewFreshTTL is how long sentiment and global metrics are served without refetching
const OverviewFreshTTL = 15 * time.Minute

const (
	overviewKeyFearGreed     = "fear_greed"
	overviewKeyGlobalMetrics = "global_metrics"
)

// MarketSentimentSource provides market-wide indicators
type MarketSentimentSource interface {
	GetFearGreed(ctx context.Context) (*domain.FearGreedIndex, error)
	GetGlobalMetrics(ctx context.Context) (*domain.GlobalMetrics, error)
}

// MarketOverview is the market-wide context shown next to portfolio performance.
// A section is nil when it has never been fetched successfully.
type MarketOverview struct {
	FearGreed     *quotecache.Result[domain.FearGreedIndex] `json:"fear_greed"`
	GlobalMetrics *quotecache.Result[domain.GlobalMetrics]  `json:"global_metrics"`
}

// Stale reports whether any section was served from the last good payload
func (o *MarketOverview) Stale() bool {
	return (o.FearGreed != nil && o.FearGreed.Stale) ||
		(o.GlobalMetrics != nil && o.GlobalMetrics.Stale)
}

// OverviewService serves the fear and greed index and global metrics.
// Each keeps its last good payload in memory and in the client data store, so an upstream
// outage returns the previous payload marked stale, even after a restart.
type OverviewService struct {
	source    MarketSentimentSource
	store     *clientdata.Repository
	fearGreed *quotecache.LastGood[domain.FearGreedIndex]
	global    *quotecache.LastGood[domain.GlobalMetrics]
	log       zerolog.Logger
	now       func() time.Time
	seedOnce  sync.Once
}

// NewOverviewService creates an overview service. store is optional.
func NewOverviewService(source MarketSentimentSource, store *clientdata.Repository, log zerolog.Logger) *OverviewService {
	return &OverviewService{
		source:    source,
		store:     store,
		fearGreed: quotecache.NewLastGood[domain.FearGreedIndex](OverviewFreshTTL),
		global:    quotecache.NewLastGood[domain.GlobalMetrics](OverviewFreshTTL),
		log:       log.With().Str("service", "market_overview").Logger(),
		now:       time.Now,
	}
}

// WithClock replaces the time source (tests)
func (s *OverviewService) WithClock(now func() time.Time) *OverviewService {
	s.now = now
	s.fearGreed.WithClock(now)
	s.global.WithClock(now)
	return s
}

// storedPayload is the durable form of a last good payload
type storedPayload[T any] struct {
	Value     T         `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GetOverview fetches both sections concurrently. It fails only when neither section
// can be served.
func (s *OverviewService) GetOverview(ctx context.Context) (*MarketOverview, error) {
	s.seedOnce.Do(s.seedFromStore)

	overview := &MarketOverview{}
	var fgErr, gmErr error

	var g errgroup.Group
	g.Go(func() error {
		res, err := s.fearGreed.Fetch(ctx, func(ctx context.Context) (domain.FearGreedIndex, error) {
			idx, err := s.source.GetFearGreed(ctx)
			if err != nil {
				return domain.FearGreedIndex{}, err
			}
			s.persist(overviewKeyFearGreed, *idx)
			return *idx, nil
		})
		if err != nil {
			fgErr = err
			return nil
		}
		overview.FearGreed = &res
		return nil
	})
	g.Go(func() error {
		res, err := s.global.Fetch(ctx, func(ctx context.Context) (domain.GlobalMetrics, error) {
			m, err := s.source.GetGlobalMetrics(ctx)
			if err != nil {
				return domain.GlobalMetrics{}, err
			}
			s.persist(overviewKeyGlobalMetrics, *m)
			return *m, nil
		})
		if err != nil {
			gmErr = err
			return nil
		}
		overview.GlobalMetrics = &res
		return nil
	})
	_ = g.Wait()

	if fgErr != nil && gmErr != nil {
		return nil, fmt.Errorf("market overview unavailable: %w", errors.Join(fgErr, gmErr))
	}
	if fgErr != nil {
		s.log.Warn().Err(fgErr).Msg("Fear and greed index unavailable")
	}
	if gmErr != nil {
		s.log.Warn().Err(gmErr).Msg("Global metrics unavailable")
	}
	if overview.Stale() {
		s.log.Info().Msg("Serving stale market overview")
	}

	return overview, nil
}

func (s *OverviewService) persist(key string, value interface{}) {
	if s.store == nil {
		return
	}
	payload := storedPayload[interface{}]{Value: value, FetchedAt: s.now()}
	if err := s.store.Store(clientdata.TableMarketOverview, key, payload, clientdata.TTLMarketOverview); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to persist market overview")
	}
}

func (s *OverviewService) seedFromStore() {
	if s.store == nil {
		return
	}
	seed(s, overviewKeyFearGreed, s.fearGreed)
	seed(s, overviewKeyGlobalMetrics, s.global)
}

func seed[T any](s *OverviewService, key string, lg *quotecache.LastGood[T]) {
	data, err := s.store.Get(clientdata.TableMarketOverview, key)
	if err != nil || data == nil {
		return
	}
	var payload storedPayload[T]
	if err := json.Unmarshal(data, &payload); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable market overview")
		return
	}
	lg.Seed(payload.Value, payload.FetchedAt)
}
