package performance

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptofolio/internal/clientdata"
	"github.com/aristath/cryptofolio/internal/database"
	"github.com/aristath/cryptofolio/internal/domain"
)

type stubSentiment struct {
	mu        sync.Mutex
	fearGreed *domain.FearGreedIndex
	global    *domain.GlobalMetrics
	fgErr     error
	gmErr     error
	fgCalls   int
	gmCalls   int
}

func (s *stubSentiment) GetFearGreed(ctx context.Context) (*domain.FearGreedIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fgCalls++
	if s.fgErr != nil {
		return nil, s.fgErr
	}
	idx := *s.fearGreed
	return &idx, nil
}

func (s *stubSentiment) GetGlobalMetrics(ctx context.Context) (*domain.GlobalMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gmCalls++
	if s.gmErr != nil {
		return nil, s.gmErr
	}
	m := *s.global
	return &m, nil
}

func (s *stubSentiment) fail(fg, gm error) {
	s.mu.Lock()
	s.fgErr = fg
	s.gmErr = gm
	s.mu.Unlock()
}

func newStubSentiment() *stubSentiment {
	return &stubSentiment{
		fearGreed: &domain.FearGreedIndex{Value: 72, Classification: "Greed", UpdatedAt: testNow},
		global: &domain.GlobalMetrics{
			TotalMarketCap:       decimal.RequireFromString("2400000000000"),
			TotalVolume24h:       decimal.RequireFromString("98000000000"),
			BTCDominance:         decimal.RequireFromString("52.1"),
			ETHDominance:         decimal.RequireFromString("17.3"),
			ActiveCryptocurrency: 9800,
			UpdatedAt:            testNow,
		},
	}
}

// steppingClock is advanced manually by tests
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newOverviewStore(t *testing.T) *clientdata.Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "client_data.db"),
		Profile: database.ProfileCache,
		Name:    database.NameClientData,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	return clientdata.NewRepository(db.Conn())
}

func TestGetOverview_Fresh(t *testing.T) {
	source := newStubSentiment()
	clock := &steppingClock{now: testNow}
	svc := NewOverviewService(source, nil, zerolog.Nop()).WithClock(clock.Now)

	overview, err := svc.GetOverview(context.Background())
	require.NoError(t, err)

	require.NotNil(t, overview.FearGreed)
	require.NotNil(t, overview.GlobalMetrics)
	assert.Equal(t, 72, overview.FearGreed.Value.Value)
	assert.True(t, overview.GlobalMetrics.Value.BTCDominance.Equal(decimal.RequireFromString("52.1")))
	assert.False(t, overview.Stale())

	// Second call within the fresh window does not reach upstream
	clock.Advance(time.Minute)
	_, err = svc.GetOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, source.fgCalls)
	assert.Equal(t, 1, source.gmCalls)
}

func TestGetOverview_ServesStaleAfterFailure(t *testing.T) {
	source := newStubSentiment()
	clock := &steppingClock{now: testNow}
	svc := NewOverviewService(source, nil, zerolog.Nop()).WithClock(clock.Now)

	_, err := svc.GetOverview(context.Background())
	require.NoError(t, err)

	clock.Advance(OverviewFreshTTL + time.Minute)
	source.fail(errors.New("rate limited"), nil)

	overview, err := svc.GetOverview(context.Background())
	require.NoError(t, err)

	require.NotNil(t, overview.FearGreed)
	assert.True(t, overview.FearGreed.Stale)
	assert.Equal(t, testNow, overview.FearGreed.FetchedAt)
	assert.False(t, overview.GlobalMetrics.Stale)
	assert.True(t, overview.Stale())
}

func TestGetOverview_ColdFailure(t *testing.T) {
	source := newStubSentiment()
	source.fail(domain.ErrUpstreamUnavailable, errors.New("timeout"))
	svc := NewOverviewService(source, nil, zerolog.Nop())

	overview, err := svc.GetOverview(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Nil(t, overview)
}

func TestGetOverview_OneSectionUnavailable(t *testing.T) {
	source := newStubSentiment()
	source.fail(nil, domain.ErrUpstreamUnavailable)
	svc := NewOverviewService(source, nil, zerolog.Nop())

	overview, err := svc.GetOverview(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, overview.FearGreed)
	assert.Nil(t, overview.GlobalMetrics)
	assert.False(t, overview.Stale())
}

func TestGetOverview_SurvivesRestart(t *testing.T) {
	store := newOverviewStore(t)
	clock := &steppingClock{now: testNow}

	first := NewOverviewService(newStubSentiment(), store, zerolog.Nop()).WithClock(clock.Now)
	_, err := first.GetOverview(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour)
	down := newStubSentiment()
	down.fail(domain.ErrUpstreamUnavailable, domain.ErrUpstreamUnavailable)

	second := NewOverviewService(down, store, zerolog.Nop()).WithClock(clock.Now)
	overview, err := second.GetOverview(context.Background())
	require.NoError(t, err)

	require.NotNil(t, overview.FearGreed)
	require.NotNil(t, overview.GlobalMetrics)
	assert.True(t, overview.FearGreed.Stale)
	assert.True(t, overview.GlobalMetrics.Stale)
	assert.Equal(t, "Greed", overview.FearGreed.Value.Classification)
	assert.True(t, overview.GlobalMetrics.Value.TotalMarketCap.Equal(decimal.RequireFromString("2400000000000")))
	assert.True(t, testNow.Equal(overview.FearGreed.FetchedAt))
}
