package quotecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastGood_ColdFailurePropagates(t *testing.T) {
	lg := NewLastGood[int](time.Minute)
	upstreamErr := errors.New("boom")

	_, err := lg.Fetch(context.Background(), func(ctx context.Context) (int, error) {
		return 0, upstreamErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstreamErr)

	// Nothing was kept from the failed call
	_, err = lg.Fetch(context.Background(), func(ctx context.Context) (int, error) {
		return 0, upstreamErr
	})
	assert.ErrorIs(t, err, upstreamErr)
}

func TestLastGood_ServesStaleAfterFailure(t *testing.T) {
	clock := newFakeClock()
	lg := NewLastGood[int](time.Minute).WithClock(clock.Now)

	res, err := lg.Fetch(context.Background(), func(ctx context.Context) (int, error) {
		return 55, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 55, res.Value)
	assert.False(t, res.Stale)
	firstFetch := res.FetchedAt

	clock.Advance(10 * time.Minute)

	res, err = lg.Fetch(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("rate limited")
	})
	require.NoError(t, err)
	assert.Equal(t, 55, res.Value)
	assert.True(t, res.Stale)
	assert.Equal(t, firstFetch, res.FetchedAt)
}

func TestLastGood_FreshPayloadSkipsUpstream(t *testing.T) {
	clock := newFakeClock()
	lg := NewLastGood[int](time.Minute).WithClock(clock.Now)
	calls := 0
	fn := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := lg.Fetch(context.Background(), fn)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	res, err := lg.Fetch(context.Background(), fn)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Value)

	clock.Advance(time.Minute)
	res, err = lg.Fetch(context.Background(), fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, res.Value)
}

func TestLastGood_Seed(t *testing.T) {
	clock := newFakeClock()
	lg := NewLastGood[string](time.Minute).WithClock(clock.Now)

	lg.Seed("from-disk", clock.Now().Add(-time.Hour))

	// Seeded payload is used as the stale fallback
	got, err := lg.Fetch(context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("down")
	})
	require.NoError(t, err)
	assert.Equal(t, "from-disk", got.Value)
	assert.True(t, got.Stale)
}

func TestLastGood_SeedDoesNotOverrideNewerPayload(t *testing.T) {
	clock := newFakeClock()
	lg := NewLastGood[string](time.Minute).WithClock(clock.Now)

	_, err := lg.Fetch(context.Background(), func(ctx context.Context) (string, error) {
		return "live", nil
	})
	require.NoError(t, err)

	lg.Seed("old", clock.Now().Add(-time.Hour))
	clock.Advance(2 * time.Minute)

	res, err := lg.Fetch(context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("down")
	})
	require.NoError(t, err)
	assert.Equal(t, "live", res.Value)
	assert.True(t, res.Stale)
}
