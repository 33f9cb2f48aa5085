package quotecache

import (
	"context"
	"sync"
	"time"
)

// Result is a payload returned by LastGood
type Result[T any] struct {
	Value     T         `json:"value"`
	Stale     bool      `json:"stale"`
	FetchedAt time.Time `json:"fetched_at"`
}

// LastGood keeps the last successful payload of a single upstream call.
//
// While the payload is younger than the fresh TTL it is returned without calling upstream.
// After that every Fetch calls upstream; when the call fails the last payload is returned
// with Stale set. Without any previous success the upstream error is returned as-is.
type LastGood[T any] struct {
	mu        sync.Mutex
	value     T
	fetchedAt time.Time
	ok        bool
	freshTTL  time.Duration
	now       func() time.Time
}

// NewLastGood creates an empty LastGood with the given fresh TTL
func NewLastGood[T any](freshTTL time.Duration) *LastGood[T] {
	return &LastGood[T]{
		freshTTL: freshTTL,
		now:      time.Now,
	}
}

// WithClock replaces the time source (tests)
func (l *LastGood[T]) WithClock(now func() time.Time) *LastGood[T] {
	l.now = now
	return l
}

// Seed installs a payload obtained elsewhere (e.g. a durable store) as the last good value.
// A seed never replaces a newer payload.
func (l *LastGood[T]) Seed(value T, fetchedAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ok && !fetchedAt.After(l.fetchedAt) {
		return
	}
	l.value = value
	l.fetchedAt = fetchedAt
	l.ok = true
}

// Fetch returns a fresh payload, calling fn when needed
func (l *LastGood[T]) Fetch(ctx context.Context, fn func(ctx context.Context) (T, error)) (Result[T], error) {
	l.mu.Lock()
	if l.ok && l.now().Sub(l.fetchedAt) <= l.freshTTL {
		res := Result[T]{Value: l.value, FetchedAt: l.fetchedAt}
		l.mu.Unlock()
		return res, nil
	}
	l.mu.Unlock()

	value, err := fn(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		if !l.ok {
			return Result[T]{}, err
		}
		return Result[T]{Value: l.value, Stale: true, FetchedAt: l.fetchedAt}, nil
	}

	l.value = value
	l.fetchedAt = l.now()
	l.ok = true
	return Result[T]{Value: value, FetchedAt: l.fetchedAt}, nil
}
