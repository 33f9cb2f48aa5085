package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptofolio/internal/modules/snapshots"
)

// MockSnapshotLister is a mock implementation of SnapshotLister
type MockSnapshotLister struct {
	mock.Mock
}

func (m *MockSnapshotLister) List(ctx context.Context, portfolioID string, limit int) ([]snapshots.Snapshot, error) {
	args := m.Called(ctx, portfolioID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]snapshots.Snapshot), args.Error(1)
}

func setupRouter(lister SnapshotLister) *chi.Mux {
	router := chi.NewRouter()
	NewHandler(lister, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func TestHandleListSnapshots(t *testing.T) {
	testCases := []struct {
		name      string
		query     string
		wantLimit int
	}{
		{"default limit", "", 30},
		{"explicit limit", "?limit=5", 5},
		{"limit capped", "?limit=100000", 500},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lister := new(MockSnapshotLister)
			lister.On("List", mock.Anything, "p1", tc.wantLimit).Return([]snapshots.Snapshot{
				{ID: "s1", PortfolioID: "p1", TakenAt: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(10)},
			}, nil)

			rec := httptest.NewRecorder()
			setupRouter(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/p1/snapshots"+tc.query, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var body struct {
				Data     []map[string]interface{} `json:"data"`
				Metadata map[string]interface{}   `json:"metadata"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Len(t, body.Data, 1)
			assert.Equal(t, "s1", body.Data[0]["id"])
			assert.Equal(t, "10", body.Data[0]["total_value"])
			assert.Equal(t, float64(tc.wantLimit), body.Metadata["limit"])
			lister.AssertExpectations(t)
		})
	}
}

func TestHandleListSnapshots_InvalidLimit(t *testing.T) {
	for _, q := range []string{"?limit=abc", "?limit=0", "?limit=-3"} {
		lister := new(MockSnapshotLister)
		rec := httptest.NewRecorder()
		setupRouter(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/p1/snapshots"+q, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		lister.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestHandleListSnapshots_Error(t *testing.T) {
	lister := new(MockSnapshotLister)
	lister.On("List", mock.Anything, "p1", 30).Return(nil, errors.New("db gone"))

	rec := httptest.NewRecorder()
	setupRouter(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/p1/snapshots", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
