// Package snapshots stores point-in-time portfolio performance.
package snapshots

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/cryptofolio/internal/domain"
	"github.com/aristath/cryptofolio/internal/modules/performance"
)

// Snapshot is a stored performance result
type Snapshot struct {
	ID          string                       `json:"id"`
	PortfolioID string                       `json:"portfolio_id"`
	TakenAt     time.Time                    `json:"taken_at"`
	TotalValue  decimal.Decimal              `json:"total_value"`
	Performance *domain.PortfolioPerformance `json:"performance"`
}

// record is the msgpack form of a snapshot. Decimals are kept as strings.
type record struct {
	PortfolioID string          `msgpack:"portfolio_id"`
	TakenAt     int64           `msgpack:"taken_at"`
	LastUpdated int64           `msgpack:"last_updated"`
	StaleQuotes int             `msgpack:"stale_quotes"`
	Holdings    []holdingRecord `msgpack:"holdings"`
}

type holdingRecord struct {
	Symbol    string  `msgpack:"symbol"`
	Amount    string  `msgpack:"amount"`
	Price     string  `msgpack:"price"`
	Value     string  `msgpack:"value"`
	Change    string  `msgpack:"change_24h"`
	ChangePct string  `msgpack:"change_pct_24h"`
	MarketCap *string `msgpack:"market_cap,omitempty"`
	Volume    *string `msgpack:"volume_24h,omitempty"`
	Missing   bool    `msgpack:"missing"`
}

// Repository handles snapshot persistence (portfolio.db)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Store saves one performance result taken at takenAt
func (r *Repository) Store(ctx context.Context, perf *domain.PortfolioPerformance, takenAt time.Time) (*Snapshot, error) {
	data, err := Encode(perf, takenAt)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:          uuid.NewString(),
		PortfolioID: perf.PortfolioID,
		TakenAt:     takenAt.UTC().Truncate(time.Second),
		TotalValue:  perf.TotalValue,
		Performance: perf,
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, portfolio_id, taken_at, total_value, data) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.PortfolioID, snap.TakenAt.Unix(), perf.TotalValue.InexactFloat64(), data,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store snapshot for %s: %w", perf.PortfolioID, err)
	}

	return snap, nil
}

// List returns the newest snapshots of a portfolio, newest first
func (r *Repository) List(ctx context.Context, portfolioID string, limit int) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, portfolio_id, taken_at, data FROM snapshots
		WHERE portfolio_id = ? ORDER BY taken_at DESC, rowid DESC LIMIT ?`,
		portfolioID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		var takenAt int64
		var data []byte
		if err := rows.Scan(&snap.ID, &snap.PortfolioID, &takenAt, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.TakenAt = time.Unix(takenAt, 0).UTC()

		perf, _, err := Decode(data)
		if err != nil {
			r.log.Warn().Err(err).Str("snapshot_id", snap.ID).Msg("Skipping unreadable snapshot")
			continue
		}
		snap.Performance = perf
		snap.TotalValue = perf.TotalValue
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// DeleteBefore removes snapshots taken before cutoff. Returns the number deleted.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE taken_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Encode serializes a performance result to its msgpack form
func Encode(perf *domain.PortfolioPerformance, takenAt time.Time) ([]byte, error) {
	rec := record{
		PortfolioID: perf.PortfolioID,
		TakenAt:     takenAt.Unix(),
		StaleQuotes: perf.Metrics.StaleQuotes,
		Holdings:    make([]holdingRecord, 0, len(perf.Holdings)),
	}
	if !perf.Metrics.LastUpdated.IsZero() {
		rec.LastUpdated = perf.Metrics.LastUpdated.Unix()
	}

	for _, hp := range perf.Holdings {
		rec.Holdings = append(rec.Holdings, holdingRecord{
			Symbol:    hp.Symbol,
			Amount:    hp.Amount.String(),
			Price:     hp.CurrentPrice.String(),
			Value:     hp.TotalValue.String(),
			Change:    hp.PriceChange24h.String(),
			ChangePct: hp.PriceChangePercent24h.String(),
			MarketCap: optionalString(hp.MarketCap),
			Volume:    optionalString(hp.Volume24h),
			Missing:   hp.QuoteMissing,
		})
	}

	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode restores a performance result. Portfolio level figures are recomputed from the
// stored holding rows.
func Decode(data []byte) (*domain.PortfolioPerformance, time.Time, error) {
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	rows := make([]domain.HoldingPerformance, 0, len(rec.Holdings))
	for _, h := range rec.Holdings {
		hp, err := h.toHoldingPerformance()
		if err != nil {
			return nil, time.Time{}, err
		}
		rows = append(rows, hp)
	}

	perf := performance.AggregatePortfolio(rows)
	perf.PortfolioID = rec.PortfolioID
	perf.Metrics.StaleQuotes = rec.StaleQuotes
	if rec.LastUpdated != 0 {
		perf.Metrics.LastUpdated = time.Unix(rec.LastUpdated, 0).UTC()
	}

	return &perf, time.Unix(rec.TakenAt, 0).UTC(), nil
}

func (h holdingRecord) toHoldingPerformance() (domain.HoldingPerformance, error) {
	hp := domain.HoldingPerformance{
		Symbol:       h.Symbol,
		QuoteMissing: h.Missing,
		MarketCap:    optionalDecimal(h.MarketCap),
		Volume24h:    optionalDecimal(h.Volume),
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&hp.Amount, h.Amount},
		{&hp.CurrentPrice, h.Price},
		{&hp.TotalValue, h.Value},
		{&hp.PriceChange24h, h.Change},
		{&hp.PriceChangePercent24h, h.ChangePct},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return hp, fmt.Errorf("invalid %s value %q: %w", h.Symbol, f.src, err)
		}
		*f.dst = d
	}

	return hp, nil
}

func optionalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func optionalDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}
