package snapshots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/cryptofolio/internal/domain"
)

const defaultJobTimeout = 2 * time.Minute

// Calculator values every stored portfolio
type Calculator interface {
	CalculateAll(ctx context.Context) (map[string]*domain.PortfolioPerformance, error)
}

// Archiver copies a snapshot batch to long-term storage
type Archiver interface {
	Archive(ctx context.Context, takenAt time.Time, data []byte) error
}

// Job takes a snapshot of every portfolio's performance
type Job struct {
	calculator Calculator
	repo       *Repository
	archiver   Archiver
	retention  time.Duration
	timeout    time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewJob creates a snapshot job. archiver may be nil; retentionDays 0 keeps snapshots forever.
func NewJob(calculator Calculator, repo *Repository, archiver Archiver, retentionDays int, log zerolog.Logger) *Job {
	return &Job{
		calculator: calculator,
		repo:       repo,
		archiver:   archiver,
		retention:  time.Duration(retentionDays) * 24 * time.Hour,
		timeout:    defaultJobTimeout,
		log:        log.With().Str("job", "portfolio_snapshot").Logger(),
		now:        time.Now,
	}
}

// Name returns the job name for scheduling and logging
func (j *Job) Name() string {
	return "portfolio_snapshot"
}

// Run values all portfolios with one batch lookup and stores the results
func (j *Job) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := j.now()
	takenAt := start.UTC()

	results, err := j.calculator.CalculateAll(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to calculate performance for snapshot")
		return fmt.Errorf("snapshot calculation failed: %w", err)
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	batch := make([]msgpack.RawMessage, 0, len(ids))
	for _, id := range ids {
		if _, err := j.repo.Store(ctx, results[id], takenAt); err != nil {
			j.log.Warn().Err(err).Str("portfolio_id", id).Msg("Failed to store snapshot")
			errs = append(errs, err)
			continue
		}
		if j.archiver != nil {
			data, err := Encode(results[id], takenAt)
			if err == nil {
				batch = append(batch, data)
			}
		}
	}

	if len(ids) > 0 && len(errs) == len(ids) {
		return fmt.Errorf("no snapshot could be stored: %w", errors.Join(errs...))
	}

	j.prune(ctx)
	j.archive(ctx, takenAt, batch)

	j.log.Info().
		Int("portfolios", len(ids)).
		Int("failed", len(errs)).
		Dur("duration_ms", j.now().Sub(start)).
		Msg("Portfolio snapshot completed")

	return nil
}

func (j *Job) prune(ctx context.Context) {
	if j.retention <= 0 {
		return
	}
	deleted, err := j.repo.DeleteBefore(ctx, j.now().Add(-j.retention))
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to prune old snapshots")
		return
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Pruned old snapshots")
	}
}

// archive failures are logged only; the local snapshot is already stored
func (j *Job) archive(ctx context.Context, takenAt time.Time, batch []msgpack.RawMessage) {
	if j.archiver == nil || len(batch) == 0 {
		return
	}
	data, err := msgpack.Marshal(batch)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to encode snapshot archive")
		return
	}
	if err := j.archiver.Archive(ctx, takenAt, data); err != nil {
		j.log.Warn().Err(err).Msg("Failed to archive snapshots")
	}
}

// DecodeArchive reads a batch written by the archive step
func DecodeArchive(data []byte) ([]*domain.PortfolioPerformance, error) {
	var batch []msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot archive: %w", err)
	}

	out := make([]*domain.PortfolioPerformance, 0, len(batch))
	for _, raw := range batch {
		perf, _, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, perf)
	}
	return out, nil
}
