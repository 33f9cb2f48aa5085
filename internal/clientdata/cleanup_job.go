package clientdata

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob evicts expired quotes, price series and market overview payloads.
// Tables are cleaned independently; a failing table does not stop the others.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates a client data cleanup job
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// cleanupResult is the outcome of one pass
type cleanupResult struct {
	deleted  map[string]int64
	failed   []string
	duration time.Duration
}

func (r cleanupResult) total() int64 {
	var n int64
	for _, d := range r.deleted {
		n += d
	}
	return n
}

// Name returns the job name for scheduling and logging
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}

// Run deletes expired rows table by table
func (j *CleanupJob) Run() error {
	_, err := j.cleanup()
	return err
}

func (j *CleanupJob) cleanup() (cleanupResult, error) {
	start := j.repo.now()
	res := cleanupResult{deleted: make(map[string]int64, len(AllTables))}

	var errs []error
	for _, table := range AllTables {
		n, err := j.repo.DeleteExpired(table)
		if err != nil {
			res.failed = append(res.failed, table)
			errs = append(errs, err)
			continue
		}
		res.deleted[table] = n
	}
	res.duration = j.repo.now().Sub(start)

	var event *zerolog.Event
	switch {
	case len(errs) > 0:
		event = j.log.Warn().Strs("failed_tables", res.failed)
	case res.total() == 0:
		event = j.log.Debug()
	default:
		event = j.log.Info()
	}
	event.
		Int64("quotes", res.deleted[TableQuotes]).
		Int64("historical_series", res.deleted[TableHistoricalSeries]).
		Int64("market_overview", res.deleted[TableMarketOverview]).
		Int64("total_deleted", res.total()).
		Dur("duration", res.duration).
		Msg("Client data cleanup completed")

	if len(errs) > 0 {
		return res, fmt.Errorf("client data cleanup failed for %d of %d tables: %w",
			len(errs), len(AllTables), errors.Join(errs...))
	}
	return res, nil
}
