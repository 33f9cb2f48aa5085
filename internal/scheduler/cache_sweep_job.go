package scheduler

import (
	"github.com/rs/zerolog"
)

// Sweeper drops expired entries from an in-memory cache
type Sweeper interface {
	Sweep() int
}

// CacheSweepJob evicts quotes past their stale lifetime from the in-memory caches
type CacheSweepJob struct {
	sweeper Sweeper
	log     zerolog.Logger
}

// NewCacheSweepJob creates a new cache sweep job
func NewCacheSweepJob(sweeper Sweeper, log zerolog.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		sweeper: sweeper,
		log:     log.With().Str("job", "cache_sweep").Logger(),
	}
}

// Name returns the job name
func (j *CacheSweepJob) Name() string {
	return "cache_sweep"
}

// Run executes the sweep
func (j *CacheSweepJob) Run() error {
	if removed := j.sweeper.Sweep(); removed > 0 {
		j.log.Debug().Int("removed", removed).Msg("Swept expired cache entries")
	}
	return nil
}
