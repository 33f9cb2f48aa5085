package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptofolio/internal/clientdata"
	"github.com/aristath/cryptofolio/internal/config"
	"github.com/aristath/cryptofolio/internal/modules/snapshots"
	"github.com/aristath/cryptofolio/internal/reliability"
	"github.com/aristath/cryptofolio/internal/scheduler"
)

// RegisterJobs creates the background jobs and registers them with the scheduler.
// The scheduler is created here but not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(log)

	// A nil *SnapshotArchiver must not become a non-nil interface
	var archiver snapshots.Archiver
	var rotator reliability.ArchiveRotator
	if container.SnapshotArchiver != nil {
		archiver = container.SnapshotArchiver
		rotator = container.SnapshotArchiver
	}

	jobs := &JobInstances{
		Snapshot: snapshots.NewJob(
			container.PerformanceService,
			container.SnapshotRepo,
			archiver,
			cfg.Jobs.SnapshotRetentionDays,
			log,
		),
		CacheSweep:        scheduler.NewCacheSweepJob(container.MarketDataGateway, log),
		ClientDataCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
		Maintenance: reliability.NewMaintenanceJob(
			container.Databases(),
			cfg.DataDir,
			rotator,
			cfg.Jobs.SnapshotRetentionDays,
			log,
		),
	}

	schedules := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Jobs.SnapshotSchedule, jobs.Snapshot},
		{cfg.Jobs.CacheSweepSchedule, jobs.CacheSweep},
		{cfg.Jobs.ClientDataCleanupSchedule, jobs.ClientDataCleanup},
		{cfg.Jobs.MaintenanceSchedule, jobs.Maintenance},
	}
	for _, s := range schedules {
		if err := container.Scheduler.AddJob(s.schedule, s.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", s.job.Name(), err)
		}
	}

	return jobs, nil
}
