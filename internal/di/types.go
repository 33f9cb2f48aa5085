// Package di provides dependency injection type definitions.
//
// Container holds every long-lived dependency of the application. It is created by Wire()
// and handed to the server, which builds its handlers from the services it holds.
package di

import (
	"github.com/aristath/cryptofolio/internal/clientdata"
	"github.com/aristath/cryptofolio/internal/clients/coinmarketcap"
	"github.com/aristath/cryptofolio/internal/database"
	"github.com/aristath/cryptofolio/internal/marketdata"
	"github.com/aristath/cryptofolio/internal/modules/performance"
	"github.com/aristath/cryptofolio/internal/modules/portfolio"
	"github.com/aristath/cryptofolio/internal/modules/snapshots"
	"github.com/aristath/cryptofolio/internal/reliability"
	"github.com/aristath/cryptofolio/internal/scheduler"
)

// Container holds all dependencies for the application
type Container struct {
	// Databases
	PortfolioDB  *database.DB // portfolios, holdings, snapshots (durable)
	ClientDataDB *database.DB // upstream response cache

	// Repositories
	ClientDataRepo *clientdata.Repository
	PortfolioRepo  *portfolio.Repository
	SnapshotRepo   *snapshots.Repository

	// Clients
	MarketDataClient *coinmarketcap.Client
	ArchiveClient    *reliability.S3Client // nil when archiving is disabled

	// Services
	MarketDataGateway  *marketdata.Gateway
	PortfolioService   *portfolio.Service
	PerformanceService *performance.Service
	OverviewService    *performance.OverviewService
	SnapshotArchiver   *reliability.SnapshotArchiver // nil when archiving is disabled

	Scheduler *scheduler.Scheduler
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.PortfolioDB != nil {
		dbs[c.PortfolioDB.Name()] = c.PortfolioDB
	}
	if c.ClientDataDB != nil {
		dbs[c.ClientDataDB.Name()] = c.ClientDataDB
	}
	return dbs
}

// Close closes all databases
func (c *Container) Close() {
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}

// JobInstances holds the registered background jobs, for manual triggering
type JobInstances struct {
	Snapshot          scheduler.Job
	CacheSweep        scheduler.Job
	ClientDataCleanup scheduler.Job
	Maintenance       scheduler.Job
}

// ByName returns the jobs keyed by their scheduler name
func (j *JobInstances) ByName() map[string]scheduler.Job {
	jobs := make(map[string]scheduler.Job, 4)
	for _, job := range []scheduler.Job{j.Snapshot, j.CacheSweep, j.ClientDataCleanup, j.Maintenance} {
		if job != nil {
			jobs[job.Name()] = job
		}
	}
	return jobs
}
