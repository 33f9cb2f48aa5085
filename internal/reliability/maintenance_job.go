package reliability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/cryptofolio/internal/database"
)

const (
	criticalFreeGB = 0.5
	lowFreeGB      = 5.0
)

// ArchiveRotator prunes old off-site archives
type ArchiveRotator interface {
	RotateOldArchives(ctx context.Context, retentionDays int) (int, error)
}

// MaintenanceJob performs daily database maintenance
type MaintenanceJob struct {
	databases     map[string]*database.DB
	dataDir       string
	rotator       ArchiveRotator
	retentionDays int
	timeout       time.Duration
	diskUsage     func(path string) (*disk.UsageStat, error)
	log           zerolog.Logger
}

// NewMaintenanceJob creates the maintenance job. rotator may be nil when archiving is off.
func NewMaintenanceJob(
	databases map[string]*database.DB,
	dataDir string,
	rotator ArchiveRotator,
	retentionDays int,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		databases:     databases,
		dataDir:       dataDir,
		rotator:       rotator,
		retentionDays: retentionDays,
		timeout:       5 * time.Minute,
		diskUsage:     disk.Usage,
		log:           log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the maintenance steps. Only a failed integrity check or a critically
// full disk fail the run.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	names := make([]string, 0, len(j.databases))
	for name := range j.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	// Step 1: integrity
	for _, name := range names {
		if err := j.databases[name].HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Database integrity check failed")
			return fmt.Errorf("database %s failed integrity check: %w", name, err)
		}
	}

	// Step 2: WAL checkpoint, not critical
	for _, name := range names {
		if _, err := j.databases[name].Conn().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}

	// Step 3: disk space
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	// Step 4: growth
	for _, name := range names {
		stats, err := j.databases[name].GetStats()
		if err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}
		j.log.Info().
			Str("database", name).
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Float64("wal_size_mb", float64(stats.WALSizeBytes)/1024/1024).
			Int64("freelist_pages", stats.FreelistCount).
			Msg("Database metrics")
	}

	// Step 5: archive rotation
	if j.rotator != nil {
		if _, err := j.rotator.RotateOldArchives(ctx, j.retentionDays); err != nil {
			j.log.Warn().Err(err).Msg("Snapshot archive rotation failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed")

	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := j.diskUsage(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("path", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().
		Float64("available_gb", availableGB).
		Float64("used_percent", usage.UsedPercent).
		Msg("Disk space check")

	if availableGB < criticalFreeGB {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	}
	if availableGB < lowFreeGB {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}

	return nil
}
