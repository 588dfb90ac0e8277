package reliability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/factorrisk/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk thresholds in GB
const (
	criticalFreeGB = 0.5
	lowFreeGB      = 5.0
)

// MaintenanceJob checks integrity, truncates WAL files and watches disk
// space for every database
type MaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	timeout   time.Duration
	log       zerolog.Logger
}

// NewMaintenanceJob creates the database maintenance job
func NewMaintenanceJob(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		timeout:   5 * time.Minute,
		log:       log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance job. A failed integrity check or critically
// low disk space fails the run; a failed checkpoint only warns.
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting database maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	names := make([]string, 0, len(j.databases))
	for name := range j.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		db := j.databases[name]

		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("CRITICAL: Integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}

		stats, err := db.GetStats()
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

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Database maintenance completed")
	return nil
}

// checkDiskSpace verifies the data directory's filesystem has room left
func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}
	availableGB := float64(usage.Free) / 1e9

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if availableGB < criticalFreeGB {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on %s", availableGB, j.dataDir)
	}
	if availableGB < lowFreeGB {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}
	return nil
}
