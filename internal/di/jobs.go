// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/factorrisk/internal/clientdata"
	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/reliability"
	"github.com/aristath/factorrisk/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the background jobs. They are added to a scheduler
// by ScheduleJobs; the instances are also returned for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	if container.Pipeline == nil || container.SyncService == nil {
		return nil, fmt.Errorf("services must be initialized before jobs")
	}

	loc, err := SchedulerLocation(cfg)
	if err != nil {
		return nil, err
	}

	instances := &JobInstances{
		FactorSync:   scheduler.NewFactorSyncJob(container.SyncService, log),
		Pipeline:     scheduler.NewDailyPipelineJob(container.Pipeline, loc, log),
		Maintenance:  reliability.NewMaintenanceJob(container.Databases(), cfg.DataDir, log),
		CacheCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
	}

	log.Info().Msg("Jobs registered")
	return instances, nil
}

// ScheduleJobs adds every job to sched on its configured cron schedule. An
// empty schedule leaves that job manual-only.
func ScheduleJobs(sched *scheduler.Scheduler, jobs *JobInstances, cfg *config.Config, log zerolog.Logger) error {
	entries := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedules.FactorSync, jobs.FactorSync},
		{cfg.Schedules.Pipeline, jobs.Pipeline},
		{cfg.Schedules.Maintenance, jobs.Maintenance},
		{cfg.Schedules.CacheCleanup, jobs.CacheCleanup},
	}

	for _, e := range entries {
		if e.schedule == "" {
			log.Info().Str("job", e.job.Name()).Msg("No schedule configured, job is manual-only")
			continue
		}
		if err := sched.AddJob(e.schedule, e.job); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", e.job.Name(), err)
		}
	}
	return nil
}
