package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/di"
	"github.com/aristath/factorrisk/internal/scheduler"
)

// Serve wires every dependency, starts the scheduler and the HTTP server,
// and blocks until ctx is cancelled or the listener fails. Shutdown is
// graceful: in-flight requests get 10 seconds and running jobs finish.
func Serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Wire all dependencies using DI container
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	loc, err := di.SchedulerLocation(cfg)
	if err != nil {
		return err
	}
	sched := scheduler.New(loc, log)
	if err := di.ScheduleJobs(sched, jobs, cfg, log); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Schedules.RunOnStartup {
		// Sync first so the startup run sees today's levels
		go func() {
			for _, job := range []scheduler.Job{jobs.FactorSync, jobs.Pipeline} {
				if err := sched.RunNow(job); err != nil {
					log.Error().Err(err).Str("job", job.Name()).Msg("Startup job failed")
				}
			}
		}()
	}

	srv := New(Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Scheduler: sched,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Int("port", cfg.Port).Str("tz", loc.String()).Msg("factorrisk started")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return nil
}
