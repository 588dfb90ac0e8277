// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container
// This is the main entry point for dependency injection
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Overlay settings from config.db onto cfg
// 4. Initialize services
// 5. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		_ = container.Close()
		return nil, nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// Settings stored through the API take precedence over the environment
	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		_ = container.Close()
		return nil, nil, fmt.Errorf("failed to apply stored settings: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		_ = container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		_ = container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}
