package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/rs/zerolog"
)

// FactorSyncer syncs factor levels from the providers
type FactorSyncer interface {
	SyncAll(ctx context.Context) ([]factors.SyncResult, error)
}

// FactorSyncJob pulls new factor levels ahead of the daily pipeline
type FactorSyncJob struct {
	syncer  FactorSyncer
	timeout time.Duration
	log     zerolog.Logger
}

// NewFactorSyncJob creates a new factor sync job
func NewFactorSyncJob(syncer FactorSyncer, log zerolog.Logger) *FactorSyncJob {
	return &FactorSyncJob{
		syncer:  syncer,
		timeout: 10 * time.Minute,
		log:     log.With().Str("job", "factor_sync").Logger(),
	}
}

// Name returns the job name
func (j *FactorSyncJob) Name() string {
	return "factor_sync"
}

// Run syncs every factor. It fails when any factor failed, after all of
// them were attempted.
func (j *FactorSyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	results, err := j.syncer.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("factor sync aborted: %w", err)
	}

	var failed []string
	stored := 0
	for _, r := range results {
		stored += r.Stored
		if r.Error != "" {
			failed = append(failed, r.FactorCode)
		}
	}
	j.log.Info().Int("stored", stored).Int("failed", len(failed)).Msg("Factor sync job finished")

	if len(failed) > 0 {
		return fmt.Errorf("factor sync failed for %v", failed)
	}
	return nil
}
