package scheduler

import (
	"context"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/pipeline"
	"github.com/rs/zerolog"
)

// PipelineRunner is the part of the pipeline the job drives
type PipelineRunner interface {
	Run(ctx context.Context, asOf time.Time) (*pipeline.Run, error)
}

// DailyPipelineJob runs the analytics pipeline for the current date
type DailyPipelineJob struct {
	runner   PipelineRunner
	location *time.Location
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewDailyPipelineJob creates the daily pipeline job. The as-of date is
// today's date in loc.
func NewDailyPipelineJob(runner PipelineRunner, loc *time.Location, log zerolog.Logger) *DailyPipelineJob {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyPipelineJob{
		runner:   runner,
		location: loc,
		timeout:  30 * time.Minute,
		now:      time.Now,
		log:      log.With().Str("job", "daily_pipeline").Logger(),
	}
}

// Name returns the job name
func (j *DailyPipelineJob) Name() string {
	return "daily_pipeline"
}

// Run executes the pipeline
func (j *DailyPipelineJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	asOf := domain.Truncate(j.now().In(j.location))
	run, err := j.runner.Run(ctx, asOf)
	if err != nil {
		return err
	}
	j.log.Info().Str("run_id", run.RunID).Str("as_of", domain.FormatDate(asOf)).Msg("Daily pipeline run finished")
	return nil
}
