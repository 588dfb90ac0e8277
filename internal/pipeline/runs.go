package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// RunStatus is the lifecycle state of a pipeline run
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// Run is one pipeline execution as recorded in pipeline_runs. Undefined maps
// a method to the reason its exposure or risk was not produced.
type Run struct {
	RunID         string            `json:"run_id"`
	AsOfDate      time.Time         `json:"as_of_date"`
	PortfolioDate *time.Time        `json:"portfolio_date,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    *time.Time        `json:"finished_at"`
	Status        RunStatus         `json:"status"`
	Error         string            `json:"error,omitempty"`
	Counts        map[string]int    `json:"counts"`
	Undefined     map[string]string `json:"undefined,omitempty"`
}

// RunRepository is the run registry in analytics.db
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repository", "pipeline_runs").Logger(),
	}
}

// Start records a run as RUNNING
func (r *RunRepository) Start(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, as_of_date, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.RunID, domain.FormatDate(run.AsOfDate), run.StartedAt.Unix(), string(RunRunning))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// Finish stores the final status, error, counters and undefined outputs of
// a run
func (r *RunRepository) Finish(ctx context.Context, run *Run) error {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode run counts: %w", err)
	}
	var undefined sql.NullString
	if len(run.Undefined) > 0 {
		raw, err := json.Marshal(run.Undefined)
		if err != nil {
			return fmt.Errorf("failed to encode undefined outputs: %w", err)
		}
		undefined = sql.NullString{String: string(raw), Valid: true}
	}

	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.Unix(), Valid: true}
	}
	var portfolioDate sql.NullString
	if run.PortfolioDate != nil {
		portfolioDate = sql.NullString{String: domain.FormatDate(*run.PortfolioDate), Valid: true}
	}
	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}

	// Context-free: a cancelled run must still be marked FAILED
	_, err = r.db.Exec(`
		UPDATE pipeline_runs
		SET portfolio_date = ?, finished_at = ?, status = ?, error = ?, counts = ?, undefined = ?
		WHERE run_id = ?
	`, portfolioDate, finished, string(run.Status), errText, string(counts), undefined, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// Get returns a run by id, nil if unknown
func (r *RunRepository) Get(runID string) (*Run, error) {
	rows, err := r.db.Query(`
		SELECT run_id, as_of_date, portfolio_date, started_at, finished_at, status, error, counts, undefined
		FROM pipeline_runs
		WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// List returns the most recent runs, newest first
func (r *RunRepository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT run_id, as_of_date, portfolio_date, started_at, finished_at, status, error, counts, undefined
		FROM pipeline_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run      Run
			asOf     string
			pDate    sql.NullString
			started  int64
			finished sql.NullInt64
			status   string
			errText  sql.NullString
			counts   sql.NullString
			undef    sql.NullString
		)
		if err := rows.Scan(&run.RunID, &asOf, &pDate, &started, &finished, &status, &errText, &counts, &undef); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		date, err := domain.ParseDate(asOf)
		if err != nil {
			return nil, err
		}
		run.AsOfDate = date
		if pDate.Valid {
			pd, err := domain.ParseDate(pDate.String)
			if err != nil {
				return nil, err
			}
			run.PortfolioDate = &pd
		}
		run.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			t := time.Unix(finished.Int64, 0).UTC()
			run.FinishedAt = &t
		}
		run.Status = RunStatus(status)
		run.Error = errText.String
		if counts.Valid && counts.String != "" {
			if err := json.Unmarshal([]byte(counts.String), &run.Counts); err != nil {
				return nil, fmt.Errorf("failed to decode run counts: %w", err)
			}
		}
		if undef.Valid && undef.String != "" {
			if err := json.Unmarshal([]byte(undef.String), &run.Undefined); err != nil {
				return nil, fmt.Errorf("failed to decode undefined outputs: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
