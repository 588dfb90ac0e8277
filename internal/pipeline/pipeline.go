// Package pipeline sequences the analytics stages and commits their output.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/database"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/aristath/factorrisk/internal/modules/exposure"
	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	"github.com/aristath/factorrisk/internal/modules/ranking"
	"github.com/aristath/factorrisk/internal/modules/risk"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRunInProgress is returned by TryRun while another run holds the lock
var ErrRunInProgress = errors.New("pipeline run already in progress")

// ConfigSource returns the analytics settings in force for a run
type ConfigSource func() (config.AnalyticsConfig, error)

// Reporter renders and ships the output of a committed run
type Reporter interface {
	Report(ctx context.Context, runID string, portfolioDate time.Time) ([]string, error)
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	AnalyticsDB  *sql.DB
	Config       ConfigSource
	Normalizer   *factors.Service
	FactorRepo   *factors.Repository
	Returns      betas.SecurityReturns
	Portfolio    *portfolio.PortfolioService
	BetaRepo     *betas.Repository
	ExposureRepo *exposure.Repository
	RiskRepo     *risk.Repository
	RankingRepo  *ranking.Repository
	Runs         *RunRepository
	Reporter     Reporter // optional
	Metrics      *Metrics // optional
}

// Pipeline runs normalize, estimate, aggregate, decompose and rank for one
// as-of date. Runs are serialized within the process.
type Pipeline struct {
	deps Deps
	mu   sync.Mutex
	now  func() time.Time
	log  zerolog.Logger
}

// New creates a new pipeline
func New(deps Deps, log zerolog.Logger) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &Pipeline{
		deps: deps,
		now:  time.Now,
		log:  log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes a run for asOf, waiting for any run in progress
func (p *Pipeline) Run(ctx context.Context, asOf time.Time) (*Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run(ctx, asOf)
}

// TryRun executes a run for asOf unless one is already in progress
func (p *Pipeline) TryRun(ctx context.Context, asOf time.Time) (*Run, error) {
	if !p.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.mu.Unlock()
	return p.run(ctx, asOf)
}

// TryStart launches a run for asOf in the background unless one is already
// in progress. The run is bounded by timeout, not by the caller's context;
// its outcome lands in the run registry.
func (p *Pipeline) TryStart(asOf time.Time, timeout time.Duration) error {
	if !p.mu.TryLock() {
		return ErrRunInProgress
	}
	go func() {
		defer p.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, _ = p.run(ctx, asOf) // run logs and records its own failure
	}()
	return nil
}

// Runs returns the run registry
func (p *Pipeline) Runs() *RunRepository {
	return p.deps.Runs
}

func (p *Pipeline) run(ctx context.Context, asOf time.Time) (*Run, error) {
	run := &Run{
		RunID:     uuid.New().String(),
		AsOfDate:  domain.Truncate(asOf),
		StartedAt: p.now().UTC(),
		Status:    RunRunning,
		Counts:    map[string]int{},
		Undefined: map[string]string{},
	}
	log := p.log.With().Str("run_id", run.RunID).Str("as_of", domain.FormatDate(run.AsOfDate)).Logger()

	if err := p.deps.Runs.Start(ctx, run); err != nil {
		return nil, err
	}
	log.Info().Msg("Pipeline run started")

	runErr := p.execute(ctx, run, log)

	finished := p.now().UTC()
	run.FinishedAt = &finished
	run.Status = RunSucceeded
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}
	p.deps.Metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	if err := p.deps.Runs.Finish(context.Background(), run); err != nil {
		log.Error().Err(err).Msg("Failed to record run result")
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Dur("duration", finished.Sub(run.StartedAt)).Msg("Pipeline run failed")
		return run, runErr
	}
	log.Info().Dur("duration", finished.Sub(run.StartedAt)).Interface("counts", run.Counts).Msg("Pipeline run succeeded")
	return run, nil
}

// methodOutput is everything derived for one method
type methodOutput struct {
	method    domain.Method
	exposures []exposure.Exposure
	risk      *risk.Result // nil when the decomposition is undefined
	rankings  []ranking.Entry
	undefined string // why exposure or risk is undefined, empty when both exist
}

func (p *Pipeline) execute(ctx context.Context, run *Run, log zerolog.Logger) error {
	cfg, err := p.deps.Config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	positions, portfolioDate, err := p.deps.Portfolio.PositionsAsOf(run.AsOfDate)
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}
	if portfolioDate == nil {
		return fmt.Errorf("no portfolio snapshot on or before %s", domain.FormatDate(run.AsOfDate))
	}
	run.PortfolioDate = portfolioDate
	run.Counts["positions"] = len(positions)

	var set *factors.Set
	err = p.stage("normalize", func() error {
		var err error
		set, err = p.deps.Normalizer.Normalize(ctx, cfg.ZScoreWindow)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to normalize factor returns: %w", err)
	}
	run.Counts["factors"] = len(set.Series)
	run.Counts["factor_gaps"] = len(set.Gaps)

	var estimated *betas.Result
	err = p.stage("estimate", func() error {
		estimator, err := betas.NewEstimator(betas.EstimatorConfig{
			WindowDays: cfg.BetaWindowDays,
			MinObs:     cfg.BetaMinObs,
			Lookback:   cfg.BetaLookback,
			Workers:    cfg.Workers,
		}, p.deps.Returns, p.log)
		if err != nil {
			return err
		}
		estimated, err = estimator.Estimate(ctx, *portfolioDate, securityCodes(positions), set)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to estimate betas: %w", err)
	}
	run.Counts["betas"] = len(estimated.Betas)
	for method, n := range estimated.Count() {
		p.deps.Metrics.BetasEstimated.WithLabelValues(string(method)).Add(float64(n))
	}

	aggregator := exposure.NewAggregator(exposure.Config{
		TradingDays:      cfg.TradingDays,
		MaxStalenessDays: cfg.MaxStalenessDays,
		CashBetaZero:     cfg.CashBetaZero,
	}, p.log)
	decomposer := risk.NewDecomposer(risk.Config{CovWindowDays: cfg.CovWindowDays, TradingDays: cfg.TradingDays}, p.log)
	ranker := ranking.NewRanker(cfg.RankingTopN, p.log)

	outputs := make([]methodOutput, 0, len(domain.AllMethods))
	for _, method := range domain.AllMethods {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := p.deriveMethod(method, *portfolioDate, cfg, positions, estimated, set, aggregator, decomposer, ranker, log)
		if err != nil {
			return err
		}
		if out.undefined != "" {
			run.Undefined[string(method)] = out.undefined
		}
		run.Counts["exposure_rows"] += len(out.exposures)
		run.Counts["ranking_rows"] += len(out.rankings)
		if out.risk != nil {
			run.Counts["risk_rows"] += len(out.risk.Rows)
		}
		outputs = append(outputs, out)
	}

	// market.db is written first and committed last: an analytics failure
	// rolls the factor returns back too
	err = p.stage("commit", func() error {
		err := p.deps.FactorRepo.SaveSetThen(ctx, set, func() error {
			return database.WithTransactionContext(ctx, p.deps.AnalyticsDB, func(tx *sql.Tx) error {
				return p.commitAnalytics(ctx, tx, run.RunID, *portfolioDate, estimated, outputs)
			})
		})
		if err != nil {
			return fmt.Errorf("failed to commit run output: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.publishMetrics(outputs)

	if p.deps.Reporter != nil {
		files, err := p.deps.Reporter.Report(ctx, run.RunID, *portfolioDate)
		if err != nil {
			// Derived rows are committed; a report failure does not undo them
			log.Warn().Err(err).Msg("Failed to write run reports")
		} else {
			run.Counts["report_files"] = len(files)
		}
	}
	return nil
}

func (p *Pipeline) deriveMethod(
	method domain.Method,
	portfolioDate time.Time,
	cfg config.AnalyticsConfig,
	positions []portfolio.Position,
	estimated *betas.Result,
	set *factors.Set,
	aggregator *exposure.Aggregator,
	decomposer *risk.Decomposer,
	ranker *ranking.Ranker,
	log zerolog.Logger,
) (methodOutput, error) {
	out := methodOutput{method: method}

	stored, err := p.deps.BetaRepo.LatestAsOf(portfolioDate, betas.Selector{
		Method:         method,
		WindowDays:     cfg.BetaWindowDays,
		LookbackWindow: cfg.BetaLookback,
	})
	if err != nil {
		return out, fmt.Errorf("failed to load stored %s betas: %w", method, err)
	}
	fresh := make([]betas.Beta, 0, len(estimated.Betas))
	for _, b := range estimated.Betas {
		if b.Method == method {
			fresh = append(fresh, b)
		}
	}
	latest := betas.MergeLatest(stored, fresh)

	var insufficient *domain.InsufficientObservationsError
	err = p.stage("exposure", func() error {
		var err error
		out.exposures, err = aggregator.Aggregate(portfolioDate, method, set.Order, positions, latest)
		return err
	})
	if errors.As(err, &insufficient) {
		log.Warn().Err(err).Str("method", string(method)).Msg("Exposure undefined")
		out.exposures = nil
		out.undefined = err.Error()
	} else if err != nil {
		return out, fmt.Errorf("failed to aggregate %s exposure: %w", method, err)
	}

	err = p.stage("risk", func() error {
		var err error
		out.risk, err = decomposer.Decompose(portfolioDate, method, set.Order, out.exposures, set)
		return err
	})
	if errors.As(err, &insufficient) {
		log.Warn().Err(err).Str("method", string(method)).Msg("Risk decomposition undefined")
		out.risk = nil
		if out.undefined == "" {
			out.undefined = err.Error()
		}
	} else if err != nil {
		return out, fmt.Errorf("failed to decompose %s risk: %w", method, err)
	}

	_ = p.stage("ranking", func() error {
		out.rankings = ranker.Rank(portfolioDate, method, latest)
		return nil
	})
	return out, nil
}

func (p *Pipeline) commitAnalytics(ctx context.Context, tx *sql.Tx, runID string, portfolioDate time.Time, estimated *betas.Result, outputs []methodOutput) error {
	if err := p.deps.BetaRepo.SaveTx(ctx, tx, estimated.Betas, runID); err != nil {
		return err
	}
	if err := p.deps.BetaRepo.SaveReportTx(ctx, tx, runID, estimated.Report); err != nil {
		return err
	}
	for _, out := range outputs {
		if err := p.deps.ExposureRepo.ReplaceTx(ctx, tx, portfolioDate, out.method, out.exposures); err != nil {
			return err
		}
		if out.risk != nil {
			if err := p.deps.RiskRepo.ReplaceTx(ctx, tx, portfolioDate, out.method, out.risk); err != nil {
				return err
			}
		} else if err := p.deps.RiskRepo.ClearTx(ctx, tx, portfolioDate, out.method); err != nil {
			return err
		}
		if err := p.deps.RankingRepo.ReplaceTx(ctx, tx, portfolioDate, out.method, out.rankings); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) publishMetrics(outputs []methodOutput) {
	for _, out := range outputs {
		for _, e := range out.exposures {
			p.deps.Metrics.CoveragePct.WithLabelValues(e.FactorCode, string(out.method)).Set(e.CoveredPct)
		}
		if out.risk != nil && len(out.risk.Rows) > 0 {
			p.deps.Metrics.PortfolioVol.WithLabelValues(string(out.method)).Set(out.risk.Rows[0].PortfolioAnnVolTotal)
		}
	}
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.deps.Metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// securityCodes returns the distinct non-cash position codes in lexical order
func securityCodes(positions []portfolio.Position) []string {
	seen := make(map[string]bool, len(positions))
	codes := make([]string, 0, len(positions))
	for _, pos := range positions {
		if pos.IsCash() || seen[pos.SecurityCode] {
			continue
		}
		seen[pos.SecurityCode] = true
		codes = append(codes, pos.SecurityCode)
	}
	sort.Strings(codes)
	return codes
}
