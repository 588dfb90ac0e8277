package betas

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	"github.com/aristath/factorrisk/internal/modules/universe"
	"github.com/aristath/factorrisk/pkg/formulas"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SecurityReturns reads security log returns
type SecurityReturns interface {
	GetLogReturns(code string, from, to time.Time) ([]universe.DailyReturn, error)
}

// EstimatorConfig holds the regression window settings
type EstimatorConfig struct {
	WindowDays int
	MinObs     int
	Lookback   string // "2y", "18m", "400d"
	Workers    int    // 0 means runtime.NumCPU()
}

// Estimator runs the single and multi factor regressions
type Estimator struct {
	cfg      EstimatorConfig
	lookback config.Lookback
	returns  SecurityReturns
	log      zerolog.Logger
}

// NewEstimator creates a new estimator. An invalid lookback or window is a
// ConfigurationError.
func NewEstimator(cfg EstimatorConfig, returns SecurityReturns, log zerolog.Logger) (*Estimator, error) {
	lookback, err := config.ParseLookback(cfg.Lookback)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "beta_lookback", Reason: err.Error()}
	}
	if cfg.MinObs < 3 {
		return nil, &domain.ConfigurationError{Field: "beta_min_obs", Reason: "must be >= 3"}
	}
	if cfg.WindowDays < cfg.MinObs {
		return nil, &domain.ConfigurationError{Field: "beta_window_days", Reason: "must be >= beta_min_obs"}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Estimator{
		cfg:      cfg,
		lookback: lookback,
		returns:  returns,
		log:      log.With().Str("component", "beta_estimator").Logger(),
	}, nil
}

// Estimate computes every method for every security. Securities are
// processed concurrently and merged in input order, so the output is
// deterministic for a fixed, sorted securities list.
func (e *Estimator) Estimate(ctx context.Context, asOf time.Time, securities []string, set *factors.Set) (*Result, error) {
	perSecurity := make([]securityResult, len(securities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, code := range securities {
		i, code := i, code
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.estimateSecurity(code, asOf, set)
			if err != nil {
				return fmt.Errorf("failed to estimate %s: %w", code, err)
			}
			perSecurity[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{}
	for _, res := range perSecurity {
		out.Betas = append(out.Betas, res.betas...)
		out.Report = append(out.Report, res.report)
	}

	counts := out.Count()
	e.log.Info().
		Int("securities", len(securities)).
		Int("single_raw", counts[domain.MethodSingleRaw]).
		Int("multi_raw", counts[domain.MethodMultiRaw]).
		Msg("Betas estimated")

	return out, nil
}

type securityResult struct {
	betas  []Beta
	report ReportRow
}

// aligned is a regression sample: y and one x column per factor on shared dates
type aligned struct {
	dates []time.Time
	y     []float64
	xs    [][]float64
}

func (e *Estimator) estimateSecurity(code string, asOf time.Time, set *factors.Set) (securityResult, error) {
	res := securityResult{report: ReportRow{SecurityCode: code}}

	if code == portfolio.CashCode {
		res.report.skip(ReasonCash)
		return res, nil
	}

	returns, err := e.returns.GetLogReturns(code, e.lookback.Start(asOf), asOf)
	if err != nil {
		return res, err
	}
	if len(returns) == 0 {
		res.report.skip(ReasonPriceEmpty)
		e.log.Debug().Err(&domain.DataGapError{Entity: "security", Code: code}).Msg("Security skipped")
		return res, nil
	}

	available := set.Available()
	if len(available) == 0 {
		res.report.skip(ReasonNoFactors)
		return res, nil
	}

	for _, transform := range []domain.Transform{domain.TransformRaw, domain.TransformZScore} {
		res.betas = append(res.betas, e.single(code, returns, set, available, transform)...)

		betas, report := e.multi(code, returns, set, transform)
		res.betas = append(res.betas, betas...)
		if transform == domain.TransformRaw {
			res.report = report
		} else {
			res.report.ZScoreStatus, res.report.ZScoreReason = report.Status, report.Reason
		}
	}
	return res, nil
}

// skip marks both regressions skipped for reason
func (r *ReportRow) skip(reason string) {
	r.Status, r.Reason = StatusSkip, reason
	r.ZScoreStatus, r.ZScoreReason = StatusSkip, reason
}

// single regresses the security on each factor separately
func (e *Estimator) single(code string, returns []universe.DailyReturn, set *factors.Set, available []string, t domain.Transform) []Beta {
	method := domain.NewMethod(domain.ModeSingle, t)
	var out []Beta
	for _, factor := range available {
		sample := align(returns, []map[time.Time]float64{set.Get(factor).Lookup(t)})
		sample = sample.tail(e.cfg.WindowDays)

		n := len(sample.y)
		if n < e.cfg.MinObs {
			e.log.Debug().
				Err(&domain.InsufficientObservationsError{Stage: "beta", Key: code + "/" + factor, Have: n, Need: e.cfg.MinObs}).
				Str("method", string(method)).
				Msg("Pair uncovered")
			continue
		}

		fit, err := formulas.SimpleOLS(sample.y, sample.xs[0])
		if err != nil {
			e.log.Debug().Err(err).Str("security", code).Str("factor", factor).Str("method", string(method)).Msg("Single regression failed")
			continue
		}
		out = append(out, e.newBeta(code, factor, method, sample, fit.Betas[0], fit))
	}
	return out
}

// multi regresses the security jointly on every factor whose overlap with
// the security series reaches the minimum observation count.
func (e *Estimator) multi(code string, returns []universe.DailyReturn, set *factors.Set, t domain.Transform) ([]Beta, ReportRow) {
	method := domain.NewMethod(domain.ModeMulti, t)
	report := ReportRow{SecurityCode: code}

	var ok, skipped []string
	var lookups []map[time.Time]float64
	for _, factor := range set.Order {
		series := set.Get(factor)
		if series == nil {
			skipped = append(skipped, factor)
			continue
		}
		lookup := series.Lookup(t)
		overlap := 0
		for _, r := range returns {
			if _, has := lookup[r.Date]; has {
				overlap++
			}
		}
		if overlap >= e.cfg.MinObs {
			ok = append(ok, factor)
			lookups = append(lookups, lookup)
		} else {
			skipped = append(skipped, factor)
		}
	}
	report.OKFactors, report.SkippedFactors = ok, skipped

	if len(ok) == 0 {
		report.Status, report.Reason = StatusSkip, ReasonNoFactorOverlap
		return nil, report
	}

	sample := align(returns, lookups).tail(e.cfg.WindowDays)
	report.NObs = len(sample.y)
	if report.NObs < e.cfg.MinObs || report.NObs <= len(ok)+1 {
		report.Status, report.Reason = StatusSkip, ReasonThin
		return nil, report
	}

	fit, err := formulas.MultiOLS(sample.y, sample.xs)
	if err != nil {
		report.Status, report.Reason = StatusFail, ReasonSingular
		if !errors.Is(err, formulas.ErrSingularDesign) {
			report.Reason = err.Error()
		}
		e.log.Warn().Err(err).Str("security", code).Str("method", string(method)).Msg("Multi regression failed")
		return nil, report
	}

	asOf := sample.dates[len(sample.dates)-1]
	report.Status, report.Reason, report.AsOfDate = StatusOK, ReasonOK, &asOf

	out := make([]Beta, len(ok))
	for j, factor := range ok {
		out[j] = e.newBeta(code, factor, method, sample, fit.Betas[j], fit)
	}
	return out, report
}

func (e *Estimator) newBeta(code, factor string, method domain.Method, sample aligned, beta float64, fit *formulas.OLSResult) Beta {
	return Beta{
		SecurityCode:   code,
		FactorCode:     factor,
		AsOfDate:       sample.dates[len(sample.dates)-1],
		Method:         method,
		Beta:           beta,
		Alpha:          fit.Alpha,
		R2:             fit.R2,
		NObs:           fit.NObs,
		WindowDays:     e.cfg.WindowDays,
		LookbackWindow: e.cfg.Lookback,
	}
}

// align keeps the dates on which every lookup has a value
func align(returns []universe.DailyReturn, lookups []map[time.Time]float64) aligned {
	a := aligned{xs: make([][]float64, len(lookups))}
	for _, r := range returns {
		row := make([]float64, len(lookups))
		present := true
		for j, lookup := range lookups {
			v, ok := lookup[r.Date]
			if !ok {
				present = false
				break
			}
			row[j] = v
		}
		if !present {
			continue
		}
		a.dates = append(a.dates, r.Date)
		a.y = append(a.y, r.Ret)
		for j := range lookups {
			a.xs[j] = append(a.xs[j], row[j])
		}
	}
	return a
}

// tail keeps the most recent n observations
func (a aligned) tail(n int) aligned {
	if len(a.y) <= n {
		return a
	}
	cut := len(a.y) - n
	out := aligned{dates: a.dates[cut:], y: a.y[cut:], xs: make([][]float64, len(a.xs))}
	for j := range a.xs {
		out.xs[j] = a.xs[j][cut:]
	}
	return out
}
