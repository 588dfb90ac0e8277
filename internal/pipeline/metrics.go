package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's prometheus collectors
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	BetasEstimated *prometheus.CounterVec
	CoveragePct    *prometheus.GaugeVec
	PortfolioVol   *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorrisk_pipeline_runs_total",
				Help: "Pipeline runs by final status",
			},
			[]string{"status"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factorrisk_pipeline_stage_duration_seconds",
				Help:    "Duration of each pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		BetasEstimated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorrisk_betas_estimated_total",
				Help: "Security/factor betas estimated",
			},
			[]string{"method"},
		),
		CoveragePct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "factorrisk_coverage_pct",
				Help: "Covered share of portfolio eval per factor, latest run",
			},
			[]string{"factor", "method"},
		),
		PortfolioVol: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "factorrisk_portfolio_ann_vol",
				Help: "Annualized factor-explained portfolio volatility, latest run",
			},
			[]string{"method"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.RunsTotal, m.StageDuration, m.BetasEstimated, m.CoveragePct, m.PortfolioVol)
	}
	return m
}
