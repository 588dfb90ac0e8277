package exposure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// Repository stores portfolio_factor_exposure rows in analytics.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new exposure repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "exposure").Logger(),
	}
}

// ReplaceTx replaces every exposure row of (portfolioDate, method) inside tx
func (r *Repository) ReplaceTx(ctx context.Context, tx *sql.Tx, portfolioDate time.Time, method domain.Method, rows []Exposure) error {
	date := domain.FormatDate(portfolioDate)
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM portfolio_factor_exposure WHERE portfolio_date = ? AND method = ?",
		date, string(method),
	); err != nil {
		return fmt.Errorf("failed to clear exposures for %s/%s: %w", date, method, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO portfolio_factor_exposure
			(portfolio_date, factor_code, method, beta_asof_date, n_positions_total, n_positions_covered,
			 total_eval, covered_eval, covered_pct, beta_weighted_total, beta_weighted_covered,
			 ann_sensitivity_total, ann_sensitivity_covered, stale, staleness_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare exposure insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range rows {
		_, err := stmt.ExecContext(ctx,
			date,
			e.FactorCode,
			string(method),
			nullDate(e.BetaAsOfDate),
			e.NPositionsTotal,
			e.NPositionsCovered,
			e.TotalEval,
			e.CoveredEval,
			e.CoveredPct,
			nullFloat(e.BetaWeightedTotal),
			nullFloat(e.BetaWeightedCovered),
			nullFloat(e.AnnSensitivityTotal),
			nullFloat(e.AnnSensitivityCovered),
			boolToInt(e.Stale),
			nullInt(e.StalenessDays),
		)
		if err != nil {
			return fmt.Errorf("failed to insert exposure %s: %w", e.FactorCode, err)
		}
	}
	return nil
}

// Get returns the exposure rows of (portfolioDate, method) ordered by factor code
func (r *Repository) Get(portfolioDate time.Time, method domain.Method) ([]Exposure, error) {
	rows, err := r.db.Query(`
		SELECT factor_code, beta_asof_date, n_positions_total, n_positions_covered, total_eval, covered_eval,
		       covered_pct, beta_weighted_total, beta_weighted_covered, ann_sensitivity_total,
		       ann_sensitivity_covered, stale, staleness_days
		FROM portfolio_factor_exposure
		WHERE portfolio_date = ? AND method = ?
		ORDER BY factor_code ASC
	`, domain.FormatDate(portfolioDate), string(method))
	if err != nil {
		return nil, fmt.Errorf("failed to query exposures: %w", err)
	}
	defer rows.Close()

	var out []Exposure
	for rows.Next() {
		var (
			e                              Exposure
			asOf                           sql.NullString
			bwTotal, bwCovered, annT, annC sql.NullFloat64
			stale                          int
			staleness                      sql.NullInt64
		)
		if err := rows.Scan(&e.FactorCode, &asOf, &e.NPositionsTotal, &e.NPositionsCovered, &e.TotalEval,
			&e.CoveredEval, &e.CoveredPct, &bwTotal, &bwCovered, &annT, &annC, &stale, &staleness); err != nil {
			return nil, fmt.Errorf("failed to scan exposure: %w", err)
		}
		e.PortfolioDate = portfolioDate
		e.Method = method
		if asOf.Valid {
			t, err := domain.ParseDate(asOf.String)
			if err != nil {
				return nil, err
			}
			e.BetaAsOfDate = &t
		}
		e.BetaWeightedTotal = floatPtr(bwTotal)
		e.BetaWeightedCovered = floatPtr(bwCovered)
		e.AnnSensitivityTotal = floatPtr(annT)
		e.AnnSensitivityCovered = floatPtr(annC)
		e.Stale = stale != 0
		if staleness.Valid {
			d := int(staleness.Int64)
			e.StalenessDays = &d
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exposures: %w", err)
	}
	return out, nil
}

// LatestDate returns the most recent portfolio date with exposures for
// method, nil if there is none.
func (r *Repository) LatestDate(method domain.Method) (*time.Time, error) {
	var last sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(portfolio_date) FROM portfolio_factor_exposure WHERE method = ?", string(method),
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest exposure date: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t, err := domain.ParseDate(last.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: domain.FormatDate(*t), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
