package risk

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository stores risk decompositions and covariance snapshots in analytics.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new risk repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "risk").Logger(),
	}
}

// ClearTx removes every decomposition row and covariance snapshot of
// (portfolioDate, method). A run whose decomposition is undefined calls it
// so no stale rows survive.
func (r *Repository) ClearTx(ctx context.Context, tx *sql.Tx, portfolioDate time.Time, method domain.Method) error {
	date := domain.FormatDate(portfolioDate)
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM risk_decomposition WHERE portfolio_date = ? AND method = ?", date, string(method),
	); err != nil {
		return fmt.Errorf("failed to clear risk decomposition for %s/%s: %w", date, method, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM factor_covariance WHERE portfolio_date = ? AND method = ?", date, string(method),
	); err != nil {
		return fmt.Errorf("failed to clear covariance for %s/%s: %w", date, method, err)
	}
	return nil
}

// ReplaceTx replaces the decomposition and covariance of (portfolioDate, method)
func (r *Repository) ReplaceTx(ctx context.Context, tx *sql.Tx, portfolioDate time.Time, method domain.Method, res *Result) error {
	if err := r.ClearTx(ctx, tx, portfolioDate, method); err != nil {
		return err
	}
	date := domain.FormatDate(portfolioDate)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_decomposition
			(portfolio_date, factor_code, method, beta_asof_date, cov_n_obs, exposure_defined,
			 marginal_var_contrib, var_contrib, var_contrib_pct, portfolio_variance_total,
			 portfolio_ann_vol_total, stale, staleness_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare risk insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range res.Rows {
		var asOf sql.NullString
		if row.BetaAsOfDate != nil {
			asOf = sql.NullString{String: domain.FormatDate(*row.BetaAsOfDate), Valid: true}
		}
		var pct sql.NullFloat64
		if row.VarContribPct != nil {
			pct = sql.NullFloat64{Float64: *row.VarContribPct, Valid: true}
		}
		var staleness sql.NullInt64
		if row.StalenessDays != nil {
			staleness = sql.NullInt64{Int64: int64(*row.StalenessDays), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			date, row.FactorCode, string(method), asOf, row.CovNObs, boolToInt(row.ExposureDefined),
			row.MarginalVarContrib, row.VarContrib, pct, row.PortfolioVarianceTotal,
			row.PortfolioAnnVolTotal, boolToInt(row.Stale), staleness,
		)
		if err != nil {
			return fmt.Errorf("failed to insert risk row %s: %w", row.FactorCode, err)
		}
	}

	if res.Covariance == nil {
		return nil
	}
	blob, err := msgpack.Marshal(res.Covariance)
	if err != nil {
		return fmt.Errorf("failed to encode covariance matrix: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO factor_covariance (portfolio_date, method, factor_codes, n_obs, window_start, window_end, matrix)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		date, string(method), strings.Join(res.Covariance.FactorCodes, ","), res.Covariance.NObs,
		domain.FormatDate(res.Covariance.WindowStart), domain.FormatDate(res.Covariance.WindowEnd), blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert covariance snapshot: %w", err)
	}
	return nil
}

// Get returns the decomposition of (portfolioDate, method) in factor code order
func (r *Repository) Get(portfolioDate time.Time, method domain.Method) ([]Decomposition, error) {
	rows, err := r.db.Query(`
		SELECT factor_code, beta_asof_date, cov_n_obs, exposure_defined, marginal_var_contrib, var_contrib,
		       var_contrib_pct, portfolio_variance_total, portfolio_ann_vol_total, stale, staleness_days
		FROM risk_decomposition
		WHERE portfolio_date = ? AND method = ?
		ORDER BY factor_code ASC
	`, domain.FormatDate(portfolioDate), string(method))
	if err != nil {
		return nil, fmt.Errorf("failed to query risk decomposition: %w", err)
	}
	defer rows.Close()

	var out []Decomposition
	for rows.Next() {
		var (
			row            Decomposition
			asOf           sql.NullString
			defined, stale int
			pct            sql.NullFloat64
			staleness      sql.NullInt64
		)
		if err := rows.Scan(&row.FactorCode, &asOf, &row.CovNObs, &defined, &row.MarginalVarContrib, &row.VarContrib,
			&pct, &row.PortfolioVarianceTotal, &row.PortfolioAnnVolTotal, &stale, &staleness); err != nil {
			return nil, fmt.Errorf("failed to scan risk row: %w", err)
		}
		row.PortfolioDate = portfolioDate
		row.Method = method
		row.ExposureDefined = defined != 0
		row.Stale = stale != 0
		if asOf.Valid {
			t, err := domain.ParseDate(asOf.String)
			if err != nil {
				return nil, err
			}
			row.BetaAsOfDate = &t
		}
		if pct.Valid {
			v := pct.Float64
			row.VarContribPct = &v
		}
		if staleness.Valid {
			days := int(staleness.Int64)
			row.StalenessDays = &days
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk rows: %w", err)
	}
	return out, nil
}

// GetCovariance returns the covariance snapshot of (portfolioDate, method),
// nil if none was stored.
func (r *Repository) GetCovariance(portfolioDate time.Time, method domain.Method) (*CovarianceSnapshot, error) {
	var start, end string
	var blob []byte
	err := r.db.QueryRow(`
		SELECT window_start, window_end, matrix
		FROM factor_covariance
		WHERE portfolio_date = ? AND method = ?
	`, domain.FormatDate(portfolioDate), string(method)).Scan(&start, &end, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get covariance snapshot: %w", err)
	}

	snap := &CovarianceSnapshot{}
	if err := msgpack.Unmarshal(blob, snap); err != nil {
		return nil, fmt.Errorf("failed to decode covariance matrix: %w", err)
	}
	snap.PortfolioDate = portfolioDate
	snap.Method = method
	if snap.WindowStart, err = domain.ParseDate(start); err != nil {
		return nil, err
	}
	if snap.WindowEnd, err = domain.ParseDate(end); err != nil {
		return nil, err
	}
	return snap, nil
}

// LatestDate returns the most recent portfolio date with a decomposition
// for method, nil if there is none.
func (r *Repository) LatestDate(method domain.Method) (*time.Time, error) {
	var last sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(portfolio_date) FROM risk_decomposition WHERE method = ?", string(method),
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest risk date: %w", err)
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
