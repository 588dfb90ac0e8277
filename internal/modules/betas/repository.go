package betas

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/database"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// Repository stores betas and run reports in analytics.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new beta repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "betas").Logger(),
	}
}

// Save upserts betas in their own transaction
func (r *Repository) Save(ctx context.Context, betas []Beta, runID string) error {
	return database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		return r.SaveTx(ctx, tx, betas, runID)
	})
}

// SaveTx upserts betas inside tx. A row with an existing key is fully
// replaced except for created_at, which records the first estimate.
func (r *Repository) SaveTx(ctx context.Context, tx *sql.Tx, betas []Beta, runID string) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO security_betas
			(security_code, factor_code, as_of_date, method, beta, alpha, r2, n_obs,
			 window_days, lookback_window, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(security_code, factor_code, method, as_of_date, window_days, lookback_window) DO UPDATE SET
			beta = excluded.beta,
			alpha = excluded.alpha,
			r2 = excluded.r2,
			n_obs = excluded.n_obs,
			run_id = excluded.run_id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare beta upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, b := range betas {
		_, err := stmt.ExecContext(ctx,
			b.SecurityCode,
			b.FactorCode,
			domain.FormatDate(b.AsOfDate),
			string(b.Method),
			b.Beta,
			b.Alpha,
			nullFloat(b.R2),
			b.NObs,
			b.WindowDays,
			b.LookbackWindow,
			runID,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert beta %s/%s/%s: %w", b.SecurityCode, b.FactorCode, b.Method, err)
		}
	}
	return nil
}

// SaveReportTx replaces the run report of runID inside tx
func (r *Repository) SaveReportTx(ctx context.Context, tx *sql.Tx, runID string, rows []ReportRow) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM run_report WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to clear run report: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_report (run_id, security_code, status, reason, zscore_status, zscore_reason,
			as_of_date, n_obs, ok_factors, skipped_factors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare run report insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		var asOf sql.NullString
		if row.AsOfDate != nil {
			asOf = sql.NullString{String: domain.FormatDate(*row.AsOfDate), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			runID,
			row.SecurityCode,
			string(row.Status),
			row.Reason,
			nullString(string(row.ZScoreStatus)),
			nullString(row.ZScoreReason),
			asOf,
			row.NObs,
			JoinFactors(row.OKFactors),
			JoinFactors(row.SkippedFactors),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run report row %s: %w", row.SecurityCode, err)
		}
	}
	return nil
}

// GetReport returns the run report of runID ordered by security code
func (r *Repository) GetReport(runID string) ([]ReportRow, error) {
	rows, err := r.db.Query(`
		SELECT security_code, status, reason, zscore_status, zscore_reason, as_of_date, n_obs, ok_factors, skipped_factors
		FROM run_report
		WHERE run_id = ?
		ORDER BY security_code ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run report: %w", err)
	}
	defer rows.Close()

	var out []ReportRow
	for rows.Next() {
		var reason, zStatus, zReason, asOf, ok, skipped sql.NullString
		var nObs sql.NullInt64
		row := ReportRow{RunID: runID}
		if err := rows.Scan(&row.SecurityCode, &row.Status, &reason, &zStatus, &zReason, &asOf, &nObs, &ok, &skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run report row: %w", err)
		}
		row.Reason = reason.String
		row.ZScoreStatus = ReportStatus(zStatus.String)
		row.ZScoreReason = zReason.String
		row.NObs = int(nObs.Int64)
		row.OKFactors = SplitFactors(ok.String)
		row.SkippedFactors = SplitFactors(skipped.String)
		if asOf.Valid {
			t, err := domain.ParseDate(asOf.String)
			if err != nil {
				return nil, err
			}
			row.AsOfDate = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Selector pins the regression setup a consumer reads
type Selector struct {
	Method         domain.Method
	WindowDays     int
	LookbackWindow string
}

// LatestAsOf returns the betas of the latest as-of date on or before date:
// per security and factor for SINGLE methods, per security for MULTI.
// Rows are ordered by security and factor code.
func (r *Repository) LatestAsOf(date time.Time, sel Selector) ([]Beta, error) {
	groupBy := "security_code"
	join := "latest.security_code = b.security_code"
	if sel.Method.Mode() == domain.ModeSingle {
		groupBy = "security_code, factor_code"
		join += " AND latest.factor_code = b.factor_code"
	}

	rows, err := r.db.Query(`
		SELECT b.security_code, b.factor_code, b.as_of_date, b.method, b.beta, b.alpha, b.r2, b.n_obs,
		       b.window_days, b.lookback_window, b.run_id, b.created_at
		FROM security_betas b
		JOIN (
			SELECT `+groupBy+`, MAX(as_of_date) AS as_of_date
			FROM security_betas
			WHERE method = ? AND window_days = ? AND lookback_window = ? AND as_of_date <= ?
			GROUP BY `+groupBy+`
		) latest ON `+join+` AND latest.as_of_date = b.as_of_date
		WHERE b.method = ? AND b.window_days = ? AND b.lookback_window = ?
		ORDER BY b.security_code ASC, b.factor_code ASC
	`,
		string(sel.Method), sel.WindowDays, sel.LookbackWindow, domain.FormatDate(date),
		string(sel.Method), sel.WindowDays, sel.LookbackWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest betas: %w", err)
	}
	defer rows.Close()
	return scanBetas(rows)
}

// History returns the beta history of a security for one method, newest
// first. An empty factor returns every factor.
func (r *Repository) History(security string, method domain.Method, factor string, limit int) ([]Beta, error) {
	query := `
		SELECT security_code, factor_code, as_of_date, method, beta, alpha, r2, n_obs,
		       window_days, lookback_window, run_id, created_at
		FROM security_betas
		WHERE security_code = ? AND method = ?
	`
	args := []interface{}{security, string(method)}
	if factor != "" {
		query += " AND factor_code = ?"
		args = append(args, factor)
	}
	query += " ORDER BY as_of_date DESC, factor_code ASC LIMIT ?"
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query beta history: %w", err)
	}
	defer rows.Close()
	return scanBetas(rows)
}

func scanBetas(rows *sql.Rows) ([]Beta, error) {
	var out []Beta
	for rows.Next() {
		var (
			b         Beta
			asOf      string
			method    string
			alpha, r2 sql.NullFloat64
			runID     sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&b.SecurityCode, &b.FactorCode, &asOf, &method, &b.Beta, &alpha, &r2, &b.NObs,
			&b.WindowDays, &b.LookbackWindow, &runID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan beta: %w", err)
		}
		t, err := domain.ParseDate(asOf)
		if err != nil {
			return nil, err
		}
		b.AsOfDate = t
		b.Method = domain.Method(method)
		b.Alpha = alpha.Float64
		if r2.Valid {
			v := r2.Float64
			b.R2 = &v
		}
		b.RunID = runID.String
		b.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating betas: %w", err)
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
