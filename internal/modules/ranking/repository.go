package ranking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// Repository stores ranking slices in analytics.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ranking repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "ranking").Logger(),
	}
}

// ReplaceTx replaces every ranking of (asOf, method). Factors missing from
// entries lose their old rows too.
func (r *Repository) ReplaceTx(ctx context.Context, tx *sql.Tx, asOf time.Time, method domain.Method, entries []Entry) error {
	date := domain.FormatDate(asOf)
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM factor_rankings WHERE as_of_date = ? AND method = ?", date, string(method),
	); err != nil {
		return fmt.Errorf("failed to clear rankings for %s/%s: %w", date, method, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO factor_rankings (as_of_date, factor_code, method, axis, side, rank, security_code, beta, r2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ranking insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var r2 sql.NullFloat64
		if e.R2 != nil {
			r2 = sql.NullFloat64{Float64: *e.R2, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			date, e.FactorCode, string(method), string(e.Axis), string(e.Side), e.Rank, e.SecurityCode, e.Beta, r2,
		); err != nil {
			return fmt.Errorf("failed to insert ranking %s/%s/%s #%d: %w", e.FactorCode, e.Axis, e.Side, e.Rank, err)
		}
	}
	return nil
}

// Get returns the stored rankings of (asOf, method). An empty factor or
// axis matches all of them.
func (r *Repository) Get(asOf time.Time, method domain.Method, factor string, axis Axis) ([]Entry, error) {
	query := `
		SELECT factor_code, axis, side, rank, security_code, beta, r2
		FROM factor_rankings
		WHERE as_of_date = ? AND method = ?
	`
	args := []interface{}{domain.FormatDate(asOf), string(method)}
	if factor != "" {
		query += " AND factor_code = ?"
		args = append(args, factor)
	}
	if axis != "" {
		query += " AND axis = ?"
		args = append(args, string(axis))
	}
	query += " ORDER BY factor_code ASC, axis DESC, side DESC, rank ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rankings: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			axisStr string
			sideStr string
			r2      sql.NullFloat64
		)
		if err := rows.Scan(&e.FactorCode, &axisStr, &sideStr, &e.Rank, &e.SecurityCode, &e.Beta, &r2); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		e.AsOfDate = asOf
		e.Method = method
		e.Axis = Axis(axisStr)
		e.Side = Side(sideStr)
		if r2.Valid {
			v := r2.Float64
			e.R2 = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rankings: %w", err)
	}
	return out, nil
}
