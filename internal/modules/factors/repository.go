package factors

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/database"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles factor levels and normalized returns in market.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new factor repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "factors").Logger(),
	}
}

// UpsertObservations stores raw levels, replacing existing (factor, date) rows
func (r *Repository) UpsertObservations(ctx context.Context, source string, obs []Observation) error {
	if len(obs) == 0 {
		return nil
	}

	now := time.Now().Unix()
	return database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO factor_observations (factor_code, observed_date, level, source, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(factor_code, observed_date) DO UPDATE SET
				level = excluded.level,
				source = excluded.source,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, o := range obs {
			if _, err := stmt.ExecContext(ctx, o.FactorCode, domain.FormatDate(o.Date), o.Level, source, now); err != nil {
				return fmt.Errorf("failed to upsert observation %s %s: %w", o.FactorCode, domain.FormatDate(o.Date), err)
			}
		}
		return nil
	})
}

// GetObservations returns all levels for a factor in date order
func (r *Repository) GetObservations(code string) ([]Observation, error) {
	rows, err := r.db.Query(`
		SELECT observed_date, level
		FROM factor_observations
		WHERE factor_code = ?
		ORDER BY observed_date ASC
	`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations for %s: %w", code, err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var dateStr string
		o := Observation{FactorCode: code}
		if err := rows.Scan(&dateStr, &o.Level); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if o.Date, err = domain.ParseDate(dateStr); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}
	return out, nil
}

// LastObservationDate returns the latest stored date for a factor, nil if none
func (r *Repository) LastObservationDate(code string) (*time.Time, error) {
	var last sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(observed_date) FROM factor_observations WHERE factor_code = ?", code,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get last observation date for %s: %w", code, err)
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

// SaveSet replaces the normalized returns and z-scores of every catalog
// factor in set inside one transaction. A catalog factor without a series
// has its stored rows cleared; codes outside set.Order are left alone.
func (r *Repository) SaveSet(ctx context.Context, set *Set) error {
	return r.SaveSetThen(ctx, set, nil)
}

// SaveSetThen is SaveSet with then run inside the transaction after the
// writes. An error from then rolls the writes back, so a caller can make
// another store's commit the deciding step.
func (r *Repository) SaveSetThen(ctx context.Context, set *Set, then func() error) error {
	return database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		for _, code := range set.Order {
			if err := r.clearSeriesTx(ctx, tx, code); err != nil {
				return err
			}
			if series := set.Series[code]; series != nil {
				if err := r.insertSeriesTx(ctx, tx, series); err != nil {
					return err
				}
			}
		}
		if then == nil {
			return nil
		}
		return then()
	})
}

func (r *Repository) clearSeriesTx(ctx context.Context, tx *sql.Tx, code string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM factor_returns WHERE factor_code = ?", code); err != nil {
		return fmt.Errorf("failed to clear returns for %s: %w", code, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM factor_returns_z WHERE factor_code = ?", code); err != nil {
		return fmt.Errorf("failed to clear z-scores for %s: %w", code, err)
	}
	return nil
}

func (r *Repository) insertSeriesTx(ctx context.Context, tx *sql.Tx, s *Series) error {
	code := s.Spec.Code

	retStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO factor_returns (factor_code, observed_date, effective_date, raw_level, ret, lag_policy)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare returns insert: %w", err)
	}
	defer retStmt.Close()

	for _, ret := range s.Returns {
		var raw sql.NullFloat64
		if ret.RawLevel != nil {
			raw = sql.NullFloat64{Float64: *ret.RawLevel, Valid: true}
		}
		if _, err := retStmt.ExecContext(ctx, code,
			domain.FormatDate(ret.ObservedDate),
			domain.FormatDate(ret.EffectiveDate),
			raw, ret.Ret, ret.LagPolicy,
		); err != nil {
			return fmt.Errorf("failed to insert return %s %s: %w", code, domain.FormatDate(ret.ObservedDate), err)
		}
	}

	zStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO factor_returns_z (factor_code, date, ret, ret_z)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare z-score insert: %w", err)
	}
	defer zStmt.Close()

	for _, p := range s.Points {
		if _, err := zStmt.ExecContext(ctx, code, domain.FormatDate(p.Date), p.Ret, p.RetZ); err != nil {
			return fmt.Errorf("failed to insert z-score %s %s: %w", code, domain.FormatDate(p.Date), err)
		}
	}
	return nil
}

// GetReturns returns stored returns for a factor with observed dates in
// [from, to]; zero bounds are open.
func (r *Repository) GetReturns(code string, from, to time.Time) ([]Return, error) {
	query := `
		SELECT observed_date, effective_date, raw_level, ret, lag_policy
		FROM factor_returns
		WHERE factor_code = ?
	`
	args := []interface{}{code}
	if !from.IsZero() {
		query += " AND observed_date >= ?"
		args = append(args, domain.FormatDate(from))
	}
	if !to.IsZero() {
		query += " AND observed_date <= ?"
		args = append(args, domain.FormatDate(to))
	}
	query += " ORDER BY observed_date ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns for %s: %w", code, err)
	}
	defer rows.Close()

	var out []Return
	for rows.Next() {
		var observed, effective string
		var raw sql.NullFloat64
		ret := Return{FactorCode: code}
		if err := rows.Scan(&observed, &effective, &raw, &ret.Ret, &ret.LagPolicy); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		if ret.ObservedDate, err = domain.ParseDate(observed); err != nil {
			return nil, err
		}
		if ret.EffectiveDate, err = domain.ParseDate(effective); err != nil {
			return nil, err
		}
		if raw.Valid {
			v := raw.Float64
			ret.RawLevel = &v
		}
		out = append(out, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating returns: %w", err)
	}
	return out, nil
}

// GetPoints returns the stored effective-calendar series of a factor
func (r *Repository) GetPoints(code string) ([]Point, error) {
	rows, err := r.db.Query(`
		SELECT date, ret, ret_z
		FROM factor_returns_z
		WHERE factor_code = ?
		ORDER BY date ASC
	`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query z-scores for %s: %w", code, err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var dateStr string
		p := Point{FactorCode: code}
		if err := rows.Scan(&dateStr, &p.Ret, &p.RetZ); err != nil {
			return nil, fmt.Errorf("failed to scan z-score: %w", err)
		}
		if p.Date, err = domain.ParseDate(dateStr); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating z-scores: %w", err)
	}
	return out, nil
}
