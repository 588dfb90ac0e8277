// Package portfolio stores dated position snapshots and imports broker
// exports into them.
package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/database"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// PositionRepository handles snapshot and position rows in market.db
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// ReplaceSnapshot stores the snapshot totals and replaces every position of
// that date in one transaction.
func (r *PositionRepository) ReplaceSnapshot(ctx context.Context, snap Snapshot, positions []Position) error {
	date := domain.FormatDate(snap.AsOfDate)

	return database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO portfolio_snapshots (as_of_date, total_asset, total_stock_amount, total_cash, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(as_of_date) DO UPDATE SET
				total_asset = excluded.total_asset,
				total_stock_amount = excluded.total_stock_amount,
				total_cash = excluded.total_cash,
				updated_at = excluded.updated_at
		`, date, snap.TotalAsset, snap.TotalStockAmount, snap.TotalCash, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert snapshot %s: %w", date, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM positions WHERE as_of_date = ?", date); err != nil {
			return fmt.Errorf("failed to clear positions for %s: %w", date, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO positions (as_of_date, security_code, security_name, quantity, eval_amount, category_tags, currency)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range positions {
			_, err := stmt.ExecContext(ctx,
				date,
				p.SecurityCode,
				nullString(p.SecurityName),
				p.Quantity,
				p.EvalAmount,
				nullString(strings.Join(p.CategoryTags, ",")),
				p.Currency,
			)
			if err != nil {
				return fmt.Errorf("failed to insert position %s: %w", p.SecurityCode, err)
			}
		}
		return nil
	})
}

// GetPositions returns the positions of one snapshot date ordered by security code
func (r *PositionRepository) GetPositions(asOf time.Time) ([]Position, error) {
	rows, err := r.db.Query(`
		SELECT security_code, security_name, quantity, eval_amount, category_tags, currency
		FROM positions
		WHERE as_of_date = ?
		ORDER BY security_code ASC
	`, domain.FormatDate(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var name, tags sql.NullString
		p := Position{AsOfDate: asOf}
		if err := rows.Scan(&p.SecurityCode, &name, &p.Quantity, &p.EvalAmount, &tags, &p.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.SecurityName = name.String
		if tags.Valid && tags.String != "" {
			p.CategoryTags = strings.Split(tags.String, ",")
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// GetSnapshot returns the totals of a snapshot date, nil if none
func (r *PositionRepository) GetSnapshot(asOf time.Time) (*Snapshot, error) {
	s := Snapshot{AsOfDate: asOf}
	err := r.db.QueryRow(`
		SELECT total_asset, total_stock_amount, total_cash
		FROM portfolio_snapshots
		WHERE as_of_date = ?
	`, domain.FormatDate(asOf)).Scan(&s.TotalAsset, &s.TotalStockAmount, &s.TotalCash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &s, nil
}

// LatestSnapshotDate returns the most recent snapshot date on or before
// onOrBefore, nil if there is none. A zero bound means no upper limit.
func (r *PositionRepository) LatestSnapshotDate(onOrBefore time.Time) (*time.Time, error) {
	query := "SELECT MAX(as_of_date) FROM portfolio_snapshots"
	var args []interface{}
	if !onOrBefore.IsZero() {
		query += " WHERE as_of_date <= ?"
		args = append(args, domain.FormatDate(onOrBefore))
	}

	var last sql.NullString
	if err := r.db.QueryRow(query, args...).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot date: %w", err)
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

// SnapshotDates lists snapshot dates, newest first
func (r *PositionRepository) SnapshotDates(limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query("SELECT as_of_date FROM portfolio_snapshots ORDER BY as_of_date DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot date: %w", err)
		}
		t, err := domain.ParseDate(s)
		if err != nil {
			return nil, err
		}
		dates = append(dates, t)
	}
	return dates, rows.Err()
}

func nullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}
