// Package universe stores security price history and derives the security
// return series the beta estimator regresses.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/aristath/factorrisk/internal/database"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// HistoryDB provides access to daily security closes in market.db
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// DailyPrice is one daily close
type DailyPrice struct {
	SecurityCode string    `json:"security_code"`
	Date         time.Time `json:"date"`
	Close        float64   `json:"close"`
}

// DailyReturn is a log return between two consecutive closes, dated on the later one
type DailyReturn struct {
	Date time.Time `json:"date"`
	Ret  float64   `json:"ret"`
}

// SyncHistoricalPrices upserts closes in one transaction
func (h *HistoryDB) SyncHistoricalPrices(ctx context.Context, prices []DailyPrice) error {
	if len(prices) == 0 {
		return nil
	}

	err := database.WithTransactionContext(ctx, h.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO security_prices (security_code, date, close)
			VALUES (?, ?, ?)
			ON CONFLICT(security_code, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := stmt.ExecContext(ctx, p.SecurityCode, domain.FormatDate(p.Date), p.Close); err != nil {
				return fmt.Errorf("failed to insert daily price %s %s: %w", p.SecurityCode, domain.FormatDate(p.Date), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.log.Info().Int("count", len(prices)).Msg("Synced historical prices")
	return nil
}

// GetDailyPrices returns closes for a security with dates in [from, to] in
// ascending order. Zero bounds are open.
func (h *HistoryDB) GetDailyPrices(code string, from, to time.Time) ([]DailyPrice, error) {
	query := "SELECT date, close FROM security_prices WHERE security_code = ?"
	args := []interface{}{code}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, domain.FormatDate(from))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, domain.FormatDate(to))
	}
	query += " ORDER BY date ASC"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var dateStr string
		p := DailyPrice{SecurityCode: code}
		if err := rows.Scan(&dateStr, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		if p.Date, err = domain.ParseDate(dateStr); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return prices, nil
}

// GetLogReturns returns log returns dated in [from, to]. The close before
// from is used as the base of the first return so clipping never loses a day.
// Non-positive closes are skipped.
func (h *HistoryDB) GetLogReturns(code string, from, to time.Time) ([]DailyReturn, error) {
	prices, err := h.GetDailyPrices(code, time.Time{}, to)
	if err != nil {
		return nil, err
	}
	return LogReturns(prices, from), nil
}

// ReturnMap is GetLogReturns keyed by date
func (h *HistoryDB) ReturnMap(code string, from, to time.Time) (map[time.Time]float64, error) {
	returns, err := h.GetLogReturns(code, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[time.Time]float64, len(returns))
	for _, r := range returns {
		out[r.Date] = r.Ret
	}
	return out, nil
}

// SecurityCodes lists every security with stored prices, in lexical order
func (h *HistoryDB) SecurityCodes() ([]string, error) {
	rows, err := h.db.Query("SELECT DISTINCT security_code FROM security_prices ORDER BY security_code")
	if err != nil {
		return nil, fmt.Errorf("failed to query security codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan security code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// LogReturns converts ascending closes into log returns dated on or after from
func LogReturns(prices []DailyPrice, from time.Time) []DailyReturn {
	out := make([]DailyReturn, 0, len(prices))
	var prev *DailyPrice
	for i := range prices {
		p := &prices[i]
		if p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		if prev != nil && !p.Date.Before(from) {
			out = append(out, DailyReturn{Date: p.Date, Ret: math.Log(p.Close) - math.Log(prev.Close)})
		}
		prev = p
	}
	return out
}
