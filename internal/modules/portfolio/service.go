package portfolio

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// Skip reasons reported by ImportSnapshot
const (
	SkipEmptyHoldings = "stock_amount_without_holdings"
)

// PortfolioService imports broker snapshots and serves positions to the pipeline
type PortfolioService struct {
	positionRepo *PositionRepository
	log          zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(positionRepo *PositionRepository, log zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		positionRepo: positionRepo,
		log:          log.With().Str("service", "portfolio").Logger(),
	}
}

// ImportSnapshot stores a broker snapshot.
//
// A snapshot that reports a stock amount but no holdings is a broken broker
// response: it is skipped and the previously stored positions of that date
// stay untouched. Otherwise every position of the date is replaced and the
// uninvested remainder (total - stock) becomes a CASH position.
func (s *PortfolioService) ImportSnapshot(ctx context.Context, in SnapshotImport) (*ImportResult, error) {
	asOf, err := domain.ParseDate(strings.TrimSpace(in.AsOfDate))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot date: %w", err)
	}

	if in.TotalStockAmount > 0 && len(in.Holdings) == 0 {
		s.log.Warn().
			Str("as_of_date", domain.FormatDate(asOf)).
			Float64("total_stock_amount", in.TotalStockAmount).
			Msg("Snapshot has stock amount but no holdings, keeping previous data")
		return &ImportResult{AsOfDate: asOf, Skipped: true, Reason: SkipEmptyHoldings}, nil
	}

	cash := in.TotalAsset - in.TotalStockAmount
	positions := make([]Position, 0, len(in.Holdings)+1)
	seen := make(map[string]bool, len(in.Holdings))
	for _, h := range in.Holdings {
		code := strings.TrimSpace(h.SecurityCode)
		if code == "" {
			return nil, fmt.Errorf("holding without security code in snapshot %s", in.AsOfDate)
		}
		if code == CashCode {
			return nil, fmt.Errorf("holding uses reserved code %s", CashCode)
		}
		if seen[code] {
			return nil, fmt.Errorf("duplicate holding %s in snapshot %s", code, in.AsOfDate)
		}
		seen[code] = true

		currency := h.Currency
		if currency == "" {
			currency = "KRW"
		}
		positions = append(positions, Position{
			AsOfDate:     asOf,
			SecurityCode: code,
			SecurityName: strings.TrimSpace(h.SecurityName),
			Quantity:     h.Quantity,
			EvalAmount:   h.EvalAmount,
			CategoryTags: h.CategoryTags,
			Currency:     currency,
		})
	}
	if cash != 0 {
		positions = append(positions, Position{
			AsOfDate:     asOf,
			SecurityCode: CashCode,
			SecurityName: "Cash",
			EvalAmount:   cash,
			Currency:     "KRW",
		})
	}

	snap := Snapshot{
		AsOfDate:         asOf,
		TotalAsset:       in.TotalAsset,
		TotalStockAmount: in.TotalStockAmount,
		TotalCash:        cash,
	}
	if err := s.positionRepo.ReplaceSnapshot(ctx, snap, positions); err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.log.Info().
		Str("as_of_date", domain.FormatDate(asOf)).
		Int("positions", len(positions)).
		Float64("cash", cash).
		Msg("Imported portfolio snapshot")

	return &ImportResult{AsOfDate: asOf, Positions: len(positions), TotalCash: cash}, nil
}

// PositionsAsOf returns the latest snapshot on or before asOf together with
// its date. It returns nil positions when no snapshot exists.
func (s *PortfolioService) PositionsAsOf(asOf time.Time) ([]Position, *time.Time, error) {
	date, err := s.positionRepo.LatestSnapshotDate(asOf)
	if err != nil {
		return nil, nil, err
	}
	if date == nil {
		return nil, nil, nil
	}
	positions, err := s.positionRepo.GetPositions(*date)
	if err != nil {
		return nil, nil, err
	}
	return positions, date, nil
}

// Repository returns the underlying position repository
func (s *PortfolioService) Repository() *PositionRepository {
	return s.positionRepo
}

// ParseSnapshotJSON decodes a SnapshotImport document
func ParseSnapshotJSON(r io.Reader) (SnapshotImport, error) {
	var in SnapshotImport
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return SnapshotImport{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return in, nil
}

// ParsePositionsCSV reads a snapshot from CSV with the header
// as_of_date,security_code,security_name,quantity,eval_amount[,category_tags,currency].
// Totals are derived from the rows: the CASH row, when present, is the cash
// balance and everything else is the stock amount.
func ParsePositionsCSV(r io.Reader) (SnapshotImport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return SnapshotImport{}, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"as_of_date", "security_code", "eval_amount"} {
		if _, ok := cols[required]; !ok {
			return SnapshotImport{}, fmt.Errorf("csv missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var in SnapshotImport
	var cash float64
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return SnapshotImport{}, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		date := field(rec, "as_of_date")
		if in.AsOfDate == "" {
			in.AsOfDate = date
		} else if date != in.AsOfDate {
			return SnapshotImport{}, fmt.Errorf("line %d: mixed snapshot dates %s and %s", line, in.AsOfDate, date)
		}

		eval, err := strconv.ParseFloat(field(rec, "eval_amount"), 64)
		if err != nil {
			return SnapshotImport{}, fmt.Errorf("line %d: invalid eval_amount: %w", line, err)
		}
		code := field(rec, "security_code")
		if code == CashCode {
			cash += eval
			continue
		}

		var qty float64
		if raw := field(rec, "quantity"); raw != "" {
			if qty, err = strconv.ParseFloat(raw, 64); err != nil {
				return SnapshotImport{}, fmt.Errorf("line %d: invalid quantity: %w", line, err)
			}
		}
		var tags []string
		if raw := field(rec, "category_tags"); raw != "" {
			tags = strings.Split(raw, "|")
		}

		in.Holdings = append(in.Holdings, Holding{
			SecurityCode: code,
			SecurityName: field(rec, "security_name"),
			Quantity:     qty,
			EvalAmount:   eval,
			CategoryTags: tags,
			Currency:     field(rec, "currency"),
		})
		in.TotalStockAmount += eval
	}

	if in.AsOfDate == "" {
		return SnapshotImport{}, fmt.Errorf("csv contains no positions")
	}
	in.TotalAsset = in.TotalStockAmount + cash
	return in, nil
}
