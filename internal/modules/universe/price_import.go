package universe

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// PriceImportResult summarizes one price import
type PriceImportResult struct {
	Stored     int         `json:"stored"`
	Rejected   []Rejection `json:"-"`
	Securities int         `json:"securities"`
}

// PriceImportService validates closes and writes them to the history store
type PriceImportService struct {
	historyDB *HistoryDB
	validator *PriceValidator
	log       zerolog.Logger
}

// NewPriceImportService creates a new price import service
func NewPriceImportService(historyDB *HistoryDB, validator *PriceValidator, log zerolog.Logger) *PriceImportService {
	return &PriceImportService{
		historyDB: historyDB,
		validator: validator,
		log:       log.With().Str("service", "price_import").Logger(),
	}
}

// ImportCSV reads security_code,date,close rows, drops abnormal closes and
// upserts the rest. Closes already stored for a security are not revalidated.
func (s *PriceImportService) ImportCSV(ctx context.Context, r io.Reader) (*PriceImportResult, error) {
	prices, err := ParsePricesCSV(r)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, prices)
}

// Import validates and stores closes
func (s *PriceImportService) Import(ctx context.Context, prices []DailyPrice) (*PriceImportResult, error) {
	accepted, rejected := s.validator.Filter(prices)

	if err := s.historyDB.SyncHistoricalPrices(ctx, accepted); err != nil {
		return nil, fmt.Errorf("failed to store prices: %w", err)
	}

	securities := make(map[string]struct{})
	for _, p := range accepted {
		securities[p.SecurityCode] = struct{}{}
	}

	if len(rejected) > 0 {
		s.log.Warn().Int("rejected", len(rejected)).Msg("Dropped abnormal closes")
	}
	s.log.Info().
		Int("stored", len(accepted)).
		Int("securities", len(securities)).
		Msg("Imported security prices")

	return &PriceImportResult{Stored: len(accepted), Rejected: rejected, Securities: len(securities)}, nil
}

// ParsePricesCSV reads security_code,date,close rows
func ParsePricesCSV(r io.Reader) ([]DailyPrice, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"security_code", "date", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv missing column %q", required)
		}
	}

	var prices []DailyPrice
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		raw := strings.TrimSpace(rec[cols["close"]])
		if raw == "" {
			continue
		}
		closePrice, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid close %q", line, raw)
		}
		date, err := domain.ParseDate(strings.TrimSpace(rec[cols["date"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		code := strings.TrimSpace(rec[cols["security_code"]])
		if code == "" {
			return nil, fmt.Errorf("line %d: empty security_code", line)
		}
		prices = append(prices, DailyPrice{SecurityCode: code, Date: date, Close: closePrice})
	}
	return prices, nil
}
