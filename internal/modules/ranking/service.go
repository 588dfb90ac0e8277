package ranking

import (
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/rs/zerolog"
)

// BetaSource returns each security's latest betas on or before a date
type BetaSource interface {
	LatestAsOf(date time.Time, sel betas.Selector) ([]betas.Beta, error)
}

// Service ranks stored betas on demand, for any date and slice size
type Service struct {
	source         BetaSource
	ranker         *Ranker
	windowDays     int
	lookbackWindow string
	log            zerolog.Logger
}

// NewService creates a ranking service reading betas estimated with the
// given window and lookback.
func NewService(source BetaSource, ranker *Ranker, windowDays int, lookbackWindow string, log zerolog.Logger) *Service {
	return &Service{
		source:         source,
		ranker:         ranker,
		windowDays:     windowDays,
		lookbackWindow: lookbackWindow,
		log:            log.With().Str("service", "ranking").Logger(),
	}
}

// Slices ranks one factor on one axis using each security's latest betas
// on or before asOf. n <= 0 uses the ranker's default size.
func (s *Service) Slices(asOf time.Time, method domain.Method, factor string, axis Axis, n int) (*Slices, error) {
	if n <= 0 {
		n = s.ranker.TopN()
	}
	rows, err := s.source.LatestAsOf(asOf, betas.Selector{
		Method:         method,
		WindowDays:     s.windowDays,
		LookbackWindow: s.lookbackWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load betas for ranking: %w", err)
	}

	return &Slices{
		FactorCode: factor,
		Top:        s.ranker.Slice(asOf, method, factor, rows, axis, SideTop, n),
		Bottom:     s.ranker.Slice(asOf, method, factor, rows, axis, SideBottom, n),
	}, nil
}
