package ranking

import (
	"sort"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/rs/zerolog"
)

// DefaultTopN is the slice size when none is configured
const DefaultTopN = 5

// Ranker builds ranking slices from betas
type Ranker struct {
	topN int
	log  zerolog.Logger
}

// NewRanker creates a ranker producing slices of topN securities
func NewRanker(topN int, log zerolog.Logger) *Ranker {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Ranker{
		topN: topN,
		log:  log.With().Str("component", "ranker").Logger(),
	}
}

// TopN returns the configured slice size
func (r *Ranker) TopN() int {
	return r.topN
}

// Rank ranks every factor present in rows on both axes. Rows must belong to
// method; others are ignored. Output is ordered by factor code, axis, side
// and rank.
func (r *Ranker) Rank(asOf time.Time, method domain.Method, rows []betas.Beta) []Entry {
	byFactor := make(map[string][]betas.Beta)
	for _, b := range rows {
		if b.Method != method {
			continue
		}
		byFactor[b.FactorCode] = append(byFactor[b.FactorCode], b)
	}
	codes := make([]string, 0, len(byFactor))
	for code := range byFactor {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var out []Entry
	for _, code := range codes {
		for _, axis := range []Axis{AxisSensitivity, AxisFit} {
			for _, side := range []Side{SideTop, SideBottom} {
				out = append(out, r.Slice(asOf, method, code, byFactor[code], axis, side, r.topN)...)
			}
		}
	}

	r.log.Debug().
		Str("method", string(method)).
		Int("factors", len(codes)).
		Int("entries", len(out)).
		Msg("Rankings built")
	return out
}

// Slice returns up to n securities of one factor from one end of an axis.
// Ties are broken by security code, ascending, on both sides. Securities
// with an undefined R² never appear on the fit axis.
func (r *Ranker) Slice(asOf time.Time, method domain.Method, factorCode string, rows []betas.Beta, axis Axis, side Side, n int) []Entry {
	candidates := make([]betas.Beta, 0, len(rows))
	for _, b := range rows {
		if b.FactorCode != factorCode {
			continue
		}
		if axis == AxisFit && b.R2 == nil {
			continue
		}
		candidates = append(candidates, b)
	}

	value := func(b betas.Beta) float64 {
		if axis == AxisFit {
			return *b.R2
		}
		return b.Beta
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		vi, vj := value(candidates[i]), value(candidates[j])
		if vi != vj {
			if side == SideTop {
				return vi > vj
			}
			return vi < vj
		}
		return candidates[i].SecurityCode < candidates[j].SecurityCode
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		b := candidates[i]
		out[i] = Entry{
			AsOfDate:     asOf,
			FactorCode:   factorCode,
			Method:       method,
			Axis:         axis,
			Side:         side,
			Rank:         i + 1,
			SecurityCode: b.SecurityCode,
			Beta:         b.Beta,
			R2:           b.R2,
		}
	}
	return out
}
