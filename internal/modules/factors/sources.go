package factors

import (
	"context"
	"time"

	"github.com/aristath/factorrisk/internal/clientdata"
	"github.com/aristath/factorrisk/internal/clients/ecos"
	"github.com/aristath/factorrisk/internal/clients/fred"
	"github.com/aristath/factorrisk/internal/config"
)

// FREDFetcher adapts the FRED client to LevelFetcher
type FREDFetcher struct {
	Client *fred.Client
}

// FetchLevels implements LevelFetcher
func (f FREDFetcher) FetchLevels(ctx context.Context, spec config.FactorSpec, start, end time.Time) ([]Observation, error) {
	raw, err := f.Client.Observations(ctx, spec.Series, start, end, clientdata.TTLForFrequency(spec.Frequency))
	if err != nil {
		return nil, err
	}
	out := make([]Observation, len(raw))
	for i, o := range raw {
		out[i] = Observation{FactorCode: spec.Code, Date: o.Date, Level: o.Value}
	}
	return out, nil
}

// ECOSFetcher adapts the ECOS client to LevelFetcher
type ECOSFetcher struct {
	Client *ecos.Client
}

// FetchLevels implements LevelFetcher
func (f ECOSFetcher) FetchLevels(ctx context.Context, spec config.FactorSpec, start, end time.Time) ([]Observation, error) {
	raw, err := f.Client.Observations(ctx, spec.Series, start, end, clientdata.TTLForFrequency(spec.Frequency))
	if err != nil {
		return nil, err
	}
	out := make([]Observation, len(raw))
	for i, o := range raw {
		out[i] = Observation{FactorCode: spec.Code, Date: o.Date, Level: o.Value}
	}
	return out, nil
}
