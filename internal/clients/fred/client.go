// Package fred provides a client for the FRED series observations API.
package fred

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aristath/factorrisk/internal/clientdata"
	"github.com/aristath/factorrisk/internal/clients/guard"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.stlouisfed.org/fred"
	// FRED allows 120 requests per minute per key
	requestsPerSecond = 2
)

// Observation is one dated series value
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

type errorResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Client is the FRED API client.
type Client struct {
	http   *resty.Client
	apiKey string
	guard  *guard.Guard
	cache  *clientdata.Repository
	log    zerolog.Logger
}

// NewClient creates a new FRED client. cache is optional; when nil every
// call goes upstream.
func NewClient(apiKey string, cache *clientdata.Repository, log zerolog.Logger) *Client {
	l := log.With().Str("client", "fred").Logger()
	return &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(30 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
		apiKey: apiKey,
		guard:  guard.New(guard.Config{Name: "fred", RatePerSecond: requestsPerSecond, Burst: 2}, l),
		cache:  cache,
		log:    l,
	}
}

// Observations returns the series values between start and end inclusive.
// Missing values, which FRED reports as ".", are skipped.
func (c *Client) Observations(ctx context.Context, seriesID string, start, end time.Time, ttl time.Duration) ([]Observation, error) {
	if c.cache == nil {
		return c.fetch(ctx, seriesID, start, end)
	}

	key := fmt.Sprintf("%s|%s|%s", seriesID, domain.FormatDate(start), domain.FormatDate(end))
	var out []Observation
	err := c.cache.Fetch(clientdata.TableFRED, key, ttl, &out, func() (interface{}, error) {
		return c.fetch(ctx, seriesID, start, end)
	})
	return out, err
}

func (c *Client) fetch(ctx context.Context, seriesID string, start, end time.Time) ([]Observation, error) {
	var body observationsResponse
	err := c.guard.Do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"series_id":         seriesID,
				"api_key":           c.apiKey,
				"file_type":         "json",
				"observation_start": domain.FormatDate(start),
				"observation_end":   domain.FormatDate(end),
			}).
			SetResult(&body).
			SetError(&errorResponse{}).
			Get("/series/observations")
		if err != nil {
			return fmt.Errorf("fred request failed: %w", err)
		}
		if resp.IsError() {
			if e, ok := resp.Error().(*errorResponse); ok && e.ErrorMessage != "" {
				return fmt.Errorf("fred %s: HTTP %d: %s", seriesID, resp.StatusCode(), e.ErrorMessage)
			}
			return fmt.Errorf("fred %s: HTTP %d", seriesID, resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Observation, 0, len(body.Observations))
	for _, o := range body.Observations {
		if o.Value == "." || o.Value == "" {
			continue
		}
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		date, err := domain.ParseDate(o.Date)
		if err != nil {
			continue
		}
		out = append(out, Observation{Date: date, Value: v})
	}

	c.log.Debug().Str("series", seriesID).Int("observations", len(out)).Msg("Fetched FRED series")
	return out, nil
}
