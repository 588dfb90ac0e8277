// Package ecos provides a client for the Bank of Korea ECOS StatisticSearch API.
package ecos

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/clientdata"
	"github.com/aristath/factorrisk/internal/clients/guard"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://ecos.bok.or.kr/api"
	pageSize       = 1000
	language       = "kr"

	// resultNoData is returned instead of an empty row list
	resultNoData = "INFO-200"
)

// Cycles supported by StatisticSearch
const (
	CycleDaily   = "D"
	CycleMonthly = "M"
)

// Observation is one dated series value. Monthly values are dated on the
// first of their month.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series identifies an ECOS statistic: stat code, cycle and item code
type Series struct {
	StatCode string
	Cycle    string
	ItemCode string
}

// ParseSeries parses "817Y002/D/010210000"
func ParseSeries(s string) (Series, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Series{}, fmt.Errorf("invalid ECOS series %q: want STAT/CYCLE/ITEM", s)
	}
	cycle := strings.ToUpper(parts[1])
	if cycle != CycleDaily && cycle != CycleMonthly {
		return Series{}, fmt.Errorf("unsupported ECOS cycle %q", parts[1])
	}
	return Series{StatCode: parts[0], Cycle: cycle, ItemCode: parts[2]}, nil
}

func (s Series) String() string {
	return s.StatCode + "/" + s.Cycle + "/" + s.ItemCode
}

func (s Series) timeLayout() string {
	if s.Cycle == CycleMonthly {
		return "200601"
	}
	return "20060102"
}

type searchResponse struct {
	StatisticSearch *struct {
		ListTotalCount int `json:"list_total_count"`
		Row            []struct {
			Time      string `json:"TIME"`
			DataValue string `json:"DATA_VALUE"`
		} `json:"row"`
	} `json:"StatisticSearch"`
	Result *struct {
		Code    string `json:"CODE"`
		Message string `json:"MESSAGE"`
	} `json:"RESULT"`
}

// Client is the ECOS API client.
type Client struct {
	http   *resty.Client
	apiKey string
	guard  *guard.Guard
	cache  *clientdata.Repository
	log    zerolog.Logger
}

// NewClient creates a new ECOS client. cache is optional.
func NewClient(apiKey string, cache *clientdata.Repository, log zerolog.Logger) *Client {
	l := log.With().Str("client", "ecos").Logger()
	return &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(30 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
		apiKey: apiKey,
		guard:  guard.New(guard.Config{Name: "ecos", RatePerSecond: 8, Burst: 1}, l),
		cache:  cache,
		log:    l,
	}
}

// Observations returns the series values between start and end, reading
// every page of 1000 rows.
func (c *Client) Observations(ctx context.Context, series string, start, end time.Time, ttl time.Duration) ([]Observation, error) {
	s, err := ParseSeries(series)
	if err != nil {
		return nil, err
	}
	if c.cache == nil {
		return c.fetch(ctx, s, start, end)
	}

	key := fmt.Sprintf("%s|%s|%s", s, domain.FormatDate(start), domain.FormatDate(end))
	var out []Observation
	err = c.cache.Fetch(clientdata.TableECOS, key, ttl, &out, func() (interface{}, error) {
		return c.fetch(ctx, s, start, end)
	})
	return out, err
}

func (c *Client) fetch(ctx context.Context, s Series, start, end time.Time) ([]Observation, error) {
	layout := s.timeLayout()
	from, to := start.Format(layout), end.Format(layout)

	var out []Observation
	for startNo := 1; ; startNo += pageSize {
		endNo := startNo + pageSize - 1
		path := fmt.Sprintf("/StatisticSearch/%s/json/%s/%d/%d/%s/%s/%s/%s/%s",
			c.apiKey, language, startNo, endNo, s.StatCode, s.Cycle, from, to, s.ItemCode)

		var body searchResponse
		err := c.guard.Do(ctx, func() error {
			resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get(path)
			if err != nil {
				return fmt.Errorf("ecos request failed: %w", err)
			}
			if resp.IsError() {
				return fmt.Errorf("ecos %s: HTTP %d", s, resp.StatusCode())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		if body.StatisticSearch == nil {
			if body.Result != nil && body.Result.Code != resultNoData {
				return nil, fmt.Errorf("ecos %s: %s %s", s, body.Result.Code, body.Result.Message)
			}
			break
		}

		rows := body.StatisticSearch.Row
		for _, row := range rows {
			if row.DataValue == "" {
				continue
			}
			v, err := strconv.ParseFloat(row.DataValue, 64)
			if err != nil {
				continue
			}
			date, err := time.ParseInLocation(layout, row.Time, time.UTC)
			if err != nil {
				continue
			}
			out = append(out, Observation{Date: date, Value: v})
		}
		if len(rows) < pageSize {
			break
		}
	}

	c.log.Debug().Str("series", s.String()).Int("observations", len(out)).Msg("Fetched ECOS series")
	return out, nil
}
