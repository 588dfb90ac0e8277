// Package guard throttles and circuit-breaks calls to external APIs.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Config holds the limits for one upstream
type Config struct {
	Name                   string
	RatePerSecond          float64
	Burst                  int
	MaxConsecutiveFailures uint32
	OpenTimeout            time.Duration // how long the breaker stays open
}

// Guard combines a token bucket limiter with a circuit breaker
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// New creates a guard for one upstream
func New(cfg Config, log zerolog.Logger) *Guard {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}

	g := &Guard{
		name:    cfg.Name,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		log:     log.With().Str("guard", cfg.Name).Logger(),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     cfg.Name,
		Interval: 60 * time.Second,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	return g
}

// Do waits for a rate limit token, then runs fn through the breaker.
// An open breaker fails fast without calling fn.
func (g *Guard) Do(ctx context.Context, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit wait: %w", g.name, err)
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State returns the breaker state: closed, half-open or open
func (g *Guard) State() string {
	return g.breaker.State().String()
}
