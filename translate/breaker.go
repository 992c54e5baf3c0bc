package translate

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker kept per provider.
type BreakerSettings struct {
	// Disabled turns breakers off; every call goes straight to the provider.
	Disabled bool
	// FailureThreshold is the number of consecutive failed batches that
	// opens the breaker. Default: 5.
	FailureThreshold uint32
	// OpenTimeout is how long an open breaker rejects calls before letting
	// a probe through. Default: 30s.
	OpenTimeout time.Duration
	// Interval clears the failure counts of a closed breaker. Zero never clears.
	Interval time.Duration
	// HalfOpenRequests is the number of probe calls allowed while half-open. Default: 1.
	HalfOpenRequests uint32
}

type breakers struct {
	settings BreakerSettings
	logger   zerolog.Logger

	mu sync.Mutex
	m  map[string]*gobreaker.CircuitBreaker
}

func newBreakers(settings BreakerSettings, logger zerolog.Logger) *breakers {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}
	return &breakers{settings: settings, logger: logger, m: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *breakers) get(provider string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.m[provider]; ok {
		return cb
	}
	threshold := b.settings.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: b.settings.HalfOpenRequests,
		Interval:    b.settings.Interval,
		Timeout:     b.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		// Bad input says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || KindOf(err).IsValidation()
		},
	})
	b.m[provider] = cb
	return cb
}

// call runs fn through the provider's breaker. A rejected call is reported
// as ServiceUnavailable.
func (b *breakers) call(provider string, fn func() (*Outcome, error)) (*Outcome, error) {
	if b.settings.Disabled {
		return fn()
	}
	res, err := b.get(provider).Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, NewError(KindServiceUnavailable, provider, "circuit breaker open", err)
	}
	out, _ := res.(*Outcome)
	return out, err
}

// state returns the breaker state name of provider, or "closed" when it
// has not been used yet.
func (b *breakers) state(provider string) string {
	b.mu.Lock()
	cb, ok := b.m[provider]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}
