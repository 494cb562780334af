package fetch

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"musicfeed/internal/metrics"
)

// BreakerSettings configures every breaker in a registry.
type BreakerSettings struct {
	FailureThreshold uint32        // consecutive failures before opening
	Cooldown         time.Duration // open -> half-open delay
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown == 0 {
		s.Cooldown = time.Minute
	}
	return s
}

// BreakerStatus is a monitoring snapshot of one breaker.
type BreakerStatus struct {
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`
}

// Breakers owns one circuit breaker per provider key. State is process-wide
// and advisory; the mutex only guards the map, never a network call.
type Breakers struct {
	mu       sync.Mutex
	settings BreakerSettings
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
	logger   *slog.Logger
}

func NewBreakers(settings BreakerSettings, logger *slog.Logger) *Breakers {
	return &Breakers{
		settings: settings.withDefaults(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Response]),
		logger:   logger.With("component", "circuit_breaker"),
	}
}

// Get returns the breaker for key, creating a closed one on first use.
func (b *Breakers) Get(key string) *gobreaker.CircuitBreaker[*Response] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[key]; ok {
		return cb
	}

	threshold := b.settings.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1, // exactly one trial request while half-open
		Timeout:     b.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errAbandoned)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			if to == gobreaker.StateOpen {
				b.logger.Warn("circuit breaker opened", "key", name, "from", fromStr)
			} else {
				b.logger.Info("circuit breaker state transition", "key", name, "from", fromStr, "to", toStr)
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(key).Set(0)
	b.breakers[key] = cb
	return cb
}

// State reports the breaker state for key; unknown keys are closed.
func (b *Breakers) State(key string) gobreaker.State {
	b.mu.Lock()
	cb, ok := b.breakers[key]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Snapshot returns the status of every known breaker.
func (b *Breakers) Snapshot() map[string]BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]BreakerStatus, len(b.breakers))
	for key, cb := range b.breakers {
		out[key] = BreakerStatus{
			State:               stateToString(cb.State()),
			ConsecutiveFailures: cb.Counts().ConsecutiveFailures,
		}
	}
	return out
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
