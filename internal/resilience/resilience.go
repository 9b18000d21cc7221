package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// BreakerConfig configures every breaker created by a Registry.
type BreakerConfig struct {
	ConsecutiveFailures uint32        // trip after this many failures in a row (default 5)
	OpenTimeout         time.Duration // stay open this long before probing (default 30s)
	MaxRequests         uint32        // probes allowed while half-open (default 1)

	// IsFailure decides which errors count against the breaker.
	// nil counts every error except context cancellation.
	IsFailure func(error) bool
}

// Registry manages one circuit breaker per endpoint name.
type Registry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	logger   *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRegistry creates a breaker registry.
func NewRegistry(cfg BreakerConfig, logger *slog.Logger) *Registry {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	threshold := r.cfg.ConsecutiveFailures
	isFailure := r.cfg.IsFailure
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: r.cfg.MaxRequests,
		Interval:    0, // never clear counts while closed
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// user cancellation is not an endpoint failure
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			if isFailure != nil {
				return !isFailure(err)
			}
			return false
		},
	})

	r.breakers[name] = cb
	return cb
}

// Do runs fn through the named breaker. It never retries: when the breaker
// is open it returns gobreaker.ErrOpenState (or ErrTooManyRequests) without
// calling fn.
func Do[T any](r *Registry, name string, fn func() (T, error)) (T, error) {
	var zero T
	out, err := r.Get(name).Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if v, ok := out.(T); ok {
			return v, err
		}
		return zero, err
	}
	return out.(T), nil
}

// IsOpen reports whether err came from a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// WaitConfig configures WaitFor's exponential backoff.
type WaitConfig struct {
	InitialInterval time.Duration // default 250ms
	MaxInterval     time.Duration // default 5s
	MaxElapsedTime  time.Duration // default 30s; the wait gives up after this
	Multiplier      float64       // default 2.0
}

// ErrGaveUp is returned by WaitFor when the probe never succeeded in time.
var ErrGaveUp = errors.New("gave up waiting")

// WaitFor polls probe with exponential backoff until it returns true, ctx
// ends, or MaxElapsedTime passes.
func WaitFor(ctx context.Context, probe func(context.Context) bool, cfg WaitConfig) error {
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 250 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.MaxElapsedTime == 0 {
		cfg.MaxElapsedTime = 30 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval
	policy.MaxElapsedTime = cfg.MaxElapsedTime
	policy.Multiplier = cfg.Multiplier

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if probe(ctx) {
			return nil
		}
		return ErrGaveUp
	}

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
