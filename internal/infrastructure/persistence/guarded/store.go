// Package guarded decorates an entity.Store with a per-call deadline and a
// circuit breaker, and classifies backend errors into the domain taxonomy.
package guarded

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/pkg/circuitbreaker"
	"github.com/practica-musical/progression-hub/pkg/logger"
)

// Config holds the guard settings.
type Config struct {
	// CallTimeout bounds every store call. Zero disables the deadline.
	CallTimeout time.Duration

	// BreakerThreshold is the number of consecutive store failures that open the breaker.
	BreakerThreshold int

	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CallTimeout:      5 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  15 * time.Second,
	}
}

// Store is the guarded decorator.
type Store struct {
	inner   entity.Store
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

var _ entity.Store = (*Store)(nil)

// New wraps inner. A nil log discards output.
func New(inner entity.Store, cfg Config, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("store"))

	breaker := circuitbreaker.StoreBreaker(
		cfg.BreakerThreshold,
		cfg.BreakerCooldown,
		shared.IsStoreFailure,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	)

	return &Store{inner: inner, timeout: cfg.CallTimeout, breaker: breaker, log: log}
}

// BreakerState exposes the breaker state for health output.
func (s *Store) BreakerState() circuitbreaker.State {
	return s.breaker.State()
}

// Get implements entity.Store.
func (s *Store) Get(ctx context.Context, name entity.Name, id string) (entity.Record, error) {
	var out entity.Record
	err := s.call(ctx, "Get", name, func(ctx context.Context) (err error) {
		out, err = s.inner.Get(ctx, name, id)
		return err
	})
	return out, err
}

// List implements entity.Store.
func (s *Store) List(ctx context.Context, name entity.Name) ([]entity.Record, error) {
	var out []entity.Record
	err := s.call(ctx, "List", name, func(ctx context.Context) (err error) {
		out, err = s.inner.List(ctx, name)
		return err
	})
	return out, err
}

// Filter implements entity.Store.
func (s *Store) Filter(ctx context.Context, name entity.Name, where entity.Where) ([]entity.Record, error) {
	var out []entity.Record
	err := s.call(ctx, "Filter", name, func(ctx context.Context) (err error) {
		out, err = s.inner.Filter(ctx, name, where)
		return err
	})
	return out, err
}

// Create implements entity.Store.
func (s *Store) Create(ctx context.Context, name entity.Name, rec entity.Record) (entity.Record, error) {
	var out entity.Record
	err := s.call(ctx, "Create", name, func(ctx context.Context) (err error) {
		out, err = s.inner.Create(ctx, name, rec)
		return err
	})
	return out, err
}

// Update implements entity.Store.
func (s *Store) Update(ctx context.Context, name entity.Name, id string, patch entity.Record) (entity.Record, error) {
	var out entity.Record
	err := s.call(ctx, "Update", name, func(ctx context.Context) (err error) {
		out, err = s.inner.Update(ctx, name, id, patch)
		return err
	})
	return out, err
}

// CompareAndUpdate implements entity.Store.
func (s *Store) CompareAndUpdate(ctx context.Context, name entity.Name, id string, expectedVersion int64, patch entity.Record) (entity.Record, error) {
	var out entity.Record
	err := s.call(ctx, "CompareAndUpdate", name, func(ctx context.Context) (err error) {
		out, err = s.inner.CompareAndUpdate(ctx, name, id, expectedVersion, patch)
		return err
	})
	return out, err
}

func (s *Store) call(ctx context.Context, op string, name entity.Name, fn func(context.Context) error) error {
	start := time.Now()

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return classify(ctx, callCtx, op, name, s.timeout, fn(callCtx))
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		err = shared.WrapError("store", op, shared.ErrServiceUnavailable, string(name), err)
	}
	if shared.IsStoreFailure(err) {
		s.log.Error("store call failed",
			logger.Operation(op),
			logger.Entity(string(name)),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
	}
	return err
}

// classify maps raw backend errors to domain kinds. Domain errors pass
// through; a cancelled caller context is returned unchanged.
func classify(parent, callCtx context.Context, op string, name entity.Name, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return shared.WrapError("store", op, shared.ErrStoreFailure,
			fmt.Sprintf("%s: no response within %s", name, timeout), shared.ErrTimeout)
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("store", op, shared.ErrStoreFailure, string(name), err)
}
