package guarded

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/practica-musical/progression-hub/pkg/circuitbreaker"
)

// flakyStore delegates to memory but lets a test intercept Get.
type flakyStore struct {
	*memory.Store
	get func(ctx context.Context) error
}

func (f *flakyStore) Get(ctx context.Context, name entity.Name, id string) (entity.Record, error) {
	if f.get != nil {
		if err := f.get(ctx); err != nil {
			return nil, err
		}
	}
	return f.Store.Get(ctx, name, id)
}

func newGuarded(inner entity.Store, timeout time.Duration, threshold int) *Store {
	return New(inner, Config{CallTimeout: timeout, BreakerThreshold: threshold, BreakerCooldown: time.Hour}, nil)
}

func TestStore_PassesThroughDomainErrors(t *testing.T) {
	s := newGuarded(memory.New(), time.Second, 1)

	_, err := s.Get(context.Background(), entity.Student, "ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.False(t, shared.IsStoreFailure(err))

	// Not-found never trips the breaker.
	_, err = s.Get(context.Background(), entity.Student, "ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, circuitbreaker.StateClosed, s.BreakerState())
}

func TestStore_DeadlineBecomesTimeout(t *testing.T) {
	inner := &flakyStore{Store: memory.New(), get: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	s := newGuarded(inner, 10*time.Millisecond, 5)

	_, err := s.Get(context.Background(), entity.Student, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTimeout)
	assert.ErrorIs(t, err, shared.ErrStoreFailure)
	assert.True(t, shared.IsRetryable(err))
}

func TestStore_CallerCancellationIsNotAFailure(t *testing.T) {
	inner := &flakyStore{Store: memory.New(), get: func(ctx context.Context) error { return ctx.Err() }}
	s := newGuarded(inner, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, entity.Student, "s1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, circuitbreaker.StateClosed, s.BreakerState())
}

func TestStore_BreakerOpensOnBackendFailures(t *testing.T) {
	calls := 0
	inner := &flakyStore{Store: memory.New(), get: func(context.Context) error {
		calls++
		return errors.New("connection reset")
	}}
	s := newGuarded(inner, time.Second, 2)

	for i := 0; i < 2; i++ {
		_, err := s.Get(context.Background(), entity.Student, "s1")
		assert.ErrorIs(t, err, shared.ErrStoreFailure)
	}
	assert.Equal(t, circuitbreaker.StateOpen, s.BreakerState())

	_, err := s.Get(context.Background(), entity.Student, "s1")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestStore_DelegatesWrites(t *testing.T) {
	s := newGuarded(memory.New(), time.Second, 3)
	ctx := context.Background()

	rec, err := s.Create(ctx, entity.Student, entity.Record{"level": 1})
	require.NoError(t, err)

	_, err = s.CompareAndUpdate(ctx, entity.Student, rec.ID(), rec.Version(), entity.Record{"level": 2})
	require.NoError(t, err)

	_, err = s.CompareAndUpdate(ctx, entity.Student, rec.ID(), rec.Version(), entity.Record{"level": 3})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)

	got, err := s.Filter(ctx, entity.Student, entity.Where{"level": 2})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
