package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestRetrier_RetriesUntilSuccess(t *testing.T) {
	r := New(WithMaxAttempts(5), WithInitialDelay(0), WithRetryIf(isConflict))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsOnNonRetryable(t *testing.T) {
	r := New(WithMaxAttempts(5), WithInitialDelay(0), WithRetryIf(isConflict))
	other := errors.New("bad input")

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return other
	})

	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ReturnsLastErrorWhenExhausted(t *testing.T) {
	var retries []int
	r := ConflictRetrier(isConflict, 3).With(
		WithInitialDelay(time.Millisecond),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }),
	)

	err := r.Do(context.Background(), func(context.Context) error { return errConflict })

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetrier_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	r := New(WithInitialDelay(0), WithRetryIf(isConflict))
	n := 0
	got, err := DoWithData(context.Background(), r, func(context.Context) (int, error) {
		n++
		if n == 1 {
			return 0, errConflict
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}
