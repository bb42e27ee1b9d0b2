package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

func TestStore_CreateGetAndCanonicalKeys(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := s.Create(ctx, entity.RegistroBloque, entity.Record{
		"alumnoId":     "s1",
		"ppmObjetivo":  100,
		"ppm_objetivo": 90,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID())
	assert.Equal(t, int64(1), rec.Version())

	got, err := s.Get(ctx, entity.RegistroBloque, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "s1", got.String("alumno_id"))
	assert.Equal(t, 90.0, got.Float("ppm_objetivo"))
	assert.False(t, got.Has("alumnoId"))
}

func TestStore_GetMissing(t *testing.T) {
	_, err := New().Get(context.Background(), entity.Student, "nope")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStore_CreateDuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Create(ctx, entity.Student, entity.Record{"id": "s1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, entity.Student, entity.Record{"id": "s1"})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestStore_FilterLooseEquality(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.Create(ctx, entity.LevelConfig, entity.Record{"level": 1})
	_, _ = s.Create(ctx, entity.LevelConfig, entity.Record{"level": 2.0})
	_, _ = s.Create(ctx, entity.LevelConfig, entity.Record{"level": "2"})

	got, err := s.Filter(ctx, entity.LevelConfig, entity.Where{"level": 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	all, err := s.List(ctx, entity.LevelConfig)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.Filter(ctx, entity.FeedbackSemanal, entity.Where{"alumnoId": "x"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_UpdateAndCompareAndUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	rec, err := s.Create(ctx, entity.StudentXPTotal, entity.Record{"total_xp": 10})
	require.NoError(t, err)

	updated, err := s.CompareAndUpdate(ctx, entity.StudentXPTotal, rec.ID(), 1, entity.Record{"totalXp": 20, "version": 99})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version())
	assert.Equal(t, 20.0, updated.Float("total_xp"))

	_, err = s.CompareAndUpdate(ctx, entity.StudentXPTotal, rec.ID(), 1, entity.Record{"total_xp": 30})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)

	blind, err := s.Update(ctx, entity.StudentXPTotal, rec.ID(), entity.Record{"total_xp": 40})
	require.NoError(t, err)
	assert.Equal(t, int64(3), blind.Version())

	_, err = s.Update(ctx, entity.StudentXPTotal, "missing", entity.Record{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	rec, _ := s.Create(ctx, entity.Student, entity.Record{"level": 1})
	rec["level"] = 7

	got, _ := s.Get(ctx, entity.Student, rec.ID())
	assert.Equal(t, 1, got.Int("level"))
}

func TestStore_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().List(ctx, entity.Student)
	assert.ErrorIs(t, err, context.Canceled)
}
