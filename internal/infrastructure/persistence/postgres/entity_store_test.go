package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

func TestBuildFilter_NoPredicates(t *testing.T) {
	query, args, err := buildFilter(entity.Student, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"Student"}, args)
	assert.NotContains(t, query, "@>")
	assert.Contains(t, query, "ORDER BY created_at, id")
}

func TestBuildFilter_RoutesIDAndCanonicalizesKeys(t *testing.T) {
	query, args, err := buildFilter(entity.RegistroBloque, entity.Where{"id": "b1", "alumnoId": "s1"})
	require.NoError(t, err)
	assert.Contains(t, query, "id = $2")
	assert.Contains(t, query, "(data @> $3::jsonb OR data @> $4::jsonb)")
	require.Len(t, args, 4)
	assert.Equal(t, "b1", args[1])

	var contains, legacy map[string]any
	require.NoError(t, json.Unmarshal([]byte(args[2].(string)), &contains))
	assert.Equal(t, map[string]any{"alumno_id": "s1"}, contains)
	require.NoError(t, json.Unmarshal([]byte(args[3].(string)), &legacy))
	assert.Equal(t, map[string]any{"alumnoId": "s1"}, legacy)
}

func TestBuildFilter_SingleWordKeysNeedNoAlternative(t *testing.T) {
	query, args, err := buildFilter(entity.StudentBackpack, entity.Where{"skill": "motricidad"})
	require.NoError(t, err)
	assert.Contains(t, query, "(data @> $2::jsonb)")
	assert.NotContains(t, query, " OR ")
	assert.Len(t, args, 2)
}

func TestEncodeData_StripsReservedKeys(t *testing.T) {
	data, err := encodeData(entity.Record{
		"id":         "x",
		"version":    int64(4),
		"created_at": time.Now(),
		"skill":      "motricidad",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"skill":"motricidad"}`, data)
}

func TestDecodeRecord_RoundTripsTimesAndColumns(t *testing.T) {
	at := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	data, err := encodeData(entity.Record{"last_practiced_at": at, "mastered_weeks": []string{"2025-03-10"}})
	require.NoError(t, err)

	rec, err := decodeRecord("bp1", []byte(data), 3, at, at)
	require.NoError(t, err)
	assert.Equal(t, "bp1", rec.ID())
	assert.Equal(t, int64(3), rec.Version())
	assert.True(t, at.Equal(rec.Time("last_practiced_at")))
	assert.Equal(t, []string{"2025-03-10"}, rec.Strings("mastered_weeks"))
}

func TestDecodeRecord_CanonicalizesLegacyKeys(t *testing.T) {
	at := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	raw := `{"alumnoId":"s1","lastPracticedAt":"2025-03-10T15:00:00Z","status":"dominado","status_since":"2025-03-01T00:00:00Z","statusSince":"1999-01-01T00:00:00Z"}`

	rec, err := decodeRecord("bp1", []byte(raw), 1, at, at)
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.String("alumno_id"))
	assert.True(t, at.Equal(rec.Time("last_practiced_at")))
	assert.Equal(t, "2025-03-01T00:00:00Z", rec.String("status_since"))
	for _, k := range []string{"alumnoId", "lastPracticedAt", "statusSince"} {
		assert.NotContains(t, rec, k)
	}
}

func TestDecodeRecord_RejectsGarbage(t *testing.T) {
	_, err := decodeRecord("x", []byte("{"), 1, time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestMigrations_AreOrdered(t *testing.T) {
	migs := Migrations()
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

func TestStoreFailure_Classification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, false},
		{"plain", errors.New("connection reset"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := storeFailure("Update", entity.Student, tc.err)
			assert.Equal(t, tc.conflict, shared.IsConcurrentModification(err))
			assert.Equal(t, !tc.conflict, shared.IsStoreFailure(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
