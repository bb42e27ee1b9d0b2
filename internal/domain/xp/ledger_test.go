package xp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func entry(id string, skill shared.Skill, src shared.Source, amount float64, at time.Time) Entry {
	return Entry{
		ID:         id,
		StudentID:  "s1",
		Skill:      skill,
		Source:     src,
		Amount:     amount,
		OccurredAt: at,
		RecordedAt: at,
	}
}

func TestApply_BlockThenProf(t *testing.T) {
	tot := ZeroTotals("s1", shared.SkillMotricidad)

	tot = Apply(tot, entry("e1", shared.SkillMotricidad, shared.SourceBlock, 80, t0))
	tot = Apply(tot, entry("e2", shared.SkillMotricidad, shared.SourceProf, 20, t0.Add(time.Hour)))

	assert.Equal(t, 80.0, tot.PracticeXP)
	assert.Equal(t, 20.0, tot.EvaluationXP)
	assert.Equal(t, 100.0, tot.TotalXP)
	assert.Equal(t, 20.0, tot.LastManualXPAmount)
	assert.True(t, tot.LastManualXPAt.Equal(t0.Add(time.Hour)))
}

func TestApply_ClampsEachBucket(t *testing.T) {
	tot := ZeroTotals("s1", shared.SkillFlexibilidad)
	tot = Apply(tot, entry("e1", shared.SkillFlexibilidad, shared.SourceBlock, 30, t0))
	tot = Apply(tot, entry("e2", shared.SkillFlexibilidad, shared.SourceProf, 10, t0))
	tot = Apply(tot, entry("e3", shared.SkillFlexibilidad, shared.SourceProf, -50, t0))

	assert.Equal(t, 30.0, tot.PracticeXP)
	assert.Equal(t, 0.0, tot.EvaluationXP)
	assert.Equal(t, 30.0, tot.TotalXP)
	// raw delta, not the clamped effect
	assert.Equal(t, -50.0, tot.LastManualXPAmount)
}

func TestApply_InvariantHoldsForArbitraryDeltas(t *testing.T) {
	deltas := []float64{15, -40, 200, -1000, 3.5, 0, -0.25, 99}
	sources := []shared.Source{shared.SourceBlock, shared.SourceProf}

	tot := ZeroTotals("s1", shared.SkillArticulacion)
	for i, d := range deltas {
		tot = Apply(tot, entry("e", shared.SkillArticulacion, sources[i%2], d, t0))
		assert.GreaterOrEqual(t, tot.PracticeXP, 0.0)
		assert.GreaterOrEqual(t, tot.EvaluationXP, 0.0)
		assert.InDelta(t, tot.PracticeXP+tot.EvaluationXP, tot.TotalXP, 1e-9)
	}
}

func TestFold_UsesAppendOrder(t *testing.T) {
	// The negative delta arrives first; clamping makes order observable.
	entries := []Entry{
		entry("b", shared.SkillMotricidad, shared.SourceBlock, 50, t0.Add(time.Minute)),
		entry("a", shared.SkillMotricidad, shared.SourceBlock, -100, t0),
	}
	base := Totals{ID: "row", StudentID: "s1", Skill: shared.SkillMotricidad, Version: 4, PracticeXP: 999}

	got := Fold(base, entries)

	assert.Equal(t, 50.0, got.PracticeXP)
	assert.Equal(t, "row", got.ID)
	assert.Equal(t, int64(4), got.Version)
	assert.True(t, got.LastUpdatedAt.Equal(t0.Add(time.Minute)))
}

func TestFold_IgnoresOtherSkills(t *testing.T) {
	entries := []Entry{
		entry("a", shared.SkillMotricidad, shared.SourceBlock, 10, t0),
		entry("b", shared.SkillFlexibilidad, shared.SourceBlock, 70, t0),
	}
	got := Fold(ZeroTotals("s1", shared.SkillMotricidad), entries)
	assert.Equal(t, 10.0, got.TotalXP)
}

func TestFold_StartsFromOpeningBalance(t *testing.T) {
	opened := t0.Add(-48 * time.Hour)
	base := Totals{
		ID: "legacy", StudentID: "s1", Skill: shared.SkillArticulacion,
		Opening: Balance{PracticeXP: 40, EvaluationXP: 15, LastManualXPAt: opened, LastManualXPAmount: 15},
	}

	got := Fold(base, nil)
	assert.Equal(t, 55.0, got.TotalXP)
	assert.True(t, got.LastManualXPAt.Equal(opened))

	got = Fold(base, []Entry{entry("a", shared.SkillArticulacion, shared.SourceProf, -20, t0)})
	assert.Equal(t, 0.0, got.EvaluationXP)
	assert.Equal(t, 40.0, got.TotalXP)
	assert.Equal(t, -20.0, got.LastManualXPAmount)
}

func TestSameBuckets(t *testing.T) {
	a := Totals{PracticeXP: 1, EvaluationXP: 2}
	b := a
	b.Version = 9
	assert.True(t, SameBuckets(a, b))
	b.EvaluationXP = 2.5
	assert.False(t, SameBuckets(a, b))
}

func TestEntry_Validate(t *testing.T) {
	ok := entry("e", shared.SkillMotricidad, shared.SourceBlock, 1, t0)
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Skill = "ritmo"
	assert.ErrorIs(t, bad.Validate(), shared.ErrUnknownSkill)

	bad = ok
	bad.Source = "AUTO"
	assert.ErrorIs(t, bad.Validate(), shared.ErrUnknownSource)

	bad = ok
	bad.StudentID = ""
	assert.ErrorIs(t, bad.Validate(), shared.ErrEmptyStudentID)
}
