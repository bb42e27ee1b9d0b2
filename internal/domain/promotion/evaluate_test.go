package promotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

func TestEvaluate_MissingXPAndCriterion(t *testing.T) {
	in := Input{
		Config: LevelConfig{Level: 1, MinXPFlex: 100},
		XP:     XPView{Flex: 95},
		Criteria: []Criterion{
			{ID: "c1", Description: "Escala cromática a 60 bpm", Required: true, Source: SourceProf},
		},
		Statuses: map[string]CriterionStatus{"c1": StatusFailed},
	}

	check := Evaluate(in)

	assert.False(t, check.Allowed)
	assert.Equal(t, []string{"Flexibilidad XP: 95/100", "Criterio: Escala cromática a 60 bpm"}, check.Missing)
	assert.Equal(t, 95.0, check.XP.Flex)
}

func TestEvaluate_OrderAndAbsentStatus(t *testing.T) {
	in := Input{
		Config: LevelConfig{MinXPFlex: 10, MinXPMotr: 20, MinXPArt: 30},
		XP:     XPView{Motr: 80.0 / 3},
		Criteria: []Criterion{
			{ID: "opt", Description: "opcional", Required: false},
			{ID: "req", Description: "requerido", Required: true},
		},
	}

	check := Evaluate(in)

	assert.Equal(t, []string{
		"Flexibilidad XP: 0/10",
		"Articulacion XP: 0/30",
		"Criterio: requerido",
	}, check.Missing)
}

func TestEvaluate_Allowed(t *testing.T) {
	in := Input{
		Config:   LevelConfig{MinXPFlex: 10, MinXPMotr: 10, MinXPArt: 10},
		XP:       XPView{Motr: 10, Art: 12.5, Flex: 300},
		Criteria: []Criterion{{ID: "c", Required: true}},
		Statuses: map[string]CriterionStatus{"c": StatusPassed},
	}

	check := Evaluate(in)

	assert.True(t, check.Allowed)
	assert.Empty(t, check.Missing)
	assert.NotNil(t, check.Missing)
}

func TestFormatXP(t *testing.T) {
	assert.Equal(t, "26.67", formatXP(80.0/3))
	assert.Equal(t, "95", formatXP(95))
}

func TestProjectTotals_MatchesLedgerApply(t *testing.T) {
	at := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	stored := map[shared.Skill]xp.Totals{
		shared.SkillMotricidad: {StudentID: "s1", Skill: shared.SkillMotricidad, PracticeXP: 40, EvaluationXP: 20, TotalXP: 60},
	}
	adjs := []Adjustment{
		{Skill: shared.SkillMotricidad, Previous: 20, Pending: 35},
		{Skill: shared.SkillArticulacion, Previous: 10, Pending: -5},
	}

	got := ProjectTotals("s1", stored, adjs, at)

	assert.Equal(t, 75.0, got[shared.SkillMotricidad].TotalXP)
	assert.Equal(t, 35.0, got[shared.SkillMotricidad].EvaluationXP)
	// clamped at zero, exactly as the ledger would
	assert.Equal(t, 0.0, got[shared.SkillArticulacion].TotalXP)
	assert.Equal(t, 0.0, got[shared.SkillFlexibilidad].TotalXP)
	// input untouched
	assert.Equal(t, 60.0, stored[shared.SkillMotricidad].TotalXP)
}

func TestOverlayToggles(t *testing.T) {
	level := []Criterion{
		{ID: "prof", Source: SourceProf},
		{ID: "prac", Source: SourcePractica},
	}
	stored := map[string]CriterionStatus{"prof": StatusFailed}

	got, err := OverlayToggles(level, stored, []Toggle{{CriterionID: "prof", Passed: true}})
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, got["prof"])
	assert.Equal(t, StatusFailed, stored["prof"])

	_, err = OverlayToggles(level, stored, []Toggle{{CriterionID: "prac", Passed: true}})
	assert.ErrorIs(t, err, shared.ErrCriterionNotToggleable)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = OverlayToggles(level, stored, []Toggle{{CriterionID: "other", Passed: true}})
	assert.ErrorIs(t, err, shared.ErrCriterionNotFound)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, SourceProf, ParseCriterionSource(""))
	assert.Equal(t, SourceProf, ParseCriterionSource("prof"))
	assert.Equal(t, SourcePractica, ParseCriterionSource("PRACTICA"))
	assert.Equal(t, StatusPassed, ParseCriterionStatus("passed"))
	assert.Equal(t, StatusFailed, ParseCriterionStatus(""))
}

func TestValidateAdjustments(t *testing.T) {
	assert.NoError(t, ValidateAdjustments([]Adjustment{{Skill: shared.SkillFlexibilidad, Pending: 5}}))
	assert.ErrorIs(t, ValidateAdjustments([]Adjustment{{Skill: "ritmo"}}), shared.ErrUnknownSkill)
	assert.ErrorIs(t, ValidateAdjustments([]Adjustment{
		{Skill: shared.SkillMotricidad, Pending: 40},
		{Skill: shared.SkillMotricidad, Previous: 40, Pending: 80},
	}), shared.ErrDuplicateAdjustment)
}
