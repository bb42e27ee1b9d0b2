package xp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

func TestAwardForRatio(t *testing.T) {
	tests := []struct {
		ratio float64
		want  float64
	}{
		{1.2, 100},
		{1.0, 100},
		{0.95, 80},
		{0.9, 80},
		{0.8, 60},
		{0.75, 60},
		{0.5, 40},
		{0.49, 20},
		{0.01, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AwardForRatio(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestPracticeBlock_AwardNeedsBothTempos(t *testing.T) {
	assert.Equal(t, 0.0, PracticeBlock{TargetTempo: 100}.Award())
	assert.Equal(t, 0.0, PracticeBlock{AchievedTempo: 100}.Award())
	assert.Equal(t, 40.0, PracticeBlock{TargetTempo: 100, AchievedTempo: 60}.Award())
}

func TestWindowedPracticeXP_EvenThirds(t *testing.T) {
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	since, err := Since(now, 30)
	require.NoError(t, err)

	blocks := []PracticeBlock{
		{ID: "b1", Status: "completado", CompletedAt: now.Add(-24 * time.Hour), TargetTempo: 100, AchievedTempo: 95, Type: "tecnica"},
		// outside the window
		{ID: "b2", Status: "completado", CompletedAt: now.Add(-40 * 24 * time.Hour), TargetTempo: 100, AchievedTempo: 100},
		// not completed
		{ID: "b3", Status: "pendiente", CompletedAt: now, TargetTempo: 100, AchievedTempo: 100},
	}

	got := WindowedPracticeXP(blocks, since)

	for _, s := range shared.AllSkills() {
		assert.InDelta(t, 80.0/3, got[s], 1e-9, s.String())
	}
}

func TestWindowedPracticeXP_NotCapped(t *testing.T) {
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	var blocks []PracticeBlock
	for i := 0; i < 9; i++ {
		blocks = append(blocks, PracticeBlock{
			Status: "COMPLETADO", CompletedAt: now.Add(-time.Hour), TargetTempo: 90, AchievedTempo: 90,
		})
	}
	got := WindowedPracticeXP(blocks, now.Add(-24*time.Hour))
	assert.InDelta(t, 300.0, got[shared.SkillMotricidad], 1e-9)
}

func TestWeightedSplit(t *testing.T) {
	tech := WeightedSplit(100, CategoryTechnique)
	assert.InDelta(t, 60.0, tech[shared.SkillMotricidad], 1e-9)
	assert.InDelta(t, 40.0, tech[shared.SkillArticulacion], 1e-9)
	assert.Equal(t, 0.0, tech[shared.SkillFlexibilidad])

	flex := WeightedSplit(60, CategoryFlexibility)
	assert.Equal(t, 60.0, flex[shared.SkillFlexibilidad])
	assert.Equal(t, 0.0, flex[shared.SkillMotricidad])

	other := WeightedSplit(90, CategoryOther)
	assert.InDelta(t, 30.0, other[shared.SkillArticulacion], 1e-9)
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryTechnique, ParseCategory("Técnica"))
	assert.Equal(t, CategoryTechnique, ParseCategory("tecnica_escalas"))
	assert.Equal(t, CategoryFlexibility, ParseCategory(" Flexibilidad "))
	assert.Equal(t, CategoryOther, ParseCategory("repertorio"))
	assert.Equal(t, CategoryOther, ParseCategory(""))
}

func TestLifetimePracticeXP(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	blocks := []PracticeBlock{
		{Status: "completado", CompletedAt: at, TargetTempo: 100, AchievedTempo: 100, Type: "tecnica"},
		{Status: "completado", CompletedAt: at, TargetTempo: 100, AchievedTempo: 50, Type: "flexibilidad"},
		{Status: "en_curso", CompletedAt: at, TargetTempo: 100, AchievedTempo: 100, Type: "tecnica"},
	}

	got, n := LifetimePracticeXP(blocks)

	assert.Equal(t, 2, n)
	assert.InDelta(t, 60.0, got[shared.SkillMotricidad], 1e-9)
	assert.InDelta(t, 40.0, got[shared.SkillArticulacion], 1e-9)
	assert.InDelta(t, 40.0, got[shared.SkillFlexibilidad], 1e-9)
}
