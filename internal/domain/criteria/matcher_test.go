package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "articulacion limpia", Normalize("  Articulación LIMPIA "))
	assert.Equal(t, "cancion", Normalize("Canción"))
	assert.Equal(t, "nino", Normalize("niño"))
	assert.Equal(t, "", Normalize("   "))
}

func TestSimilar_EmptyNeverSimilar(t *testing.T) {
	assert.False(t, Similar("", "escalas"))
	assert.False(t, Similar("escalas", ""))
	assert.True(t, Similar("escalas mayores", "escalas"))
}

func TestDiff_Classification(t *testing.T) {
	current := []Item{
		{ID: "c1", Skill: "motricidad", Description: "Escalas mayores a 80 bpm"},
		{ID: "c2", Skill: "motricidad", Description: "Arpegios"},
		{ID: "c3", Skill: "motricidad", Description: "Trinos rápidos"},
		{ID: "c4", Skill: "flexibilidad", Description: "Ligados"},
	}
	previous := []Item{
		{ID: "p1", Skill: "motricidad", Description: "escalas mayores"},
		{ID: "p2", Skill: "Motricidad", Description: "ARPEGIOS"},
		{ID: "p3", Skill: "motricidad", Description: "Cromatismos"},
		{ID: "p4", Skill: "flexibilidad", Description: "ligados"},
	}

	diffs := Diff(current, previous)
	require.Len(t, diffs, 2)

	flex := diffs[0]
	assert.Equal(t, "flexibilidad", flex.Skill)
	assert.Len(t, flex.Continued, 1)
	assert.False(t, flex.Changed())

	motr := diffs[1]
	assert.Equal(t, "motricidad", motr.Skill)
	require.Len(t, motr.Continued, 1)
	assert.Equal(t, "c2", motr.Continued[0].Current.ID)
	require.Len(t, motr.Evolved, 1)
	assert.Equal(t, "c1", motr.Evolved[0].Current.ID)
	assert.Equal(t, "p1", motr.Evolved[0].Previous.ID)
	require.Len(t, motr.New, 1)
	assert.Equal(t, "c3", motr.New[0].ID)
	require.Len(t, motr.Removed, 1)
	assert.Equal(t, "p3", motr.Removed[0].ID)
}

func TestDiff_EvolvedPartnerIsNeverRemoved(t *testing.T) {
	current := []Item{
		{ID: "a", Skill: "articulacion", Description: "staccato"},
		{ID: "b", Skill: "articulacion", Description: "legato y staccato"},
		{ID: "c", Skill: "articulacion", Description: ""},
	}
	previous := []Item{
		{ID: "x", Skill: "articulacion", Description: "Staccato en corcheas"},
		{ID: "y", Skill: "articulacion", Description: "legato"},
		{ID: "z", Skill: "articulacion", Description: "acentos"},
	}

	for _, d := range Diff(current, previous) {
		removed := make(map[string]bool)
		for _, r := range d.Removed {
			removed[r.ID] = true
		}
		for _, p := range d.Evolved {
			assert.False(t, removed[p.Previous.ID], "evolved partner %s reported as removed", p.Previous.ID)
		}
	}
}

func TestDiff_EmptyDescriptionsMatchOnlyExactly(t *testing.T) {
	current := []Item{{ID: "c", Skill: "motricidad", Description: " "}}
	previous := []Item{
		{ID: "p", Skill: "motricidad", Description: "escalas"},
		{ID: "q", Skill: "motricidad", Description: ""},
	}

	diffs := Diff(current, previous)
	require.Len(t, diffs, 1)
	require.Len(t, diffs[0].Continued, 1)
	assert.Equal(t, "q", diffs[0].Continued[0].Previous.ID)
	require.Len(t, diffs[0].Removed, 1)
	assert.Equal(t, "p", diffs[0].Removed[0].ID)
}

func TestTags(t *testing.T) {
	assert.Equal(t, []string{"tecnica", "escalas"}, Tags("Escalas #Técnica a 80 bpm #escalas #tecnica"))
	assert.Nil(t, Tags("sin etiquetas"))
}
