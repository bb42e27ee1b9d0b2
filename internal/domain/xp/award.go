package xp

import (
	"strings"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRACTICE BLOCKS (RegistroBloque)
// ══════════════════════════════════════════════════════════════════════════════

// BlockCategory drives the skill weighting of the full resync path.
type BlockCategory string

const (
	CategoryTechnique   BlockCategory = "tecnica"
	CategoryFlexibility BlockCategory = "flexibilidad"
	CategoryOther       BlockCategory = "otro"
)

// ParseCategory maps the free-form block type to a weighting category.
func ParseCategory(tipo string) BlockCategory {
	t := strings.ToLower(strings.TrimSpace(tipo))
	switch {
	case strings.HasPrefix(t, "tecnic"), strings.HasPrefix(t, "técnic"), strings.HasPrefix(t, "technique"):
		return CategoryTechnique
	case strings.HasPrefix(t, "flexib"):
		return CategoryFlexibility
	default:
		return CategoryOther
	}
}

// Completed block states as written by the practice player.
var completedStates = map[string]bool{
	"completado": true,
	"completada": true,
	"completed":  true,
}

// PracticeBlock is one practice exercise run by a student.
type PracticeBlock struct {
	ID          string
	StudentID   string
	Status      string
	CompletedAt time.Time

	// TargetTempo and AchievedTempo are in BPM. Zero means absent.
	TargetTempo   float64
	AchievedTempo float64

	Type string
}

// IsCompleted reports whether the block counts for XP.
func (b PracticeBlock) IsCompleted() bool {
	return completedStates[strings.ToLower(strings.TrimSpace(b.Status))] && !b.CompletedAt.IsZero()
}

// Category returns the weighting category of the block.
func (b PracticeBlock) Category() BlockCategory {
	return ParseCategory(b.Type)
}

// TempoRatio returns achieved/target and whether both tempos were recorded.
func (b PracticeBlock) TempoRatio() (float64, bool) {
	if b.TargetTempo <= 0 || b.AchievedTempo <= 0 {
		return 0, false
	}
	return b.AchievedTempo / b.TargetTempo, true
}

// Award returns the XP credited for the block. Blocks without both tempos earn nothing.
func (b PracticeBlock) Award() float64 {
	ratio, ok := b.TempoRatio()
	if !ok {
		return 0
	}
	return AwardForRatio(ratio)
}

// AwardForRatio maps a performance ratio to XP. Every attempted block earns
// at least the minimum credit.
func AwardForRatio(ratio float64) float64 {
	switch {
	case ratio >= 1.0:
		return 100
	case ratio >= 0.9:
		return 80
	case ratio >= 0.75:
		return 60
	case ratio >= 0.5:
		return 40
	default:
		return 20
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTION
// ══════════════════════════════════════════════════════════════════════════════

// EvenSplit divides an award equally among the three skills.
func EvenSplit(award float64) shared.SkillXP {
	v := shared.NewSkillXP()
	for _, s := range shared.AllSkills() {
		v[s] = award / 3
	}
	return v
}

// WeightedSplit divides an award by block category: technique blocks go 60/40
// to motricidad/articulacion, flexibility blocks go fully to flexibilidad and
// everything else is split in thirds.
func WeightedSplit(award float64, category BlockCategory) shared.SkillXP {
	switch category {
	case CategoryTechnique:
		v := shared.NewSkillXP()
		v[shared.SkillMotricidad] = award * 0.6
		v[shared.SkillArticulacion] = award * 0.4
		return v
	case CategoryFlexibility:
		v := shared.NewSkillXP()
		v[shared.SkillFlexibilidad] = award
		return v
	default:
		return EvenSplit(award)
	}
}

// WindowedPracticeXP sums the even-split award of every completed block
// finished at or after since. The result is not capped.
func WindowedPracticeXP(blocks []PracticeBlock, since time.Time) shared.SkillXP {
	total := shared.NewSkillXP()
	for _, b := range blocks {
		if !b.IsCompleted() || b.CompletedAt.Before(since) {
			continue
		}
		total.Add(EvenSplit(b.Award()))
	}
	return total
}

// LifetimePracticeXP replays every completed block through the weighted
// distribution. It returns the per-skill sum and the number of blocks counted.
func LifetimePracticeXP(blocks []PracticeBlock) (shared.SkillXP, int) {
	total := shared.NewSkillXP()
	n := 0
	for _, b := range blocks {
		if !b.IsCompleted() {
			continue
		}
		total.Add(WeightedSplit(b.Award(), b.Category()))
		n++
	}
	return total, n
}
