// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Skill Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Skill is one of the tracked technical skills. The set is closed.
type Skill string

const (
	SkillMotricidad   Skill = "motricidad"
	SkillArticulacion Skill = "articulacion"
	SkillFlexibilidad Skill = "flexibilidad"
)

// AllSkills returns the tracked skills in ledger order.
func AllSkills() []Skill {
	return []Skill{SkillMotricidad, SkillArticulacion, SkillFlexibilidad}
}

// IsValid checks if the skill belongs to the closed enumeration.
func (s Skill) IsValid() bool {
	switch s {
	case SkillMotricidad, SkillArticulacion, SkillFlexibilidad:
		return true
	}
	return false
}

// String returns the string representation.
func (s Skill) String() string {
	return string(s)
}

// Label returns the capitalized name used in user-facing messages.
func (s Skill) Label() string {
	switch s {
	case SkillMotricidad:
		return "Motricidad"
	case SkillArticulacion:
		return "Articulacion"
	case SkillFlexibilidad:
		return "Flexibilidad"
	default:
		return string(s)
	}
}

// ParseSkill parses a skill name, accepting any case and surrounding whitespace.
func ParseSkill(s string) (Skill, error) {
	skill := Skill(strings.ToLower(strings.TrimSpace(s)))
	if !skill.IsValid() {
		return "", ErrUnknownSkill
	}
	return skill, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Source Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Source identifies which ledger bucket an XP delta lands in.
type Source string

const (
	// SourceBlock credits the practice bucket (completed exercises).
	SourceBlock Source = "BLOCK"
	// SourceProf credits the manual bucket (professor adjustments).
	SourceProf Source = "PROF"
)

// IsValid checks if the source is known.
func (s Source) IsValid() bool {
	return s == SourceBlock || s == SourceProf
}

// String returns the string representation.
func (s Source) String() string {
	return string(s)
}

// ParseSource parses an XP source name.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToUpper(strings.TrimSpace(s)))
	if !src.IsValid() {
		return "", ErrUnknownSource
	}
	return src, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Skill Vector
// ═══════════════════════════════════════════════════════════════════════════

// SkillXP holds one value per tracked skill.
type SkillXP map[Skill]float64

// NewSkillXP returns a vector with every skill present and zeroed.
func NewSkillXP() SkillXP {
	v := make(SkillXP, 3)
	for _, s := range AllSkills() {
		v[s] = 0
	}
	return v
}

// Add accumulates another vector into this one.
func (v SkillXP) Add(other SkillXP) {
	for s, x := range other {
		v[s] += x
	}
}

// Capped returns a copy with every value limited to max.
func (v SkillXP) Capped(max float64) SkillXP {
	out := make(SkillXP, len(v))
	for s, x := range v {
		if x > max {
			x = max
		}
		out[s] = x
	}
	return out
}
