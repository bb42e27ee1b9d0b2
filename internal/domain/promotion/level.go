// Package promotion decides whether a student may move to the next level.
//
// Evaluate is the only place the rule lives. The authoritative check and the
// professor's local preview both build an Input and call it.
package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/criteria"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// LevelConfig holds the XP thresholds a student at Level must reach.
type LevelConfig struct {
	ID                 string
	Level              int
	MinXPFlex          float64
	MinXPMotr          float64
	MinXPArt           float64
	EvidenceWindowDays int
}

// Threshold returns the minimum XP for a skill.
func (c LevelConfig) Threshold(s shared.Skill) float64 {
	switch s {
	case shared.SkillFlexibilidad:
		return c.MinXPFlex
	case shared.SkillMotricidad:
		return c.MinXPMotr
	case shared.SkillArticulacion:
		return c.MinXPArt
	default:
		return 0
	}
}

// CriterionSource tells who decides a criterion.
type CriterionSource string

const (
	// SourceProf criteria are toggled by a professor.
	SourceProf CriterionSource = "PROF"
	// SourcePractica criteria are computed from activity elsewhere.
	SourcePractica CriterionSource = "PRACTICA"
)

// ParseCriterionSource maps a stored value. Empty means PROF; anything
// unrecognized is treated as computed and therefore read-only.
func ParseCriterionSource(s string) CriterionSource {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(SourceProf):
		return SourceProf
	default:
		return SourcePractica
	}
}

// Criterion is one key criterion of a level.
type Criterion struct {
	ID               string
	Level            int
	Skill            string
	Description      string
	Required         bool
	Source           CriterionSource
	EvidenceRequired bool
	EvidenceDays     int
}

// Toggleable reports whether a professor may flip the criterion directly.
func (c Criterion) Toggleable() bool {
	return c.Source == SourceProf
}

// Tags returns the #tag markers embedded in the description.
func (c Criterion) Tags() []string {
	return criteria.Tags(c.Description)
}

// MatcherItem adapts the criterion for level diffs.
func (c Criterion) MatcherItem() criteria.Item {
	return criteria.Item{ID: c.ID, Skill: c.Skill, Description: c.Description}
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT STATE
// ══════════════════════════════════════════════════════════════════════════════

// CriterionStatus is the assessed state of a criterion for one student.
type CriterionStatus string

const (
	StatusPassed CriterionStatus = "PASSED"
	StatusFailed CriterionStatus = "FAILED"
)

// ParseCriterionStatus maps a stored value. Anything but PASSED is FAILED.
func ParseCriterionStatus(s string) CriterionStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusPassed)) {
		return StatusPassed
	}
	return StatusFailed
}

// StatusFor converts a toggle value.
func StatusFor(passed bool) CriterionStatus {
	if passed {
		return StatusPassed
	}
	return StatusFailed
}

// CriteriaStatus is one StudentCriteriaStatus row.
type CriteriaStatus struct {
	ID          string
	StudentID   string
	CriterionID string
	Status      CriterionStatus
	AssessedBy  string
	AssessedAt  time.Time
}

// StudentLevel is the level part of a student record.
type StudentLevel struct {
	StudentID string
	Level     int
	Reason    string
	ChangedBy string
	ChangedAt time.Time
	Version   int64
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository reads level configuration.
type LevelRepository interface {
	// Config returns shared.ErrLevelConfigNotFound when the level is not configured.
	Config(ctx context.Context, level int) (LevelConfig, error)
	Criteria(ctx context.Context, level int) ([]Criterion, error)
	// Criterion returns shared.ErrCriterionNotFound when absent.
	Criterion(ctx context.Context, id string) (Criterion, error)
}

// StatusRepository stores per-student criterion assessments.
type StatusRepository interface {
	// ForStudent returns the statuses keyed by criterion ID.
	ForStudent(ctx context.Context, studentID string) (map[string]CriteriaStatus, error)
	Upsert(ctx context.Context, s CriteriaStatus) (CriteriaStatus, error)
}

// StudentRepository stores the level of each student.
type StudentRepository interface {
	// Get returns shared.ErrStudentNotFound when absent.
	Get(ctx context.Context, studentID string) (StudentLevel, error)
	// Save writes only if the stored version still equals s.Version.
	Save(ctx context.Context, s StudentLevel) (StudentLevel, error)
}
