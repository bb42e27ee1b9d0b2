package promotion

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

// XPView is the per-skill XP a check was computed from.
type XPView struct {
	Motr float64 `json:"motr"`
	Art  float64 `json:"art"`
	Flex float64 `json:"flex"`
}

// Get returns the value for a skill.
func (v XPView) Get(s shared.Skill) float64 {
	switch s {
	case shared.SkillMotricidad:
		return v.Motr
	case shared.SkillArticulacion:
		return v.Art
	case shared.SkillFlexibilidad:
		return v.Flex
	default:
		return 0
	}
}

// ViewFromTotals builds the view from ledger rows. Missing rows count as zero.
func ViewFromTotals(totals map[shared.Skill]xp.Totals) XPView {
	return XPView{
		Motr: totals[shared.SkillMotricidad].TotalXP,
		Art:  totals[shared.SkillArticulacion].TotalXP,
		Flex: totals[shared.SkillFlexibilidad].TotalXP,
	}
}

// Check is the result of a promotion evaluation.
type Check struct {
	Allowed bool     `json:"allowed"`
	Missing []string `json:"missing"`
	XP      XPView   `json:"xp"`
}

// Input is everything Evaluate needs.
type Input struct {
	Config   LevelConfig
	XP       XPView
	Criteria []Criterion
	// Statuses by criterion ID. Absent means FAILED.
	Statuses map[string]CriterionStatus
}

// missingOrder is the order XP gaps are reported in.
var missingOrder = []shared.Skill{
	shared.SkillFlexibilidad,
	shared.SkillMotricidad,
	shared.SkillArticulacion,
}

// Evaluate decides promotion eligibility. It is pure.
func Evaluate(in Input) Check {
	check := Check{XP: in.XP, Missing: []string{}}

	for _, s := range missingOrder {
		have, need := in.XP.Get(s), in.Config.Threshold(s)
		if have < need {
			check.Missing = append(check.Missing, fmt.Sprintf("%s XP: %s/%s", s.Label(), formatXP(have), formatXP(need)))
		}
	}

	for _, c := range in.Criteria {
		if !c.Required {
			continue
		}
		if in.Statuses[c.ID] != StatusPassed {
			check.Missing = append(check.Missing, "Criterio: "+c.Description)
		}
	}

	check.Allowed = len(check.Missing) == 0
	return check
}

func formatXP(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// StatusMap flattens stored rows for Evaluate.
func StatusMap(rows map[string]CriteriaStatus) map[string]CriterionStatus {
	out := make(map[string]CriterionStatus, len(rows))
	for id, r := range rows {
		out[id] = r.Status
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PENDING PROFESSOR INPUT
// ══════════════════════════════════════════════════════════════════════════════

// Adjustment is a manual XP value the professor edited but has not committed.
// Previous is the value the professor last committed for the skill and
// Pending is the new one; the ledger receives the difference.
type Adjustment struct {
	Skill    shared.Skill `json:"skill"`
	Previous float64      `json:"previous"`
	Pending  float64      `json:"pending"`
}

// Delta is the PROF delta that committing the adjustment appends.
func (a Adjustment) Delta() float64 {
	return a.Pending - a.Previous
}

// Toggle is a criterion state the professor set locally.
type Toggle struct {
	CriterionID string `json:"criterion_id"`
	Passed      bool   `json:"passed"`
}

// ValidateAdjustments rejects unknown skills, repeated skills and non-finite
// values. A review holds one pending value per skill.
func ValidateAdjustments(adjs []Adjustment) error {
	seen := make(map[shared.Skill]bool, len(adjs))
	for _, a := range adjs {
		if !a.Skill.IsValid() {
			return shared.ErrUnknownSkill
		}
		if seen[a.Skill] {
			return shared.ErrDuplicateAdjustment
		}
		seen[a.Skill] = true
		d := a.Delta()
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return shared.ErrInvalidXPAmount
		}
	}
	return nil
}

// ProjectTotals applies pending adjustments to copies of the ledger rows with
// the same step function the ledger uses when they are committed.
func ProjectTotals(studentID string, totals map[shared.Skill]xp.Totals, adjs []Adjustment, at time.Time) map[shared.Skill]xp.Totals {
	out := make(map[shared.Skill]xp.Totals, len(totals))
	for _, s := range shared.AllSkills() {
		t, ok := totals[s]
		if !ok {
			t = xp.ZeroTotals(studentID, s)
		}
		out[s] = t
	}
	for _, a := range adjs {
		if a.Delta() == 0 {
			continue
		}
		out[a.Skill] = xp.Apply(out[a.Skill], xp.Entry{
			StudentID:  studentID,
			Skill:      a.Skill,
			Source:     shared.SourceProf,
			Amount:     a.Delta(),
			OccurredAt: at,
			RecordedAt: at,
		})
	}
	return out
}

// OverlayToggles returns statuses with the local toggles applied. Every toggle
// must name a PROF criterion of the level.
func OverlayToggles(levelCriteria []Criterion, statuses map[string]CriterionStatus, toggles []Toggle) (map[string]CriterionStatus, error) {
	byID := make(map[string]Criterion, len(levelCriteria))
	for _, c := range levelCriteria {
		byID[c.ID] = c
	}

	out := make(map[string]CriterionStatus, len(statuses)+len(toggles))
	for id, st := range statuses {
		out[id] = st
	}
	for _, tg := range toggles {
		c, ok := byID[tg.CriterionID]
		if !ok {
			return nil, shared.ErrCriterionNotFound
		}
		if !c.Toggleable() {
			return nil, shared.ErrCriterionNotToggleable
		}
		out[tg.CriterionID] = StatusFor(tg.Passed)
	}
	return out, nil
}
