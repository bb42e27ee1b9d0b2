// Package xp contains the skill XP ledger: the append-only entry log, the
// per-skill totals derived from it, and the award rules that turn practice and
// professor activity into XP.
//
// Totals are a projection. The log is the source of truth and Fold rebuilds any
// totals row from it; Apply is the single step function used both by the fold
// and by the optimistic promotion preview.
package xp

import (
	"math"
	"sort"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one immutable XP delta in the ledger log.
type Entry struct {
	ID        string
	StudentID string
	Skill     shared.Skill
	Source    shared.Source

	// Amount is the raw delta. It may be negative.
	Amount float64

	// OccurredAt is the logical time of the event, used by windowed views.
	OccurredAt time.Time

	// RecordedAt is when the entry was appended. The fold applies entries in
	// this order so clamping matches the order the deltas were received in.
	RecordedAt time.Time

	// EventKey optionally identifies the logical event for retry-safe writes.
	EventKey string
}

// Validate checks the entry before it is appended.
func (e Entry) Validate() error {
	if e.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	if !e.Skill.IsValid() {
		return shared.ErrUnknownSkill
	}
	if !e.Source.IsValid() {
		return shared.ErrUnknownSource
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) {
		return shared.ErrInvalidXPAmount
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TOTALS (StudentXPTotal projection)
// ══════════════════════════════════════════════════════════════════════════════

// Totals is the ledger row for one (student, skill).
type Totals struct {
	ID        string
	StudentID string
	Skill     shared.Skill

	// PracticeXP accumulates BLOCK deltas, never below zero.
	PracticeXP float64

	// EvaluationXP accumulates PROF deltas, never below zero. Despite the name
	// it holds manual professor adjustments, not automated evaluation scores.
	EvaluationXP float64

	// TotalXP always equals PracticeXP + EvaluationXP.
	TotalXP float64

	LastUpdatedAt time.Time

	// LastManualXPAt and LastManualXPAmount describe the most recent PROF delta.
	// The amount is the raw delta, not the clamped effect.
	LastManualXPAt     time.Time
	LastManualXPAmount float64

	// Opening holds the values the row had before the log existed. Rows the
	// engine created itself open at zero.
	Opening Balance

	// Version is the optimistic-concurrency token of the stored row.
	Version int64
}

// Balance is the starting point of a fold.
type Balance struct {
	PracticeXP         float64
	EvaluationXP       float64
	LastManualXPAt     time.Time
	LastManualXPAmount float64
}

// ZeroTotals returns the implicit row of a student that never earned XP.
func ZeroTotals(studentID string, skill shared.Skill) Totals {
	return Totals{StudentID: studentID, Skill: skill}
}

// Exists reports whether the row has been persisted.
func (t Totals) Exists() bool {
	return t.ID != ""
}

// Apply returns the totals after one entry. Each bucket is clamped at zero.
func Apply(t Totals, e Entry) Totals {
	switch e.Source {
	case shared.SourceBlock:
		t.PracticeXP = clampNonNegative(t.PracticeXP + e.Amount)
	case shared.SourceProf:
		t.EvaluationXP = clampNonNegative(t.EvaluationXP + e.Amount)
		t.LastManualXPAt = e.OccurredAt
		t.LastManualXPAmount = e.Amount
	}
	t.TotalXP = t.PracticeXP + t.EvaluationXP
	if e.RecordedAt.After(t.LastUpdatedAt) {
		t.LastUpdatedAt = e.RecordedAt
	}
	return t
}

// Fold rebuilds the totals of one (student, skill) from its log entries.
// Entries for other skills are ignored. Identity fields, the opening balance
// and the version of base are preserved; the buckets are recomputed from the
// opening balance.
func Fold(base Totals, entries []Entry) Totals {
	t := base
	t.PracticeXP = base.Opening.PracticeXP
	t.EvaluationXP = base.Opening.EvaluationXP
	t.TotalXP = t.PracticeXP + t.EvaluationXP
	t.LastManualXPAt = base.Opening.LastManualXPAt
	t.LastManualXPAmount = base.Opening.LastManualXPAmount
	t.LastUpdatedAt = time.Time{}

	for _, e := range SortEntries(entries) {
		if e.Skill != base.Skill {
			continue
		}
		t = Apply(t, e)
	}
	return t
}

// SortEntries returns a copy of entries in append order.
func SortEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SameBuckets reports whether two rows hold the same derived values.
func SameBuckets(a, b Totals) bool {
	return nearlyEqual(a.PracticeXP, b.PracticeXP) &&
		nearlyEqual(a.EvaluationXP, b.EvaluationXP) &&
		a.LastManualXPAt.Equal(b.LastManualXPAt) &&
		nearlyEqual(a.LastManualXPAmount, b.LastManualXPAmount)
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
