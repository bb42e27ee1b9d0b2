package xp

import (
	"math"
	"sort"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// Windows holds the lookback periods of the windowed views.
type Windows struct {
	PracticeDays   int
	EvaluationDays int
	ManualDays     int

	// ManualCap limits the manual view per skill.
	ManualCap float64

	// DisplayCap is applied by presentation layers only. Stored values are never capped.
	DisplayCap float64
}

// DefaultWindows returns the stock lookback periods.
func DefaultWindows() Windows {
	return Windows{
		PracticeDays:   30,
		EvaluationDays: 30,
		ManualDays:     30,
		ManualCap:      100,
		DisplayCap:     100,
	}
}

// Since returns the start of a lookback window ending at now.
func Since(now time.Time, windowDays int) (time.Time, error) {
	if windowDays < 0 {
		return time.Time{}, shared.ErrNegativeWindow
	}
	return now.Add(-time.Duration(windowDays) * 24 * time.Hour), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUALITATIVE SCORES (EvaluacionTecnica, FeedbackSemanal)
// ══════════════════════════════════════════════════════════════════════════════

// QualitativeRecord is one professor rating. Nil scores were not filled in.
type QualitativeRecord struct {
	ID        string
	StudentID string
	Date      time.Time
	Sonido    *float64
	Cognicion *float64
}

// QualitativeScore is the 0-100 view of the latest ratings.
type QualitativeScore struct {
	Sonido    float64 `json:"sonido"`
	Cognicion float64 `json:"cognicion"`
}

// LatestQualitative resolves sonido and cognicion independently from the most
// recent record in the window that carries each value, scaled by 10.
func LatestQualitative(records []QualitativeRecord, since time.Time) QualitativeScore {
	inWindow := make([]QualitativeRecord, 0, len(records))
	for _, r := range records {
		if r.Date.IsZero() || r.Date.Before(since) {
			continue
		}
		inWindow = append(inWindow, r)
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Date.After(inWindow[j].Date)
	})

	var score QualitativeScore
	var haveSonido, haveCognicion bool
	for _, r := range inWindow {
		if !haveSonido && r.Sonido != nil {
			score.Sonido = *r.Sonido * 10
			haveSonido = true
		}
		if !haveCognicion && r.Cognicion != nil {
			score.Cognicion = *r.Cognicion * 10
			haveCognicion = true
		}
		if haveSonido && haveCognicion {
			break
		}
	}
	return score
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL XP
// ══════════════════════════════════════════════════════════════════════════════

// WindowedManualXP folds the PROF entries of one skill that occurred at or
// after since: min(cap, |sum|). Rows written before the log existed have no
// entries, so their last-delta fields are used instead.
func WindowedManualXP(t Totals, entries []Entry, since time.Time, cap float64) float64 {
	var sum float64
	logged := false
	for _, e := range entries {
		if e.Skill != t.Skill || e.Source != shared.SourceProf {
			continue
		}
		logged = true
		if e.OccurredAt.Before(since) {
			continue
		}
		sum += e.Amount
	}
	if !logged {
		if t.LastManualXPAt.IsZero() || t.LastManualXPAt.Before(since) {
			return 0
		}
		sum = t.LastManualXPAmount
	}
	return math.Min(cap, math.Abs(sum))
}
