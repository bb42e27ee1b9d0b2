package backpack

import (
	"time"

	"github.com/practica-musical/progression-hub/pkg/timeutil"
)

// Config holds the scoring and decay parameters.
type Config struct {
	// MasteryWindowDays bounds how long a mastered week is remembered.
	MasteryWindowDays int
	// WeeksForDominado is the number of mastered weeks that make an item dominado.
	WeeksForDominado int

	RustyAfterDays    int
	ArchivedAfterDays int

	CompletedPoints int
	TempoMetBonus   int
	NearTempoBonus  int
	// NearTempoRatio is the share of the target tempo that earns NearTempoBonus.
	NearTempoRatio float64
	// MinDurationRatio applies to blocks without a tempo target.
	MinDurationRatio float64
}

// DefaultConfig returns the stock parameters.
func DefaultConfig() Config {
	return Config{
		MasteryWindowDays: 28,
		WeeksForDominado:  2,
		RustyAfterDays:    90,
		ArchivedAfterDays: 180,
		CompletedPoints:   10,
		TempoMetBonus:     5,
		NearTempoBonus:    2,
		NearTempoRatio:    0.9,
		MinDurationRatio:  0.8,
	}
}

// SessionBlock is one block of a practice session for a given key.
type SessionBlock struct {
	Completed bool

	// Zero means no target or no measurement.
	TargetTempo    float64
	AchievedTempo  float64
	TargetDuration time.Duration
	ActualDuration time.Duration
}

// score returns the points for the block and whether it makes the session a
// mastery candidate.
func (b SessionBlock) score(cfg Config) (int, bool) {
	if !b.Completed {
		return 0, false
	}
	points := cfg.CompletedPoints

	if b.TargetTempo > 0 {
		met := b.AchievedTempo >= b.TargetTempo
		switch {
		case met:
			points += cfg.TempoMetBonus
		case b.AchievedTempo >= b.TargetTempo*cfg.NearTempoRatio:
			points += cfg.NearTempoBonus
		}
		return points, met
	}

	if b.TargetDuration > 0 {
		return points, float64(b.ActualDuration) >= float64(b.TargetDuration)*cfg.MinDurationRatio
	}
	return points, true
}

// SessionResult describes what one session did to an item.
type SessionResult struct {
	Item Item

	ScoreDelta int
	Candidate  bool

	// WeekEarned is set when the session added a new mastered week.
	WeekEarned bool

	// Touched is false when the session held no completed block.
	Touched bool
}

// ApplySession folds one session into the item. Sessions without a completed
// block leave the item unchanged.
func ApplySession(item Item, blocks []SessionBlock, completedAt time.Time, cfg Config) SessionResult {
	res := SessionResult{Item: item}

	completed := 0
	for _, b := range blocks {
		pts, candidate := b.score(cfg)
		if !b.Completed {
			continue
		}
		completed++
		res.ScoreDelta += pts
		res.Candidate = res.Candidate || candidate
	}
	if completed == 0 {
		return res
	}
	res.Touched = true

	next := item
	next.MasteredWeeks = append([]time.Time(nil), item.MasteredWeeks...)
	next.MasteryScore += res.ScoreDelta

	prev := item.LastPracticedAt
	weekStart := timeutil.StartOfWeek(completedAt)
	if res.Candidate && !prev.IsZero() &&
		timeutil.IsSameWeek(prev, completedAt) && !timeutil.IsSameDay(prev, completedAt) &&
		!containsWeek(next.MasteredWeeks, weekStart) {
		next.MasteredWeeks = append(next.MasteredWeeks, weekStart)
		next.LastMasteredWeekStart = weekStart
		res.WeekEarned = true
	}

	next.MasteredWeeks = trimWeeks(next.MasteredWeeks, completedAt, cfg.MasteryWindowDays)

	if completedAt.After(prev) {
		next.LastPracticedAt = completedAt
	}
	next.Status = promote(item.Status, len(next.MasteredWeeks), cfg)

	res.Item = next
	return res
}

// promote never moves the stored status backwards.
func promote(current Status, masteredWeeks int, cfg Config) Status {
	computed := StatusEnProgreso
	if masteredWeeks >= cfg.WeeksForDominado {
		computed = StatusDominado
	}
	if current.rank() >= computed.rank() {
		if current.IsOverlay() {
			return StatusEnProgreso
		}
		return current
	}
	return computed
}

func trimWeeks(weeks []time.Time, completedAt time.Time, windowDays int) []time.Time {
	cutoff := timeutil.StartOfDay(completedAt).AddDate(0, 0, -windowDays)
	kept := make([]time.Time, 0, len(weeks))
	for _, w := range weeks {
		if w.Before(cutoff) {
			continue
		}
		kept = append(kept, w)
	}
	return sortWeeks(kept)
}

func containsWeek(weeks []time.Time, week time.Time) bool {
	for _, w := range weeks {
		if timeutil.StartOfWeek(w).Equal(week) {
			return true
		}
	}
	return false
}

// DisplayStatus returns the status to show at now. It never modifies item.
// Inactivity is counted in whole calendar days in the school's timezone.
func DisplayStatus(item Item, now time.Time, cfg Config) Status {
	if !item.Practiced() || now.Before(item.LastPracticedAt) {
		return item.Status
	}
	days := timeutil.DaysBetween(item.LastPracticedAt, now)
	switch {
	case days > cfg.ArchivedAfterDays:
		return StatusArchivado
	case days > cfg.RustyAfterDays:
		return StatusOxidado
	default:
		return item.Status
	}
}
