// Package backpack tracks how well a student masters each practiced item.
//
// Stored status only ever moves forward (nuevo, en_progreso, dominado).
// Rust and archival are computed at read time from the last practice date and
// are never persisted.
package backpack

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the mastery state of a backpack item.
type Status string

const (
	StatusNuevo      Status = "nuevo"
	StatusEnProgreso Status = "en_progreso"
	StatusDominado   Status = "dominado"

	// Read-time overlays.
	StatusOxidado   Status = "oxidado"
	StatusArchivado Status = "archivado"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusNuevo, StatusEnProgreso, StatusDominado, StatusOxidado, StatusArchivado:
		return true
	}
	return false
}

// IsOverlay reports whether the status only exists at read time.
func (s Status) IsOverlay() bool {
	return s == StatusOxidado || s == StatusArchivado
}

// rank orders the stored progression. Overlays that leaked into storage
// count as en_progreso: the item was practiced at some point.
func (s Status) rank() int {
	switch s {
	case StatusDominado:
		return 2
	case StatusEnProgreso, StatusOxidado, StatusArchivado:
		return 1
	default:
		return 0
	}
}

// ParseStatus parses a stored status. Empty input means nuevo.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return StatusNuevo, nil
	}
	if !st.IsValid() {
		return "", shared.ErrInvalidStatus
	}
	return st, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ITEM
// ══════════════════════════════════════════════════════════════════════════════

// Item is the stored state of one (student, practice key).
type Item struct {
	ID          string
	StudentID   string
	PracticeKey string
	Status      Status

	// MasteryScore is informational and never decreases.
	MasteryScore int

	LastPracticedAt time.Time

	// MasteredWeeks holds Monday week starts, unique and ascending.
	MasteredWeeks []time.Time

	LastMasteredWeekStart time.Time
	UpdatedAt             time.Time
	Version               int64
}

// NewItem returns the state of a key that was never practiced.
func NewItem(studentID, practiceKey string) Item {
	return Item{
		StudentID:   studentID,
		PracticeKey: practiceKey,
		Status:      StatusNuevo,
	}
}

// Exists reports whether the item has been persisted.
func (i Item) Exists() bool {
	return i.ID != ""
}

// Practiced reports whether the item has any recorded practice.
func (i Item) Practiced() bool {
	return !i.LastPracticedAt.IsZero()
}

// Validate checks the identity fields.
func (i Item) Validate() error {
	if i.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	if strings.TrimSpace(i.PracticeKey) == "" {
		return shared.ErrEmptyPracticeKey
	}
	return nil
}

// Repository persists backpack items.
type Repository interface {
	// Find returns the item for (student, key), or ok=false when absent.
	Find(ctx context.Context, studentID, practiceKey string) (Item, bool, error)

	// ListByStudent returns every stored item of the student.
	ListByStudent(ctx context.Context, studentID string) ([]Item, error)

	// Save creates the item when it does not exist yet and otherwise writes it
	// only if the stored version still equals item.Version.
	Save(ctx context.Context, item Item) (Item, error)
}

func sortWeeks(weeks []time.Time) []time.Time {
	out := make([]time.Time, 0, len(weeks))
	seen := make(map[string]bool, len(weeks))
	for _, w := range weeks {
		w = timeutil.StartOfWeek(w)
		k := timeutil.FormatDateStr(w)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, w)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Before(out[b]) })
	return out
}
