package xp

import (
	"context"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// LedgerRepository persists the entry log and its totals projection.
type LedgerRepository interface {
	// Totals returns the row for (student, skill), or ZeroTotals when absent.
	Totals(ctx context.Context, studentID string, skill shared.Skill) (Totals, error)

	// AllTotals returns one row per tracked skill, zero-valued when absent.
	AllTotals(ctx context.Context, studentID string) (map[shared.Skill]Totals, error)

	// SaveTotals creates the row when it does not exist yet and otherwise
	// writes it only if the stored version still equals t.Version.
	SaveTotals(ctx context.Context, t Totals) (Totals, error)

	// Entries returns the full log of the student.
	Entries(ctx context.Context, studentID string) ([]Entry, error)

	// AppendEntry adds an entry to the log.
	AppendEntry(ctx context.Context, e Entry) (Entry, error)

	// EntryByEventKey looks up an entry by its event key.
	EntryByEventKey(ctx context.Context, studentID, eventKey string) (Entry, bool, error)
}

// BlockRepository reads and records practice blocks.
type BlockRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]PracticeBlock, error)
	ListAll(ctx context.Context) ([]PracticeBlock, error)
	Create(ctx context.Context, b PracticeBlock) (PracticeBlock, error)
}

// QualitativeRepository reads professor ratings from every qualitative source.
type QualitativeRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]QualitativeRecord, error)
}
