package promotion

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

// Snapshot is the stored state a check is evaluated against.
type Snapshot struct {
	StudentID string
	Level     int
	Config    LevelConfig
	Criteria  []Criterion
	Totals    map[shared.Skill]xp.Totals
	Statuses  map[string]CriterionStatus
}

// Input builds the Evaluate input of the stored state.
func (s Snapshot) Input() Input {
	return Input{
		Config:   s.Config,
		XP:       ViewFromTotals(s.Totals),
		Criteria: s.Criteria,
		Statuses: s.Statuses,
	}
}

// Preview evaluates the snapshot as it would be after committing the pending
// adjustments and toggles. Toggles of PRACTICA criteria are rejected.
func (s Snapshot) Preview(adjs []Adjustment, toggles []Toggle, at time.Time) (Check, error) {
	if err := ValidateAdjustments(adjs); err != nil {
		return Check{}, err
	}
	statuses, err := OverlayToggles(s.Criteria, s.Statuses, toggles)
	if err != nil {
		return Check{}, err
	}
	in := s.Input()
	in.XP = ViewFromTotals(ProjectTotals(s.StudentID, s.Totals, adjs, at))
	in.Statuses = statuses
	return Evaluate(in), nil
}

// Checker loads snapshots from the repositories.
type Checker struct {
	ledger   xp.LedgerRepository
	levels   LevelRepository
	statuses StatusRepository
}

// NewChecker creates a checker.
func NewChecker(ledger xp.LedgerRepository, levels LevelRepository, statuses StatusRepository) *Checker {
	return &Checker{ledger: ledger, levels: levels, statuses: statuses}
}

// Load reads everything a check of (student, level) needs. The four reads are
// independent and run concurrently.
func (c *Checker) Load(ctx context.Context, studentID string, level int) (Snapshot, error) {
	if studentID == "" {
		return Snapshot{}, shared.ErrEmptyStudentID
	}
	if level < 1 {
		return Snapshot{}, shared.ErrInvalidLevel
	}

	snap := Snapshot{StudentID: studentID, Level: level}
	var rows map[string]CriteriaStatus

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Config, err = c.levels.Config(gctx, level)
		return err
	})
	g.Go(func() (err error) {
		snap.Criteria, err = c.levels.Criteria(gctx, level)
		return err
	})
	g.Go(func() (err error) {
		snap.Totals, err = c.ledger.AllTotals(gctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		rows, err = c.statuses.ForStudent(gctx, studentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap.Statuses = StatusMap(rows)
	return snap, nil
}

// CanPromote evaluates the stored state of (student, level).
func (c *Checker) CanPromote(ctx context.Context, studentID string, level int) (Check, error) {
	snap, err := c.Load(ctx, studentID, level)
	if err != nil {
		return Check{}, err
	}
	return Evaluate(snap.Input()), nil
}
