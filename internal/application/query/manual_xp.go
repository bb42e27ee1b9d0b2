package query

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL XP QUERY
// Professor adjustments made inside the window, per skill, as
// min(cap, |sum of PROF deltas|).
// ══════════════════════════════════════════════════════════════════════════════

// ManualXPQuery selects the student and window.
type ManualXPQuery struct {
	StudentID string

	// WindowDays is the lookback period. Zero means the configured default.
	WindowDays int
}

// Validate checks the query and fills defaults.
func (q *ManualXPQuery) Validate(defaultDays int) error {
	if q.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	q.WindowDays = resolveWindow(q.WindowDays, defaultDays)
	if q.WindowDays < 0 {
		return shared.ErrNegativeWindow
	}
	return nil
}

// ManualXPDTO is the manual adjustment view.
type ManualXPDTO struct {
	StudentID  string         `json:"student_id"`
	WindowDays int            `json:"window_days"`
	XP         shared.SkillXP `json:"xp"`
}

// ManualXPHandler handles ManualXPQuery.
type ManualXPHandler struct {
	ledger xp.LedgerRepository
	opts   Options
}

// NewManualXPHandler creates a new ManualXPHandler.
func NewManualXPHandler(ledger xp.LedgerRepository, opts Options) *ManualXPHandler {
	return &ManualXPHandler{ledger: ledger, opts: opts.withDefaults()}
}

// Handle executes the query.
func (h *ManualXPHandler) Handle(ctx context.Context, q ManualXPQuery) (*ManualXPDTO, error) {
	if err := q.Validate(h.opts.Windows.ManualDays); err != nil {
		return nil, fmt.Errorf("manual_xp: %w", err)
	}
	since, err := xp.Since(h.opts.Now(), q.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("manual_xp: %w", err)
	}

	totals, err := h.ledger.AllTotals(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("manual_xp: load totals: %w", err)
	}
	entries, err := h.ledger.Entries(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("manual_xp: load ledger: %w", err)
	}

	out := shared.NewSkillXP()
	for _, s := range shared.AllSkills() {
		out[s] = xp.WindowedManualXP(totals[s], entries, since, h.opts.Windows.ManualCap)
	}
	return &ManualXPDTO{StudentID: q.StudentID, WindowDays: q.WindowDays, XP: out}, nil
}
