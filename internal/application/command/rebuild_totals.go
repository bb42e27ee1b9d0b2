package command

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
	"github.com/practica-musical/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD TOTALS COMMAND
// Repair path: re-folds the ledger log into every totals row of a student.
// ══════════════════════════════════════════════════════════════════════════════

// RebuildTotalsCommand names the student to repair.
type RebuildTotalsCommand struct {
	StudentID string `validate:"required"`
}

// Validate validates the command.
func (c RebuildTotalsCommand) Validate() error {
	return validateStruct("RebuildTotals", c)
}

// RebuildTotalsResult contains the rows after the rebuild.
type RebuildTotalsResult struct {
	Totals map[shared.Skill]xp.Totals

	// Repaired lists the skills whose stored row disagreed with the log.
	Repaired []shared.Skill
}

// RebuildTotalsHandler handles RebuildTotalsCommand.
type RebuildTotalsHandler struct {
	addXP *AddXPHandler
	log   *logger.Logger
}

// NewRebuildTotalsHandler creates a new RebuildTotalsHandler.
func NewRebuildTotalsHandler(addXP *AddXPHandler, opts Options) *RebuildTotalsHandler {
	opts = opts.withDefaults()
	return &RebuildTotalsHandler{
		addXP: addXP,
		log:   opts.Logger.With(logger.Component("rebuild_totals")),
	}
}

// Handle executes the command.
func (h *RebuildTotalsHandler) Handle(ctx context.Context, cmd RebuildTotalsCommand) (*RebuildTotalsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("rebuild_totals: validation failed: %w", err)
	}

	result := &RebuildTotalsResult{Totals: make(map[shared.Skill]xp.Totals, 3)}
	for _, skill := range shared.AllSkills() {
		t, changed, err := h.addXP.Refold(ctx, cmd.StudentID, skill)
		if err != nil {
			return nil, fmt.Errorf("rebuild_totals: %s: %w", skill, err)
		}
		result.Totals[skill] = t
		if changed {
			result.Repaired = append(result.Repaired, skill)
		}
	}

	if len(result.Repaired) > 0 {
		h.log.Warn("totals repaired from ledger",
			logger.StudentID(cmd.StudentID),
			logger.Int("skills", len(result.Repaired)),
		)
	}
	return result, nil
}
