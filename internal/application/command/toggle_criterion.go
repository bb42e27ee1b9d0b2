package command

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/pkg/logger"
	"github.com/practica-musical/progression-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE CRITERION COMMAND
// A professor marks a PROF criterion passed or failed for one student.
// PRACTICA criteria are computed elsewhere and cannot be toggled here.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleCriterionCommand contains the toggle.
type ToggleCriterionCommand struct {
	StudentID   string `validate:"required"`
	CriterionID string `validate:"required"`
	Passed      bool
	ActorID     string
}

// Validate validates the command.
func (c ToggleCriterionCommand) Validate() error {
	return validateStruct("ToggleCriterion", c)
}

// ToggleCriterionResult contains the stored status.
type ToggleCriterionResult struct {
	Status promotion.CriteriaStatus
	Events []shared.Event
}

// ToggleCriterionHandler handles ToggleCriterionCommand.
type ToggleCriterionHandler struct {
	levels    promotion.LevelRepository
	statuses  promotion.StatusRepository
	publisher shared.EventPublisher
	opts      Options
	log       *logger.Logger
}

// NewToggleCriterionHandler creates a new ToggleCriterionHandler.
func NewToggleCriterionHandler(
	levels promotion.LevelRepository,
	statuses promotion.StatusRepository,
	publisher shared.EventPublisher,
	opts Options,
) *ToggleCriterionHandler {
	opts = opts.withDefaults()
	return &ToggleCriterionHandler{
		levels:    levels,
		statuses:  statuses,
		publisher: publisher,
		opts:      opts,
		log:       opts.Logger.With(logger.Component("toggle_criterion")),
	}
}

// Handle executes the command.
func (h *ToggleCriterionHandler) Handle(ctx context.Context, cmd ToggleCriterionCommand) (*ToggleCriterionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("toggle_criterion: validation failed: %w", err)
	}

	criterion, err := h.levels.Criterion(ctx, cmd.CriterionID)
	if err != nil {
		return nil, fmt.Errorf("toggle_criterion: %w", err)
	}
	if !criterion.Toggleable() {
		return nil, fmt.Errorf("toggle_criterion: %w", shared.ErrCriterionNotToggleable)
	}

	status := promotion.CriteriaStatus{
		StudentID:   cmd.StudentID,
		CriterionID: cmd.CriterionID,
		Status:      promotion.StatusFor(cmd.Passed),
		AssessedBy:  cmd.ActorID,
		AssessedAt:  h.opts.Now(),
	}
	// Two first toggles can race on creating the row; the loser updates it.
	saved, err := retry.DoWithData(ctx, h.opts.Retrier, func(ctx context.Context) (promotion.CriteriaStatus, error) {
		return h.statuses.Upsert(ctx, status)
	})
	if err != nil {
		return nil, fmt.Errorf("toggle_criterion: store status: %w", err)
	}

	event := shared.NewCriteriaToggledEvent(cmd.StudentID, cmd.CriterionID, cmd.Passed, cmd.ActorID)
	publish(h.publisher, h.log, event)

	h.log.Info("criterion toggled",
		logger.StudentID(cmd.StudentID),
		logger.CriterionID(cmd.CriterionID),
		logger.Bool("passed", cmd.Passed),
		logger.ActorID(cmd.ActorID),
	)
	return &ToggleCriterionResult{Status: saved, Events: []shared.Event{event}}, nil
}
