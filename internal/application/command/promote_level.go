package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/pkg/logger"
	"github.com/practica-musical/progression-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTE LEVEL COMMAND
// Moves a student to another level. Upward moves must pass the check of the
// current level unless forced; downward moves are never gated and stop at 1.
// ══════════════════════════════════════════════════════════════════════════════

// PromoteLevelCommand contains the level change.
type PromoteLevelCommand struct {
	StudentID string `validate:"required"`

	// NewLevel below 1 is floored to 1.
	NewLevel int

	// Reason is recorded for audit and is required.
	Reason string

	ActorID string

	// Force lets a professor promote past a failing check.
	Force bool
}

// Validate validates the command.
func (c PromoteLevelCommand) Validate() error {
	if err := validateStruct("PromoteLevel", c); err != nil {
		return err
	}
	if strings.TrimSpace(c.Reason) == "" {
		return shared.ErrMissingReason
	}
	return nil
}

// PromoteLevelResult contains the outcome.
type PromoteLevelResult struct {
	Previous int
	Current  int
	Changed  bool
	Forced   bool

	// Check is the evaluation that gated an upward move. Nil otherwise.
	Check *promotion.Check

	Events []shared.Event
}

// PromoteLevelHandler handles PromoteLevelCommand.
type PromoteLevelHandler struct {
	students  promotion.StudentRepository
	checker   *promotion.Checker
	publisher shared.EventPublisher
	opts      Options
	log       *logger.Logger
}

// NewPromoteLevelHandler creates a new PromoteLevelHandler.
func NewPromoteLevelHandler(
	students promotion.StudentRepository,
	checker *promotion.Checker,
	publisher shared.EventPublisher,
	opts Options,
) *PromoteLevelHandler {
	opts = opts.withDefaults()
	return &PromoteLevelHandler{
		students:  students,
		checker:   checker,
		publisher: publisher,
		opts:      opts,
		log:       opts.Logger.With(logger.Component("promote_level")),
	}
}

// Handle executes the command.
func (h *PromoteLevelHandler) Handle(ctx context.Context, cmd PromoteLevelCommand) (*PromoteLevelResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("promote_level: validation failed: %w", err)
	}
	target := max(cmd.NewLevel, 1)

	result, err := retry.DoWithData(ctx, h.opts.Retrier, func(ctx context.Context) (*PromoteLevelResult, error) {
		return h.attempt(ctx, cmd, target)
	})
	if err != nil {
		return nil, fmt.Errorf("promote_level: %w", err)
	}
	if !result.Changed {
		return result, nil
	}

	event := shared.NewLevelChangedEvent(cmd.StudentID, result.Previous, result.Current, cmd.Reason, cmd.ActorID, result.Forced)
	publish(h.publisher, h.log, event)
	result.Events = append(result.Events, event)

	h.log.Info("level changed",
		logger.StudentID(cmd.StudentID),
		logger.Int("from", result.Previous),
		logger.StudentLevel(result.Current),
		logger.ActorID(cmd.ActorID),
		logger.Bool("forced", result.Forced),
	)
	return result, nil
}

// attempt is one read-check-write cycle. A lost version race is retried by
// the caller, which re-reads the level and re-runs the check.
func (h *PromoteLevelHandler) attempt(ctx context.Context, cmd PromoteLevelCommand, target int) (*PromoteLevelResult, error) {
	student, err := h.students.Get(ctx, cmd.StudentID)
	if err != nil {
		return nil, err
	}

	result := &PromoteLevelResult{Previous: student.Level, Current: student.Level}
	if target == student.Level {
		return result, nil
	}

	if target > student.Level {
		check, err := h.checker.CanPromote(ctx, cmd.StudentID, student.Level)
		switch {
		case err == nil:
			result.Check = &check
		case cmd.Force && errors.Is(err, shared.ErrLevelConfigNotFound):
			// An unconfigured level can only be left by override.
			check.Allowed = false
		default:
			return nil, err
		}
		if !check.Allowed {
			if !cmd.Force {
				return nil, shared.WrapError("promotion", "PromoteLevel", shared.ErrStateTransition,
					strings.Join(check.Missing, "; "), shared.ErrPromotionNotAllowed)
			}
			result.Forced = true
		}
	}

	student.Level = target
	student.Reason = strings.TrimSpace(cmd.Reason)
	student.ChangedBy = cmd.ActorID
	student.ChangedAt = h.opts.Now()

	saved, err := h.students.Save(ctx, student)
	if err != nil {
		return nil, err
	}
	result.Current = saved.Level
	result.Changed = true
	return result, nil
}
