package command

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMIT PROFESSOR REVIEW COMMAND
// Commits what a professor edited in the review screen: manual XP adjustments
// and criteria toggles. It is the write counterpart of the promotion preview;
// committing the same input makes CanPromote return what the preview showed.
// ══════════════════════════════════════════════════════════════════════════════

// CommitProfessorReviewCommand contains the pending review.
type CommitProfessorReviewCommand struct {
	StudentID string `validate:"required"`

	// Level is the level under review. When set, toggles must name criteria
	// of that level and the result carries its check after the commit.
	Level int `validate:"gte=0"`

	Adjustments []promotion.Adjustment
	Toggles     []promotion.Toggle

	// ReviewID makes the XP part retry-safe. Optional.
	ReviewID string

	ActorID string
}

// Validate validates the command.
func (c CommitProfessorReviewCommand) Validate() error {
	if err := validateStruct("CommitProfessorReview", c); err != nil {
		return err
	}
	return promotion.ValidateAdjustments(c.Adjustments)
}

// CommitProfessorReviewResult contains the outcome.
type CommitProfessorReviewResult struct {
	// Applied holds the PROF deltas appended per skill.
	Applied  shared.SkillXP
	Statuses []promotion.CriteriaStatus

	// Check is the evaluation of Level after the commit. Nil when Level is 0.
	Check *promotion.Check

	Events []shared.Event
}

// CommitProfessorReviewHandler handles CommitProfessorReviewCommand.
type CommitProfessorReviewHandler struct {
	levels  promotion.LevelRepository
	addXP   *AddXPHandler
	toggle  *ToggleCriterionHandler
	checker *promotion.Checker
	opts    Options
	log     *logger.Logger
}

// NewCommitProfessorReviewHandler creates a new CommitProfessorReviewHandler.
func NewCommitProfessorReviewHandler(
	levels promotion.LevelRepository,
	addXP *AddXPHandler,
	toggle *ToggleCriterionHandler,
	checker *promotion.Checker,
	opts Options,
) *CommitProfessorReviewHandler {
	opts = opts.withDefaults()
	return &CommitProfessorReviewHandler{
		levels:  levels,
		addXP:   addXP,
		toggle:  toggle,
		checker: checker,
		opts:    opts,
		log:     opts.Logger.With(logger.Component("commit_professor_review")),
	}
}

// Handle executes the command.
func (h *CommitProfessorReviewHandler) Handle(ctx context.Context, cmd CommitProfessorReviewCommand) (*CommitProfessorReviewResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("commit_professor_review: validation failed: %w", err)
	}
	// Reject bad toggles before anything is written.
	if err := h.checkToggles(ctx, cmd); err != nil {
		return nil, fmt.Errorf("commit_professor_review: %w", err)
	}

	at := h.opts.Now()
	result := &CommitProfessorReviewResult{Applied: shared.SkillXP{}}

	for _, adj := range cmd.Adjustments {
		delta := adj.Delta()
		if delta == 0 {
			continue
		}
		addCmd := AddXPCommand{
			StudentID: cmd.StudentID,
			Skill:     adj.Skill,
			Source:    shared.SourceProf,
			Amount:    delta,
			Timestamp: at,
			ActorID:   cmd.ActorID,
		}
		if cmd.ReviewID != "" {
			addCmd.EventKey = fmt.Sprintf("review:%s:%s", cmd.ReviewID, adj.Skill)
		}
		res, err := h.addXP.Handle(ctx, addCmd)
		if err != nil {
			return nil, fmt.Errorf("commit_professor_review: adjust %s: %w", adj.Skill, err)
		}
		if !res.Duplicate {
			result.Applied[adj.Skill] += delta
		}
		result.Events = append(result.Events, res.Events...)
	}

	for _, tg := range cmd.Toggles {
		res, err := h.toggle.Handle(ctx, ToggleCriterionCommand{
			StudentID:   cmd.StudentID,
			CriterionID: tg.CriterionID,
			Passed:      tg.Passed,
			ActorID:     cmd.ActorID,
		})
		if err != nil {
			return nil, fmt.Errorf("commit_professor_review: %w", err)
		}
		result.Statuses = append(result.Statuses, res.Status)
		result.Events = append(result.Events, res.Events...)
	}

	if cmd.Level > 0 {
		check, err := h.checker.CanPromote(ctx, cmd.StudentID, cmd.Level)
		if err != nil {
			return nil, fmt.Errorf("commit_professor_review: check: %w", err)
		}
		result.Check = &check
	}

	h.log.Info("professor review committed",
		logger.StudentID(cmd.StudentID),
		logger.ActorID(cmd.ActorID),
		logger.Int("adjustments", len(result.Applied)),
		logger.Int("toggles", len(result.Statuses)),
	)
	return result, nil
}

func (h *CommitProfessorReviewHandler) checkToggles(ctx context.Context, cmd CommitProfessorReviewCommand) error {
	if len(cmd.Toggles) == 0 {
		return nil
	}
	if cmd.Level > 0 {
		levelCriteria, err := h.levels.Criteria(ctx, cmd.Level)
		if err != nil {
			return err
		}
		_, err = promotion.OverlayToggles(levelCriteria, nil, cmd.Toggles)
		return err
	}
	for _, tg := range cmd.Toggles {
		c, err := h.levels.Criterion(ctx, tg.CriterionID)
		if err != nil {
			return err
		}
		if !c.Toggleable() {
			return shared.ErrCriterionNotToggleable
		}
	}
	return nil
}
