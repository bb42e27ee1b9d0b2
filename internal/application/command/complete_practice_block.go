package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
	"github.com/practica-musical/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE PRACTICE BLOCK COMMAND
// Records a finished practice block and credits its weighted award. Each
// skill's credit carries the key block:<id>:<skill>, so re-running the command
// for the same block never credits twice.
// ══════════════════════════════════════════════════════════════════════════════

// CompletePracticeBlockCommand describes a finished block.
type CompletePracticeBlockCommand struct {
	// BlockID is optional. A new ID is generated when empty.
	BlockID   string
	StudentID string `validate:"required"`

	// Type is the free-form block type (tecnica, flexibilidad, ...).
	Type string

	TargetTempo   float64 `validate:"gte=0"`
	AchievedTempo float64 `validate:"gte=0"`

	// CompletedAt defaults to now.
	CompletedAt time.Time
}

// Validate validates the command.
func (c CompletePracticeBlockCommand) Validate() error {
	return validateStruct("CompletePracticeBlock", c)
}

// CompletePracticeBlockResult contains the stored block and what was credited.
type CompletePracticeBlockResult struct {
	Block    xp.PracticeBlock
	Award    float64
	Credited shared.SkillXP
	Totals   map[shared.Skill]xp.Totals
}

// CompletePracticeBlockHandler handles CompletePracticeBlockCommand.
type CompletePracticeBlockHandler struct {
	blocks xp.BlockRepository
	addXP  *AddXPHandler
	opts   Options
	log    *logger.Logger
}

// NewCompletePracticeBlockHandler creates a new CompletePracticeBlockHandler.
func NewCompletePracticeBlockHandler(blocks xp.BlockRepository, addXP *AddXPHandler, opts Options) *CompletePracticeBlockHandler {
	opts = opts.withDefaults()
	return &CompletePracticeBlockHandler{
		blocks: blocks,
		addXP:  addXP,
		opts:   opts,
		log:    opts.Logger.With(logger.Component("complete_practice_block")),
	}
}

// Handle executes the command.
func (h *CompletePracticeBlockHandler) Handle(ctx context.Context, cmd CompletePracticeBlockCommand) (*CompletePracticeBlockResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("complete_practice_block: validation failed: %w", err)
	}

	block := xp.PracticeBlock{
		ID:            cmd.BlockID,
		StudentID:     cmd.StudentID,
		Status:        "completado",
		CompletedAt:   cmd.CompletedAt,
		TargetTempo:   cmd.TargetTempo,
		AchievedTempo: cmd.AchievedTempo,
		Type:          cmd.Type,
	}
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	if block.CompletedAt.IsZero() {
		block.CompletedAt = h.opts.Now()
	}

	saved, err := h.blocks.Create(ctx, block)
	switch {
	case err == nil:
		block = saved
	case errors.Is(err, shared.ErrAlreadyExists):
		// A retry of a block that was stored before; the credits below dedupe.
	default:
		return nil, fmt.Errorf("complete_practice_block: store block: %w", err)
	}

	award := block.Award()
	split := xp.WeightedSplit(award, block.Category())

	result := &CompletePracticeBlockResult{
		Block:    block,
		Award:    award,
		Credited: shared.SkillXP{},
		Totals:   make(map[shared.Skill]xp.Totals, len(split)),
	}
	for _, skill := range shared.AllSkills() {
		amount := split[skill]
		if amount == 0 {
			continue
		}
		res, err := h.addXP.Handle(ctx, AddXPCommand{
			StudentID: cmd.StudentID,
			Skill:     skill,
			Source:    shared.SourceBlock,
			Amount:    amount,
			Timestamp: block.CompletedAt,
			EventKey:  fmt.Sprintf("block:%s:%s", block.ID, skill),
		})
		if err != nil {
			return nil, fmt.Errorf("complete_practice_block: credit %s: %w", skill, err)
		}
		if !res.Duplicate {
			result.Credited[skill] = amount
		}
		result.Totals[skill] = res.Totals
	}

	h.log.Info("practice block completed",
		logger.StudentID(cmd.StudentID),
		logger.RecordID(block.ID),
		logger.XPAmount(award),
	)

	return result, nil
}
