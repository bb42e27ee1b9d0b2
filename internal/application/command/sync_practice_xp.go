package command

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
	"github.com/practica-musical/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC PRACTICE XP COMMAND
// Rebuilds lifetime practice XP from the practice block records. The practice
// bucket is set to the replayed value by appending one correcting BLOCK entry
// per skill, so running it again changes nothing.
// ══════════════════════════════════════════════════════════════════════════════

// SyncPracticeXPCommand selects the students to resync.
type SyncPracticeXPCommand struct {
	// StudentID limits the resync to one student. Empty means everyone with blocks.
	StudentID string

	ActorID string
}

// StudentResync is the outcome for one student.
type StudentResync struct {
	StudentID string
	Blocks    int

	// Target is the replayed practice XP per skill.
	Target shared.SkillXP

	// Corrections holds the deltas that were appended. Skills already in
	// sync are absent.
	Corrections shared.SkillXP
}

// SyncPracticeXPResult contains one entry per student, ordered by ID.
type SyncPracticeXPResult struct {
	Students []StudentResync
	Events   []shared.Event
}

// Corrected returns how many students needed at least one correction.
func (r *SyncPracticeXPResult) Corrected() int {
	n := 0
	for _, s := range r.Students {
		if len(s.Corrections) > 0 {
			n++
		}
	}
	return n
}

// SyncPracticeXPHandler handles SyncPracticeXPCommand.
type SyncPracticeXPHandler struct {
	blocks    xp.BlockRepository
	ledger    xp.LedgerRepository
	addXP     *AddXPHandler
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewSyncPracticeXPHandler creates a new SyncPracticeXPHandler.
func NewSyncPracticeXPHandler(
	blocks xp.BlockRepository,
	ledger xp.LedgerRepository,
	addXP *AddXPHandler,
	publisher shared.EventPublisher,
	opts Options,
) *SyncPracticeXPHandler {
	opts = opts.withDefaults()
	return &SyncPracticeXPHandler{
		blocks:    blocks,
		ledger:    ledger,
		addXP:     addXP,
		publisher: publisher,
		log:       opts.Logger.With(logger.Component("sync_practice_xp")),
	}
}

// Handle executes the command.
func (h *SyncPracticeXPHandler) Handle(ctx context.Context, cmd SyncPracticeXPCommand) (*SyncPracticeXPResult, error) {
	byStudent, err := h.loadBlocks(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("sync_practice_xp: load blocks: %w", err)
	}

	ids := make([]string, 0, len(byStudent))
	for id := range byStudent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &SyncPracticeXPResult{Students: make([]StudentResync, 0, len(ids))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := h.syncStudent(ctx, id, byStudent[id], cmd.ActorID)
		if err != nil {
			return result, fmt.Errorf("sync_practice_xp: student %s: %w", id, err)
		}
		result.Students = append(result.Students, res)

		event := shared.NewPracticeXPResyncedEvent(id, res.Blocks, res.Corrections)
		publish(h.publisher, h.log, event)
		result.Events = append(result.Events, event)
	}

	h.log.Info("practice xp resynced",
		logger.Int("students", len(result.Students)),
		logger.Int("corrected", result.Corrected()),
		logger.ActorID(cmd.ActorID),
	)
	return result, nil
}

func (h *SyncPracticeXPHandler) loadBlocks(ctx context.Context, studentID string) (map[string][]xp.PracticeBlock, error) {
	if studentID != "" {
		blocks, err := h.blocks.ListByStudent(ctx, studentID)
		if err != nil {
			return nil, err
		}
		return map[string][]xp.PracticeBlock{studentID: blocks}, nil
	}

	all, err := h.blocks.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]xp.PracticeBlock)
	for _, b := range all {
		if b.StudentID == "" {
			continue
		}
		out[b.StudentID] = append(out[b.StudentID], b)
	}
	return out, nil
}

func (h *SyncPracticeXPHandler) syncStudent(ctx context.Context, studentID string, blocks []xp.PracticeBlock, actorID string) (StudentResync, error) {
	target, n := xp.LifetimePracticeXP(blocks)
	res := StudentResync{
		StudentID:   studentID,
		Blocks:      n,
		Target:      target,
		Corrections: shared.SkillXP{},
	}

	totals, err := h.ledger.AllTotals(ctx, studentID)
	if err != nil {
		return res, err
	}

	for _, skill := range shared.AllSkills() {
		diff := target[skill] - totals[skill].PracticeXP
		if math.Abs(diff) < 1e-9 {
			continue
		}
		if _, err := h.addXP.Handle(ctx, AddXPCommand{
			StudentID: studentID,
			Skill:     skill,
			Source:    shared.SourceBlock,
			Amount:    diff,
			ActorID:   actorID,
		}); err != nil {
			return res, err
		}
		res.Corrections[skill] = diff
	}
	return res, nil
}
