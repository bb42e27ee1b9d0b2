package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
	"github.com/practica-musical/progression-hub/pkg/logger"
	"github.com/practica-musical/progression-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADD XP COMMAND
// Appends one XP delta to the ledger log and refreshes the totals row of the
// (student, skill) from the log.
// ══════════════════════════════════════════════════════════════════════════════

// AddXPCommand contains one XP delta.
type AddXPCommand struct {
	StudentID string        `validate:"required"`
	Skill     shared.Skill  `validate:"skill"`
	Source    shared.Source `validate:"xpsource"`

	// Amount may be negative. Buckets are clamped at zero.
	Amount float64 `validate:"finite"`

	// Timestamp is when the XP was earned. Zero means now.
	Timestamp time.Time

	// EventKey identifies the logical event. A replayed key appends nothing.
	EventKey string

	// ActorID is who caused the delta, for logs.
	ActorID string
}

// Validate validates the command.
func (c AddXPCommand) Validate() error {
	return validateStruct("AddXP", c)
}

// AddXPResult contains the ledger state after the command.
type AddXPResult struct {
	Totals xp.Totals
	Entry  xp.Entry

	// Duplicate is set when the event key had already been applied.
	Duplicate bool

	// Changed is set when the totals row was written.
	Changed bool

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AddXPHandler handles AddXPCommand.
type AddXPHandler struct {
	ledger    xp.LedgerRepository
	publisher shared.EventPublisher
	opts      Options
	log       *logger.Logger
}

// NewAddXPHandler creates a new AddXPHandler.
func NewAddXPHandler(ledger xp.LedgerRepository, publisher shared.EventPublisher, opts Options) *AddXPHandler {
	opts = opts.withDefaults()
	return &AddXPHandler{
		ledger:    ledger,
		publisher: publisher,
		opts:      opts,
		log:       opts.Logger.With(logger.Component("add_xp")),
	}
}

// Handle executes the command.
func (h *AddXPHandler) Handle(ctx context.Context, cmd AddXPCommand) (*AddXPResult, error) {
	cmd.Skill = normalizeSkill(cmd.Skill)
	cmd.Source = normalizeSource(cmd.Source)
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("add_xp: validation failed: %w", err)
	}

	now := h.opts.Now()
	occurred := cmd.Timestamp
	if occurred.IsZero() {
		occurred = now
	}

	entry := xp.Entry{
		StudentID:  cmd.StudentID,
		Skill:      cmd.Skill,
		Source:     cmd.Source,
		Amount:     cmd.Amount,
		OccurredAt: occurred,
		RecordedAt: now,
		EventKey:   cmd.EventKey,
	}

	result := &AddXPResult{}
	if cmd.EventKey != "" {
		existing, found, err := h.ledger.EntryByEventKey(ctx, cmd.StudentID, cmd.EventKey)
		if err != nil {
			return nil, fmt.Errorf("add_xp: lookup event key: %w", err)
		}
		if found {
			result.Entry = existing
			result.Duplicate = true
		}
	}

	if !result.Duplicate {
		saved, err := h.ledger.AppendEntry(ctx, entry)
		switch {
		case err == nil:
			result.Entry = saved
		case cmd.EventKey != "" && errors.Is(err, shared.ErrAlreadyExists):
			// Lost the race against a concurrent replay of the same event.
			result.Entry = entry
			result.Duplicate = true
		default:
			return nil, fmt.Errorf("add_xp: append entry: %w", err)
		}
	}

	// The fold also runs for duplicates so an earlier attempt that appended
	// but never wrote the totals is completed here.
	totals, changed, err := h.Refold(ctx, cmd.StudentID, cmd.Skill)
	if err != nil {
		return nil, fmt.Errorf("add_xp: refresh totals: %w", err)
	}
	result.Totals = totals
	result.Changed = changed

	if !result.Duplicate || changed {
		event := shared.NewXPChangedEvent(cmd.StudentID, cmd.Skill, cmd.Source, cmd.Amount, totals.PracticeXP, totals.EvaluationXP)
		publish(h.publisher, h.log, event)
		result.Events = append(result.Events, event)
	}

	h.log.Debug("xp added",
		logger.StudentID(cmd.StudentID),
		logger.Skill(string(cmd.Skill)),
		logger.Source(string(cmd.Source)),
		logger.XPAmount(cmd.Amount),
		logger.ActorID(cmd.ActorID),
		logger.Bool("duplicate", result.Duplicate),
	)

	return result, nil
}

// Refold rebuilds the totals row of (student, skill) from the log and writes
// it under a version check, retrying lost races. The row is left untouched
// when it already matches the log.
func (h *AddXPHandler) Refold(ctx context.Context, studentID string, skill shared.Skill) (xp.Totals, bool, error) {
	var changed bool
	totals, err := retry.DoWithData(ctx, h.opts.Retrier, func(ctx context.Context) (xp.Totals, error) {
		changed = false

		current, err := h.ledger.Totals(ctx, studentID, skill)
		if err != nil {
			return xp.Totals{}, err
		}
		entries, err := h.ledger.Entries(ctx, studentID)
		if err != nil {
			return xp.Totals{}, err
		}

		next := xp.Fold(current, entries)
		if next.LastUpdatedAt.IsZero() {
			if !current.Exists() {
				// No row and nothing logged for the skill.
				return current, nil
			}
			next.LastUpdatedAt = current.LastUpdatedAt
		}
		if current.Exists() && xp.SameBuckets(current, next) {
			return current, nil
		}

		saved, err := h.ledger.SaveTotals(ctx, next)
		if err != nil {
			return xp.Totals{}, err
		}
		changed = true
		return saved, nil
	})
	if err != nil {
		return xp.Totals{}, false, err
	}
	return totals, changed, nil
}
