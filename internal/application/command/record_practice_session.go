package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/backpack"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/pkg/logger"
	"github.com/practica-musical/progression-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD PRACTICE SESSION COMMAND
// Folds a finished practice session into the backpack: one item per practice
// key touched by the session.
// ══════════════════════════════════════════════════════════════════════════════

// RecordPracticeSessionCommand contains the session blocks grouped by key.
type RecordPracticeSessionCommand struct {
	StudentID string `validate:"required"`

	// Blocks maps practice keys to the blocks practiced for them.
	Blocks map[string][]backpack.SessionBlock `validate:"required"`

	// CompletedAt defaults to now.
	CompletedAt time.Time
}

// Validate validates the command.
func (c RecordPracticeSessionCommand) Validate() error {
	if err := validateStruct("RecordPracticeSession", c); err != nil {
		return err
	}
	for key := range c.Blocks {
		if strings.TrimSpace(key) == "" {
			return shared.ErrEmptyPracticeKey
		}
	}
	return nil
}

// ItemUpdate is the outcome for one practice key.
type ItemUpdate struct {
	Item       backpack.Item
	ScoreDelta int
	WeekEarned bool

	// Skipped is set when the key had no completed block.
	Skipped bool
}

// RecordPracticeSessionResult contains one update per key, ordered by key.
type RecordPracticeSessionResult struct {
	Updates []ItemUpdate
	Events  []shared.Event
}

// RecordPracticeSessionHandler handles RecordPracticeSessionCommand.
type RecordPracticeSessionHandler struct {
	items     backpack.Repository
	publisher shared.EventPublisher
	cfg       backpack.Config
	opts      Options
	log       *logger.Logger
}

// NewRecordPracticeSessionHandler creates a new RecordPracticeSessionHandler.
func NewRecordPracticeSessionHandler(
	items backpack.Repository,
	publisher shared.EventPublisher,
	cfg backpack.Config,
	opts Options,
) *RecordPracticeSessionHandler {
	if cfg.WeeksForDominado == 0 {
		cfg = backpack.DefaultConfig()
	}
	opts = opts.withDefaults()
	return &RecordPracticeSessionHandler{
		items:     items,
		publisher: publisher,
		cfg:       cfg,
		opts:      opts,
		log:       opts.Logger.With(logger.Component("record_practice_session")),
	}
}

// Handle executes the command.
func (h *RecordPracticeSessionHandler) Handle(ctx context.Context, cmd RecordPracticeSessionCommand) (*RecordPracticeSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_practice_session: validation failed: %w", err)
	}
	completedAt := cmd.CompletedAt
	if completedAt.IsZero() {
		completedAt = h.opts.Now()
	}

	keys := make([]string, 0, len(cmd.Blocks))
	for k := range cmd.Blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := &RecordPracticeSessionResult{Updates: make([]ItemUpdate, 0, len(keys))}
	for _, key := range keys {
		update, err := retry.DoWithData(ctx, h.opts.Retrier, func(ctx context.Context) (ItemUpdate, error) {
			return h.applyKey(ctx, cmd.StudentID, key, cmd.Blocks[key], completedAt)
		})
		if err != nil {
			return nil, fmt.Errorf("record_practice_session: %s: %w", key, err)
		}
		result.Updates = append(result.Updates, update)
		if update.Skipped {
			continue
		}

		event := shared.NewBackpackUpdatedEvent(cmd.StudentID, key, string(update.Item.Status),
			len(update.Item.MasteredWeeks), update.WeekEarned)
		publish(h.publisher, h.log, event)
		result.Events = append(result.Events, event)

		h.log.Debug("backpack item updated",
			logger.StudentID(cmd.StudentID),
			logger.PracticeKey(key),
			logger.String("status", string(update.Item.Status)),
			logger.Int("score_delta", update.ScoreDelta),
			logger.Bool("week_earned", update.WeekEarned),
		)
	}
	return result, nil
}

// applyKey is one read-modify-write of an item. A lost version race makes
// the caller re-read and re-apply.
func (h *RecordPracticeSessionHandler) applyKey(ctx context.Context, studentID, key string, blocks []backpack.SessionBlock, completedAt time.Time) (ItemUpdate, error) {
	item, found, err := h.items.Find(ctx, studentID, key)
	if err != nil {
		return ItemUpdate{}, err
	}
	if !found {
		item = backpack.NewItem(studentID, key)
	}

	res := backpack.ApplySession(item, blocks, completedAt, h.cfg)
	if !res.Touched {
		return ItemUpdate{Item: item, Skipped: true}, nil
	}

	saved, err := h.items.Save(ctx, res.Item)
	if err != nil {
		return ItemUpdate{}, err
	}
	return ItemUpdate{Item: saved, ScoreDelta: res.ScoreDelta, WeekEarned: res.WeekEarned}, nil
}
