package query

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/criteria"
	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL DIFF QUERY
// What changed in the key criteria between a level and the one before it.
// ══════════════════════════════════════════════════════════════════════════════

// LevelDiffQuery selects the level to compare with its predecessor.
type LevelDiffQuery struct {
	Level int
}

// Validate checks the query.
func (q *LevelDiffQuery) Validate() error {
	if q.Level < 1 {
		return shared.ErrInvalidLevel
	}
	return nil
}

// LevelDiffDTO holds the per-skill classification.
type LevelDiffDTO struct {
	Level    int                  `json:"level"`
	Previous int                  `json:"previous"`
	Skills   []criteria.SkillDiff `json:"skills"`
}

// Changed reports whether any skill group has new, evolved or removed criteria.
func (d *LevelDiffDTO) Changed() bool {
	for _, s := range d.Skills {
		if s.Changed() {
			return true
		}
	}
	return false
}

// LevelDiffHandler handles LevelDiffQuery.
type LevelDiffHandler struct {
	levels promotion.LevelRepository
}

// NewLevelDiffHandler creates a new LevelDiffHandler.
func NewLevelDiffHandler(levels promotion.LevelRepository) *LevelDiffHandler {
	return &LevelDiffHandler{levels: levels}
}

// Handle executes the query. Level 1 has no predecessor, so all of its
// criteria are new.
func (h *LevelDiffHandler) Handle(ctx context.Context, q LevelDiffQuery) (*LevelDiffDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("level_diff: %w", err)
	}

	current, err := h.levels.Criteria(ctx, q.Level)
	if err != nil {
		return nil, fmt.Errorf("level_diff: level %d: %w", q.Level, err)
	}
	var previous []promotion.Criterion
	if q.Level > 1 {
		previous, err = h.levels.Criteria(ctx, q.Level-1)
		if err != nil {
			return nil, fmt.Errorf("level_diff: level %d: %w", q.Level-1, err)
		}
	}

	return &LevelDiffDTO{
		Level:    q.Level,
		Previous: q.Level - 1,
		Skills:   criteria.Diff(matcherItems(current), matcherItems(previous)),
	}, nil
}

func matcherItems(cs []promotion.Criterion) []criteria.Item {
	out := make([]criteria.Item, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.MatcherItem())
	}
	return out
}
