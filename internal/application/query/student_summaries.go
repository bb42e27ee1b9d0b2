package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
	"github.com/practica-musical/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT SUMMARIES QUERY
// Progress overview of many students at once (the professor's class list).
// Students are loaded concurrently with bounded parallelism and each summary
// is read through an optional cache that ledger and promotion events
// invalidate. New qualitative ratings and the rolling windows emit no event,
// so a cached summary may lag them by up to the cache TTL. ComputedAt carries
// the age of what was served and SkipCache forces a recompute.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCache stores computed summaries by student.
type SummaryCache interface {
	// Load decodes the cached summary into dest and reports a hit.
	Load(ctx context.Context, studentID string, dest any) (bool, error)
	Store(ctx context.Context, studentID string, summary any) error
	Invalidate(ctx context.Context, studentIDs ...string) error
	InvalidateAll(ctx context.Context) error
}

// StudentSummariesQuery lists the students to summarize.
type StudentSummariesQuery struct {
	StudentIDs []string

	// SkipCache forces a fresh computation. Fresh results are still stored.
	SkipCache bool
}

// Validate checks the query and drops duplicate IDs, keeping the first occurrence.
func (q *StudentSummariesQuery) Validate() error {
	seen := make(map[string]bool, len(q.StudentIDs))
	ids := make([]string, 0, len(q.StudentIDs))
	for _, id := range q.StudentIDs {
		if id == "" {
			return shared.ErrEmptyStudentID
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	q.StudentIDs = ids
	return nil
}

// StudentSummaryDTO is the progress overview of one student.
type StudentSummaryDTO struct {
	StudentID string `json:"student_id"`
	Level     int    `json:"level"`

	// XP holds the stored ledger totals.
	XP promotion.XPView `json:"xp"`

	// Practice and Manual are windowed views with the display cap applied.
	Practice   shared.SkillXP      `json:"practice"`
	Evaluation xp.QualitativeScore `json:"evaluation"`
	Manual     shared.SkillXP      `json:"manual"`

	// Check is the promotion check of the current level. Nil when the level
	// is not configured.
	Check *promotion.Check `json:"check,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// StudentSummariesDTO keeps the order of the requested IDs.
type StudentSummariesDTO struct {
	Students  []StudentSummaryDTO `json:"students"`
	CacheHits int                 `json:"cache_hits"`
}

// StudentSummariesConfig tunes the fan-out.
type StudentSummariesConfig struct {
	// Parallelism bounds concurrent student loads.
	Parallelism int
}

// DefaultStudentSummariesConfig returns default configuration.
func DefaultStudentSummariesConfig() StudentSummariesConfig {
	return StudentSummariesConfig{Parallelism: 8}
}

// StudentSummariesHandler handles StudentSummariesQuery.
type StudentSummariesHandler struct {
	ledger     xp.LedgerRepository
	students   promotion.StudentRepository
	checker    *promotion.Checker
	practice   *PracticeXPHandler
	evaluation *EvaluationXPHandler
	manual     *ManualXPHandler
	cache      SummaryCache
	config     StudentSummariesConfig
	opts       Options
	log        *logger.Logger
}

// NewStudentSummariesHandler creates a new StudentSummariesHandler. cache may be nil.
func NewStudentSummariesHandler(
	ledger xp.LedgerRepository,
	students promotion.StudentRepository,
	checker *promotion.Checker,
	practice *PracticeXPHandler,
	evaluation *EvaluationXPHandler,
	manual *ManualXPHandler,
	cache SummaryCache,
	config StudentSummariesConfig,
	opts Options,
) *StudentSummariesHandler {
	if config.Parallelism <= 0 {
		config = DefaultStudentSummariesConfig()
	}
	opts = opts.withDefaults()
	return &StudentSummariesHandler{
		ledger:     ledger,
		students:   students,
		checker:    checker,
		practice:   practice,
		evaluation: evaluation,
		manual:     manual,
		cache:      cache,
		config:     config,
		opts:       opts,
		log:        opts.Logger.With(logger.Component("student_summaries")),
	}
}

// Handle executes the query. The first failing student aborts the batch.
func (h *StudentSummariesHandler) Handle(ctx context.Context, q StudentSummariesQuery) (*StudentSummariesDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("student_summaries: %w", err)
	}

	out := make([]StudentSummaryDTO, len(q.StudentIDs))
	hits := make([]bool, len(q.StudentIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallelism)
	for i, id := range q.StudentIDs {
		g.Go(func() error {
			summary, hit, err := h.summary(gctx, id, q.SkipCache)
			if err != nil {
				return fmt.Errorf("student %s: %w", id, err)
			}
			out[i] = summary
			hits[i] = hit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("student_summaries: %w", err)
	}

	dto := &StudentSummariesDTO{Students: out}
	for _, hit := range hits {
		if hit {
			dto.CacheHits++
		}
	}
	return dto, nil
}

func (h *StudentSummariesHandler) summary(ctx context.Context, studentID string, skipCache bool) (StudentSummaryDTO, bool, error) {
	if h.cache != nil && !skipCache {
		var cached StudentSummaryDTO
		hit, err := h.cache.Load(ctx, studentID, &cached)
		if err != nil {
			h.log.Warn("summary cache read failed", logger.StudentID(studentID), logger.Err(err))
		}
		if hit {
			return cached, true, nil
		}
	}

	summary, err := h.compute(ctx, studentID)
	if err != nil {
		return StudentSummaryDTO{}, false, err
	}

	if h.cache != nil {
		if err := h.cache.Store(ctx, studentID, summary); err != nil {
			h.log.Warn("summary cache write failed", logger.StudentID(studentID), logger.Err(err))
		}
	}
	return summary, false, nil
}

func (h *StudentSummariesHandler) compute(ctx context.Context, studentID string) (StudentSummaryDTO, error) {
	summary := StudentSummaryDTO{StudentID: studentID, Level: 1, ComputedAt: h.opts.Now()}

	student, err := h.students.Get(ctx, studentID)
	switch {
	case err == nil:
		summary.Level = student.Level
	case errors.Is(err, shared.ErrStudentNotFound):
		// Students without a record have not been placed yet.
	default:
		return summary, err
	}

	totals, err := h.ledger.AllTotals(ctx, studentID)
	if err != nil {
		return summary, err
	}
	summary.XP = promotion.ViewFromTotals(totals)

	practice, err := h.practice.Handle(ctx, PracticeXPQuery{StudentID: studentID})
	if err != nil {
		return summary, err
	}
	summary.Practice = practice.Display

	evaluation, err := h.evaluation.Handle(ctx, EvaluationXPQuery{StudentID: studentID})
	if err != nil {
		return summary, err
	}
	summary.Evaluation = evaluation.QualitativeScore

	manual, err := h.manual.Handle(ctx, ManualXPQuery{StudentID: studentID})
	if err != nil {
		return summary, err
	}
	summary.Manual = manual.XP.Capped(h.opts.Windows.DisplayCap)

	check, err := h.checker.CanPromote(ctx, studentID, summary.Level)
	switch {
	case err == nil:
		summary.Check = &check
	case errors.Is(err, shared.ErrLevelConfigNotFound):
		// Nothing to check against.
	default:
		return summary, err
	}
	return summary, nil
}

// InvalidateAll drops every cached summary. Batch rewrites call it when they
// touch students without publishing an event per student.
func (h *StudentSummariesHandler) InvalidateAll(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.InvalidateAll(ctx)
}

// InvalidateOn subscribes the cache to the events that change a summary.
func (h *StudentSummariesHandler) InvalidateOn(sub shared.EventSubscriber) error {
	if h.cache == nil {
		return nil
	}
	invalidate := func(e shared.Event) error {
		return h.cache.Invalidate(context.Background(), e.AggregateID())
	}
	for _, t := range []shared.EventType{
		shared.EventXPChanged,
		shared.EventPracticeXPResynced,
		shared.EventLevelChanged,
		shared.EventCriteriaToggled,
	} {
		if err := sub.Subscribe(t, invalidate); err != nil {
			return err
		}
	}
	return nil
}
