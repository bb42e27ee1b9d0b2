package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVELS
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository reads LevelConfig and LevelKeyCriteria.
type LevelRepository struct {
	store entity.Store
}

// NewLevelRepository creates a level repository.
func NewLevelRepository(store entity.Store) *LevelRepository {
	return &LevelRepository{store: store}
}

var _ promotion.LevelRepository = (*LevelRepository)(nil)

// Config returns the thresholds of a level.
func (r *LevelRepository) Config(ctx context.Context, level int) (promotion.LevelConfig, error) {
	rec, ok, err := entity.FindOne(ctx, r.store, entity.LevelConfig, entity.Where{"level": level})
	if err != nil {
		return promotion.LevelConfig{}, err
	}
	if !ok {
		return promotion.LevelConfig{}, shared.WrapError("promotion", "FindLevelConfig", shared.ErrNotFound,
			fmt.Sprintf("level %d", level), shared.ErrLevelConfigNotFound)
	}
	return promotion.LevelConfig{
		ID:                 rec.ID(),
		Level:              rec.Int("level"),
		MinXPFlex:          rec.Float("min_xp_flex"),
		MinXPMotr:          rec.Float("min_xp_motr"),
		MinXPArt:           rec.Float("min_xp_art"),
		EvidenceWindowDays: rec.Int("evidence_window_days"),
	}, nil
}

// Criteria returns the key criteria of a level.
func (r *LevelRepository) Criteria(ctx context.Context, level int) ([]promotion.Criterion, error) {
	recs, err := r.store.Filter(ctx, entity.LevelKeyCriteria, entity.Where{"level": level})
	if err != nil {
		return nil, err
	}
	out := make([]promotion.Criterion, 0, len(recs))
	for _, rec := range recs {
		out = append(out, criterionFromRecord(rec))
	}
	return out, nil
}

// Criterion returns one criterion by ID.
func (r *LevelRepository) Criterion(ctx context.Context, id string) (promotion.Criterion, error) {
	rec, err := r.store.Get(ctx, entity.LevelKeyCriteria, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return promotion.Criterion{}, shared.WrapError("promotion", "FindCriterion", shared.ErrNotFound,
				id, shared.ErrCriterionNotFound)
		}
		return promotion.Criterion{}, err
	}
	return criterionFromRecord(rec), nil
}

func criterionFromRecord(rec entity.Record) promotion.Criterion {
	return promotion.Criterion{
		ID:               rec.ID(),
		Level:            rec.Int("level"),
		Skill:            rec.String("skill"),
		Description:      rec.String("description"),
		Required:         rec.Bool("required"),
		Source:           promotion.ParseCriterionSource(rec.String("source")),
		EvidenceRequired: rec.Bool("evidence_required"),
		EvidenceDays:     rec.Int("evidence_days"),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA STATUS
// ══════════════════════════════════════════════════════════════════════════════

// StatusRepository reads and upserts StudentCriteriaStatus rows.
type StatusRepository struct {
	store entity.Store
}

// NewStatusRepository creates a status repository.
func NewStatusRepository(store entity.Store) *StatusRepository {
	return &StatusRepository{store: store}
}

var _ promotion.StatusRepository = (*StatusRepository)(nil)

// ForStudent returns the statuses keyed by criterion. When a criterion has
// several rows the most recent assessment wins.
func (r *StatusRepository) ForStudent(ctx context.Context, studentID string) (map[string]promotion.CriteriaStatus, error) {
	recs, err := r.store.Filter(ctx, entity.StudentCriteriaStatus, entity.Where{"student_id": studentID})
	if err != nil {
		return nil, err
	}
	out := make(map[string]promotion.CriteriaStatus, len(recs))
	for _, rec := range recs {
		s := statusFromRecord(rec)
		if s.CriterionID == "" {
			continue
		}
		if prev, ok := out[s.CriterionID]; ok && prev.AssessedAt.After(s.AssessedAt) {
			continue
		}
		out[s.CriterionID] = s
	}
	return out, nil
}

// Upsert updates the existing row of (student, criterion) or creates one.
func (r *StatusRepository) Upsert(ctx context.Context, s promotion.CriteriaStatus) (promotion.CriteriaStatus, error) {
	rec := entity.Record{
		"student_id":   s.StudentID,
		"criterion_id": s.CriterionID,
		"status":       string(s.Status),
		"assessed_by":  s.AssessedBy,
		"assessed_at":  timeValue(s.AssessedAt),
	}

	existing, ok, err := entity.FindOne(ctx, r.store, entity.StudentCriteriaStatus, entity.Where{
		"student_id":   s.StudentID,
		"criterion_id": s.CriterionID,
	})
	if err != nil {
		return promotion.CriteriaStatus{}, err
	}
	if ok {
		saved, err := r.store.Update(ctx, entity.StudentCriteriaStatus, existing.ID(), rec)
		if err != nil {
			return promotion.CriteriaStatus{}, err
		}
		return statusFromRecord(saved), nil
	}

	rec[entity.KeyID] = naturalID("cs", s.StudentID, s.CriterionID)
	created, err := r.store.Create(ctx, entity.StudentCriteriaStatus, rec)
	if err != nil {
		return promotion.CriteriaStatus{}, createConflict("UpsertCriteriaStatus", err)
	}
	return statusFromRecord(created), nil
}

func statusFromRecord(rec entity.Record) promotion.CriteriaStatus {
	return promotion.CriteriaStatus{
		ID:          rec.ID(),
		StudentID:   rec.String("student_id"),
		CriterionID: rec.String("criterion_id"),
		Status:      promotion.ParseCriterionStatus(rec.String("status")),
		AssessedBy:  rec.String("assessed_by"),
		AssessedAt:  firstTime(rec, "assessed_at", entity.KeyUpdatedAt),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository reads and writes the level fields of Student records.
type StudentRepository struct {
	store entity.Store
}

// NewStudentRepository creates a student repository.
func NewStudentRepository(store entity.Store) *StudentRepository {
	return &StudentRepository{store: store}
}

var _ promotion.StudentRepository = (*StudentRepository)(nil)

// Get returns the student's level. A record without a level is at level 1.
func (r *StudentRepository) Get(ctx context.Context, studentID string) (promotion.StudentLevel, error) {
	rec, err := r.store.Get(ctx, entity.Student, studentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return promotion.StudentLevel{}, shared.WrapError("promotion", "FindStudent", shared.ErrNotFound,
				studentID, shared.ErrStudentNotFound)
		}
		return promotion.StudentLevel{}, err
	}
	return studentFromRecord(rec), nil
}

// Save writes the level fields under a version check.
func (r *StudentRepository) Save(ctx context.Context, s promotion.StudentLevel) (promotion.StudentLevel, error) {
	saved, err := r.store.CompareAndUpdate(ctx, entity.Student, s.StudentID, s.Version, entity.Record{
		"level":            s.Level,
		"level_reason":     s.Reason,
		"level_changed_by": s.ChangedBy,
		"level_changed_at": timeValue(s.ChangedAt),
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return promotion.StudentLevel{}, shared.WrapError("promotion", "SaveStudent", shared.ErrNotFound,
				s.StudentID, shared.ErrStudentNotFound)
		}
		return promotion.StudentLevel{}, err
	}
	return studentFromRecord(saved), nil
}

func studentFromRecord(rec entity.Record) promotion.StudentLevel {
	level := rec.Int("level")
	if level < 1 {
		level = 1
	}
	return promotion.StudentLevel{
		StudentID: rec.ID(),
		Level:     level,
		Reason:    rec.String("level_reason"),
		ChangedBy: rec.String("level_changed_by"),
		ChangedAt: rec.Time("level_changed_at"),
		Version:   rec.Version(),
	}
}
