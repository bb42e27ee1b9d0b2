package repository

import (
	"context"

	"github.com/practica-musical/progression-hub/internal/domain/backpack"
	"github.com/practica-musical/progression-hub/internal/domain/entity"
)

// BackpackRepository stores StudentBackpack items.
type BackpackRepository struct {
	store entity.Store
}

// NewBackpackRepository creates a backpack repository.
func NewBackpackRepository(store entity.Store) *BackpackRepository {
	return &BackpackRepository{store: store}
}

var _ backpack.Repository = (*BackpackRepository)(nil)

// Find returns the item for (student, key).
func (r *BackpackRepository) Find(ctx context.Context, studentID, practiceKey string) (backpack.Item, bool, error) {
	rec, ok, err := entity.FindOne(ctx, r.store, entity.StudentBackpack, entity.Where{
		"student_id":   studentID,
		"practice_key": practiceKey,
	})
	if err != nil || !ok {
		return backpack.Item{}, false, err
	}
	return itemFromRecord(rec), true, nil
}

// ListByStudent returns every item of the student.
func (r *BackpackRepository) ListByStudent(ctx context.Context, studentID string) ([]backpack.Item, error) {
	recs, err := r.store.Filter(ctx, entity.StudentBackpack, entity.Where{"student_id": studentID})
	if err != nil {
		return nil, err
	}
	out := make([]backpack.Item, 0, len(recs))
	for _, rec := range recs {
		out = append(out, itemFromRecord(rec))
	}
	return out, nil
}

// Save creates the item or writes it under a version check.
func (r *BackpackRepository) Save(ctx context.Context, item backpack.Item) (backpack.Item, error) {
	if err := item.Validate(); err != nil {
		return backpack.Item{}, err
	}
	rec := itemToRecord(item)
	if !item.Exists() {
		rec[entity.KeyID] = naturalID("bp", item.StudentID, item.PracticeKey)
		created, err := r.store.Create(ctx, entity.StudentBackpack, rec)
		if err != nil {
			return backpack.Item{}, createConflict("SaveBackpackItem", err)
		}
		return itemFromRecord(created), nil
	}

	saved, err := r.store.CompareAndUpdate(ctx, entity.StudentBackpack, item.ID, item.Version, rec)
	if err != nil {
		return backpack.Item{}, err
	}
	return itemFromRecord(saved), nil
}

func itemFromRecord(rec entity.Record) backpack.Item {
	// Unknown stored statuses are treated as in progress, like leaked overlays.
	status, err := backpack.ParseStatus(rec.String("status"))
	if err != nil {
		status = backpack.StatusEnProgreso
	}
	return backpack.Item{
		ID:                    rec.ID(),
		StudentID:             rec.String("student_id"),
		PracticeKey:           rec.String("practice_key"),
		Status:                status,
		MasteryScore:          rec.Int("mastery_score"),
		LastPracticedAt:       rec.Time("last_practiced_at"),
		MasteredWeeks:         decodeWeeks(rec.Strings("mastered_weeks")),
		LastMasteredWeekStart: rec.Time("last_mastered_week_start"),
		UpdatedAt:             firstTime(rec, entity.KeyUpdatedAt),
		Version:               rec.Version(),
	}
}

func itemToRecord(item backpack.Item) entity.Record {
	return entity.Record{
		"student_id":               item.StudentID,
		"practice_key":             item.PracticeKey,
		"status":                   string(item.Status),
		"mastery_score":            item.MasteryScore,
		"last_practiced_at":        timeValue(item.LastPracticedAt),
		"mastered_weeks":           encodeWeeks(item.MasteredWeeks),
		"last_mastered_week_start": timeValue(item.LastMasteredWeekStart),
	}
}
