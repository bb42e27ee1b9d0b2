package repository

import (
	"context"
	"errors"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

// LedgerRepository stores XPLedgerEntry rows and StudentXPTotal snapshots.
type LedgerRepository struct {
	store entity.Store
	now   func() time.Time
}

// NewLedgerRepository creates a ledger repository.
func NewLedgerRepository(store entity.Store) *LedgerRepository {
	return &LedgerRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

var _ xp.LedgerRepository = (*LedgerRepository)(nil)

// Totals returns the snapshot row, or a zero row when the student has none.
func (r *LedgerRepository) Totals(ctx context.Context, studentID string, skill shared.Skill) (xp.Totals, error) {
	rec, ok, err := entity.FindOne(ctx, r.store, entity.StudentXPTotal, entity.Where{
		"student_id": studentID,
		"skill":      string(skill),
	})
	if err != nil {
		return xp.Totals{}, err
	}
	if !ok {
		return xp.ZeroTotals(studentID, skill), nil
	}
	return totalsFromRecord(rec, studentID, skill), nil
}

// AllTotals returns one row per skill.
func (r *LedgerRepository) AllTotals(ctx context.Context, studentID string) (map[shared.Skill]xp.Totals, error) {
	recs, err := r.store.Filter(ctx, entity.StudentXPTotal, entity.Where{"student_id": studentID})
	if err != nil {
		return nil, err
	}

	out := make(map[shared.Skill]xp.Totals, 3)
	for _, s := range shared.AllSkills() {
		out[s] = xp.ZeroTotals(studentID, s)
	}
	for _, rec := range recs {
		skill, err := shared.ParseSkill(rec.String("skill"))
		if err != nil {
			continue
		}
		if out[skill].Exists() {
			continue
		}
		out[skill] = totalsFromRecord(rec, studentID, skill)
	}
	return out, nil
}

// SaveTotals creates the row or writes it under a version check.
func (r *LedgerRepository) SaveTotals(ctx context.Context, t xp.Totals) (xp.Totals, error) {
	rec := totalsToRecord(t)
	if !t.Exists() {
		rec[entity.KeyID] = naturalID("xp", t.StudentID, string(t.Skill))
		created, err := r.store.Create(ctx, entity.StudentXPTotal, rec)
		if err != nil {
			return xp.Totals{}, createConflict("SaveTotals", err)
		}
		return totalsFromRecord(created, t.StudentID, t.Skill), nil
	}

	saved, err := r.store.CompareAndUpdate(ctx, entity.StudentXPTotal, t.ID, t.Version, rec)
	if err != nil {
		return xp.Totals{}, err
	}
	return totalsFromRecord(saved, t.StudentID, t.Skill), nil
}

// Entries returns every log entry of the student in append order.
func (r *LedgerRepository) Entries(ctx context.Context, studentID string) ([]xp.Entry, error) {
	recs, err := r.store.Filter(ctx, entity.XPLedgerEntry, entity.Where{"student_id": studentID})
	if err != nil {
		return nil, err
	}
	out := make([]xp.Entry, 0, len(recs))
	for _, rec := range recs {
		e, ok := entryFromRecord(rec)
		if !ok {
			continue
		}
		out = append(out, e)
	}
	return xp.SortEntries(out), nil
}

// AppendEntry adds an entry. Entries carrying an event key get an ID derived
// from it, so a replayed event fails with shared.ErrAlreadyExists.
func (r *LedgerRepository) AppendEntry(ctx context.Context, e xp.Entry) (xp.Entry, error) {
	if err := e.Validate(); err != nil {
		return xp.Entry{}, err
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = r.now()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = e.RecordedAt
	}
	if e.ID == "" && e.EventKey != "" {
		e.ID = naturalID("xpe", e.StudentID, e.EventKey)
	}

	created, err := r.store.Create(ctx, entity.XPLedgerEntry, entryToRecord(e))
	if err != nil {
		return xp.Entry{}, err
	}
	saved, _ := entryFromRecord(created)
	return saved, nil
}

// EntryByEventKey finds an entry by its event key.
func (r *LedgerRepository) EntryByEventKey(ctx context.Context, studentID, eventKey string) (xp.Entry, bool, error) {
	if eventKey == "" {
		return xp.Entry{}, false, nil
	}
	rec, err := r.store.Get(ctx, entity.XPLedgerEntry, naturalID("xpe", studentID, eventKey))
	if err == nil {
		e, ok := entryFromRecord(rec)
		return e, ok, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return xp.Entry{}, false, err
	}

	// Entries appended with an explicit ID are only reachable by filter.
	rec, ok, err := entity.FindOne(ctx, r.store, entity.XPLedgerEntry, entity.Where{
		"student_id": studentID,
		"event_key":  eventKey,
	})
	if err != nil || !ok {
		return xp.Entry{}, false, err
	}
	e, valid := entryFromRecord(rec)
	return e, valid, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func totalsFromRecord(rec entity.Record, studentID string, skill shared.Skill) xp.Totals {
	t := xp.Totals{
		ID:                 rec.ID(),
		StudentID:          studentID,
		Skill:              skill,
		PracticeXP:         rec.Float("practice_xp"),
		EvaluationXP:       rec.Float("evaluation_xp"),
		LastUpdatedAt:      firstTime(rec, "last_updated_at", entity.KeyUpdatedAt),
		LastManualXPAt:     rec.Time("last_manual_xp_at"),
		LastManualXPAmount: rec.Float("last_manual_xp_amount"),
		Version:            rec.Version(),
	}
	t.TotalXP = t.PracticeXP + t.EvaluationXP

	// Rows the engine never wrote predate the log: their current values
	// are the opening balance.
	if rec.Has("opening_practice_xp") {
		t.Opening = xp.Balance{
			PracticeXP:         rec.Float("opening_practice_xp"),
			EvaluationXP:       rec.Float("opening_evaluation_xp"),
			LastManualXPAt:     rec.Time("opening_last_manual_xp_at"),
			LastManualXPAmount: rec.Float("opening_last_manual_xp_amount"),
		}
	} else {
		t.Opening = xp.Balance{
			PracticeXP:         t.PracticeXP,
			EvaluationXP:       t.EvaluationXP,
			LastManualXPAt:     t.LastManualXPAt,
			LastManualXPAmount: t.LastManualXPAmount,
		}
	}
	return t
}

func totalsToRecord(t xp.Totals) entity.Record {
	return entity.Record{
		"student_id":            t.StudentID,
		"skill":                 string(t.Skill),
		"practice_xp":           t.PracticeXP,
		"evaluation_xp":         t.EvaluationXP,
		"total_xp":              t.PracticeXP + t.EvaluationXP,
		"last_updated_at":       timeValue(t.LastUpdatedAt),
		"last_manual_xp_at":     timeValue(t.LastManualXPAt),
		"last_manual_xp_amount": t.LastManualXPAmount,

		"opening_practice_xp":           t.Opening.PracticeXP,
		"opening_evaluation_xp":         t.Opening.EvaluationXP,
		"opening_last_manual_xp_at":     timeValue(t.Opening.LastManualXPAt),
		"opening_last_manual_xp_amount": t.Opening.LastManualXPAmount,
	}
}

func entryFromRecord(rec entity.Record) (xp.Entry, bool) {
	skill, err := shared.ParseSkill(rec.String("skill"))
	if err != nil {
		return xp.Entry{}, false
	}
	source, err := shared.ParseSource(rec.String("source"))
	if err != nil {
		return xp.Entry{}, false
	}
	recorded := firstTime(rec, "recorded_at", entity.KeyCreatedAt)
	occurred := rec.Time("occurred_at")
	if occurred.IsZero() {
		occurred = recorded
	}
	return xp.Entry{
		ID:         rec.ID(),
		StudentID:  rec.String("student_id"),
		Skill:      skill,
		Source:     source,
		Amount:     rec.Float("amount"),
		OccurredAt: occurred,
		RecordedAt: recorded,
		EventKey:   rec.String("event_key"),
	}, true
}

func entryToRecord(e xp.Entry) entity.Record {
	rec := entity.Record{
		"student_id":  e.StudentID,
		"skill":       string(e.Skill),
		"source":      string(e.Source),
		"amount":      e.Amount,
		"occurred_at": timeValue(e.OccurredAt),
		"recorded_at": timeValue(e.RecordedAt),
		"event_key":   e.EventKey,
	}
	if e.ID != "" {
		rec[entity.KeyID] = e.ID
	}
	return rec
}
