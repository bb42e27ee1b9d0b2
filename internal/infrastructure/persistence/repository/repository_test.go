package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/internal/domain/backpack"
	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/practica-musical/progression-hub/pkg/timeutil"
)

var ctx = context.Background()

func TestLedger_TotalsAbsentIsZero(t *testing.T) {
	repo := NewLedgerRepository(memory.New())

	got, err := repo.Totals(ctx, "s1", shared.SkillMotricidad)
	require.NoError(t, err)
	assert.False(t, got.Exists())
	assert.Equal(t, 0.0, got.TotalXP)

	all, err := repo.AllTotals(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedger_SaveTotalsCreatesThenCAS(t *testing.T) {
	repo := NewLedgerRepository(memory.New())

	first, err := repo.SaveTotals(ctx, xp.Totals{StudentID: "s1", Skill: shared.SkillArticulacion, PracticeXP: 10})
	require.NoError(t, err)
	assert.Equal(t, "xp:s1:articulacion", first.ID)
	assert.Equal(t, int64(1), first.Version)

	// A second creator races on the natural ID.
	_, err = repo.SaveTotals(ctx, xp.Totals{StudentID: "s1", Skill: shared.SkillArticulacion, PracticeXP: 99})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)

	first.EvaluationXP = 5
	second, err := repo.SaveTotals(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 15.0, second.TotalXP)
	assert.Equal(t, int64(2), second.Version)

	// Stale version.
	_, err = repo.SaveTotals(ctx, first)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestLedger_ReadsLegacyCamelCaseRows(t *testing.T) {
	store := memory.New()
	_, err := store.Create(ctx, entity.StudentXPTotal, entity.Record{
		"studentId":          "s1",
		"skill":              "flexibilidad",
		"practiceXp":         40,
		"evaluationXp":       "12",
		"lastManualXpAmount": -3,
	})
	require.NoError(t, err)

	got, err := NewLedgerRepository(store).Totals(ctx, "s1", shared.SkillFlexibilidad)
	require.NoError(t, err)
	assert.True(t, got.Exists())
	assert.Equal(t, 52.0, got.TotalXP)
	assert.Equal(t, -3.0, got.LastManualXPAmount)
	assert.Equal(t, 40.0, got.Opening.PracticeXP)
	assert.Equal(t, 12.0, got.Opening.EvaluationXP)
}

func TestLedger_EngineRowsKeepTheirOpening(t *testing.T) {
	repo := NewLedgerRepository(memory.New())

	saved, err := repo.SaveTotals(ctx, xp.Totals{StudentID: "s1", Skill: shared.SkillMotricidad, PracticeXP: 30})
	require.NoError(t, err)
	assert.Equal(t, xp.Balance{}, saved.Opening)
}

func TestLedger_AppendEntryDedupesByEventKey(t *testing.T) {
	repo := NewLedgerRepository(memory.New())
	e := xp.Entry{StudentID: "s1", Skill: shared.SkillMotricidad, Source: shared.SourceBlock, Amount: 20, EventKey: "block:b1:motricidad"}

	saved, err := repo.AppendEntry(ctx, e)
	require.NoError(t, err)
	assert.False(t, saved.RecordedAt.IsZero())
	assert.Equal(t, saved.RecordedAt, saved.OccurredAt)

	_, err = repo.AppendEntry(ctx, e)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	found, ok, err := repo.EntryByEventKey(ctx, "s1", "block:b1:motricidad")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, found.Amount)

	_, ok, err = repo.EntryByEventKey(ctx, "s1", "")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := repo.Entries(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_AppendEntryValidates(t *testing.T) {
	_, err := NewLedgerRepository(memory.New()).AppendEntry(ctx, xp.Entry{StudentID: "s1", Skill: "ritmo", Source: shared.SourceBlock})
	assert.ErrorIs(t, err, shared.ErrUnknownSkill)
}

func TestBlocks_RoundTrip(t *testing.T) {
	repo := NewBlockRepository(memory.New())
	at := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	_, err := repo.Create(ctx, xp.PracticeBlock{StudentID: "s1", Status: "completado", CompletedAt: at, TargetTempo: 100, AchievedTempo: 95, Type: "tecnica"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, xp.PracticeBlock{StudentID: "s2", Status: "pendiente"})
	require.NoError(t, err)

	got, err := repo.ListByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsCompleted())
	assert.True(t, at.Equal(got[0].CompletedAt))
	assert.Equal(t, 95.0, got[0].AchievedTempo)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQualitative_MergesBothSources(t *testing.T) {
	store := memory.New()
	_, _ = store.Create(ctx, entity.EvaluacionTecnica, entity.Record{"alumnoId": "s1", "fecha": "2025-03-01", "sonido": 7})
	_, _ = store.Create(ctx, entity.FeedbackSemanal, entity.Record{"alumno_id": "s1", "semana": "2025-03-03", "cognicion": "8"})

	got, err := NewQualitativeRepository(store).ListByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.NotNil(t, got[0].Sonido)
	assert.Nil(t, got[0].Cognicion)
	assert.Nil(t, got[1].Sonido)
	require.NotNil(t, got[1].Cognicion)
	assert.Equal(t, 8.0, *got[1].Cognicion)
	assert.Equal(t, 3, got[1].Date.Day())
}

func TestLevels_ConfigAndCriteria(t *testing.T) {
	store := memory.New()
	_, _ = store.Create(ctx, entity.LevelConfig, entity.Record{"level": 2, "minXpFlex": 100, "min_xp_motr": 150, "min_xp_art": 120})
	_, _ = store.Create(ctx, entity.LevelKeyCriteria, entity.Record{"id": "c1", "level": 2, "skill": "motricidad", "description": "Escalas", "required": true})
	_, _ = store.Create(ctx, entity.LevelKeyCriteria, entity.Record{"id": "c2", "level": 2, "skill": "motricidad", "description": "Arpegios", "source": "PRACTICA"})
	repo := NewLevelRepository(store)

	cfg, err := repo.Config(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.MinXPFlex)
	assert.Equal(t, 150.0, cfg.Threshold(shared.SkillMotricidad))

	_, err = repo.Config(ctx, 9)
	assert.ErrorIs(t, err, shared.ErrLevelConfigNotFound)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	crit, err := repo.Criteria(ctx, 2)
	require.NoError(t, err)
	require.Len(t, crit, 2)
	assert.Equal(t, promotion.SourceProf, crit[0].Source)
	assert.Equal(t, promotion.SourcePractica, crit[1].Source)

	_, err = repo.Criterion(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrCriterionNotFound)
}

func TestStatuses_UpsertKeepsOneRow(t *testing.T) {
	store := memory.New()
	repo := NewStatusRepository(store)
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.Upsert(ctx, promotion.CriteriaStatus{StudentID: "s1", CriterionID: "c1", Status: promotion.StatusFailed, AssessedAt: at})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, promotion.CriteriaStatus{StudentID: "s1", CriterionID: "c1", Status: promotion.StatusPassed, AssessedBy: "prof", AssessedAt: at.Add(time.Hour)})
	require.NoError(t, err)

	rows, err := store.List(ctx, entity.StudentCriteriaStatus)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	got, err := repo.ForStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, promotion.StatusPassed, got["c1"].Status)
	assert.Equal(t, "prof", got["c1"].AssessedBy)
}

func TestStudents_GetAndSave(t *testing.T) {
	store := memory.New()
	_, _ = store.Create(ctx, entity.Student, entity.Record{"id": "s1", "name": "Ana"})
	repo := NewStudentRepository(store)

	s, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Level)

	s.Level = 2
	s.Reason = "promoted"
	saved, err := repo.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Level)
	assert.Equal(t, s.Version+1, saved.Version)

	_, err = repo.Save(ctx, s)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)

	_, err = repo.Get(ctx, "ghost")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestBackpack_SaveAndFind(t *testing.T) {
	repo := NewBackpackRepository(memory.New())
	item := backpack.NewItem("s1", "escala-do")
	item.Status = backpack.StatusEnProgreso
	item.LastPracticedAt = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	item.MasteredWeeks = []time.Time{timeutil.StartOfWeek(item.LastPracticedAt)}

	saved, err := repo.Save(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, "bp:s1:escala-do", saved.ID)

	found, ok, err := repo.Find(ctx, "s1", "escala-do")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, found.MasteredWeeks, 1)
	assert.Equal(t, "2025-03-10", timeutil.FormatDateStr(found.MasteredWeeks[0]))

	_, ok, err = repo.Find(ctx, "s1", "otro")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Save(ctx, backpack.NewItem("s1", " "))
	assert.ErrorIs(t, err, shared.ErrEmptyPracticeKey)
}

func TestDecodeWeeks_AcceptsTimestamps(t *testing.T) {
	got := decodeWeeks([]string{"2025-03-10T00:00:00Z", "garbage", "2025-03-17"})
	require.Len(t, got, 2)
	assert.Equal(t, "2025-03-17", timeutil.FormatDateStr(got[1]))
}
