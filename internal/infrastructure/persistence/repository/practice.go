package repository

import (
	"context"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

// BlockRepository reads and writes RegistroBloque records.
type BlockRepository struct {
	store entity.Store
}

// NewBlockRepository creates a block repository.
func NewBlockRepository(store entity.Store) *BlockRepository {
	return &BlockRepository{store: store}
}

var _ xp.BlockRepository = (*BlockRepository)(nil)

// ListByStudent returns every block of the student, completed or not.
func (r *BlockRepository) ListByStudent(ctx context.Context, studentID string) ([]xp.PracticeBlock, error) {
	recs, err := r.store.Filter(ctx, entity.RegistroBloque, entity.Where{"alumno_id": studentID})
	if err != nil {
		return nil, err
	}
	return blocksFromRecords(recs), nil
}

// ListAll returns every block of every student.
func (r *BlockRepository) ListAll(ctx context.Context) ([]xp.PracticeBlock, error) {
	recs, err := r.store.List(ctx, entity.RegistroBloque)
	if err != nil {
		return nil, err
	}
	return blocksFromRecords(recs), nil
}

// Create stores a new block.
func (r *BlockRepository) Create(ctx context.Context, b xp.PracticeBlock) (xp.PracticeBlock, error) {
	rec := entity.Record{
		"alumno_id":     b.StudentID,
		"estado":        b.Status,
		"completado_en": timeValue(b.CompletedAt),
		"ppm_objetivo":  b.TargetTempo,
		"ppm_alcanzado": b.AchievedTempo,
		"tipo":          b.Type,
	}
	if b.ID != "" {
		rec[entity.KeyID] = b.ID
	}
	created, err := r.store.Create(ctx, entity.RegistroBloque, rec)
	if err != nil {
		return xp.PracticeBlock{}, err
	}
	return blockFromRecord(created), nil
}

func blocksFromRecords(recs []entity.Record) []xp.PracticeBlock {
	out := make([]xp.PracticeBlock, 0, len(recs))
	for _, rec := range recs {
		out = append(out, blockFromRecord(rec))
	}
	return out
}

func blockFromRecord(rec entity.Record) xp.PracticeBlock {
	return xp.PracticeBlock{
		ID:            rec.ID(),
		StudentID:     rec.String("alumno_id"),
		Status:        rec.String("estado"),
		CompletedAt:   rec.Time("completado_en"),
		TargetTempo:   rec.Float("ppm_objetivo"),
		AchievedTempo: rec.Float("ppm_alcanzado"),
		Type:          rec.String("tipo"),
	}
}

// QualitativeRepository merges EvaluacionTecnica and FeedbackSemanal ratings.
type QualitativeRepository struct {
	store entity.Store
}

// NewQualitativeRepository creates a qualitative repository.
func NewQualitativeRepository(store entity.Store) *QualitativeRepository {
	return &QualitativeRepository{store: store}
}

var _ xp.QualitativeRepository = (*QualitativeRepository)(nil)

// ListByStudent returns the ratings of both sources, unsorted.
func (r *QualitativeRepository) ListByStudent(ctx context.Context, studentID string) ([]xp.QualitativeRecord, error) {
	var out []xp.QualitativeRecord
	for _, name := range []entity.Name{entity.EvaluacionTecnica, entity.FeedbackSemanal} {
		recs, err := r.store.Filter(ctx, name, entity.Where{"alumno_id": studentID})
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			out = append(out, xp.QualitativeRecord{
				ID:        rec.ID(),
				StudentID: studentID,
				Date:      firstTime(rec, "fecha", "semana", entity.KeyCreatedAt),
				Sonido:    optionalFloat(rec, "sonido"),
				Cognicion: optionalFloat(rec, "cognicion"),
			})
		}
	}
	return out, nil
}
