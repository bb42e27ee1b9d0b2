// Package entity defines the generic record store the progression engine runs on.
//
// The hosted backend is an opaque record store addressed by entity name. The
// engine only ever talks to it through Store; adapters live in
// infrastructure/persistence and are responsible for normalizing record keys
// into the canonical snake_case shape (see Canonicalize).
package entity

import (
	"context"
)

// Name identifies a kind of record in the backing store.
type Name string

// Entities consumed by the engine.
const (
	StudentXPTotal        Name = "StudentXPTotal"
	XPLedgerEntry         Name = "XPLedgerEntry"
	RegistroBloque        Name = "RegistroBloque"
	EvaluacionTecnica     Name = "EvaluacionTecnica"
	FeedbackSemanal       Name = "FeedbackSemanal"
	LevelConfig           Name = "LevelConfig"
	LevelKeyCriteria      Name = "LevelKeyCriteria"
	StudentCriteriaStatus Name = "StudentCriteriaStatus"
	Student               Name = "Student"
	StudentBackpack       Name = "StudentBackpack"
)

// Reserved keys managed by the store itself.
const (
	KeyID        = "id"
	KeyVersion   = "version"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// Where is a conjunction of equality predicates on record fields.
type Where map[string]any

// Store is the record store contract.
//
// Get returns an error matching shared.ErrNotFound when the record is absent.
// CompareAndUpdate applies patch only if the stored version equals
// expectedVersion and returns an error matching shared.ErrConcurrentModification
// otherwise. Every successful write bumps the version by one.
type Store interface {
	Get(ctx context.Context, entity Name, id string) (Record, error)
	List(ctx context.Context, entity Name) ([]Record, error)
	Filter(ctx context.Context, entity Name, where Where) ([]Record, error)
	Create(ctx context.Context, entity Name, rec Record) (Record, error)
	Update(ctx context.Context, entity Name, id string, patch Record) (Record, error)
	CompareAndUpdate(ctx context.Context, entity Name, id string, expectedVersion int64, patch Record) (Record, error)
}

// FindOne returns the first record matching where, or ok=false when none does.
func FindOne(ctx context.Context, s Store, entity Name, where Where) (Record, bool, error) {
	recs, err := s.Filter(ctx, entity, where)
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}
