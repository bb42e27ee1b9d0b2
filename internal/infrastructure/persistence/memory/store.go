// Package memory provides an in-process entity.Store with the same semantics
// as the Postgres adapter. It backs unit tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

type table struct {
	rows  map[string]entity.Record
	order []string
}

// Store is a mutex-guarded map of tables.
type Store struct {
	mu     sync.RWMutex
	tables map[entity.Name]*table
	now    func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		tables: make(map[entity.Name]*table),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ entity.Store = (*Store)(nil)

func (s *Store) table(name entity.Name) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string]entity.Record)}
		s.tables[name] = t
	}
	return t
}

// Get returns a copy of the record.
func (s *Store) Get(ctx context.Context, name entity.Name, id string) (entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, notFound("Get", name, id)
	}
	rec, ok := t.rows[id]
	if !ok {
		return nil, notFound("Get", name, id)
	}
	return rec.Clone(), nil
}

// List returns every record in insertion order.
func (s *Store) List(ctx context.Context, name entity.Name) ([]entity.Record, error) {
	return s.Filter(ctx, name, nil)
}

// Filter returns the records whose fields equal every predicate.
func (s *Store) Filter(ctx context.Context, name entity.Name, where entity.Where) ([]entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	where = entity.CanonicalWhere(where)

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[name]
	if !ok {
		return []entity.Record{}, nil
	}
	out := make([]entity.Record, 0, len(t.order))
	for _, id := range t.order {
		rec := t.rows[id]
		if matches(rec, where) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Create stores a new record with version 1. A missing id is generated.
func (s *Store) Create(ctx context.Context, name entity.Name, rec entity.Record) (entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec = entity.Canonicalize(rec)
	id := rec.ID()
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(name)
	if _, exists := t.rows[id]; exists {
		return nil, shared.NewDomainError("store", "Create", shared.ErrAlreadyExists,
			fmt.Sprintf("%s %s already exists", name, id))
	}

	now := s.now()
	rec[entity.KeyID] = id
	rec[entity.KeyVersion] = int64(1)
	rec[entity.KeyCreatedAt] = now
	rec[entity.KeyUpdatedAt] = now

	t.rows[id] = rec
	t.order = append(t.order, id)
	return rec.Clone(), nil
}

// Update merges patch into the record unconditionally.
func (s *Store) Update(ctx context.Context, name entity.Name, id string, patch entity.Record) (entity.Record, error) {
	return s.update(ctx, "Update", name, id, -1, patch)
}

// CompareAndUpdate merges patch only if the stored version matches.
func (s *Store) CompareAndUpdate(ctx context.Context, name entity.Name, id string, expectedVersion int64, patch entity.Record) (entity.Record, error) {
	return s.update(ctx, "CompareAndUpdate", name, id, expectedVersion, patch)
}

func (s *Store) update(ctx context.Context, op string, name entity.Name, id string, expected int64, patch entity.Record) (entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patch = entity.Canonicalize(patch)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, notFound(op, name, id)
	}
	current, ok := t.rows[id]
	if !ok {
		return nil, notFound(op, name, id)
	}
	if expected >= 0 && current.Version() != expected {
		return nil, shared.NewDomainError("store", op, shared.ErrConcurrentModification,
			fmt.Sprintf("%s %s: version %d, expected %d", name, id, current.Version(), expected))
	}

	next := current.Clone()
	for k, v := range patch {
		switch k {
		case entity.KeyID, entity.KeyVersion, entity.KeyCreatedAt, entity.KeyUpdatedAt:
			continue
		}
		next[k] = v
	}
	next[entity.KeyVersion] = current.Version() + 1
	next[entity.KeyUpdatedAt] = s.now()

	t.rows[id] = next
	return next.Clone(), nil
}

func notFound(op string, name entity.Name, id string) error {
	return shared.NewDomainError("store", op, shared.ErrNotFound, fmt.Sprintf("%s %s not found", name, id))
}

func matches(rec entity.Record, where entity.Where) bool {
	for k, want := range where {
		if !valuesEqual(rec[k], want) {
			return false
		}
	}
	return true
}

// valuesEqual compares loosely typed field values: numbers by value,
// everything else by its printed form.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aNum := entity.Record{"v": a}.FloatOK("v")
	fb, bNum := entity.Record{"v": b}.FloatOK("v")
	_, aStr := a.(string)
	_, bStr := b.(string)
	if aNum && bNum && !aStr && !bStr {
		return math.Abs(fa-fb) < 1e-9
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
