package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// EntityStore implements entity.Store over the entity_records table.
type EntityStore struct {
	db Querier
}

// NewEntityStore creates a store on a connection or transaction.
func NewEntityStore(db Querier) *EntityStore {
	return &EntityStore{db: db}
}

var _ entity.Store = (*EntityStore)(nil)

const selectColumns = "id, data, version, created_at, updated_at"

// Get returns one record by id.
func (s *EntityStore) Get(ctx context.Context, name entity.Name, id string) (entity.Record, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+selectColumns+" FROM entity_records WHERE entity = $1 AND id = $2",
		string(name), id)

	rec, err := scanRecord(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, notFound("Get", name, id)
		}
		return nil, storeFailure("Get", name, err)
	}
	return rec, nil
}

// List returns every record of the entity in creation order.
func (s *EntityStore) List(ctx context.Context, name entity.Name) ([]entity.Record, error) {
	return s.Filter(ctx, name, nil)
}

// Filter returns records matching every equality predicate. The id predicate
// is routed to its column; everything else becomes a JSONB containment test.
func (s *EntityStore) Filter(ctx context.Context, name entity.Name, where entity.Where) ([]entity.Record, error) {
	query, args, err := buildFilter(name, where)
	if err != nil {
		return nil, shared.WrapError("store", "Filter", shared.ErrInvalidInput, "bad filter", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeFailure("Filter", name, err)
	}
	defer rows.Close()

	out := make([]entity.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeFailure("Filter", name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailure("Filter", name, err)
	}
	return out, nil
}

// Create inserts a record with version 1, generating an id when absent.
func (s *EntityStore) Create(ctx context.Context, name entity.Name, rec entity.Record) (entity.Record, error) {
	rec = entity.Canonicalize(rec)
	id := rec.ID()
	if id == "" {
		id = uuid.NewString()
	}

	data, err := encodeData(rec)
	if err != nil {
		return nil, shared.WrapError("store", "Create", shared.ErrInvalidInput, "unencodable record", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO entity_records (entity, id, data, version, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, 1, NOW(), NOW())
		RETURNING `+selectColumns,
		string(name), id, data)

	created, err := scanRecord(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, shared.NewDomainError("store", "Create", shared.ErrAlreadyExists,
				fmt.Sprintf("%s %s already exists", name, id))
		}
		return nil, storeFailure("Create", name, err)
	}
	return created, nil
}

// Update merges patch into the stored data unconditionally.
func (s *EntityStore) Update(ctx context.Context, name entity.Name, id string, patch entity.Record) (entity.Record, error) {
	data, err := encodeData(entity.Canonicalize(patch))
	if err != nil {
		return nil, shared.WrapError("store", "Update", shared.ErrInvalidInput, "unencodable patch", err)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE entity_records
		SET data = data || $3::jsonb, version = version + 1, updated_at = NOW()
		WHERE entity = $1 AND id = $2
		RETURNING `+selectColumns,
		string(name), id, data)

	updated, err := scanRecord(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, notFound("Update", name, id)
		}
		return nil, storeFailure("Update", name, err)
	}
	return updated, nil
}

// CompareAndUpdate merges patch only while the stored version equals
// expectedVersion. A lost race reports shared.ErrConcurrentModification.
func (s *EntityStore) CompareAndUpdate(ctx context.Context, name entity.Name, id string, expectedVersion int64, patch entity.Record) (entity.Record, error) {
	data, err := encodeData(entity.Canonicalize(patch))
	if err != nil {
		return nil, shared.WrapError("store", "CompareAndUpdate", shared.ErrInvalidInput, "unencodable patch", err)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE entity_records
		SET data = data || $3::jsonb, version = version + 1, updated_at = NOW()
		WHERE entity = $1 AND id = $2 AND version = $4
		RETURNING `+selectColumns,
		string(name), id, data, expectedVersion)

	updated, err := scanRecord(row)
	if err == nil {
		return updated, nil
	}
	if !IsNoRows(err) {
		return nil, storeFailure("CompareAndUpdate", name, err)
	}

	// Either the row is gone or someone else bumped the version.
	var current int64
	err = s.db.QueryRow(ctx,
		"SELECT version FROM entity_records WHERE entity = $1 AND id = $2",
		string(name), id).Scan(&current)
	if err != nil {
		if IsNoRows(err) {
			return nil, notFound("CompareAndUpdate", name, id)
		}
		return nil, storeFailure("CompareAndUpdate", name, err)
	}
	return nil, shared.NewDomainError("store", "CompareAndUpdate", shared.ErrConcurrentModification,
		fmt.Sprintf("%s %s: version %d, expected %d", name, id, current, expectedVersion))
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func buildFilter(name entity.Name, where entity.Where) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + selectColumns + " FROM entity_records WHERE entity = $1")
	args := []any{string(name)}

	where = entity.CanonicalWhere(where)
	contains := make(map[string]any, len(where))
	for k, v := range where {
		if k == entity.KeyID {
			args = append(args, fmt.Sprint(v))
			fmt.Fprintf(&sb, " AND id = $%d", len(args))
			continue
		}
		contains[k] = v
	}
	if len(contains) > 0 {
		payload, err := json.Marshal(contains)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, string(payload))
		fmt.Fprintf(&sb, " AND (data @> $%d::jsonb", len(args))

		// Rows written by clients that keep camelCase keys.
		legacy := make(map[string]any, len(contains))
		for k, v := range contains {
			legacy[entity.CamelKey(k)] = v
		}
		if alt, err := json.Marshal(legacy); err == nil && string(alt) != string(payload) {
			args = append(args, string(alt))
			fmt.Fprintf(&sb, " OR data @> $%d::jsonb", len(args))
		}
		sb.WriteString(")")
	}
	sb.WriteString(" ORDER BY created_at, id")
	return sb.String(), args, nil
}

// encodeData serializes the non-reserved fields. Reserved keys live in columns.
func encodeData(rec entity.Record) (string, error) {
	data := make(map[string]any, len(rec))
	for k, v := range rec {
		switch k {
		case entity.KeyID, entity.KeyVersion, entity.KeyCreatedAt, entity.KeyUpdatedAt:
			continue
		}
		data[k] = v
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRecord(id string, data []byte, version int64, createdAt, updatedAt time.Time) (entity.Record, error) {
	rec := entity.Record{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		// Rows written before key normalization may carry camelCase keys.
		rec = entity.Canonicalize(rec)
	}
	rec[entity.KeyID] = id
	rec[entity.KeyVersion] = version
	rec[entity.KeyCreatedAt] = createdAt.UTC()
	rec[entity.KeyUpdatedAt] = updatedAt.UTC()
	return rec, nil
}

func scanRecord(row pgx.Row) (entity.Record, error) {
	var (
		id                   string
		data                 []byte
		version              int64
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &data, &version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return decodeRecord(id, data, version, createdAt, updatedAt)
}

func notFound(op string, name entity.Name, id string) error {
	return shared.NewDomainError("store", op, shared.ErrNotFound, fmt.Sprintf("%s %s not found", name, id))
}

// storeFailure classifies a driver error. Serialization and deadlock aborts
// are reported as conflicts so command retriers run them again.
func storeFailure(op string, name entity.Name, err error) error {
	if IsSerializationFailure(err) {
		return shared.WrapError("store", op, shared.ErrConcurrentModification, string(name), err)
	}
	return shared.WrapError("store", op, shared.ErrStoreFailure, string(name), err)
}
