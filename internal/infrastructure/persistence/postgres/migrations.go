package postgres

// Migrations returns all embedded migrations in order.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_entity_records",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "index_hot_lookups",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ENTITY RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One table for every entity of the hosted record store.
CREATE TABLE IF NOT EXISTS entity_records (
    entity TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL DEFAULT '{}'::jsonb,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (entity, id),
    CONSTRAINT valid_version CHECK (version >= 1)
);

-- Containment filters (data @> '{...}')
CREATE INDEX IF NOT EXISTS idx_entity_records_data ON entity_records USING GIN (data jsonb_path_ops);
CREATE INDEX IF NOT EXISTS idx_entity_records_created ON entity_records(entity, created_at, id);
`

const migration001Down = `
DROP TABLE IF EXISTS entity_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: HOT LOOKUPS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Per-student reads dominate: ledger rows, log entries, blocks, backpack.
CREATE INDEX IF NOT EXISTS idx_entity_records_student
    ON entity_records(entity, (data->>'student_id'))
    WHERE data ? 'student_id';

CREATE INDEX IF NOT EXISTS idx_entity_records_alumno
    ON entity_records(entity, (data->>'alumno_id'))
    WHERE data ? 'alumno_id';

-- Retry-safe ledger appends are keyed by event.
CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_event_key
    ON entity_records((data->>'student_id'), (data->>'event_key'))
    WHERE entity = 'XPLedgerEntry' AND data->>'event_key' <> '';
`

const migration002Down = `
DROP INDEX IF EXISTS uq_ledger_event_key;
DROP INDEX IF EXISTS idx_entity_records_alumno;
DROP INDEX IF EXISTS idx_entity_records_student;
`
