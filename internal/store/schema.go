package store

// schemaVersion is the current schema version.
const schemaVersion = 1

// JSON-encoded string arrays live in the *_json TEXT columns; merges happen
// in Go inside an immediate transaction, so each write stays atomic.
var schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	source_url    TEXT NOT NULL,
	source_type   TEXT NOT NULL,
	source_file   TEXT,
	data_type     TEXT,
	trust_tier    TEXT NOT NULL,
	title         TEXT,
	body          TEXT NOT NULL,
	collected_at  TEXT NOT NULL,
	published_at  TEXT,
	report_ids_json TEXT NOT NULL DEFAULT '[]',
	raw_payload   BLOB
);

CREATE TABLE IF NOT EXISTS trust_records (
	document_id         TEXT PRIMARY KEY REFERENCES documents(id),
	tier                TEXT NOT NULL,
	verification_status TEXT NOT NULL DEFAULT 'pending',
	overridden_by       TEXT,
	override_note       TEXT,
	updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	aliases_json   TEXT NOT NULL DEFAULT '[]',
	mention_count  INTEGER NOT NULL DEFAULT 0,
	first_seen     TEXT,
	documents_json TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT PRIMARY KEY,
	source_id      TEXT NOT NULL REFERENCES entities(id),
	target_id      TEXT NOT NULL REFERENCES entities(id),
	type           TEXT NOT NULL,
	directed       INTEGER NOT NULL DEFAULT 0,
	weight         INTEGER NOT NULL DEFAULT 0,
	first_seen     TEXT,
	documents_json TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	key            TEXT NOT NULL,
	entity_key     TEXT,
	description    TEXT,
	timestamp      TEXT NOT NULL,
	confidence     REAL NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	is_primary     INTEGER NOT NULL DEFAULT 0,
	alternative_of TEXT,
	documents_json TEXT NOT NULL DEFAULT '[]',
	report_id      TEXT
);

CREATE TABLE IF NOT EXISTS alerts (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	entity_ids_json TEXT NOT NULL DEFAULT '[]',
	report_ids_json TEXT NOT NULL DEFAULT '[]',
	evidence_json  TEXT NOT NULL DEFAULT '[]',
	confidence     REAL NOT NULL DEFAULT 0,
	supersedes     TEXT,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_key ON events(key);
CREATE INDEX IF NOT EXISTS idx_events_report ON events(report_id);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
`
