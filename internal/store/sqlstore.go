package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nilIfEmpty passes nil for empty optional TEXT params.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func encodeSet(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeSet(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .lattice) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Serialized writes; merges run inside immediate transactions.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v > schemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", v, schemaVersion)
	}
	return nil
}

// Close closes the underlying DB.
func (s *SqlStore) Close() error { return s.db.Close() }

// --- Documents ---

func (s *SqlStore) PutDocument(ctx context.Context, doc *Document) (bool, error) {
	if doc == nil {
		return false, errors.New("document is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin put document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents(id, source_url, source_type, source_file, data_type, trust_tier,
		        title, body, collected_at, published_at, report_ids_json, raw_payload)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		doc.ID, doc.SourceURL, doc.SourceType, nilIfEmpty(doc.SourceFile), nilIfEmpty(doc.DataType),
		string(doc.TrustTier), nilIfEmpty(doc.Title), doc.Body, doc.CollectedAt,
		nilIfEmpty(doc.PublishedAt), encodeSet(doc.ReportIDs), doc.RawPayload,
	)
	if err != nil {
		return false, fmt.Errorf("insert document: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit put document: %w", err)
		}
		return true, nil
	}

	// Duplicate: union in the new report IDs, leave everything else untouched.
	var existing string
	if err := tx.QueryRowContext(ctx,
		"SELECT report_ids_json FROM documents WHERE id = ?", doc.ID,
	).Scan(&existing); err != nil {
		return false, fmt.Errorf("read duplicate document: %w", err)
	}
	merged := mergeSet(decodeSet(existing), doc.ReportIDs)
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET report_ids_json = ? WHERE id = ?", encodeSet(merged), doc.ID,
	); err != nil {
		return false, fmt.Errorf("merge document reports: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit document merge: %w", err)
	}
	return false, nil
}

const documentCols = `id, source_url, source_type, source_file, data_type, trust_tier,
	        title, body, collected_at, published_at, report_ids_json, raw_payload`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	var d Document
	var sourceFile, dataType, title, publishedAt sql.NullString
	var tier, reports string
	if err := row.Scan(&d.ID, &d.SourceURL, &d.SourceType, &sourceFile, &dataType, &tier,
		&title, &d.Body, &d.CollectedAt, &publishedAt, &reports, &d.RawPayload); err != nil {
		return nil, err
	}
	d.SourceFile = nullStr(sourceFile)
	d.DataType = nullStr(dataType)
	d.Title = nullStr(title)
	d.PublishedAt = nullStr(publishedAt)
	d.TrustTier = Tier(tier)
	d.ReportIDs = decodeSet(reports)
	return &d, nil
}

func (s *SqlStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentCols+" FROM documents WHERE id = ?", id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *SqlStore) ListDocumentsByReport(ctx context.Context, reportID string) ([]*Document, error) {
	// report_ids_json is a JSON array; match the quoted element.
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentCols+` FROM documents WHERE report_ids_json LIKE ? ORDER BY id`,
		"%\""+reportID+"\"%",
	)
	if err != nil {
		return nil, fmt.Errorf("list documents by report: %w", err)
	}
	defer rows.Close()
	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Trust records ---

func (s *SqlStore) PutTrustRecord(ctx context.Context, rec *TrustRecord) error {
	if rec == nil {
		return errors.New("trust record is nil")
	}
	if rec.UpdatedAt == "" {
		rec.UpdatedAt = nowUTC()
	}
	if rec.VerificationStatus == "" {
		rec.VerificationStatus = "pending"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trust_records(document_id, tier, verification_status, overridden_by, override_note, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_id) DO NOTHING`,
		rec.DocumentID, string(rec.Tier), rec.VerificationStatus,
		nilIfEmpty(rec.OverriddenBy), nilIfEmpty(rec.OverrideNote), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trust record: %w", err)
	}
	return nil
}

func (s *SqlStore) GetTrustRecord(ctx context.Context, documentID string) (*TrustRecord, error) {
	var r TrustRecord
	var tier string
	var by, note sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, tier, verification_status, overridden_by, override_note, updated_at
		 FROM trust_records WHERE document_id = ?`, documentID,
	).Scan(&r.DocumentID, &tier, &r.VerificationStatus, &by, &note, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trust record: %w", err)
	}
	r.Tier = Tier(tier)
	r.OverriddenBy = nullStr(by)
	r.OverrideNote = nullStr(note)
	return &r, nil
}

func (s *SqlStore) OverrideTier(ctx context.Context, documentID string, tier Tier, analyst, note string) error {
	if !ValidTier(tier) {
		return fmt.Errorf("invalid tier %q", tier)
	}
	if analyst == "" {
		return errors.New("tier override requires an analyst identity")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE trust_records SET tier = ?, overridden_by = ?, override_note = ?, updated_at = ?
		 WHERE document_id = ?`,
		string(tier), analyst, nilIfEmpty(note), nowUTC(), documentID,
	)
	if err != nil {
		return fmt.Errorf("override tier: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("trust record for document %s not found", documentID)
	}
	return nil
}

// --- Entities ---

const entityCols = "id, type, canonical_name, aliases_json, mention_count, first_seen, documents_json"

func scanEntity(row interface{ Scan(...interface{}) error }) (*Entity, error) {
	var e Entity
	var aliases, docs string
	var firstSeen sql.NullString
	if err := row.Scan(&e.ID, &e.Type, &e.CanonicalName, &aliases, &e.MentionCount, &firstSeen, &docs); err != nil {
		return nil, err
	}
	e.Aliases = decodeSet(aliases)
	e.FirstSeen = nullStr(firstSeen)
	e.Documents = decodeSet(docs)
	return &e, nil
}

func (s *SqlStore) MergeEntity(ctx context.Context, delta *Entity) (*Entity, error) {
	if delta == nil {
		return nil, errors.New("entity is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge entity: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, "SELECT "+entityCols+" FROM entities WHERE id = ?", delta.ID)
	cur, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities(id, type, canonical_name, aliases_json, mention_count, first_seen, documents_json)
			 VALUES(?, ?, ?, ?, ?, ?, ?)`,
			delta.ID, delta.Type, delta.CanonicalName, encodeSet(delta.Aliases),
			delta.MentionCount, nilIfEmpty(delta.FirstSeen), encodeSet(delta.Documents),
		); err != nil {
			return nil, fmt.Errorf("insert entity: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit insert entity: %w", err)
		}
		cp := *delta
		return &cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read entity for merge: %w", err)
	}

	cur.Aliases = mergeSet(cur.Aliases, delta.Aliases)
	cur.Documents = mergeSet(cur.Documents, delta.Documents)
	cur.MentionCount += delta.MentionCount
	cur.FirstSeen = minTime(cur.FirstSeen, delta.FirstSeen)
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET aliases_json = ?, mention_count = ?, first_seen = ?, documents_json = ?
		 WHERE id = ?`,
		encodeSet(cur.Aliases), cur.MentionCount, nilIfEmpty(cur.FirstSeen), encodeSet(cur.Documents), cur.ID,
	); err != nil {
		return nil, fmt.Errorf("update entity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge entity: %w", err)
	}
	return cur, nil
}

func (s *SqlStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entityCols+" FROM entities WHERE id = ?", id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func (s *SqlStore) FindEntitiesByAlias(ctx context.Context, alias string) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entityCols+` FROM entities WHERE aliases_json LIKE ? ORDER BY id`,
		"%"+jsonElem(alias)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("find entities by alias: %w", err)
	}
	defer rows.Close()
	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		// LIKE over JSON text is a prefilter; confirm the exact alias.
		if containsString(e.Aliases, alias) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

func (s *SqlStore) ListEntities(ctx context.Context) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+entityCols+" FROM entities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()
	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SqlStore) ListEntitiesByReport(ctx context.Context, reportID string) ([]*Entity, error) {
	docs, err := s.ListDocumentsByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	inReport := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		inReport[d.ID] = struct{}{}
	}
	all, err := s.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Entity
	for _, e := range all {
		for _, docID := range e.Documents {
			if _, ok := inReport[docID]; ok {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// --- Relationships ---

const relationshipCols = "id, source_id, target_id, type, directed, weight, first_seen, documents_json"

func scanRelationship(row interface{ Scan(...interface{}) error }) (*Relationship, error) {
	var r Relationship
	var directed int
	var firstSeen sql.NullString
	var docs string
	if err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &directed, &r.Weight, &firstSeen, &docs); err != nil {
		return nil, err
	}
	r.Directed = directed == 1
	r.FirstSeen = nullStr(firstSeen)
	r.Documents = decodeSet(docs)
	return &r, nil
}

func (s *SqlStore) MergeRelationship(ctx context.Context, delta *Relationship) (*Relationship, error) {
	if delta == nil {
		return nil, errors.New("relationship is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge relationship: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, "SELECT "+relationshipCols+" FROM relationships WHERE id = ?", delta.ID)
	cur, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		directed := 0
		if delta.Directed {
			directed = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO relationships(id, source_id, target_id, type, directed, weight, first_seen, documents_json)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			delta.ID, delta.SourceID, delta.TargetID, delta.Type, directed,
			delta.Weight, nilIfEmpty(delta.FirstSeen), encodeSet(delta.Documents),
		); err != nil {
			return nil, fmt.Errorf("insert relationship: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit insert relationship: %w", err)
		}
		cp := *delta
		return &cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read relationship for merge: %w", err)
	}

	cur.Weight += delta.Weight
	cur.Documents = mergeSet(cur.Documents, delta.Documents)
	cur.FirstSeen = minTime(cur.FirstSeen, delta.FirstSeen)
	if _, err := tx.ExecContext(ctx,
		"UPDATE relationships SET weight = ?, first_seen = ?, documents_json = ? WHERE id = ?",
		cur.Weight, nilIfEmpty(cur.FirstSeen), encodeSet(cur.Documents), cur.ID,
	); err != nil {
		return nil, fmt.Errorf("update relationship: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge relationship: %w", err)
	}
	return cur, nil
}

func (s *SqlStore) ListRelationships(ctx context.Context) ([]*Relationship, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+relationshipCols+" FROM relationships ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

func (s *SqlStore) ListRelationshipsForEntity(ctx context.Context, entityID string) ([]*Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+relationshipCols+" FROM relationships WHERE source_id = ? OR target_id = ? ORDER BY id",
		entityID, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list relationships for entity: %w", err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

func collectRelationships(rows *sql.Rows) ([]*Relationship, error) {
	var out []*Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Events ---

const eventCols = `id, key, entity_key, description, timestamp, confidence, status,
	        is_primary, alternative_of, documents_json, report_id`

func scanEvent(row interface{ Scan(...interface{}) error }) (*Event, error) {
	var e Event
	var entityKey, desc, altOf, reportID sql.NullString
	var primary int
	var docs string
	if err := row.Scan(&e.ID, &e.Key, &entityKey, &desc, &e.Timestamp, &e.Confidence, &e.Status,
		&primary, &altOf, &docs, &reportID); err != nil {
		return nil, err
	}
	e.EntityKey = nullStr(entityKey)
	e.Description = nullStr(desc)
	e.Primary = primary == 1
	e.AlternativeOf = nullStr(altOf)
	e.Documents = decodeSet(docs)
	e.ReportID = nullStr(reportID)
	return &e, nil
}

func (s *SqlStore) PutEvent(ctx context.Context, ev *Event) error {
	if ev == nil {
		return errors.New("event is nil")
	}
	primary := 0
	if ev.Primary {
		primary = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, key, entity_key, description, timestamp, confidence, status,
		        is_primary, alternative_of, documents_json, report_id)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		        confidence = excluded.confidence, status = excluded.status,
		        is_primary = excluded.is_primary, alternative_of = excluded.alternative_of,
		        documents_json = excluded.documents_json`,
		ev.ID, ev.Key, nilIfEmpty(ev.EntityKey), nilIfEmpty(ev.Description), ev.Timestamp,
		ev.Confidence, ev.Status, primary, nilIfEmpty(ev.AlternativeOf),
		encodeSet(ev.Documents), nilIfEmpty(ev.ReportID),
	)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

func (s *SqlStore) ListEvents(ctx context.Context) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+eventCols+" FROM events ORDER BY timestamp, id")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *SqlStore) ListEventsByReport(ctx context.Context, reportID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventCols+" FROM events WHERE report_id = ? ORDER BY timestamp, id", reportID)
	if err != nil {
		return nil, fmt.Errorf("list events by report: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Alerts ---

func (s *SqlStore) PutAlert(ctx context.Context, a *Alert) error {
	if a == nil {
		return errors.New("alert is nil")
	}
	if a.CreatedAt == "" {
		a.CreatedAt = nowUTC()
	}
	// Alerts are write-once; re-putting the same ID is a no-op.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts(id, kind, entity_ids_json, report_ids_json, evidence_json, confidence, supersedes, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		a.ID, a.Kind, encodeSet(a.EntityIDs), encodeSet(a.ReportIDs), encodeSet(a.Evidence),
		a.Confidence, nilIfEmpty(a.Supersedes), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put alert: %w", err)
	}
	return nil
}

func (s *SqlStore) ListAlerts(ctx context.Context) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, entity_ids_json, report_ids_json, evidence_json, confidence, supersedes, created_at
		 FROM alerts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	var out []*Alert
	for rows.Next() {
		var a Alert
		var entities, reports, evidence string
		var supersedes sql.NullString
		if err := rows.Scan(&a.ID, &a.Kind, &entities, &reports, &evidence, &a.Confidence, &supersedes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.EntityIDs = decodeSet(entities)
		a.ReportIDs = decodeSet(reports)
		a.Evidence = decodeSet(evidence)
		a.Supersedes = nullStr(supersedes)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// --- Reports ---

func (s *SqlStore) ListReports(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT report_ids_json FROM documents")
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	var all []string
	for rows.Next() {
		var reports string
		if err := rows.Scan(&reports); err != nil {
			return nil, fmt.Errorf("scan report ids: %w", err)
		}
		all = mergeSet(all, decodeSet(reports))
	}
	return all, rows.Err()
}

// jsonElem renders a string the way encoding/json embeds it in an array,
// for LIKE prefilters over *_json columns.
func jsonElem(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
