package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MemStore implements Store in memory. Used in tests and for dry runs.
// All methods copy records on the way in and out so callers never share
// mutable state with the store.
type MemStore struct {
	mu            sync.Mutex
	documents     map[string]*Document
	trustRecords  map[string]*TrustRecord
	entities      map[string]*Entity
	relationships map[string]*Relationship
	events        map[string]*Event
	alerts        map[string]*Alert
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		documents:     make(map[string]*Document),
		trustRecords:  make(map[string]*TrustRecord),
		entities:      make(map[string]*Entity),
		relationships: make(map[string]*Relationship),
		events:        make(map[string]*Event),
		alerts:        make(map[string]*Alert),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

func copyDocument(d *Document) *Document {
	cp := *d
	cp.ReportIDs = append([]string(nil), d.ReportIDs...)
	cp.RawPayload = append([]byte(nil), d.RawPayload...)
	return &cp
}

func copyEntity(e *Entity) *Entity {
	cp := *e
	cp.Aliases = append([]string(nil), e.Aliases...)
	cp.Documents = append([]string(nil), e.Documents...)
	return &cp
}

func copyRelationship(r *Relationship) *Relationship {
	cp := *r
	cp.Documents = append([]string(nil), r.Documents...)
	return &cp
}

func copyEvent(e *Event) *Event {
	cp := *e
	cp.Documents = append([]string(nil), e.Documents...)
	return &cp
}

func copyAlert(a *Alert) *Alert {
	cp := *a
	cp.EntityIDs = append([]string(nil), a.EntityIDs...)
	cp.ReportIDs = append([]string(nil), a.ReportIDs...)
	cp.Evidence = append([]string(nil), a.Evidence...)
	return &cp
}

// --- Documents ---

func (s *MemStore) PutDocument(_ context.Context, doc *Document) (bool, error) {
	if doc == nil {
		return false, errors.New("document is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.documents[doc.ID]; ok {
		cur.ReportIDs = mergeSet(cur.ReportIDs, doc.ReportIDs)
		return false, nil
	}
	s.documents[doc.ID] = copyDocument(doc)
	return true, nil
}

func (s *MemStore) GetDocument(_ context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, nil
	}
	return copyDocument(d), nil
}

func (s *MemStore) ListDocumentsByReport(_ context.Context, reportID string) ([]*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Document
	for _, d := range s.documents {
		if containsString(d.ReportIDs, reportID) {
			out = append(out, copyDocument(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Trust records ---

func (s *MemStore) PutTrustRecord(_ context.Context, rec *TrustRecord) error {
	if rec == nil {
		return errors.New("trust record is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trustRecords[rec.DocumentID]; ok {
		return nil // tier is immutable outside OverrideTier
	}
	cp := *rec
	if cp.UpdatedAt == "" {
		cp.UpdatedAt = nowUTC()
	}
	if cp.VerificationStatus == "" {
		cp.VerificationStatus = "pending"
	}
	s.trustRecords[rec.DocumentID] = &cp
	return nil
}

func (s *MemStore) GetTrustRecord(_ context.Context, documentID string) (*TrustRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.trustRecords[documentID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) OverrideTier(_ context.Context, documentID string, tier Tier, analyst, note string) error {
	if !ValidTier(tier) {
		return fmt.Errorf("invalid tier %q", tier)
	}
	if analyst == "" {
		return errors.New("tier override requires an analyst identity")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.trustRecords[documentID]
	if !ok {
		return fmt.Errorf("trust record for document %s not found", documentID)
	}
	r.Tier = tier
	r.OverriddenBy = analyst
	r.OverrideNote = note
	r.UpdatedAt = nowUTC()
	return nil
}

// --- Entities ---

func (s *MemStore) MergeEntity(_ context.Context, delta *Entity) (*Entity, error) {
	if delta == nil {
		return nil, errors.New("entity is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entities[delta.ID]
	if !ok {
		s.entities[delta.ID] = copyEntity(delta)
		return copyEntity(delta), nil
	}
	cur.Aliases = mergeSet(cur.Aliases, delta.Aliases)
	cur.Documents = mergeSet(cur.Documents, delta.Documents)
	cur.MentionCount += delta.MentionCount
	cur.FirstSeen = minTime(cur.FirstSeen, delta.FirstSeen)
	return copyEntity(cur), nil
}

func (s *MemStore) GetEntity(_ context.Context, id string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	return copyEntity(e), nil
}

func (s *MemStore) FindEntitiesByAlias(_ context.Context, alias string) ([]*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Entity
	for _, e := range s.entities {
		if containsString(e.Aliases, alias) {
			out = append(out, copyEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ListEntities(_ context.Context) ([]*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ListEntitiesByReport(ctx context.Context, reportID string) ([]*Entity, error) {
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

func (s *MemStore) MergeRelationship(_ context.Context, delta *Relationship) (*Relationship, error) {
	if delta == nil {
		return nil, errors.New("relationship is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.relationships[delta.ID]
	if !ok {
		s.relationships[delta.ID] = copyRelationship(delta)
		return copyRelationship(delta), nil
	}
	cur.Weight += delta.Weight
	cur.Documents = mergeSet(cur.Documents, delta.Documents)
	cur.FirstSeen = minTime(cur.FirstSeen, delta.FirstSeen)
	return copyRelationship(cur), nil
}

func (s *MemStore) ListRelationships(_ context.Context) ([]*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Relationship, 0, len(s.relationships))
	for _, r := range s.relationships {
		out = append(out, copyRelationship(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ListRelationshipsForEntity(_ context.Context, entityID string) ([]*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Relationship
	for _, r := range s.relationships {
		if r.SourceID == entityID || r.TargetID == entityID {
			out = append(out, copyRelationship(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Events ---

func (s *MemStore) PutEvent(_ context.Context, ev *Event) error {
	if ev == nil {
		return errors.New("event is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = copyEvent(ev)
	return nil
}

func (s *MemStore) ListEvents(_ context.Context) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, copyEvent(e))
	}
	sortEvents(out)
	return out, nil
}

func (s *MemStore) ListEventsByReport(_ context.Context, reportID string) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.ReportID == reportID {
			out = append(out, copyEvent(e))
		}
	}
	sortEvents(out)
	return out, nil
}

func sortEvents(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})
}

// --- Alerts ---

func (s *MemStore) PutAlert(_ context.Context, a *Alert) error {
	if a == nil {
		return errors.New("alert is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		return nil // alerts are write-once
	}
	cp := copyAlert(a)
	if cp.CreatedAt == "" {
		cp.CreatedAt = nowUTC()
	}
	s.alerts[a.ID] = cp
	return nil
}

func (s *MemStore) ListAlerts(_ context.Context) ([]*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, copyAlert(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- Reports ---

func (s *MemStore) ListReports(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []string
	for _, d := range s.documents {
		all = mergeSet(all, d.ReportIDs)
	}
	return all, nil
}
