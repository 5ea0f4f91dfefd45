// Package resolve merges extracted entity mentions into canonical entity
// records and maintains alias sets.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"lattice/internal/extract"
	"lattice/internal/logging"
	"lattice/internal/store"
)

// honorifics are stripped from the front of person surface forms before
// normalization. "Dr. Jane Roe" and "Jane Roe" resolve to the same key.
var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "mx": true,
	"dr": true, "prof": true, "sir": true, "dame": true, "lord": true,
	"rev": true, "fr": true, "col": true, "gen": true, "capt": true, "lt": true,
}

// MergeWarning records an ambiguous resolution: a surface form matched two
// or more distinct existing entities. The mention was attached to ChosenID
// (highest prior mention count) with low confidence; an analyst reviews it.
// The resolver never silently merges two distinct identities.
type MergeWarning struct {
	DocumentID   string
	SurfaceText  string
	CandidateIDs []string
	ChosenID     string
}

func (w MergeWarning) String() string {
	return fmt.Sprintf("ambiguous mention %q in %s: candidates %v, attached to %s",
		w.SurfaceText, w.DocumentID, w.CandidateIDs, w.ChosenID)
}

// Resolver resolves mentions against the entity registry. Updates to a
// given entity are serialized through a keyed lock so concurrent workers
// never lose a merge.
type Resolver struct {
	gw  store.Store
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Resolver backed by gw.
func New(gw store.Store) *Resolver {
	return &Resolver{gw: gw, log: logging.New("resolve"), locks: make(map[string]*sync.Mutex)}
}

// Normalize reduces a surface form to its matching key: case-folded,
// honorifics stripped, whitespace collapsed, trailing punctuation dropped.
func Normalize(surface string) string {
	s := strings.ToLower(strings.TrimSpace(surface))
	s = strings.Trim(s, ".,;:!?\"'")
	fields := strings.Fields(s)
	for len(fields) > 0 {
		first := strings.TrimRight(fields[0], ".")
		if !honorifics[first] {
			break
		}
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// EntityID builds the deterministic registry key for a normalized name.
// Deterministic IDs make entity identity stable across investigations,
// which the cross-report audit pass depends on.
func EntityID(entityType, normalized string) string {
	if entityType == "" {
		entityType = "other"
	}
	return entityType + ":" + normalized
}

// Resolve attaches every candidate mention in doc to a canonical entity,
// creating entities for unseen names. Every touched entity is persisted.
// Ambiguous mentions produce warnings but never block the batch.
func (r *Resolver) Resolve(ctx context.Context, doc *store.Document, mentions []extract.Mention) ([]*store.Entity, []MergeWarning, error) {
	if doc == nil {
		return nil, nil, fmt.Errorf("resolve: document is nil")
	}
	var warnings []MergeWarning
	updated := make(map[string]*store.Entity)

	for _, m := range mentions {
		norm := Normalize(m.SurfaceText)
		if norm == "" {
			continue
		}
		key := norm
		if m.Hint != "" {
			key = Normalize(m.Hint)
		}

		candidates, err := r.candidates(ctx, m, norm, key)
		if err != nil {
			return nil, nil, err
		}

		var target string
		switch len(candidates) {
		case 0:
			target = EntityID(m.Type, key)
		case 1:
			target = candidates[0].ID
		default:
			// Shared nickname across distinct identities: attach to the
			// entity with the highest prior mention count and flag it.
			sort.Slice(candidates, func(i, j int) bool {
				if candidates[i].MentionCount != candidates[j].MentionCount {
					return candidates[i].MentionCount > candidates[j].MentionCount
				}
				return candidates[i].ID < candidates[j].ID
			})
			target = candidates[0].ID
			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			w := MergeWarning{
				DocumentID:   doc.ID,
				SurfaceText:  m.SurfaceText,
				CandidateIDs: ids,
				ChosenID:     target,
			}
			warnings = append(warnings, w)
			r.log.Warn("ambiguous mention, low-confidence attach",
				"surface", m.SurfaceText, "chosen", target, "candidates", len(ids))
		}

		delta := &store.Entity{
			ID:            target,
			Type:          m.Type,
			CanonicalName: key,
			Aliases:       []string{m.SurfaceText},
			MentionCount:  1,
			FirstSeen:     doc.CollectedAt,
			Documents:     []string{doc.ID},
		}
		if delta.Type == "" {
			delta.Type = "other"
		}

		merged, err := r.merge(ctx, delta)
		if err != nil {
			return nil, nil, err
		}
		updated[merged.ID] = merged
	}

	out := make([]*store.Entity, 0, len(updated))
	for _, e := range updated {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, warnings, nil
}

// candidates finds the existing entities a mention could attach to:
// exact registry key, hint key, then alias set membership.
func (r *Resolver) candidates(ctx context.Context, m extract.Mention, norm, key string) ([]*store.Entity, error) {
	seen := make(map[string]*store.Entity)
	for _, id := range []string{EntityID(m.Type, key), EntityID(m.Type, norm)} {
		e, err := r.gw.GetEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lookup entity %s: %w", id, err)
		}
		if e != nil {
			seen[e.ID] = e
		}
	}
	byAlias, err := r.gw.FindEntitiesByAlias(ctx, m.SurfaceText)
	if err != nil {
		return nil, fmt.Errorf("lookup alias %q: %w", m.SurfaceText, err)
	}
	for _, e := range byAlias {
		if e.Type == m.Type || m.Type == "" {
			seen[e.ID] = e
		}
	}
	out := make([]*store.Entity, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// merge serializes per-entity updates so concurrent workers accumulate via
// merge, never read-modify-write on a stale snapshot.
func (r *Resolver) merge(ctx context.Context, delta *store.Entity) (*store.Entity, error) {
	r.mu.Lock()
	lock, ok := r.locks[delta.ID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[delta.ID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	merged, err := r.gw.MergeEntity(ctx, delta)
	if err != nil {
		return nil, fmt.Errorf("merge entity %s: %w", delta.ID, err)
	}
	return merged, nil
}
