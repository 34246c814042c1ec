// Package realtime implements the in-process search index: a prefix trie
// and tag inverted index for instant lookups, a Bloom filter for cheap
// existence pre-checks, and an external full-text backend for ranked
// retrieval. The index owns the schema and the commit policy; the backend
// owns storage and ranking.
package realtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/index/bloom"
	"github.com/openindex-dev/openindex/internal/index/trie"
)

const (
	// defaultBloomCapacity sizes the filter for a fresh index.
	defaultBloomCapacity = 10000
	// defaultBloomFPR is the target false positive rate.
	defaultBloomFPR = 0.01
	// rebuildFPRCeiling triggers a Bloom rebuild during Optimize.
	rebuildFPRCeiling = 0.05
)

// Option configures an Index.
type Option func(*Index)

// WithBloomCapacity sets the expected document count for the Bloom filter.
func WithBloomCapacity(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.bloomCapacity = n
		}
	}
}

// WithBloomFPR sets the Bloom filter's target false positive rate.
func WithBloomFPR(p float64) Option {
	return func(ix *Index) {
		if p > 0 && p < 1 {
			ix.bloomFPR = p
		}
	}
}

// Index is the real-time search index. All substructures are updated
// together under a single writer lock; reads take the shared lock.
type Index struct {
	mu            sync.RWMutex
	trie          *trie.Trie
	tags          map[string]map[string]struct{}
	bloom         *bloom.Filter
	docs          map[string]domain.SearchDocument
	fulltext      driven.FullTextIndex
	bloomCapacity int
	bloomFPR      float64
	lastUpdate    time.Time
}

// New creates an index over the given full-text backend.
func New(fulltext driven.FullTextIndex, opts ...Option) *Index {
	ix := &Index{
		trie:          trie.New(),
		tags:          make(map[string]map[string]struct{}),
		docs:          make(map[string]domain.SearchDocument),
		fulltext:      fulltext,
		bloomCapacity: defaultBloomCapacity,
		bloomFPR:      defaultBloomFPR,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.bloom = bloom.New(ix.bloomCapacity, ix.bloomFPR)
	return ix
}

// Index adds or replaces a document in every substructure and commits
// the full-text backend so the write is immediately searchable.
func (ix *Index) Index(ctx context.Context, doc domain.SearchDocument) error {
	ix.mu.Lock()
	ix.insertLocked(doc)
	ix.mu.Unlock()

	if err := ix.fulltext.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: adding document %s: %v", domain.ErrIndex, doc.ID, err)
	}
	// Commit after each write keeps reads current; the backend may batch.
	if err := ix.fulltext.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %v", domain.ErrIndex, err)
	}
	if err := ix.fulltext.Reload(); err != nil {
		return fmt.Errorf("%w: reloading reader: %v", domain.ErrIndex, err)
	}
	return nil
}

// Warm restores a document into the in-memory substructures without
// touching the full-text backend. Used on startup to rebuild the trie,
// tag index, and Bloom filter from durable rows the backend already
// holds.
func (ix *Index) Warm(doc domain.SearchDocument) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.insertLocked(doc)
}

// insertLocked adds a document to every in-memory substructure,
// replacing any previous version. Callers hold ix.mu.
func (ix *Index) insertLocked(doc domain.SearchDocument) {
	if prev, ok := ix.docs[doc.ID]; ok {
		ix.removeLocked(prev)
	}

	for _, token := range tokenize(doc.Title + " " + doc.Content) {
		ix.trie.Insert(token, doc.ID)
	}
	for _, tag := range doc.Tags {
		set, ok := ix.tags[tag]
		if !ok {
			set = make(map[string]struct{})
			ix.tags[tag] = set
		}
		set[doc.ID] = struct{}{}
	}
	ix.bloom.Insert(doc.ID)
	ix.docs[doc.ID] = doc
	ix.lastUpdate = time.Now()
}

// Remove deletes a document from every substructure. The Bloom filter
// cannot forget; the stale bit persists until the next rebuild.
func (ix *Index) Remove(ctx context.Context, id string) error {
	ix.mu.Lock()
	doc, ok := ix.docs[id]
	if ok {
		ix.removeLocked(doc)
		delete(ix.docs, id)
		ix.lastUpdate = time.Now()
	}
	ix.mu.Unlock()

	if !ok {
		return nil
	}
	if err := ix.fulltext.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("%w: deleting document %s: %v", domain.ErrIndex, id, err)
	}
	return nil
}

// removeLocked strips a document's tokens and tags. Callers hold ix.mu.
func (ix *Index) removeLocked(doc domain.SearchDocument) {
	for _, token := range tokenize(doc.Title + " " + doc.Content) {
		ix.trie.Remove(token)
	}
	for _, tag := range doc.Tags {
		if set, ok := ix.tags[tag]; ok {
			delete(set, doc.ID)
			if len(set) == 0 {
				delete(ix.tags, tag)
			}
		}
	}
}

// Search runs the three-phase query strategy: trie prefix candidates
// first, a full-text pass when those fall short of limit, then filters,
// with final ordering by descending score.
func (ix *Index) Search(ctx context.Context, query string, limit int, filters *domain.SearchFilters) ([]domain.SearchResult, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	// Phase 1: prefix candidates in frequency order, deduped by id.
	seen := make(map[string]struct{})
	var ordered []domain.SearchResult

	ix.mu.RLock()
	for _, token := range tokenize(query) {
		for _, entry := range ix.trie.SearchPrefix(token) {
			doc, ok := ix.docs[entry.Payload]
			if !ok {
				continue
			}
			if _, dup := seen[doc.ID]; dup {
				continue
			}
			seen[doc.ID] = struct{}{}
			ordered = append(ordered, domain.SearchResult{Document: doc, Score: doc.Score})
		}
	}
	ix.mu.RUnlock()

	// Phase 2: union in full-text hits when the prefix pass fell short.
	if len(ordered) < limit {
		hits, err := ix.fulltext.Search(ctx, query, 2*limit)
		if err != nil {
			return nil, fmt.Errorf("%w: full-text search: %v", domain.ErrIndex, err)
		}
		ix.mu.RLock()
		for _, hit := range hits {
			doc, ok := ix.docs[hit.ID]
			if !ok {
				continue
			}
			if _, dup := seen[doc.ID]; dup {
				continue
			}
			seen[doc.ID] = struct{}{}
			ordered = append(ordered, domain.SearchResult{Document: doc, Score: hit.Score})
		}
		ix.mu.RUnlock()
	}

	// Phase 3: filters.
	if filters != nil {
		filtered := ordered[:0]
		for _, res := range ordered {
			if matchesFilters(res.Document, filters) {
				filtered = append(filtered, res)
			}
		}
		ordered = filtered
	}

	// Phase 4: rank.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

// Autocomplete suggests up to limit completions for prefix.
func (ix *Index) Autocomplete(prefix string, limit int) []string {
	return ix.trie.Autocomplete(strings.ToLower(strings.TrimSpace(prefix)), limit)
}

// SearchByTags ranks documents by the number of matching tags, breaking
// ties by stored score.
func (ix *Index) SearchByTags(tags []string, limit int) []domain.SearchResult {
	if limit <= 0 || len(tags) == 0 {
		return nil
	}

	ix.mu.RLock()
	matches := make(map[string]int)
	for _, tag := range tags {
		for id := range ix.tags[tag] {
			matches[id]++
		}
	}

	results := make([]domain.SearchResult, 0, len(matches))
	counts := make(map[string]int, len(matches))
	for id, count := range matches {
		doc, ok := ix.docs[id]
		if !ok {
			continue
		}
		counts[id] = count
		results = append(results, domain.SearchResult{Document: doc, Score: doc.Score})
	}
	ix.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		ci, cj := counts[results[i].Document.ID], counts[results[j].Document.ID]
		if ci != cj {
			return ci > cj
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// MightContain reports whether id may be indexed. False is definitive.
func (ix *Index) MightContain(id string) bool {
	return ix.bloom.Contains(id)
}

// Optimize commits the backend and rebuilds the Bloom filter when its
// estimated false positive rate drifts past the ceiling. Capacity grows
// geometrically when the live set outgrows the previous sizing.
func (ix *Index) Optimize(ctx context.Context) error {
	if err := ix.fulltext.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %v", domain.ErrIndex, err)
	}
	if err := ix.fulltext.Reload(); err != nil {
		return fmt.Errorf("%w: reloading reader: %v", domain.ErrIndex, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.bloom.EstimatedFPR() <= rebuildFPRCeiling {
		return nil
	}
	for len(ix.docs) > ix.bloomCapacity {
		ix.bloomCapacity *= 2
	}
	rebuilt := bloom.New(ix.bloomCapacity, ix.bloomFPR)
	for id := range ix.docs {
		rebuilt.Insert(id)
	}
	ix.bloom = rebuilt
	return nil
}

// Stats returns a point-in-time summary.
func (ix *Index) Stats() domain.IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var since float64
	if !ix.lastUpdate.IsZero() {
		since = time.Since(ix.lastUpdate).Seconds()
	}
	return domain.IndexStats{
		TotalDocuments:   len(ix.docs),
		TotalTags:        len(ix.tags),
		SecondsSinceLast: since,
		BloomCardinality: ix.bloom.Len(),
	}
}

func matchesFilters(doc domain.SearchDocument, filters *domain.SearchFilters) bool {
	if !filters.After.IsZero() && doc.Timestamp.Before(filters.After) {
		return false
	}
	if len(filters.Tags) == 0 {
		return true
	}
	for _, want := range filters.Tags {
		for _, have := range doc.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// tokenize lowercases text and splits it into alphanumeric tokens.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	})
}
