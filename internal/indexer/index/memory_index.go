// Package index is the posting store for one named search index: the stored
// documents, the global inverted index (term → handles) and the per-field
// index (field → term → handles).
//
// Locking: writers serialise on writeMu and publish under mu; readers only
// take mu.RLock. Rebuild builds fresh postings while holding writeMu alone,
// so searches keep reading the previous postings until the swap commits.
package index

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/errors"
)

// Heuristic byte costs used by Stats.IndexSize.
const (
	documentSizeEstimate = 1000
	postingSizeEstimate  = 50
)

var instances atomic.Uint64

// SearchIndex is safe for concurrent use.
type SearchIndex struct {
	name     string
	instance uint64

	writeMu sync.Mutex
	mu      sync.RWMutex

	cfg         Config
	opts        tokenizer.Options
	state       *state
	lastUpdated time.Time
	generation  uint64
	now         func() time.Time
}

// Option customises a SearchIndex.
type Option func(*SearchIndex)

// WithClock overrides time.Now for LastUpdated bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(idx *SearchIndex) {
		idx.now = now
	}
}

// New creates an empty index. cfg is validated and defaulted.
func New(name string, cfg Config, opts ...Option) (*SearchIndex, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	idx := &SearchIndex{
		name:     name,
		instance: instances.Add(1),
		state:    newState(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.setConfig(cfg)
	idx.lastUpdated = idx.now().UTC()
	return idx, nil
}

func (idx *SearchIndex) setConfig(cfg Config) {
	idx.cfg = cfg.WithDefaults()
	idx.opts = idx.cfg.tokenizerOptions()
}

func (idx *SearchIndex) Name() string { return idx.name }

// Config returns a copy of the active configuration.
func (idx *SearchIndex) Config() Config {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.cfg.Clone()
}

// touch must be called with mu held for writing.
func (idx *SearchIndex) touch() {
	idx.lastUpdated = idx.now().UTC()
	idx.generation++
}

// Add stores doc, replacing a document with the same id.
func (idx *SearchIndex) Add(doc document.SearchDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	doc = doc.Clone()
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.state.put(doc, idx.cfg.Fields, idx.opts)
	idx.touch()
	return nil
}

// Replace swaps the stored version of doc.ID for doc in one critical section,
// so the document is never transiently missing from its own index.
func (idx *SearchIndex) Replace(doc document.SearchDocument) error {
	return idx.Add(doc)
}

// AddBatch validates every document before applying any of them. Later
// entries win when ids repeat.
func (idx *SearchIndex) AddBatch(docs []document.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}
	cloned := make([]document.SearchDocument, len(docs))
	for i, doc := range docs {
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		cloned[i] = doc.Clone()
	}
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, doc := range cloned {
		idx.state.put(doc, idx.cfg.Fields, idx.opts)
	}
	idx.touch()
	return nil
}

// Remove deletes the document and purges any term bucket it leaves empty.
// It reports whether the document existed.
func (idx *SearchIndex) Remove(id string) bool {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h, ok := idx.state.handles[id]
	if !ok {
		return false
	}
	idx.state.remove(h)
	idx.touch()
	return true
}

// Clear drops every document and posting; the configuration is kept.
func (idx *SearchIndex) Clear() {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.state = newState()
	idx.touch()
}

// Rebuild regenerates all postings from the stored documents using the
// current configuration and compacts handles.
func (idx *SearchIndex) Rebuild() {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.rebuildLocked(idx.cfg)
}

// RebuildWith installs cfg and regenerates all postings under it.
func (idx *SearchIndex) RebuildWith(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.rebuildLocked(cfg.WithDefaults())
	return nil
}

// rebuildLocked requires writeMu. Reading idx.state without mu is safe here
// because only writers mutate it and they are excluded.
func (idx *SearchIndex) rebuildLocked(cfg Config) {
	current := idx.state
	ids := make([]string, 0, len(current.handles))
	for id := range current.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	opts := cfg.tokenizerOptions()
	fresh := newState()
	for _, id := range ids {
		fresh.put(current.docs[current.handles[id]].doc, cfg.Fields, opts)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.state = fresh
	idx.cfg = cfg
	idx.opts = opts
	idx.touch()
}

// Get returns a copy of the stored document.
func (idx *SearchIndex) Get(id string) (document.SearchDocument, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h, ok := idx.state.handles[id]
	if !ok {
		return document.SearchDocument{}, false
	}
	return idx.state.docs[h].doc.Clone(), true
}

// Len returns the number of stored documents.
func (idx *SearchIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.state.docs)
}

// TermCount returns the number of distinct indexed terms.
func (idx *SearchIndex) TermCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.state.inverted)
}

// LastUpdated returns the time of the most recent mutation.
func (idx *SearchIndex) LastUpdated() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.lastUpdated
}

// Generation increases on every mutation.
func (idx *SearchIndex) Generation() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.generation
}

// Stats summarises the index. IndexSize is an estimate, not memory accounting.
type Stats struct {
	DocumentCount int       `json:"documentCount"`
	TermCount     int       `json:"termCount"`
	LastUpdated   time.Time `json:"lastUpdated"`
	IndexSize     int64     `json:"indexSize"`
}

func (idx *SearchIndex) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	size := int64(len(idx.state.docs)) * documentSizeEstimate
	for _, bm := range idx.state.inverted {
		size += int64(bm.GetCardinality()) * postingSizeEstimate
	}
	return Stats{
		DocumentCount: len(idx.state.docs),
		TermCount:     len(idx.state.inverted),
		LastUpdated:   idx.lastUpdated,
		IndexSize:     size,
	}
}

// Contents is a consistent copy of what an export needs.
type Contents struct {
	Config      Config
	Documents   []document.SearchDocument
	LastUpdated time.Time
}

// Contents returns the configuration and documents (ascending id) as of one
// instant.
func (idx *SearchIndex) Contents() Contents {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	docs := make([]document.SearchDocument, 0, len(idx.state.docs))
	for _, e := range idx.state.docs {
		docs = append(docs, e.doc.Clone())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return Contents{
		Config:      idx.cfg.Clone(),
		Documents:   docs,
		LastUpdated: idx.lastUpdated,
	}
}

// CheckInvariants scans every posting and reports the first inconsistency as
// ErrInvariant.
func (idx *SearchIndex) CheckInvariants() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s := idx.state

	if len(s.handles) != len(s.docs) {
		return fmt.Errorf("%w: %d ids but %d documents", apperrors.ErrInvariant, len(s.handles), len(s.docs))
	}
	for id, h := range s.handles {
		e, ok := s.docs[h]
		if !ok || e.doc.ID != id {
			return fmt.Errorf("%w: id %q maps to missing handle %d", apperrors.ErrInvariant, id, h)
		}
	}
	lengthTerms := 0
	for _, bucket := range s.byLength {
		lengthTerms += len(bucket)
	}
	if lengthTerms != len(s.inverted) {
		return fmt.Errorf("%w: vocabulary has %d terms, length buckets %d", apperrors.ErrInvariant, len(s.inverted), lengthTerms)
	}
	for term, bm := range s.inverted {
		if bm.IsEmpty() {
			return fmt.Errorf("%w: empty bucket for term %q", apperrors.ErrInvariant, term)
		}
		it := bm.Iterator()
		for it.HasNext() {
			if h := it.Next(); s.docs[h] == nil {
				return fmt.Errorf("%w: term %q references removed handle %d", apperrors.ErrInvariant, term, h)
			}
		}
	}
	for field, fp := range s.fields {
		if len(fp) == 0 {
			return fmt.Errorf("%w: empty field index %q", apperrors.ErrInvariant, field)
		}
		for term, bm := range fp {
			if bm.IsEmpty() {
				return fmt.Errorf("%w: empty bucket for %s:%q", apperrors.ErrInvariant, field, term)
			}
			global, ok := s.inverted[term]
			if !ok {
				return fmt.Errorf("%w: %s:%q missing from inverted index", apperrors.ErrInvariant, field, term)
			}
			it := bm.Iterator()
			for it.HasNext() {
				h := it.Next()
				if s.docs[h] == nil || !global.Contains(h) {
					return fmt.Errorf("%w: %s:%q handle %d not in inverted index", apperrors.ErrInvariant, field, term, h)
				}
			}
		}
	}
	return nil
}
