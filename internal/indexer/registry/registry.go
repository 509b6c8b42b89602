// Package registry owns the set of named search indexes and is the single
// entry point the document source and query consumers use.
//
// Unknown index names never produce errors: mutators are no-ops (their bool
// result reports whether the index existed), Search returns an empty list and
// Stats returns nil. Errors are reserved for invalid input, invalid
// configuration and malformed snapshots.
package registry

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/metrics"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidateName reports whether name can be used as an index name. Names become
// snapshot file names and URL path segments.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || name == "." || name == ".." {
		return apperrors.Invalidf("index name %q must be 1-128 characters of [A-Za-z0-9._-]", name)
	}
	return nil
}

type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*index.SearchIndex

	exec    *executor.Executor
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger

	listenersMu  sync.RWMutex
	listeners    map[int]func(ChangeEvent)
	nextListener int
}

type Option func(*Registry)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock overrides time.Now for every index the registry creates.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(exec *executor.Executor, opts ...Option) *Registry {
	r := &Registry{
		indexes:   make(map[string]*index.SearchIndex),
		exec:      exec,
		now:       time.Now,
		logger:    slog.Default().With("component", "index-registry"),
		listeners: make(map[int]func(ChangeEvent)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) get(name string) (*index.SearchIndex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.indexes[name]
	return idx, ok
}

// Index returns the live index registered under name.
func (r *Registry) Index(name string) (*index.SearchIndex, bool) {
	return r.get(name)
}

func (r *Registry) Has(name string) bool {
	_, ok := r.get(name)
	return ok
}

// IndexNames returns the registered names in ascending order.
func (r *Registry) IndexNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.indexes))
	for name := range r.indexes {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) newIndex(name string, cfg index.Config) (*index.SearchIndex, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return index.New(name, cfg, index.WithClock(r.now))
}

// install swaps idx into the registry, replacing any index of the same name.
func (r *Registry) install(idx *index.SearchIndex) (replaced bool) {
	r.mu.Lock()
	_, replaced = r.indexes[idx.Name()]
	r.indexes[idx.Name()] = idx
	r.mu.Unlock()
	return replaced
}

// CreateIndex registers an empty index. An existing index of the same name is
// replaced.
func (r *Registry) CreateIndex(name string, cfg index.Config) error {
	idx, err := r.newIndex(name, cfg)
	if err != nil {
		return err
	}
	if r.install(idx) {
		r.logger.Warn("index replaced by create", "index", name)
	} else {
		r.logger.Info("index created", "index", name, "fields", cfg.Fields)
	}
	r.observe(idx)
	r.notify(ChangeEvent{Index: name, Kind: ChangeCreated})
	return nil
}

func (r *Registry) DeleteIndex(name string) bool {
	r.mu.Lock()
	_, ok := r.indexes[name]
	delete(r.indexes, name)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if r.metrics != nil {
		r.metrics.ForgetIndex(name)
	}
	r.logger.Info("index deleted", "index", name)
	r.notify(ChangeEvent{Index: name, Kind: ChangeDeleted})
	return true
}

// ClearIndex empties documents and postings but keeps the configuration.
func (r *Registry) ClearIndex(name string) bool {
	idx, ok := r.get(name)
	if !ok {
		return false
	}
	idx.Clear()
	r.logger.Info("index cleared", "index", name)
	r.observe(idx)
	r.notify(ChangeEvent{Index: name, Kind: ChangeCleared})
	return true
}

// RebuildIndex regenerates the postings of name from its stored documents.
func (r *Registry) RebuildIndex(name string) bool {
	idx, ok := r.get(name)
	if !ok {
		return false
	}
	start := time.Now()
	idx.Rebuild()
	r.logger.Info("index rebuilt",
		"index", name,
		"documents", idx.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if r.metrics != nil {
		r.metrics.IndexRebuildsTotal.WithLabelValues(name).Inc()
	}
	r.observe(idx)
	r.notify(ChangeEvent{Index: name, Kind: ChangeRebuilt})
	return true
}

// ReconfigureIndex installs cfg on an existing index and rebuilds it. The
// configuration is validated even when the index does not exist.
func (r *Registry) ReconfigureIndex(name string, cfg index.Config) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	idx, ok := r.get(name)
	if !ok {
		return false, nil
	}
	if err := idx.RebuildWith(cfg); err != nil {
		return true, err
	}
	r.logger.Info("index reconfigured", "index", name, "fields", cfg.Fields)
	if r.metrics != nil {
		r.metrics.IndexRebuildsTotal.WithLabelValues(name).Inc()
	}
	r.observe(idx)
	r.notify(ChangeEvent{Index: name, Kind: ChangeRebuilt})
	return true, nil
}

// AddDocument stores doc, overwriting any document with the same id. Invalid
// documents are rejected even when the index does not exist.
func (r *Registry) AddDocument(name string, doc document.SearchDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	idx, ok := r.get(name)
	if !ok {
		return nil
	}
	if err := idx.Add(doc); err != nil {
		return err
	}
	r.indexed(idx, 1)
	r.notify(ChangeEvent{Index: name, Kind: ChangeDocuments, IDs: []string{doc.ID}})
	return nil
}

// AddDocuments applies docs all-or-nothing.
func (r *Registry) AddDocuments(name string, docs []document.SearchDocument) error {
	for i, doc := range docs {
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
	}
	idx, ok := r.get(name)
	if !ok || len(docs) == 0 {
		return nil
	}
	if err := idx.AddBatch(docs); err != nil {
		return err
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	r.indexed(idx, len(docs))
	r.notify(ChangeEvent{Index: name, Kind: ChangeDocuments, IDs: ids})
	return nil
}

// UpdateDocument atomically replaces the stored version of doc.ID.
func (r *Registry) UpdateDocument(name string, doc document.SearchDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	idx, ok := r.get(name)
	if !ok {
		return nil
	}
	if err := idx.Replace(doc); err != nil {
		return err
	}
	r.indexed(idx, 1)
	r.notify(ChangeEvent{Index: name, Kind: ChangeDocuments, IDs: []string{doc.ID}})
	return nil
}

// RemoveDocument reports whether a document was removed.
func (r *Registry) RemoveDocument(name, id string) bool {
	idx, ok := r.get(name)
	if !ok || !idx.Remove(id) {
		return false
	}
	if r.metrics != nil {
		r.metrics.DocsRemovedTotal.WithLabelValues(name).Inc()
	}
	r.observe(idx)
	r.notify(ChangeEvent{Index: name, Kind: ChangeDocuments, IDs: []string{id}})
	return true
}

// GetDocument returns a copy of a stored document.
func (r *Registry) GetDocument(name, id string) (document.SearchDocument, bool) {
	idx, ok := r.get(name)
	if !ok {
		return document.SearchDocument{}, false
	}
	return idx.Get(id)
}

// Search returns the ranked page of documents. It never fails.
func (r *Registry) Search(name, query string, opts executor.Options) []document.SearchDocument {
	res := r.SearchScored(name, query, opts)
	docs := make([]document.SearchDocument, len(res.Results))
	for i, hit := range res.Results {
		docs[i] = hit.Document
	}
	return docs
}

// SearchScored is Search with scores and the total hit count.
func (r *Registry) SearchScored(name, query string, opts executor.Options) *executor.SearchResult {
	idx, ok := r.get(name)
	if !ok {
		return &executor.SearchResult{Query: query, Index: name, Results: []executor.Result{}}
	}
	start := time.Now()
	res := r.exec.Execute(idx, query, opts)
	if r.metrics != nil {
		resultType := "hit"
		if len(res.Results) == 0 {
			resultType = "zero_result"
		}
		r.metrics.SearchQueriesTotal.WithLabelValues(name, resultType).Inc()
		r.metrics.SearchLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		r.metrics.SearchResultsCount.WithLabelValues(name).Observe(float64(len(res.Results)))
	}
	return res
}

// Stats returns nil for an unknown index.
func (r *Registry) Stats(name string) *index.Stats {
	idx, ok := r.get(name)
	if !ok {
		return nil
	}
	stats := idx.Stats()
	return &stats
}

// CheckInvariants validates the postings of name. Unknown names pass.
func (r *Registry) CheckInvariants(name string) error {
	idx, ok := r.get(name)
	if !ok {
		return nil
	}
	return idx.CheckInvariants()
}

// Export serialises the configuration and documents of name. An unknown
// index yields "".
func (r *Registry) Export(name string) (string, error) {
	idx, ok := r.get(name)
	if !ok {
		return "", nil
	}
	text, err := snapshot.Encode(snapshot.FromContents(idx.Contents()))
	r.countSnapshot("export", err)
	return text, err
}

// Import decodes payload, replays every document into a fresh index built
// from the payload's configuration and only then installs it under name,
// replacing any existing index. On error the registry is unchanged.
func (r *Registry) Import(name, payload string) error {
	err := r.importSnapshot(name, payload)
	r.countSnapshot("import", err)
	return err
}

func (r *Registry) importSnapshot(name, payload string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	snap, err := snapshot.Decode(payload)
	if err != nil {
		return fmt.Errorf("importing index %s: %w", name, err)
	}
	idx, err := r.newIndex(name, snap.Config)
	if err != nil {
		return fmt.Errorf("importing index %s: %w", name, err)
	}
	if err := idx.AddBatch(snap.Docs()); err != nil {
		return fmt.Errorf("importing index %s: %w", name, err)
	}
	replaced := r.install(idx)
	r.logger.Info("index imported",
		"index", name,
		"documents", idx.Len(),
		"replaced", replaced,
	)
	r.observe(idx)
	r.notify(ChangeEvent{Index: name, Kind: ChangeImported})
	return nil
}

func (r *Registry) countSnapshot(op string, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.SnapshotsTotal.WithLabelValues(op, status).Inc()
}

func (r *Registry) indexed(idx *index.SearchIndex, n int) {
	if r.metrics != nil {
		r.metrics.DocsIndexedTotal.WithLabelValues(idx.Name()).Add(float64(n))
	}
	r.observe(idx)
}

func (r *Registry) observe(idx *index.SearchIndex) {
	if r.metrics == nil {
		return
	}
	r.metrics.IndexDocuments.WithLabelValues(idx.Name()).Set(float64(idx.Len()))
	r.metrics.IndexTerms.WithLabelValues(idx.Name()).Set(float64(idx.TermCount()))
}
