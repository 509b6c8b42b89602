package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/tokenizer"
)

// Reader is a consistent view of an index for the duration of a Read call.
// Bitmaps it returns are owned by the index and must not be modified or
// retained after the callback returns.
type Reader struct {
	idx *SearchIndex
	s   *state
}

// Read runs fn under the index read lock.
func (idx *SearchIndex) Read(fn func(r Reader)) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	fn(Reader{idx: idx, s: idx.state})
}

func (r Reader) Name() string { return r.idx.name }

// Instance identifies the SearchIndex value; a re-created index of the same
// name gets a new one.
func (r Reader) Instance() uint64 { return r.idx.instance }

// Generation is the mutation counter at the time the view was taken.
func (r Reader) Generation() uint64 { return r.idx.generation }

// Terms tokenizes text with the index configuration.
func (r Reader) Terms(text string) []string {
	return tokenizer.Terms(text, r.idx.opts)
}

// Weight returns the configured multiplier for field.
func (r Reader) Weight(field string) float64 {
	return r.idx.cfg.Weight(field)
}

// Postings returns the global posting set for term, or nil.
func (r Reader) Postings(term string) *roaring.Bitmap {
	return r.s.inverted[term]
}

// FieldPostings returns the posting set for term within field, or nil.
func (r Reader) FieldPostings(field, term string) *roaring.Bitmap {
	return r.s.fields[field][term]
}

// TermsWithLength walks the vocabulary restricted to rune lengths in
// [minLen, maxLen].
func (r Reader) TermsWithLength(minLen, maxLen int, fn func(term string)) {
	if minLen < 1 {
		minLen = 1
	}
	for l := minLen; l <= maxLen; l++ {
		for term := range r.s.byLength[l] {
			fn(term)
		}
	}
}

// VocabularySize is the number of distinct indexed terms.
func (r Reader) VocabularySize() int { return len(r.s.inverted) }

// DocID resolves a handle to its document id.
func (r Reader) DocID(h Handle) (string, bool) {
	e, ok := r.s.docs[h]
	if !ok {
		return "", false
	}
	return e.doc.ID, true
}

// Document resolves a handle to a copy of the stored document.
func (r Reader) Document(h Handle) (document.SearchDocument, bool) {
	e, ok := r.s.docs[h]
	if !ok {
		return document.SearchDocument{}, false
	}
	return e.doc.Clone(), true
}
