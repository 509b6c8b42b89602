package index

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/tokenizer"
)

// Handle is the stable integer a document is known by inside one index.
type Handle = uint32

// maxHandle is the first handle never handed out. Reaching it compacts the
// live handles to 0..n-1 instead of wrapping onto handles still in use.
var maxHandle Handle = math.MaxUint32

// postings maps a term to the set of handles containing it. A term with no
// handles is never present.
type postings map[string]*roaring.Bitmap

// add reports whether the term bucket was created.
func (p postings) add(term string, h Handle) bool {
	bm, ok := p[term]
	if !ok {
		bm = roaring.New()
		p[term] = bm
	}
	bm.Add(h)
	return !ok
}

// remove reports whether the term bucket was purged.
func (p postings) remove(term string, h Handle) bool {
	bm, ok := p[term]
	if !ok {
		return false
	}
	bm.Remove(h)
	if bm.IsEmpty() {
		delete(p, term)
		return true
	}
	return false
}

type entry struct {
	doc        document.SearchDocument
	fieldTerms map[string][]string
	terms      []string
}

// state is everything guarded by the index lock. Rebuild builds a new state
// and swaps the pointer.
type state struct {
	handles  map[string]Handle
	docs     map[Handle]*entry
	next     Handle
	inverted postings
	fields   map[string]postings
	byLength map[int]map[string]struct{}
}

func newState() *state {
	return &state{
		handles:  make(map[string]Handle),
		docs:     make(map[Handle]*entry),
		inverted: make(postings),
		fields:   make(map[string]postings),
		byLength: make(map[int]map[string]struct{}),
	}
}

// put stores doc, replacing any previous version of the same id.
func (s *state) put(doc document.SearchDocument, fields []string, opts tokenizer.Options) {
	if h, ok := s.handles[doc.ID]; ok {
		s.remove(h)
	}
	if s.next >= maxHandle {
		s.compact(fields, opts)
	}
	h := s.next
	s.next++

	e := &entry{doc: doc, fieldTerms: make(map[string][]string, len(fields))}
	seen := make(map[string]struct{})
	for _, field := range fields {
		terms := tokenizer.Unique(tokenizer.Terms(document.FieldValue(doc, field), opts))
		if len(terms) == 0 {
			continue
		}
		e.fieldTerms[field] = terms
		fp, ok := s.fields[field]
		if !ok {
			fp = make(postings)
			s.fields[field] = fp
		}
		for _, t := range terms {
			fp.add(t, h)
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				e.terms = append(e.terms, t)
			}
		}
	}
	for _, t := range e.terms {
		if s.inverted.add(t, h) {
			s.addLength(t)
		}
	}
	s.handles[doc.ID] = h
	s.docs[h] = e
}

// compact re-assigns handles in ascending id order. Requires fewer than
// maxHandle live documents.
func (s *state) compact(fields []string, opts tokenizer.Options) {
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fresh := newState()
	for _, id := range ids {
		fresh.put(s.docs[s.handles[id]].doc, fields, opts)
	}
	*s = *fresh
}

func (s *state) remove(h Handle) {
	e, ok := s.docs[h]
	if !ok {
		return
	}
	for field, terms := range e.fieldTerms {
		fp := s.fields[field]
		for _, t := range terms {
			fp.remove(t, h)
		}
		if len(fp) == 0 {
			delete(s.fields, field)
		}
	}
	for _, t := range e.terms {
		if s.inverted.remove(t, h) {
			s.dropLength(t)
		}
	}
	delete(s.docs, h)
	delete(s.handles, e.doc.ID)
}

func (s *state) addLength(term string) {
	l := utf8.RuneCountInString(term)
	bucket, ok := s.byLength[l]
	if !ok {
		bucket = make(map[string]struct{})
		s.byLength[l] = bucket
	}
	bucket[term] = struct{}{}
}

func (s *state) dropLength(term string) {
	l := utf8.RuneCountInString(term)
	bucket := s.byLength[l]
	delete(bucket, term)
	if len(bucket) == 0 {
		delete(s.byLength, l)
	}
}
