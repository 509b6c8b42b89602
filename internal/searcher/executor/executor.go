// Package executor answers text queries against one index: exact term
// presence, field-weighted matches and optional fuzzy expansion are summed
// per document, ranked and paginated.
package executor

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/config"
)

const defaultLimit = 10

// Options narrows and pages a query. A Limit of zero or less means the
// configured default (10 unless set), and any Limit above search.maxResults is
// lowered to it, so a page holds at most min(Limit, maxResults) results. A
// negative Offset is treated as 0.
type Options struct {
	Fields []string `json:"fields,omitempty"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
	Fuzzy  bool     `json:"fuzzy"`
}

type Result struct {
	Document document.SearchDocument `json:"document"`
	Score    float64                 `json:"score"`
}

type SearchResult struct {
	Query     string   `json:"query"`
	Index     string   `json:"index"`
	TotalHits int      `json:"total_hits"`
	Results   []Result `json:"results"`
}

// expansionKey ties a cached fuzzy expansion to one index instance at one
// generation, so any mutation or re-creation invalidates it. Instances are
// identified by number so cached entries never keep an index alive.
type expansionKey struct {
	instance   uint64
	generation uint64
	term       string
}

type Executor struct {
	defaultLimit  int
	maxResults    int
	maxFuzzyTerms int
	maxDistance   int
	expansions    *lru.Cache[expansionKey, []fuzzy.Match]
	logger        *slog.Logger
}

func New(cfg config.SearchConfig) *Executor {
	e := &Executor{
		defaultLimit:  cfg.DefaultLimit,
		maxResults:    cfg.MaxResults,
		maxFuzzyTerms: cfg.MaxFuzzyTerms,
		maxDistance:   cfg.FuzzyMaxDistance,
		logger:        slog.Default().With("component", "query-executor"),
	}
	if e.defaultLimit <= 0 {
		e.defaultLimit = defaultLimit
	}
	if e.maxDistance <= 0 {
		e.maxDistance = fuzzy.DefaultMaxDistance
	}
	if cfg.FuzzyCacheSize > 0 {
		cache, err := lru.New[expansionKey, []fuzzy.Match](cfg.FuzzyCacheSize)
		if err != nil {
			e.logger.Warn("fuzzy expansion cache disabled", "error", err)
		} else {
			e.expansions = cache
		}
	}
	return e
}

func (e *Executor) normalise(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = e.defaultLimit
	}
	if e.maxResults > 0 && opts.Limit > e.maxResults {
		opts.Limit = e.maxResults
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}

// Execute never fails: an empty query or no matches yields an empty, non-nil
// result list.
func (e *Executor) Execute(idx *index.SearchIndex, query string, opts Options) *SearchResult {
	opts = e.normalise(opts)
	out := &SearchResult{
		Query:   query,
		Index:   idx.Name(),
		Results: []Result{},
	}
	idx.Read(func(r index.Reader) {
		// Every query term counts, repeats included; only a repeat inside one
		// document collapses, because postings are sets.
		terms := r.Terms(query)
		if len(terms) == 0 {
			return
		}
		scores := make(ranker.Scores)
		for _, term := range terms {
			scores.AddAll(r.Postings(term), 1)
		}
		for _, field := range opts.Fields {
			w := r.Weight(field)
			for _, term := range terms {
				scores.AddAll(r.FieldPostings(field, term), w)
			}
		}
		if opts.Fuzzy {
			fuzzyTerms := terms
			if e.maxFuzzyTerms > 0 && len(fuzzyTerms) > e.maxFuzzyTerms {
				e.logger.Debug("fuzzy expansion capped",
					"index", idx.Name(),
					"terms", len(terms),
					"cap", e.maxFuzzyTerms,
				)
				fuzzyTerms = fuzzyTerms[:e.maxFuzzyTerms]
			}
			for _, term := range fuzzyTerms {
				for _, m := range e.expand(r, term) {
					scores.AddAll(r.Postings(m.Term), m.Similarity)
				}
			}
		}

		ranked := ranker.Rank(scores, r.DocID)
		out.TotalHits = len(ranked)
		page := ranker.Page(ranked, opts.Offset, opts.Limit)
		for _, sd := range page {
			doc, ok := r.Document(sd.Handle)
			if !ok {
				continue
			}
			out.Results = append(out.Results, Result{Document: doc, Score: sd.Score})
		}
		e.logger.Debug("query executed",
			"index", idx.Name(),
			"query", query,
			"terms", terms,
			"candidates", len(scores),
			"results", len(out.Results),
		)
	})
	return out
}

func (e *Executor) expand(r index.Reader, term string) []fuzzy.Match {
	if e.expansions == nil {
		return fuzzy.Expand(term, r, e.maxDistance)
	}
	key := expansionKey{instance: r.Instance(), generation: r.Generation(), term: term}
	if matches, ok := e.expansions.Get(key); ok {
		return matches
	}
	matches := fuzzy.Expand(term, r, e.maxDistance)
	e.expansions.Add(key, matches)
	return matches
}
