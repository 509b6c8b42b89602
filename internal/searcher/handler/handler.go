// Package handler exposes the index registry over a JSON HTTP API. Search
// always answers 200; mutations on an unknown index answer 404 even though
// the registry itself treats them as no-ops.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/logger"
)

const maxBodyBytes = 32 << 20

type Handler struct {
	reg       *registry.Registry
	cache     *cache.QueryCache
	collector *analytics.Collector
	logger    *slog.Logger
}

// New creates a Handler. queryCache and collector may be nil.
func New(reg *registry.Registry, queryCache *cache.QueryCache, collector *analytics.Collector) *Handler {
	return &Handler{
		reg:       reg,
		cache:     queryCache,
		collector: collector,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/indexes", h.ListIndexes)
	mux.HandleFunc("PUT /api/v1/indexes/{name}", h.CreateIndex)
	mux.HandleFunc("DELETE /api/v1/indexes/{name}", h.DeleteIndex)
	mux.HandleFunc("POST /api/v1/indexes/{name}/clear", h.ClearIndex)
	mux.HandleFunc("POST /api/v1/indexes/{name}/rebuild", h.RebuildIndex)
	mux.HandleFunc("GET /api/v1/indexes/{name}/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/indexes/{name}/search", h.Search)
	mux.HandleFunc("POST /api/v1/indexes/{name}/documents", h.AddDocuments)
	mux.HandleFunc("GET /api/v1/indexes/{name}/documents/{id}", h.GetDocument)
	mux.HandleFunc("PUT /api/v1/indexes/{name}/documents/{id}", h.UpdateDocument)
	mux.HandleFunc("DELETE /api/v1/indexes/{name}/documents/{id}", h.RemoveDocument)
	mux.HandleFunc("GET /api/v1/indexes/{name}/export", h.Export)
	mux.HandleFunc("POST /api/v1/indexes/{name}/import", h.Import)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if h.collector != nil {
		mux.HandleFunc("GET /api/v1/analytics", analytics.StatsHandler(h.collector.Aggregator()))
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	name := r.PathValue("name")

	opts, err := parseOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	query := r.URL.Query().Get("q")

	var result *executor.SearchResult
	cacheHit := false
	compute := func() *executor.SearchResult { return h.reg.SearchScored(name, query, opts) }
	if h.cache != nil && h.reg.Has(name) && strings.TrimSpace(query) != "" {
		result, cacheHit = h.cache.GetOrCompute(ctx, name, query, opts, compute)
	} else {
		result = compute()
	}

	latency := time.Since(start)
	log.Info("search completed",
		"index", name,
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.collector != nil {
		event := analytics.NewSearchEvent(name, query, result.TotalHits, len(result.Results), latency)
		event.Fields = opts.Fields
		event.Fuzzy = opts.Fuzzy
		event.CacheHit = cacheHit
		event.RequestID = logger.RequestID(ctx)
		h.collector.Track(event)
	}
	h.writeJSON(w, http.StatusOK, result)
}

// parseOptions reads fields, limit, offset and fuzzy from the query string.
// Range clamping is left to the executor.
func parseOptions(r *http.Request) (executor.Options, error) {
	q := r.URL.Query()
	var opts executor.Options
	if raw := q.Get("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.Fields = append(opts.Fields, f)
			}
		}
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return opts, err
	}
	if opts.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return opts, err
	}
	if raw := q.Get("fuzzy"); raw != "" {
		opts.Fuzzy, err = strconv.ParseBool(raw)
		if err != nil {
			return opts, apperrors.Invalidf("fuzzy must be a boolean")
		}
	}
	return opts, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalidf("%s must be an integer", name)
	}
	return n, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate purges one index (?index=name) or every index.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	names := h.reg.IndexNames()
	if name := r.URL.Query().Get("index"); name != "" {
		names = []string{name}
	}
	for _, name := range names {
		if err := h.cache.InvalidateIndex(r.Context(), name, true); err != nil {
			h.logger.Error("cache invalidation failed", "index", name, "error", err)
			h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "cache invalidation failed"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "indexes": names})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request, name string) {
	h.writeError(w, r, apperrors.Newf(apperrors.ErrIndexNotFound, http.StatusNotFound, "index %q", name))
}
