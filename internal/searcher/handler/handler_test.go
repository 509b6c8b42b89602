package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/redis"
)

const profilesConfig = `{"fields":["title","description","tags","skills"],"weights":{"title":3,"tags":2,"skills":2,"description":1}}`

const engineerDoc = `{"id":"u1","type":"profile","title":"Senior Go Engineer",
	"description":"Builds distributed systems","tags":["golang","distributed-systems"],
	"metadata":{"skills":["go","kubernetes"]}}`

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.ErrNil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = map[string]string{}
	return n, nil
}

type server struct {
	*httptest.Server
	reg       *registry.Registry
	cache     *cache.QueryCache
	collector *analytics.Collector
}

func newServer(t *testing.T, withCache bool) *server {
	t.Helper()
	reg := registry.New(executor.New(config.SearchConfig{DefaultLimit: 10, MaxResults: 100}))
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memStore{data: map[string]string{}}, time.Minute, nil, nil)
		reg.OnChange(func(ev registry.ChangeEvent) {
			_ = qc.InvalidateIndex(context.Background(), ev.Index, false)
		})
	}
	collector := analytics.NewCollector(analytics.NewAggregator(), nil, nil, 16)
	mux := http.NewServeMux()
	New(reg, qc, collector).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &server{Server: srv, reg: reg, cache: qc, collector: collector}
}

func (s *server) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(out)
}

func (s *server) search(t *testing.T, path string) executor.SearchResult {
	t.Helper()
	code, body := s.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, code, body)
	var res executor.SearchResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	return res
}

func (s *server) seed(t *testing.T) {
	t.Helper()
	code, body := s.do(t, http.MethodPut, "/api/v1/indexes/profiles", profilesConfig)
	require.Equal(t, http.StatusCreated, code, body)
	code, body = s.do(t, http.MethodPost, "/api/v1/indexes/profiles/documents", engineerDoc)
	require.Equal(t, http.StatusCreated, code, body)
}

func TestSearchScenario(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)

	res := s.search(t, "/api/v1/indexes/profiles/search?q=go&fields=title,skills")
	require.Len(t, res.Results, 1)
	assert.Equal(t, "u1", res.Results[0].Document.ID)
	assert.Equal(t, 6.0, res.Results[0].Score)
	assert.Equal(t, "profiles", res.Index)

	assert.Empty(t, s.search(t, "/api/v1/indexes/profiles/search?q=pythom&fuzzy=true").Results)
	assert.Empty(t, s.search(t, "/api/v1/indexes/profiles/search?q=").Results)
	assert.Empty(t, s.search(t, "/api/v1/indexes/missing/search?q=go").Results)

	stats := s.collector.Aggregator().Stats()
	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(3), stats.ZeroResultCount)
}

func TestSearchRejectsMalformedOptions(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)
	for _, q := range []string{"limit=ten", "offset=x", "fuzzy=maybe"} {
		code, _ := s.do(t, http.MethodGet, "/api/v1/indexes/profiles/search?q=go&"+q, "")
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
	code, _ := s.do(t, http.MethodGet, "/api/v1/indexes/profiles/search?q=go&limit=-5&offset=-1", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestIndexLifecycle(t *testing.T) {
	s := newServer(t, false)

	code, _ := s.do(t, http.MethodPut, "/api/v1/indexes/profiles", `{"fields":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPut, "/api/v1/indexes/bad%20name", profilesConfig)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPut, "/api/v1/indexes/profiles", `{"fields":`)
	assert.Equal(t, http.StatusBadRequest, code)

	s.seed(t)
	code, body := s.do(t, http.MethodGet, "/api/v1/indexes", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"indexes":["profiles"]}`, body)

	code, body = s.do(t, http.MethodGet, "/api/v1/indexes/profiles/stats", "")
	require.Equal(t, http.StatusOK, code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &stats))
	assert.Equal(t, 1.0, stats["documentCount"])

	code, _ = s.do(t, http.MethodPost, "/api/v1/indexes/profiles/rebuild", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, s.search(t, "/api/v1/indexes/profiles/search?q=engineer").Results, 1)

	code, _ = s.do(t, http.MethodPost, "/api/v1/indexes/profiles/clear", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, s.search(t, "/api/v1/indexes/profiles/search?q=engineer").Results)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/indexes/profiles", "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.False(t, s.reg.Has("profiles"))
}

func TestUnknownIndexMutationsAre404(t *testing.T) {
	s := newServer(t, false)
	cases := []struct{ method, path, body string }{
		{http.MethodDelete, "/api/v1/indexes/nope", ""},
		{http.MethodPost, "/api/v1/indexes/nope/clear", ""},
		{http.MethodPost, "/api/v1/indexes/nope/rebuild", ""},
		{http.MethodGet, "/api/v1/indexes/nope/stats", ""},
		{http.MethodPost, "/api/v1/indexes/nope/documents", engineerDoc},
		{http.MethodPut, "/api/v1/indexes/nope/documents/u1", engineerDoc},
		{http.MethodDelete, "/api/v1/indexes/nope/documents/u1", ""},
		{http.MethodGet, "/api/v1/indexes/nope/documents/u1", ""},
		{http.MethodGet, "/api/v1/indexes/nope/export", ""},
	}
	for _, tc := range cases {
		code, _ := s.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, code, "%s %s", tc.method, tc.path)
	}
	assert.Empty(t, s.reg.IndexNames())
}

func TestDocumentEndpoints(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)

	batch := `[{"id":"u2","type":"profile","title":"Rust Developer"},{"id":"u3","type":"profile","title":"Go Developer"}]`
	code, body := s.do(t, http.MethodPost, "/api/v1/indexes/profiles/documents", batch)
	require.Equal(t, http.StatusCreated, code, body)
	assert.JSONEq(t, `{"index":"profiles","indexed":2}`, body)

	bad := `[{"id":"u4","type":"profile","title":"x"},{"id":"","type":"profile"}]`
	code, _ = s.do(t, http.MethodPost, "/api/v1/indexes/profiles/documents", bad)
	assert.Equal(t, http.StatusBadRequest, code)
	_, ok := s.reg.GetDocument("profiles", "u4")
	assert.False(t, ok)

	code, _ = s.do(t, http.MethodPut, "/api/v1/indexes/profiles/documents/u2", `{"type":"profile","title":"Haskell Developer"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, s.search(t, "/api/v1/indexes/profiles/search?q=rust").Results)

	code, _ = s.do(t, http.MethodPut, "/api/v1/indexes/profiles/documents/u2", `{"id":"u9","type":"profile"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodGet, "/api/v1/indexes/profiles/documents/u2", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Haskell Developer")

	code, _ = s.do(t, http.MethodDelete, "/api/v1/indexes/profiles/documents/u2", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = s.do(t, http.MethodDelete, "/api/v1/indexes/profiles/documents/u2", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExportImport(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)

	code, payload := s.do(t, http.MethodGet, "/api/v1/indexes/profiles/export", "")
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, "/api/v1/indexes/copy/import", payload)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `{"status":"imported","index":"copy","documents":1}`, body)
	assert.Len(t, s.search(t, "/api/v1/indexes/copy/search?q=kubernetes").Results, 1)

	code, _ = s.do(t, http.MethodPost, "/api/v1/indexes/copy/import", "{not json")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/indexes/copy/import", `{"version":9,"config":{"fields":["title"]},"documents":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Len(t, s.search(t, "/api/v1/indexes/copy/search?q=kubernetes").Results, 1)
}

func TestSearchUsesCacheAndInvalidatesOnChange(t *testing.T) {
	s := newServer(t, true)
	s.seed(t)

	s.search(t, "/api/v1/indexes/profiles/search?q=developer")
	s.search(t, "/api/v1/indexes/profiles/search?q=developer")
	hits, misses := s.cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	code, _ := s.do(t, http.MethodPost, "/api/v1/indexes/profiles/documents", `{"id":"u5","type":"profile","title":"Go Developer"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Len(t, s.search(t, "/api/v1/indexes/profiles/search?q=developer").Results, 1)

	code, body := s.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"hits":1`)

	code, _ = s.do(t, http.MethodPost, "/api/v1/cache/invalidate?index=profiles", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	s := newServer(t, false)
	code, body := s.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"disabled"}`, body)
	code, _ = s.do(t, http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAnalyticsEndpoint(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)
	s.search(t, "/api/v1/indexes/profiles/search?q=go")
	code, body := s.do(t, http.MethodGet, "/api/v1/analytics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"total_searches":1`)
}
