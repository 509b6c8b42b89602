package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/metrics"
)

var fixedNow = time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

func newRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	exec := executor.New(config.SearchConfig{
		DefaultLimit:     10,
		MaxResults:       100,
		MaxFuzzyTerms:    8,
		FuzzyMaxDistance: 2,
		FuzzyCacheSize:   32,
	})
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(exec, opts...)
}

func profileConfig() index.Config {
	return index.Config{
		Fields:  []string{"title", "description", "tags", "skills"},
		Weights: map[string]float64{"title": 3, "tags": 2, "skills": 2, "description": 1},
	}
}

func engineer() document.SearchDocument {
	return document.SearchDocument{
		ID:          "u1",
		Type:        document.TypeProfile,
		Title:       "Senior Go Engineer",
		Description: "Builds distributed systems",
		Tags:        []string{"golang", "distributed-systems"},
		Metadata: map[string]document.MetaValue{
			"skills": document.Strings("go", "kubernetes"),
		},
	}
}

func ids(docs []document.SearchDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestProfilesScenario(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))

	res := r.SearchScored("profiles", "go", executor.Options{Fields: []string{"title", "skills"}})
	require.Len(t, res.Results, 1)
	assert.Equal(t, "u1", res.Results[0].Document.ID)
	assert.Equal(t, 6.0, res.Results[0].Score)

	assert.Empty(t, r.Search("profiles", "pythom", executor.Options{Fuzzy: true}))
}

func TestUnknownIndexIsLenient(t *testing.T) {
	r := newRegistry(t)

	docs := r.Search("missing", "go", executor.Options{})
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
	assert.Nil(t, r.Stats("missing"))

	assert.NoError(t, r.AddDocument("missing", engineer()))
	assert.NoError(t, r.AddDocuments("missing", []document.SearchDocument{engineer()}))
	assert.NoError(t, r.UpdateDocument("missing", engineer()))
	assert.False(t, r.RemoveDocument("missing", "u1"))
	assert.False(t, r.ClearIndex("missing"))
	assert.False(t, r.RebuildIndex("missing"))
	assert.False(t, r.DeleteIndex("missing"))
	found, err := r.ReconfigureIndex("missing", profileConfig())
	assert.False(t, found)
	assert.NoError(t, err)

	text, err := r.Export("missing")
	assert.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, r.IndexNames())
}

func TestEmptyQuery(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))
	assert.Empty(t, r.Search("profiles", "", executor.Options{}))
}

func TestCreateIndexValidation(t *testing.T) {
	r := newRegistry(t)
	assert.ErrorIs(t, r.CreateIndex("profiles", index.Config{MinWordLength: -1, Fields: []string{"title"}}), apperrors.ErrInvalidConfig)
	assert.ErrorIs(t, r.CreateIndex("bad name", profileConfig()), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, r.CreateIndex("..", profileConfig()), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, r.CreateIndex(strings.Repeat("x", 129), profileConfig()), apperrors.ErrInvalidInput)
	assert.False(t, r.Has("profiles"))
}

func TestCreateReplacesExisting(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	assert.Equal(t, 0, r.Stats("profiles").DocumentCount)
}

func TestIndexNamesSorted(t *testing.T) {
	r := newRegistry(t)
	for _, name := range []string{"users", "profiles", "skills"} {
		require.NoError(t, r.CreateIndex(name, profileConfig()))
	}
	assert.Equal(t, []string{"profiles", "skills", "users"}, r.IndexNames())
	assert.True(t, r.DeleteIndex("skills"))
	assert.Equal(t, []string{"profiles", "users"}, r.IndexNames())
}

func TestUpdateAndRemove(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))

	updated := engineer()
	updated.Title = "Principal Rust Engineer"
	updated.Metadata = nil
	require.NoError(t, r.UpdateDocument("profiles", updated))
	assert.Empty(t, r.Search("profiles", "kubernetes", executor.Options{}))
	assert.Equal(t, []string{"u1"}, ids(r.Search("profiles", "rust", executor.Options{})))

	got, ok := r.GetDocument("profiles", "u1")
	require.True(t, ok)
	assert.Equal(t, "Principal Rust Engineer", got.Title)

	assert.True(t, r.RemoveDocument("profiles", "u1"))
	assert.Empty(t, r.Search("profiles", "rust", executor.Options{}))
	require.NoError(t, r.CheckInvariants("profiles"))
}

func TestRebuildPicksUpDocuments(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))
	assert.True(t, r.RebuildIndex("profiles"))
	assert.Equal(t, []string{"u1"}, ids(r.Search("profiles", "kubernetes", executor.Options{})))

	cfg := profileConfig()
	cfg.Fields = []string{"title"}
	found, err := r.ReconfigureIndex("profiles", cfg)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, r.Search("profiles", "kubernetes", executor.Options{}))
}

func TestClearKeepsIndex(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))
	assert.True(t, r.ClearIndex("profiles"))

	stats := r.Stats("profiles")
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats.DocumentCount)
	assert.Equal(t, 0, stats.TermCount)
	assert.Equal(t, fixedNow, stats.LastUpdated)
}

func TestExportImportRoundTrip(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	docs := []document.SearchDocument{engineer()}
	for i := 0; i < 10; i++ {
		docs = append(docs, document.SearchDocument{
			ID:          fmt.Sprintf("r%02d", i),
			Type:        document.TypeRepository,
			Title:       fmt.Sprintf("search engine %d", i),
			Description: "distributed indexing in go",
			Tags:        []string{"search", "golang"},
			Metadata:    map[string]document.MetaValue{"stars": document.Number(float64(i))},
		})
	}
	require.NoError(t, r.AddDocuments("profiles", docs))

	payload, err := r.Export("profiles")
	require.NoError(t, err)
	require.NoError(t, r.Import("copy", payload))

	queries := []struct {
		q    string
		opts executor.Options
	}{
		{"go", executor.Options{Limit: 100}},
		{"search engine", executor.Options{Limit: 100, Fields: []string{"title"}}},
		{"golang distributed", executor.Options{Limit: 100}},
		{"kubernets", executor.Options{Limit: 100, Fuzzy: true}},
	}
	for _, q := range queries {
		want := ids(r.Search("profiles", q.q, q.opts))
		got := ids(r.Search("copy", q.q, q.opts))
		sort.Strings(want)
		sort.Strings(got)
		assert.NotEmpty(t, want, q.q)
		assert.Equal(t, want, got, q.q)
	}
	assert.Equal(t, r.Stats("profiles").TermCount, r.Stats("copy").TermCount)
	require.NoError(t, r.CheckInvariants("copy"))
}

func TestImportUsesPayloadConfig(t *testing.T) {
	r := newRegistry(t)
	payload := `{"version":1,"config":{"fields":["title"],"stopWords":["senior"]},` +
		`"documents":[["u1",{"id":"u1","type":"profile","title":"Senior Go Engineer","description":"kubernetes"}]],` +
		`"lastUpdated":"2020-01-01T00:00:00Z"}`
	require.NoError(t, r.Import("profiles", payload))
	assert.Empty(t, r.Search("profiles", "senior", executor.Options{}))
	assert.Empty(t, r.Search("profiles", "kubernetes", executor.Options{}))
	assert.Equal(t, []string{"u1"}, ids(r.Search("profiles", "engineer", executor.Options{})))
	assert.Equal(t, fixedNow, r.Stats("profiles").LastUpdated)
}

func TestImportFailureLeavesRegistryUnchanged(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))

	err := r.Import("profiles", "{not json")
	assert.ErrorIs(t, err, apperrors.ErrParse)
	err = r.Import("profiles", `{"version":9,"config":{"fields":["title"]}}`)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedVersion)
	err = r.Import("profiles", `{"config":{"fields":["title"]},"documents":[["x",{"type":"user"}],["y",{"type":"nope"}]]}`)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, 1, r.Stats("profiles").DocumentCount)
	assert.Equal(t, []string{"u1"}, ids(r.Search("profiles", "go", executor.Options{})))
}

func TestAddDocumentsAllOrNothing(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	bad := engineer()
	bad.ID = ""
	err := r.AddDocuments("profiles", []document.SearchDocument{engineer(), bad})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 0, r.Stats("profiles").DocumentCount)
}

func TestOnChange(t *testing.T) {
	r := newRegistry(t)
	var mu sync.Mutex
	var events []ChangeEvent
	unsubscribe := r.OnChange(func(ev ChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))
	r.RemoveDocument("profiles", "u1")
	r.RemoveDocument("profiles", "u1")
	r.DeleteIndex("profiles")
	unsubscribe()
	require.NoError(t, r.CreateIndex("other", profileConfig()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	assert.Equal(t, ChangeCreated, events[0].Kind)
	assert.Equal(t, ChangeEvent{Index: "profiles", Kind: ChangeDocuments, IDs: []string{"u1"}}, events[1])
	assert.Equal(t, ChangeDocuments, events[2].Kind)
	assert.Equal(t, ChangeDeleted, events[3].Kind)
}

func TestMetricsRecorded(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := newRegistry(t, WithMetrics(m))
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))
	r.Search("profiles", "go", executor.Options{})
	r.Search("profiles", "haskell", executor.Options{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexDocuments.WithLabelValues("profiles")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsIndexedTotal.WithLabelValues("profiles")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("profiles", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("profiles", "zero_result")))

	_, err := r.Export("profiles")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("export", "ok")))
}

func TestConcurrentSearchDuringUpdates(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.CreateIndex("profiles", profileConfig()))
	require.NoError(t, r.AddDocument("profiles", engineer()))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Replace is atomic, so the document never disappears.
				assert.Equal(t, []string{"u1"}, ids(r.Search("profiles", "engineer", executor.Options{Fuzzy: true})))
			}
		}()
	}
	for i := 0; i < 200; i++ {
		doc := engineer()
		doc.Description = fmt.Sprintf("revision %d", i)
		require.NoError(t, r.UpdateDocument("profiles", doc))
		if i%50 == 0 {
			r.RebuildIndex("profiles")
		}
	}
	close(stop)
	wg.Wait()
	require.NoError(t, r.CheckInvariants("profiles"))
}
