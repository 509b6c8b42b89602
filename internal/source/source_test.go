package source

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/resilience"
)

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestProfileDocument(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := ProfileDocument(ProfileRow{
		ID:              "u1",
		FullName:        "Ada Park",
		Headline:        "Senior Go Engineer",
		Bio:             "Builds distributed systems",
		Tags:            []string{"golang", "distributed-systems"},
		Skills:          []string{"go", "kubernetes"},
		Location:        sql.NullString{String: "Berlin", Valid: true},
		YearsExperience: sql.NullFloat64{Float64: 7, Valid: true},
		UpdatedAt:       updated,
	})
	require.NoError(t, doc.Validate())
	assert.Equal(t, document.TypeProfile, doc.Type)
	assert.Equal(t, "Senior Go Engineer", doc.Title)
	assert.Equal(t, "go kubernetes", document.FieldValue(doc, MetaSkills))
	assert.Equal(t, "Berlin", document.FieldValue(doc, MetaLocation))
	assert.Equal(t, "7", document.FieldValue(doc, MetaYears))
	assert.Equal(t, "false", document.FieldValue(doc, MetaAvailable))
	assert.Equal(t, updated, doc.Timestamp)

	bare := ProfileDocument(ProfileRow{ID: "u2", FullName: "Lee"})
	assert.Equal(t, "Lee", bare.Title)
	assert.Equal(t, []string{}, bare.Tags)
	assert.NotContains(t, bare.Metadata, MetaLocation)
	assert.NotContains(t, bare.Metadata, MetaYears)
}

func TestRepositoryDocument(t *testing.T) {
	doc := RepositoryDocument(RepositoryRow{
		ID:          "r1",
		Name:        "fastjson",
		Description: "Fast JSON parser",
		Topics:      []string{"json", "parser"},
		Language:    sql.NullString{String: "Go", Valid: true},
		Owner:       "ada",
		Stars:       1200,
	})
	require.NoError(t, doc.Validate())
	assert.Equal(t, 1200.0, doc.Score)
	assert.Equal(t, "Go", document.FieldValue(doc, MetaLanguage))
	assert.Equal(t, "1200", document.FieldValue(doc, MetaStars))
	assert.Equal(t, "json parser", document.FieldValue(doc, document.FieldTags))
}

func TestUserAndSkillDocuments(t *testing.T) {
	user := UserDocument(UserRow{ID: "42", Username: "ada", Active: true})
	require.NoError(t, user.Validate())
	assert.Equal(t, "ada", user.Title)
	assert.Equal(t, "true", document.FieldValue(user, MetaActive))

	skill := SkillDocument(SkillRow{
		ID:       "s1",
		Name:     "Kubernetes",
		Category: sql.NullString{String: "devops", Valid: true},
		Aliases:  []string{"k8s", "kube"},
	})
	require.NoError(t, skill.Validate())
	assert.Equal(t, []string{"devops"}, skill.Tags)
	assert.Equal(t, "k8s kube", document.FieldValue(skill, MetaAliases))
}

func TestLoadsSkipUnconfiguredIndexes(t *testing.T) {
	l := NewLoader(nil, config.SourceConfig{Profiles: "profiles", Skills: "skills"})
	loads := l.Loads()
	require.Len(t, loads, 2)
	assert.Equal(t, document.TypeProfile, loads[0].Kind)
	assert.Equal(t, "skills", loads[1].Index)
}

func newRegistry(t *testing.T, names ...string) *registry.Registry {
	t.Helper()
	reg := registry.New(executor.New(config.SearchConfig{DefaultLimit: 10, MaxResults: 100}))
	for _, n := range names {
		require.NoError(t, reg.CreateIndex(n, index.Config{Fields: []string{"title", "description", "tags"}}))
	}
	return reg
}

func fixed(docs ...document.SearchDocument) func(context.Context) ([]document.SearchDocument, error) {
	return func(context.Context) ([]document.SearchDocument, error) { return docs, nil }
}

func TestBootstrapLoadsConcurrently(t *testing.T) {
	reg := newRegistry(t, "profiles", "repositories")
	var flaky atomic.Int32
	loads := []Load{
		{Index: "profiles", Kind: document.TypeProfile, Fetch: fixed(
			ProfileDocument(ProfileRow{ID: "u1", Headline: "Go engineer"}),
			ProfileDocument(ProfileRow{ID: "u2", Headline: "Rust engineer"}),
		)},
		{Index: "repositories", Kind: document.TypeRepository, Fetch: func(ctx context.Context) ([]document.SearchDocument, error) {
			if flaky.Add(1) == 1 {
				return nil, errors.New("connection reset")
			}
			return []document.SearchDocument{RepositoryDocument(RepositoryRow{ID: "r1", Name: "gofast"})}, nil
		}},
	}

	n, err := Bootstrap(context.Background(), reg, loads, fastRetry)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(2), flaky.Load())
	assert.Len(t, reg.Search("profiles", "engineer", executor.Options{}), 2)
	assert.Len(t, reg.Search("repositories", "gofast", executor.Options{}), 1)
}

type failingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *failingSink) AddDocuments(string, []document.SearchDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("rejected")
}

func TestBootstrapFailures(t *testing.T) {
	down := errors.New("db down")
	_, err := Bootstrap(context.Background(), newRegistry(t, "skills"), []Load{
		{Index: "skills", Kind: document.TypeSkill, Fetch: func(context.Context) ([]document.SearchDocument, error) {
			return nil, down
		}},
	}, fastRetry)
	assert.ErrorIs(t, err, down)

	sink := &failingSink{}
	_, err = Bootstrap(context.Background(), sink, []Load{
		{Index: "skills", Kind: document.TypeSkill, Fetch: fixed(SkillDocument(SkillRow{ID: "s1", Name: "go"}))},
	}, fastRetry)
	assert.ErrorContains(t, err, "indexing skill documents into skills")
	assert.Equal(t, 1, sink.calls)
}
