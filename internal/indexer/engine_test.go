package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/config"
)

func newRegistry() *registry.Registry {
	return registry.New(executor.New(config.SearchConfig{DefaultLimit: 10, MaxResults: 100}))
}

func indexerConfig(dir string) config.IndexerConfig {
	return config.IndexerConfig{
		SnapshotDir: dir,
		Indexes: map[string]config.IndexDefinition{
			"profiles": {
				Fields:              []string{"title", "description", "tags", "skills"},
				Weights:             map[string]float64{"title": 3, "tags": 2, "skills": 2},
				UseDefaultStopWords: true,
			},
			"skills": {Fields: []string{"title"}},
		},
	}
}

func TestIndexConfigAddsDefaultStopWords(t *testing.T) {
	cfg := IndexConfig(config.IndexDefinition{
		Fields:              []string{"title"},
		StopWords:           []string{"golang"},
		UseDefaultStopWords: true,
	})
	assert.Contains(t, cfg.StopWords, "golang")
	assert.Contains(t, cfg.StopWords, "the")
	assert.NoError(t, cfg.Validate())
}

func TestNewEngineCreatesConfiguredIndexes(t *testing.T) {
	reg := newRegistry()
	_, err := NewEngine(reg, indexerConfig(""))
	require.NoError(t, err)
	assert.Equal(t, []string{"profiles", "skills"}, reg.IndexNames())
}

func TestNewEngineRejectsInvalidDefinition(t *testing.T) {
	_, err := NewEngine(newRegistry(), config.IndexerConfig{
		Indexes: map[string]config.IndexDefinition{"broken": {}},
	})
	assert.Error(t, err)
}

func TestSnapshotsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry()
	e, err := NewEngine(reg, indexerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, reg.AddDocument("profiles", document.SearchDocument{
		ID: "u1", Type: document.TypeProfile, Title: "The Go Engineer",
	}))
	require.NoError(t, reg.CreateIndex("adhoc", IndexConfig(indexerConfig("").Indexes["skills"])))
	require.NoError(t, reg.AddDocument("adhoc", document.SearchDocument{
		ID: "s1", Type: document.TypeSkill, Title: "kubernetes",
	}))
	require.NoError(t, e.Close())

	_, err = os.Stat(filepath.Join(dir, "profiles.snapshot.json"))
	require.NoError(t, err)

	restarted := newRegistry()
	_, err = NewEngine(restarted, indexerConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{"adhoc", "profiles", "skills"}, restarted.IndexNames())
	assert.Len(t, restarted.Search("profiles", "engineer", executor.Options{}), 1)
	assert.Empty(t, restarted.Search("profiles", "the", executor.Options{}))
	assert.Len(t, restarted.Search("adhoc", "kubernetes", executor.Options{}), 1)
}

func TestRestoredIndexTakesConfiguredSettings(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry()
	e, err := NewEngine(reg, indexerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, reg.AddDocument("skills", document.SearchDocument{
		ID: "s1", Type: document.TypeSkill, Title: "Go", Description: "concurrency",
	}))
	require.NoError(t, e.SaveSnapshots())

	cfg := indexerConfig(dir)
	cfg.Indexes["skills"] = config.IndexDefinition{Fields: []string{"title", "description"}}
	restarted := newRegistry()
	_, err = NewEngine(restarted, cfg)
	require.NoError(t, err)
	assert.Len(t, restarted.Search("skills", "concurrency", executor.Options{}), 1)
}

func TestCorruptSnapshotFailsBoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profiles.snapshot.json"), []byte("{"), 0o644))
	_, err := NewEngine(newRegistry(), indexerConfig(dir))
	assert.Error(t, err)
}

func TestRebuildLoop(t *testing.T) {
	reg := newRegistry()
	cfg := indexerConfig("")
	cfg.RebuildInterval = 10 * time.Millisecond
	e, err := NewEngine(reg, cfg)
	require.NoError(t, err)
	require.NoError(t, reg.AddDocument("skills", document.SearchDocument{ID: "s1", Type: document.TypeSkill, Title: "rust"}))

	rebuilt := make(chan struct{}, 16)
	reg.OnChange(func(ev registry.ChangeEvent) {
		if ev.Kind == registry.ChangeRebuilt {
			select {
			case rebuilt <- struct{}{}:
			default:
			}
		}
	})
	e.StartRebuildLoop(context.Background())

	select {
	case <-rebuilt:
	case <-time.After(2 * time.Second):
		t.Fatal("rebuild loop did not run")
	}
	require.NoError(t, e.Close())
	assert.Len(t, reg.Search("skills", "rust", executor.Options{}), 1)
}
