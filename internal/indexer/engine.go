// Package indexer runs index maintenance around the registry: creating the
// configured indexes at boot, restoring explicit snapshots, periodic rebuilds
// and a final snapshot export on shutdown.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/config"
)

type Engine struct {
	reg    *registry.Registry
	cfg    config.IndexerConfig
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// IndexConfig converts a YAML index definition into an index configuration.
func IndexConfig(def config.IndexDefinition) index.Config {
	stopWords := append([]string(nil), def.StopWords...)
	if def.UseDefaultStopWords {
		stopWords = append(stopWords, tokenizer.DefaultStopWords()...)
	}
	return index.Config{
		Fields:        append([]string(nil), def.Fields...),
		Weights:       def.Weights,
		StopWords:     stopWords,
		MinWordLength: def.MinWordLength,
		CaseSensitive: def.CaseSensitive,
		Stemming:      def.Stemming,
	}
}

// NewEngine creates every configured index and then restores any snapshots
// found in cfg.SnapshotDir. A restored index that is also configured is
// rebuilt under the configured settings.
func NewEngine(reg *registry.Registry, cfg config.IndexerConfig) (*Engine, error) {
	e := &Engine{
		reg:    reg,
		cfg:    cfg,
		logger: slog.Default().With("component", "indexer"),
	}
	for name, def := range cfg.Indexes {
		if err := reg.CreateIndex(name, IndexConfig(def)); err != nil {
			return nil, fmt.Errorf("creating index %s: %w", name, err)
		}
	}
	if cfg.SnapshotDir != "" {
		if err := e.restore(); err != nil {
			return nil, fmt.Errorf("restoring snapshots: %w", err)
		}
	}
	e.logger.Info("indexer engine ready",
		"indexes", reg.IndexNames(),
		"snapshot_dir", cfg.SnapshotDir,
		"rebuild_interval", cfg.RebuildInterval,
	)
	return e, nil
}

func (e *Engine) restore() error {
	files, err := snapshot.ReadDir(e.cfg.SnapshotDir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := e.reg.Import(f.Name, f.Payload); err != nil {
			return fmt.Errorf("snapshot %s: %w", f.Name, err)
		}
		if def, ok := e.cfg.Indexes[f.Name]; ok {
			if _, err := e.reg.ReconfigureIndex(f.Name, IndexConfig(def)); err != nil {
				return fmt.Errorf("reconfiguring restored index %s: %w", f.Name, err)
			}
		}
		e.logger.Info("snapshot restored", "index", f.Name, "documents", e.reg.Stats(f.Name).DocumentCount)
	}
	return nil
}

// RebuildAll rebuilds every registered index and returns how many were rebuilt.
func (e *Engine) RebuildAll() int {
	n := 0
	for _, name := range e.reg.IndexNames() {
		if e.reg.RebuildIndex(name) {
			n++
		}
	}
	return n
}

// StartRebuildLoop rebuilds all indexes every RebuildInterval until ctx is
// cancelled or Close is called. A zero interval disables the loop.
func (e *Engine) StartRebuildLoop(ctx context.Context) {
	if e.cfg.RebuildInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.RebuildInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				start := time.Now()
				n := e.RebuildAll()
				e.logger.Info("periodic rebuild complete",
					"indexes", n,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			case <-ctx.Done():
				return
			}
		}
	}()
	e.logger.Info("rebuild loop started", "interval", e.cfg.RebuildInterval)
}

// SaveSnapshots exports every index to SnapshotDir. It attempts all indexes
// and returns the joined errors.
func (e *Engine) SaveSnapshots() error {
	if e.cfg.SnapshotDir == "" {
		return nil
	}
	var errs []error
	for _, name := range e.reg.IndexNames() {
		payload, err := e.reg.Export(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("exporting %s: %w", name, err))
			continue
		}
		if payload == "" {
			continue
		}
		path, err := snapshot.WriteFile(e.cfg.SnapshotDir, name, payload)
		if err != nil {
			e.logger.Error("snapshot write failed", "index", name, "error", err)
			errs = append(errs, err)
			continue
		}
		e.logger.Info("snapshot written", "index", name, "path", path)
	}
	return errors.Join(errs...)
}

// Close stops the rebuild loop and writes final snapshots.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
	return e.SaveSnapshots()
}
