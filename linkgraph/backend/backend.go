package backend

import (
	"context"
	"errors"
	"time"

	"github.com/wendao-project/wendao-kernel/linkgraph"
	"github.com/wendao-project/wendao-kernel/log"
	"github.com/wendao-project/wendao-kernel/statscache"
)

// Backend owns a resolved Config, a linkgraph.Scanner bound to it, the
// linkgraph.Engine it refreshes, and the optional persistent stats
// cache that sits in front of Stats. It is the thing cmd/wendaod boots.
type Backend struct {
	Config Config
	Engine *linkgraph.Engine
	logger log.Logger

	scanner *linkgraph.Scanner

	statsCache     statscache.Store
	engineInjected bool
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithStatsCache wires a persistent stats cache in front of Stats. Read
// misses and write-backs never fail the call; they only log.
func WithStatsCache(store statscache.Store) Option {
	return func(b *Backend) { b.statsCache = store }
}

// WithInjectedEngine swaps in an already-initialized engine, the
// "explicit engine injected" test mode from spec.md §4.2: Stats skips
// the persistent cache read path entirely when this is set.
func WithInjectedEngine(engine *linkgraph.Engine) Option {
	return func(b *Backend) {
		b.Engine = engine
		b.engineInjected = true
	}
}

// New builds a Backend from a resolved Config and publishes the
// engine.init and cache.schema phase records before returning. Call
// Bootstrap once (unless an engine was injected) to perform the initial
// full scan before serving queries.
func New(cfg Config, logger log.Logger, opts ...Option) *Backend {
	b := &Backend{
		Config:  cfg,
		Engine:  linkgraph.NewEngine(),
		logger:  log.NewComponentLogger(logger, "backend"),
		scanner: linkgraph.NewScanner(cfg.NotebookRoot, cfg.Excludes),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logPhases(b.schemaSignalEvents())
	return b
}

// schemaSignalEvents builds the engine.init and cache.schema phase
// records emitted on construction (or injection). The engine has no
// native component reporting its own schema fingerprint, so source is
// always "go_engine" and the fingerprint always falls back to a
// 16-hex SHA-1 prefix of the schema version string.
func (b *Backend) schemaSignalEvents() []linkgraph.PhaseEvent {
	fingerprint := SchemaFingerprint(statscache.SchemaVersion)
	cacheStatus := "unknown"
	cacheMissReason := ""
	if b.statsCache != nil && !b.engineInjected {
		if _, err := b.statsCache.Get(context.Background(), b.Config.SourceKey); err == nil {
			cacheStatus = "hit"
		} else if errors.Is(err, statscache.ErrMiss) {
			cacheStatus = "miss"
			cacheMissReason = "no_entry_for_source_key"
		} else {
			cacheStatus = "miss"
			cacheMissReason = err.Error()
		}
	}

	initExtra := map[string]any{
		"success": true,
		"reused":  b.engineInjected,
	}
	schemaExtra := map[string]any{
		"schema_version": statscache.SchemaVersion,
		"fingerprint":    fingerprint,
		"source":         "go_engine",
		"cache_status":   cacheStatus,
	}
	if cacheMissReason != "" {
		schemaExtra["cache_miss_reason"] = cacheMissReason
	}

	return []linkgraph.PhaseEvent{
		{Phase: "engine.init", DurationMs: 0, Extra: initExtra},
		{Phase: "cache.schema", DurationMs: 0, Extra: schemaExtra},
	}
}

// Bootstrap runs an initial full scan and logs each recorded phase.
func (b *Backend) Bootstrap() (linkgraph.RefreshResult, error) {
	result, err := b.Engine.RefreshPlanApply(b.scanner, nil, true, 0)
	b.logPhases(result.Events)
	if err != nil {
		b.logger.Error("bootstrap scan failed for %s: %v", b.Config.NotebookRoot, err)
		return result, err
	}
	b.logger.Info("bootstrap scan ready, notebook=%s changed=%d", b.Config.NotebookRoot, result.ChangedCount)
	b.invalidateStatsCache()
	return result, nil
}

// Refresh applies a delta (or forced-full) reindex for the given
// notebook-relative changed paths, falling back to full rebuild on
// delta failure. threshold is the changed-path count at or above which
// a delta is escalated to a full rebuild. Every successful mutation
// invalidates the persistent stats cache, per spec.md §4.1.
func (b *Backend) Refresh(changedPaths []string, forceFull bool, threshold int) (linkgraph.RefreshResult, error) {
	result, err := b.Engine.RefreshPlanApply(b.scanner, changedPaths, forceFull, threshold)
	b.logPhases(result.Events)
	if err != nil {
		b.logger.Error("refresh failed: %v", err)
		return result, err
	}
	if result.Fallback {
		b.logger.Warn("delta refresh fell back to full rebuild, changed=%d", result.ChangedCount)
	}
	b.invalidateStatsCache()
	return result, nil
}

func (b *Backend) invalidateStatsCache() {
	if b.statsCache == nil {
		return
	}
	if err := b.statsCache.Invalidate(context.Background(), b.Config.SourceKey); err != nil {
		b.logger.Warn("stats cache invalidation failed: %v", err)
	}
}

// SearchPlanned delegates to the engine's hybrid search and additionally
// records the zero-duration link_graph.search.section_score phase
// carrying the result's section hit count.
func (b *Backend) SearchPlanned(query string, limit int, options linkgraph.SearchPlan) (linkgraph.SearchResult, error) {
	started := time.Now()
	result, err := b.Engine.SearchPlanned(query, limit, options)
	if err != nil {
		b.logger.Error("search_planned failed: %v", err)
		return result, err
	}
	b.logPhases([]linkgraph.PhaseEvent{
		{Phase: "search.planned", DurationMs: elapsedMs(started), Extra: map[string]any{"hits": len(result.Hits)}},
		{Phase: "link_graph.search.section_score", DurationMs: 0, Extra: map[string]any{"section_hit_count": result.SectionHitCount}},
	})
	return result, nil
}

// Neighbors delegates to the engine's bounded BFS traversal.
func (b *Backend) Neighbors(stem string, direction linkgraph.Direction, hops, limit int) ([]linkgraph.Neighbor, error) {
	started := time.Now()
	hits, err := b.Engine.Neighbors(stem, direction, hops, limit)
	if err != nil {
		b.logger.Error("neighbors failed: %v", err)
		return hits, err
	}
	b.logPhases([]linkgraph.PhaseEvent{{Phase: "neighbors", DurationMs: elapsedMs(started), Extra: map[string]any{"hits": len(hits)}}})
	return hits, nil
}

// Related delegates to the engine's bounded-distance / PPR traversal.
func (b *Backend) Related(stem string, maxDistance, limit int) ([]linkgraph.Neighbor, error) {
	started := time.Now()
	hits, err := b.Engine.Related(stem, maxDistance, limit)
	if err != nil {
		b.logger.Error("related failed: %v", err)
		return hits, err
	}
	b.logPhases([]linkgraph.PhaseEvent{{Phase: "related", DurationMs: elapsedMs(started), Extra: map[string]any{"hits": len(hits)}}})
	return hits, nil
}

// Metadata delegates to the engine's metadata projection.
func (b *Backend) Metadata(stem string) (*linkgraph.Metadata, bool) {
	return b.Engine.Metadata(stem)
}

// TOC delegates to the engine's table-of-contents projection.
func (b *Backend) TOC(limit int) []map[string]any {
	return b.Engine.TOC(limit)
}

// Stats is a persistent-cache read-through wrapper around the engine's
// stats projection. A backend built with WithInjectedEngine (test mode)
// skips the cache read entirely and always asks the engine directly.
// On a cache miss, Stats calls the engine and writes the result back
// under the schema-versioned envelope before returning it.
func (b *Backend) Stats(ctx context.Context) (linkgraph.GraphStats, error) {
	started := time.Now()
	if b.statsCache != nil && !b.engineInjected {
		entry, err := b.statsCache.Get(ctx, b.Config.SourceKey)
		if err == nil {
			b.logPhases([]linkgraph.PhaseEvent{{
				Phase: "stats.cache.get", DurationMs: elapsedMs(started),
				Extra: map[string]any{"success": true, "cache_hit": true},
			}})
			return entry.Stats, nil
		}
		if !errors.Is(err, statscache.ErrMiss) {
			b.logger.Warn("stats cache read failed: %v", err)
		}
	}

	if !b.Engine.IsReady() {
		b.logPhases([]linkgraph.PhaseEvent{{
			Phase: "stats.cache.get", DurationMs: elapsedMs(started),
			Extra: map[string]any{"success": false, "cache_hit": false},
		}})
		return linkgraph.GraphStats{}, linkgraph.ErrEngineUnavailable
	}
	stats := b.Engine.Stats()

	if b.statsCache != nil {
		if err := b.statsCache.Put(ctx, b.Config.SourceKey, stats); err != nil {
			b.logger.Warn("stats cache write failed: %v", err)
		}
	}
	b.logPhases([]linkgraph.PhaseEvent{{
		Phase: "stats.cache.get", DurationMs: elapsedMs(started),
		Extra: map[string]any{"success": true, "cache_hit": false},
	}})
	return stats, nil
}

func elapsedMs(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000.0
}

func (b *Backend) logPhases(events []linkgraph.PhaseEvent) {
	for _, ev := range events {
		b.logger.Debug("phase=%s duration_ms=%.3f extra=%v", ev.Phase, ev.DurationMs, ev.Extra)
	}
}
