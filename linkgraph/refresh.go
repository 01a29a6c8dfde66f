package linkgraph

import (
	"fmt"
	"strings"
	"time"
)

// Refresher abstracts the notebook scan so refresh_plan_apply can
// reindex either the whole tree (full) or just a path subset (delta)
// without the engine owning filesystem knowledge directly; the backend
// supplies a Scanner (built by NewScanner in backend.New) at construction.
type Refresher interface {
	ScanFull() ([]*Note, error)
	ScanPaths(paths []string) ([]*Note, error)
}

// RefreshPlanApply is the single authoritative refresh entry point.
// Planning rules, evaluated in order: force_full wins; then an empty
// changedPaths is a noop; then a path count at or above threshold forces
// full; otherwise delta. On delta failure the engine falls back to full
// and the result carries Fallback = true.
func (e *Engine) RefreshPlanApply(r Refresher, changedPaths []string, forceFull bool, threshold int) (RefreshResult, error) {
	var events []PhaseEvent
	record := func(phase string, duration time.Duration, extra map[string]any) {
		events = append(events, PhaseEvent{Phase: phase, DurationMs: float64(duration.Microseconds()) / 1000.0, Extra: extra})
	}

	changedPaths = normalizeChangedPaths(changedPaths)
	pathCount := len(changedPaths)

	if !forceFull && pathCount == 0 {
		started := time.Now()
		record("link_graph.index.delta.plan", time.Since(started), map[string]any{
			"strategy": "noop", "changed_count": 0, "force_full": false, "threshold": threshold,
		})
		return RefreshResult{Mode: "noop", ChangedCount: 0, ForceFull: false, Fallback: false, Events: events}, nil
	}

	strategy := "delta"
	reason := "delta_requested"
	if forceFull {
		strategy, reason = "full", "force_full"
	} else if pathCount >= threshold {
		strategy, reason = "full", "threshold_exceeded"
	}

	startedPlan := time.Now()
	record("link_graph.index.delta.plan", time.Since(startedPlan), map[string]any{
		"strategy": strategy, "reason": reason, "changed_count": pathCount,
		"force_full": forceFull, "threshold": threshold,
	})

	if strategy == "full" {
		startedFull := time.Now()
		notes, err := r.ScanFull()
		if err != nil {
			record("link_graph.index.rebuild.full", time.Since(startedFull), map[string]any{
				"success": false, "reason": reason, "changed_count": pathCount, "error": err.Error(),
			})
			return RefreshResult{}, fmt.Errorf("linkgraph: full rebuild failed: %w", err)
		}
		e.LoadNotes(notes)
		record("link_graph.index.rebuild.full", time.Since(startedFull), map[string]any{
			"success": true, "reason": reason, "changed_count": pathCount,
		})
		return RefreshResult{Mode: "full", ChangedCount: pathCount, ForceFull: forceFull, Fallback: false, Events: events}, nil
	}

	startedDelta := time.Now()
	notes, err := r.ScanPaths(changedPaths)
	if err != nil {
		record("link_graph.index.delta.apply", time.Since(startedDelta), map[string]any{
			"success": false, "changed_count": pathCount, "error": err.Error(),
		})

		startedFull := time.Now()
		fullNotes, fullErr := r.ScanFull()
		if fullErr != nil {
			record("link_graph.index.rebuild.full", time.Since(startedFull), map[string]any{
				"success": false, "reason": "delta_failed_fallback", "changed_count": pathCount, "error": fullErr.Error(),
			})
			return RefreshResult{}, fmt.Errorf("linkgraph: delta refresh failed: %v; full fallback failed: %w", err, fullErr)
		}
		e.LoadNotes(fullNotes)
		record("link_graph.index.rebuild.full", time.Since(startedFull), map[string]any{
			"success": true, "reason": "delta_failed_fallback", "changed_count": pathCount,
		})
		return RefreshResult{Mode: "full", ChangedCount: pathCount, ForceFull: false, Fallback: true, Events: events}, nil
	}

	e.UpsertNotes(notes)
	record("link_graph.index.delta.apply", time.Since(startedDelta), map[string]any{
		"success": true, "changed_count": pathCount,
	})
	return RefreshResult{Mode: "delta", ChangedCount: pathCount, ForceFull: false, Fallback: false, Events: events}, nil
}

// normalizeChangedPaths dedupes case-insensitively, preserving the
// first-seen casing of each path.
func normalizeChangedPaths(paths []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
