package linkgraph

import (
	"sort"
	"strings"
	"sync"
)

// Engine owns the dense note arena and its indices. Per the REDESIGN
// FLAGS in SPEC_FULL.md §4.1, notes live in a dense []*Note arena with a
// stem index and a parallel reverse-edge index, rather than a pointer
// graph: BFS and PPR below operate on integer indices.
type Engine struct {
	mu sync.RWMutex

	notes      []*Note
	stemIndex  map[string]int   // stem -> index into notes
	outIndex   [][]int          // notes[i].LinksOut resolved to indices (skips unknown stems)
	inIndex    [][]int          // reverse of outIndex

	ready bool
}

// NewEngine returns an Engine with an empty arena. Callers must call
// LoadNotes (directly, or via Scan) before any other operation succeeds.
func NewEngine() *Engine {
	return &Engine{stemIndex: map[string]int{}}
}

// LoadNotes replaces the arena wholesale and rebuilds both indices. It
// is the common tail of both full rebuild and initial scan.
func (e *Engine) LoadNotes(notes []*Note) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebuildLocked(notes)
	e.ready = true
}

func (e *Engine) rebuildLocked(notes []*Note) {
	stemIndex := make(map[string]int, len(notes))
	for i, n := range notes {
		stemIndex[n.Stem] = i
	}

	outIndex := make([][]int, len(notes))
	inIndex := make([][]int, len(notes))
	for i, n := range notes {
		for _, target := range n.LinksOut {
			if target == n.Stem {
				continue // links_out never contains stem itself
			}
			j, ok := stemIndex[target]
			if !ok {
				continue
			}
			outIndex[i] = append(outIndex[i], j)
			inIndex[j] = append(inIndex[j], i)
		}
	}

	e.notes = notes
	e.stemIndex = stemIndex
	e.outIndex = outIndex
	e.inIndex = inIndex
}

// UpsertNotes merges the given notes into the arena by stem (replacing
// any existing note with the same stem, appending otherwise), then
// rebuilds the indices. Used by delta refresh.
func (e *Engine) UpsertNotes(notes []*Note) {
	e.mu.Lock()
	defer e.mu.Unlock()

	byStem := make(map[string]*Note, len(e.notes)+len(notes))
	order := make([]string, 0, len(e.notes)+len(notes))
	for _, n := range e.notes {
		if _, exists := byStem[n.Stem]; !exists {
			order = append(order, n.Stem)
		}
		byStem[n.Stem] = n
	}
	for _, n := range notes {
		if _, exists := byStem[n.Stem]; !exists {
			order = append(order, n.Stem)
		}
		byStem[n.Stem] = n
	}

	merged := make([]*Note, 0, len(order))
	for _, stem := range order {
		merged = append(merged, byStem[stem])
	}
	e.rebuildLocked(merged)
	e.ready = true
}

// IsReady reports whether the engine has completed at least one load.
func (e *Engine) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

func (e *Engine) noteByStem(stem string) (*Note, int, bool) {
	i, ok := e.stemIndex[stem]
	if !ok {
		return nil, -1, false
	}
	return e.notes[i], i, true
}

// Metadata returns the LinkGraphMetadata projection of stem, or (nil,
// false) if missing.
func (e *Engine) Metadata(stem string) (*Metadata, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, _, ok := e.noteByStem(stem)
	if !ok {
		return nil, false
	}
	return &Metadata{Stem: n.Stem, Title: n.Title, Path: n.Path, Tags: append([]string(nil), n.Tags...)}, true
}

// TOC returns up to limit notes sorted by path ascending, each with a
// lead truncated to 100 characters.
func (e *Engine) TOC(limit int) []map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 {
		limit = 1
	}
	sorted := append([]*Note(nil), e.notes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	out := make([]map[string]any, 0, limit)
	for _, n := range sorted {
		if len(out) >= limit {
			break
		}
		lead := leadFromSections(n.Sections)
		out = append(out, map[string]any{
			"id":    n.Stem,
			"title": n.Title,
			"tags":  append([]string(nil), n.Tags...),
			"lead":  lead,
			"path":  n.Path,
		})
	}
	return out
}

func leadFromSections(sections []Section) string {
	var b strings.Builder
	for _, s := range sections {
		if s.Heading == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s.Heading)
		if b.Len() >= 100 {
			break
		}
	}
	lead := b.String()
	if len(lead) > 100 {
		lead = lead[:100]
	}
	return lead
}

// Stats returns the current GraphStats. An orphan has zero incoming and
// zero outgoing edges.
func (e *Engine) Stats() GraphStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := GraphStats{TotalNotes: len(e.notes)}
	linked := make(map[int]bool)
	for i := range e.notes {
		out := len(e.outIndex[i])
		in := len(e.inIndex[i])
		stats.LinksInGraph += out
		if out == 0 && in == 0 {
			stats.Orphans++
		} else {
			linked[i] = true
		}
	}
	stats.NodesInGraph = len(linked)
	return stats
}
