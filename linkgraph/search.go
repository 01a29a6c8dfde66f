package linkgraph

import (
	"sort"
	"strings"
)

// SearchPlanned parses query (which may carry filter operators), merges
// it with options, executes the hybrid fusion search, and returns the
// effective plan alongside hits ranked by the plan's sort terms
// (default: score desc, tie-broken by (path asc, stem asc)).
func (e *Engine) SearchPlanned(query string, limit int, options SearchPlan) (SearchResult, error) {
	if limit < 1 {
		limit = 1
	}

	plan, err := PlanSearch(query, options)
	if err != nil {
		return SearchResult{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return SearchResult{}, ErrEngineUnavailable
	}

	weights := DefaultRankWeights()
	queryTerms := strings.Fields(strings.ToLower(strings.Trim(plan.QueryText, "\"")))

	var relatedSet map[string]float64
	if plan.Filters.Related != nil && len(plan.Filters.Related.Seeds) > 0 {
		relatedSet = map[string]float64{}
		f := plan.Filters.Related
		for _, seed := range f.Seeds {
			pr, _ := e.pprUnlocked(seed, f.Alpha, f.MaxIter, f.Tol, f.SubgraphMode, f.MaxDistance)
			for stem, score := range pr {
				if existing, ok := relatedSet[stem]; !ok || score > existing {
					relatedSet[stem] = score
				}
			}
		}
	}

	hits := make([]SearchHit, 0, len(e.notes))
	sectionHitCount := 0

	for i, n := range e.notes {
		if !passesTagFilter(n.Tags, plan.Filters.Tags) {
			continue
		}
		if len(plan.Filters.LinkTo) > 0 && !noteLinksToAny(n, plan.Filters.LinkTo) {
			continue
		}
		if len(plan.Filters.LinkedBy) > 0 && !noteLinkedByAny(e, i, plan.Filters.LinkedBy) {
			continue
		}
		if relatedSet != nil {
			if _, ok := relatedSet[n.Stem]; !ok {
				continue
			}
		}

		ftsScore, reasons := scoreFTS(n, queryTerms, plan.CaseSensitive)
		pathScore := 0.0
		if plan.MatchStrategy == "path_fuzzy" {
			pathScore = scorePathFuzzy(n.Path, plan.QueryText)
			if pathScore > 0 {
				reasons = append(reasons, "path_fuzzy")
			}
		}
		sectionScore, bestSection := scoreSections(n.Sections, queryTerms, 6)
		if sectionScore > 0 {
			reasons = append(reasons, "section_heading_contains")
			sectionHitCount++
		}
		graphScore := 0.0
		if relatedSet != nil {
			graphScore = relatedSet[n.Stem]
			reasons = append(reasons, "graph_proximity")
		}

		if len(queryTerms) == 0 && pathScore == 0 && sectionScore == 0 && graphScore == 0 {
			// empty query with filters: filter-only match, included with zero score.
		} else if ftsScore == 0 && pathScore == 0 && sectionScore == 0 && graphScore == 0 {
			continue
		}

		score := weights.FTS*ftsScore + weights.Path*pathScore + weights.Section*sectionScore + weights.Graph*graphScore
		hits = append(hits, SearchHit{
			Stem: n.Stem, Score: score, Title: n.Title, Path: n.Path,
			BestSection: bestSection, MatchReason: strings.Join(dedupeStrings(reasons), "+"),
		})
	}

	sortHits(hits, plan.SortTerms)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return SearchResult{Plan: plan, Hits: hits, SectionHitCount: sectionHitCount}, nil
}

func passesTagFilter(tags []string, f TagFilter) bool {
	has := func(want string) bool {
		for _, t := range tags {
			if strings.EqualFold(t, want) {
				return true
			}
		}
		return false
	}
	if len(f.Any) > 0 {
		matched := false
		for _, want := range f.Any {
			if has(want) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, excl := range f.Not {
		if has(excl) {
			return false
		}
	}
	return true
}

func noteLinksToAny(n *Note, targets []string) bool {
	for _, t := range targets {
		for _, out := range n.LinksOut {
			if out == t {
				return true
			}
		}
	}
	return false
}

func noteLinkedByAny(e *Engine, idx int, sources []string) bool {
	for _, j := range e.inIndex[idx] {
		src := e.notes[j].Stem
		for _, want := range sources {
			if src == want {
				return true
			}
		}
	}
	return false
}

func scoreFTS(n *Note, terms []string, caseSensitive bool) (float64, []string) {
	if len(terms) == 0 {
		return 0, nil
	}
	haystack := n.Title
	if !caseSensitive {
		haystack = strings.ToLower(haystack)
	}
	matched := 0
	for _, term := range terms {
		needle := term
		if !caseSensitive {
			needle = strings.ToLower(needle)
		}
		if strings.Contains(haystack, needle) {
			matched++
		}
	}
	if matched == 0 {
		return 0, nil
	}
	return float64(matched) / float64(len(terms)), []string{"title_match"}
}

func scorePathFuzzy(path, query string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(path), query) {
		return 1.0
	}
	return 0
}

// scoreSections finds the best-matching heading and derives a bonus with
// diminishing returns for deeper headings, bounded by maxHeadingLevel.
func scoreSections(sections []Section, terms []string, maxHeadingLevel int) (float64, string) {
	if len(terms) == 0 || maxHeadingLevel <= 0 {
		return 0, ""
	}
	best := 0.0
	bestHeading := ""
	for _, s := range sections {
		if s.Level > maxHeadingLevel {
			continue
		}
		heading := strings.ToLower(s.Heading)
		hit := false
		for _, t := range terms {
			if strings.Contains(heading, strings.ToLower(t)) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		// diminishing returns: level 1 heading scores 1.0, each deeper
		// level halves the bonus.
		score := 1.0 / float64(uint(1)<<uint(s.Level-1))
		if score > best {
			best = score
			bestHeading = s.Heading
		}
	}
	return best, bestHeading
}

func sortHits(hits []SearchHit, terms []SortTerm) {
	sort.SliceStable(hits, func(i, j int) bool {
		for _, t := range terms {
			less, equal := compareHits(hits[i], hits[j], t)
			if !equal {
				return less
			}
		}
		if hits[i].Path != hits[j].Path {
			return hits[i].Path < hits[j].Path
		}
		return hits[i].Stem < hits[j].Stem
	})
}

func compareHits(a, b SearchHit, t SortTerm) (less bool, equal bool) {
	var av, bv any
	switch t.Field {
	case "path":
		av, bv = a.Path, b.Path
	case "stem":
		av, bv = a.Stem, b.Stem
	default: // "score"
		av, bv = a.Score, b.Score
	}
	switch x := av.(type) {
	case string:
		y := bv.(string)
		if x == y {
			return false, true
		}
		if t.Order == "desc" {
			return x > y, false
		}
		return x < y, false
	case float64:
		y := bv.(float64)
		if x == y {
			return false, true
		}
		if t.Order == "desc" {
			return x > y, false
		}
		return x < y, false
	}
	return false, true
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
