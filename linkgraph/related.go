package linkgraph

import (
	"math"
	"sort"
)

// Related returns notes within maxDistance over the undirected
// projection, excluding stem itself, ordered by (distance asc, stem
// asc).
func (e *Engine) Related(stem string, maxDistance, limit int) ([]Neighbor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready {
		return nil, ErrEngineUnavailable
	}
	if maxDistance < 1 {
		maxDistance = 1
	}
	if limit < 1 {
		limit = 1
	}

	_, start, ok := e.noteByStem(stem)
	if !ok {
		return nil, nil
	}

	dist := map[int]int{start: 0}
	frontier := []int{start}
	for layer := 1; layer <= maxDistance && len(frontier) > 0; layer++ {
		var next []int
		for _, cur := range frontier {
			for _, j := range undirectedNeighborsOf(e, cur) {
				if _, seen := dist[j]; seen {
					continue
				}
				dist[j] = layer
				next = append(next, j)
			}
		}
		frontier = next
	}

	out := make([]Neighbor, 0, len(dist))
	for idx, d := range dist {
		if idx == start {
			continue
		}
		n := e.notes[idx]
		out = append(out, Neighbor{Stem: n.Stem, Direction: Both, Distance: d, Title: n.Title, Path: n.Path})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Stem < out[j].Stem
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func undirectedNeighborsOf(e *Engine, idx int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(e.outIndex[idx])+len(e.inIndex[idx]))
	for _, j := range e.outIndex[idx] {
		if !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}
	for _, j := range e.inIndex[idx] {
		if !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}
	return out
}

// PersonalizedPageRank computes a personalized PageRank vector seeded at
// stem, damping alpha, iterating until the L1 delta between successive
// iterations is <= tol or maxIter is reached. When subgraphMode ==
// "force", random walks are restricted to the maxDistance-hop subgraph
// around stem.
func (e *Engine) PersonalizedPageRank(stem string, alpha float64, maxIter int, tol float64, subgraphMode string, maxDistance int) (map[string]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, ErrEngineUnavailable
	}
	return e.pprUnlocked(stem, alpha, maxIter, tol, subgraphMode, maxDistance)
}

// pprUnlocked is PersonalizedPageRank's body, callable by other engine
// methods that already hold e.mu for reading (e.g. SearchPlanned's
// related: filter).
func (e *Engine) pprUnlocked(stem string, alpha float64, maxIter int, tol float64, subgraphMode string, maxDistance int) (map[string]float64, error) {
	_, start, ok := e.noteByStem(stem)
	if !ok {
		return nil, nil
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.85
	}
	if maxIter <= 0 {
		maxIter = 50
	}
	if tol <= 0 {
		tol = 1e-6
	}

	var allowed map[int]bool
	if subgraphMode == "force" {
		allowed = map[int]bool{start: true}
		frontier := []int{start}
		for layer := 1; layer <= maxOr(maxDistance, 2) && len(frontier) > 0; layer++ {
			var next []int
			for _, cur := range frontier {
				for _, j := range undirectedNeighborsOf(e, cur) {
					if !allowed[j] {
						allowed[j] = true
						next = append(next, j)
					}
				}
			}
			frontier = next
		}
	}

	n := len(e.notes)
	p := make([]float64, n)
	p[start] = 1.0

	for iter := 0; iter < maxIter; iter++ {
		next := make([]float64, n)
		for i := 0; i < n; i++ {
			if allowed != nil && !allowed[i] {
				continue
			}
			if p[i] == 0 {
				continue
			}
			neighbors := undirectedNeighborsOf(e, i)
			if allowed != nil {
				filtered := neighbors[:0:0]
				for _, j := range neighbors {
					if allowed[j] {
						filtered = append(filtered, j)
					}
				}
				neighbors = filtered
			}
			if len(neighbors) == 0 {
				next[i] += (1 - alpha) * p[i]
				continue
			}
			share := alpha * p[i] / float64(len(neighbors))
			for _, j := range neighbors {
				next[j] += share
			}
			next[i] += (1 - alpha) * p[i]
		}
		delta := 0.0
		for i := 0; i < n; i++ {
			delta += math.Abs(next[i] - p[i])
		}
		p = next
		if delta <= tol {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, note := range e.notes {
		if i == start {
			continue
		}
		if p[i] > 0 {
			out[note.Stem] = p[i]
		}
	}
	return out, nil
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
