package linkgraph

import "sort"

type frontierEntry struct {
	idx      int
	distance int
	viaOut   bool
	viaIn    bool
}

// Neighbors runs a breadth-first traversal from stem up to hops (>=1).
// When direction is Both, a single BFS runs over the undirected
// projection and each frontier member is reported with the orientation
// it was actually reached by (outgoing via links_out, incoming via the
// reverse index, both if reachable via both). Results are ordered by
// (distance asc, stem asc).
func (e *Engine) Neighbors(stem string, direction Direction, hops, limit int) ([]Neighbor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready {
		return nil, ErrEngineUnavailable
	}
	if hops < 1 {
		hops = 1
	}
	if limit < 1 {
		limit = 1
	}

	_, start, ok := e.noteByStem(stem)
	if !ok {
		return nil, nil
	}

	visited := map[int]*frontierEntry{start: {idx: start, distance: 0}}
	frontier := []int{start}

	for layer := 1; layer <= hops && len(frontier) > 0; layer++ {
		var next []int
		for _, cur := range frontier {
			if direction != Incoming {
				for _, j := range e.outIndex[cur] {
					next = visitNeighbor(visited, next, j, layer, true, false)
				}
			}
			if direction != Outgoing {
				for _, j := range e.inIndex[cur] {
					next = visitNeighbor(visited, next, j, layer, false, true)
				}
			}
		}
		frontier = next
	}

	out := make([]Neighbor, 0, len(visited))
	for idx, entry := range visited {
		if idx == start {
			continue
		}
		n := e.notes[idx]
		dir := Both
		switch {
		case entry.viaOut && !entry.viaIn:
			dir = Outgoing
		case entry.viaIn && !entry.viaOut:
			dir = Incoming
		}
		if direction != Both && dir == Both {
			dir = direction
		}
		out = append(out, Neighbor{
			Stem: n.Stem, Direction: dir, Distance: entry.distance,
			Title: n.Title, Path: n.Path,
		})
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

func visitNeighbor(visited map[int]*frontierEntry, next []int, j, layer int, viaOut, viaIn bool) []int {
	entry, seen := visited[j]
	if !seen {
		entry = &frontierEntry{idx: j, distance: layer}
		visited[j] = entry
		next = append(next, j)
	}
	if viaOut {
		entry.viaOut = true
	}
	if viaIn {
		entry.viaIn = true
	}
	return next
}
