// Package linkgraph implements the content-addressed note graph over a
// notebook tree: hybrid search planning and execution, BFS neighbor and
// personalized-PageRank related-note traversal, metadata/TOC/stats
// projections, and incremental delta refresh with full-rebuild fallback.
package linkgraph

import "errors"

// Sentinel errors returned by every public operation. See wendaoerr for
// the kind taxonomy each of these maps to at the backend boundary.
var (
	// ErrEngineUnavailable is returned by every operation when the
	// engine has not completed an initial scan.
	ErrEngineUnavailable = errors.New("linkgraph: engine unavailable")
	// ErrInvalidOption is returned for malformed query options: an
	// unknown match_strategy, or max_distance <= 0.
	ErrInvalidOption = errors.New("linkgraph: invalid option")
)

// Section is one heading in a note's outline.
type Section struct {
	Level     int
	Heading   string
	WordCount int
}

// Note is the unit indexed by the graph.
type Note struct {
	Stem          string
	Title         string
	Path          string
	Tags          []string
	Sections      []Section
	LinksOut      []string
	Fingerprint   string
	UpdatedAtUnix int64
}

// Direction of a traversal result relative to the queried stem.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
	Both     Direction = "both"
)

// Neighbor is a traversal result.
type Neighbor struct {
	Stem      string
	Direction Direction
	Distance  int
	Title     string
	Path      string
}

// Metadata is a read-only projection of a Note.
type Metadata struct {
	Stem  string
	Title string
	Path  string
	Tags  []string
}

// SearchHit is one ranked result from search_planned.
type SearchHit struct {
	Stem        string
	Score       float64
	Title       string
	Path        string
	BestSection string
	MatchReason string
}

// SortTerm is one (field, order) pair in a SearchPlan.
type SortTerm struct {
	Field string
	Order string // "asc" | "desc"
}

// TagFilter constrains hits by tag membership.
type TagFilter struct {
	Any []string
	Not []string
}

// RelatedFilter requests graph-proximity filtering seeded from one or
// more stems, with optional personalized-PageRank knobs.
type RelatedFilter struct {
	Seeds        []string
	MaxDistance  int
	Alpha        float64
	MaxIter      int
	Tol          float64
	SubgraphMode string // "" | "force"
}

// SearchFilters bundles every filter clause a SearchPlan may carry.
type SearchFilters struct {
	Tags            TagFilter
	LinkTo          []string
	LinkedBy        []string
	Related         *RelatedFilter
	Scope           string // "section_only" | "doc" | "both"
	MaxHeadingLevel int
	MaxTreeHops     int
	CollapseToDoc   bool
	EdgeTypes       []string
	PerDocSectionCap int
	MinSectionWords  int
}

// SearchPlan is the normalized, effective query after operator parsing.
type SearchPlan struct {
	QueryText     string
	MatchStrategy string // "fts" | "exact" | "path_fuzzy"
	CaseSensitive bool
	SortTerms     []SortTerm
	Filters       SearchFilters
}

// SearchResult is the return value of search_planned.
type SearchResult struct {
	Plan            SearchPlan
	Hits            []SearchHit
	SectionHitCount int
}

// GraphStats is the aggregate shape of the graph.
type GraphStats struct {
	TotalNotes    int
	Orphans       int
	LinksInGraph  int
	NodesInGraph  int
}

// PhaseEvent is one instrumentation record emitted by an engine
// operation, replayed verbatim by the backend's phase recorder.
type PhaseEvent struct {
	Phase      string
	DurationMs float64
	Extra      map[string]any
}

// RefreshResult is the return value of refresh_plan_apply.
type RefreshResult struct {
	Mode         string // "noop" | "delta" | "full"
	ChangedCount int
	ForceFull    bool
	Fallback     bool
	Events       []PhaseEvent
}

// RankWeights controls the weighted fusion formula used by
// search_planned: score = wFTS*fts + wPath*pathFuzzy + wSection*section + wGraph*graphProximity.
type RankWeights struct {
	FTS     float64
	Path    float64
	Section float64
	Graph   float64
}

// DefaultRankWeights is the baseline fusion weighting: a textual match
// carries most of the score, with graph and section signals boosting
// on top of it.
func DefaultRankWeights() RankWeights {
	return RankWeights{FTS: 0.5, Path: 0.2, Section: 0.2, Graph: 0.1}
}
