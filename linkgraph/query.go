package linkgraph

import (
	"strings"
)

// ParseQuery normalizes a raw query string bearing filter operators
// (tag:, -tag:, link_to:, linked_by:, related:..., sort:<field>_<order>,
// quoted phrases) into the text terms and SearchFilters. Unrecognized
// tokens remain in the returned text. It never errors on its own; option
// validation (unknown match_strategy, max_distance <= 0) happens in
// PlanSearch, which does return ErrInvalidOption.
func ParseQuery(raw string) (text string, filters SearchFilters, sortTerms []SortTerm) {
	tokens := tokenizeQuery(raw)
	var textParts []string

	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "-tag:"):
			filters.Tags.Not = append(filters.Tags.Not, splitOperatorGroup(tok[len("-tag:"):])...)
		case strings.HasPrefix(tok, "tag:"):
			filters.Tags.Any = append(filters.Tags.Any, splitOperatorGroup(tok[len("tag:"):])...)
		case strings.HasPrefix(tok, "link_to:"):
			filters.LinkTo = append(filters.LinkTo, splitOperatorGroup(tok[len("link_to:"):])...)
		case strings.HasPrefix(tok, "linked_by:"):
			filters.LinkedBy = append(filters.LinkedBy, splitOperatorGroup(tok[len("linked_by:"):])...)
		case strings.HasPrefix(tok, "related:"):
			filters.Related = &RelatedFilter{Seeds: splitOperatorGroup(tok[len("related:"):]), MaxDistance: 2, Alpha: 0.85}
		case strings.HasPrefix(tok, "sort:"):
			sortTerms = append(sortTerms, parseSortTerm(tok[len("sort:"):]))
		default:
			textParts = append(textParts, tok)
		}
	}

	return strings.Join(textParts, " "), filters, sortTerms
}

// tokenizeQuery splits on whitespace but keeps double-quoted phrases
// intact and keeps a "(a OR b)" group attached to its preceding
// operator, e.g. "tag:(architecture OR design)" stays one token.
func tokenizeQuery(raw string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	parenDepth := 0

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == '(' && !inQuote:
			parenDepth++
			cur.WriteRune(r)
		case r == ')' && !inQuote:
			parenDepth--
			cur.WriteRune(r)
		case r == ' ' && !inQuote && parenDepth == 0:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// splitOperatorGroup turns "(architecture OR design)" or a bare
// "architecture" into its list of terms.
func splitOperatorGroup(group string) []string {
	group = strings.TrimSpace(group)
	group = strings.TrimPrefix(group, "(")
	group = strings.TrimSuffix(group, ")")
	parts := strings.Split(group, " OR ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSortTerm(spec string) SortTerm {
	idx := strings.LastIndex(spec, "_")
	if idx < 0 {
		return SortTerm{Field: spec, Order: "asc"}
	}
	field, order := spec[:idx], spec[idx+1:]
	if order != "asc" && order != "desc" {
		return SortTerm{Field: spec, Order: "asc"}
	}
	return SortTerm{Field: field, Order: order}
}

// PlanSearch builds the effective SearchPlan for a query string and
// options overlay, applying operator parsing first and then option
// overrides (options win over parsed operators per field).
func PlanSearch(query string, options SearchPlan) (SearchPlan, error) {
	text, filters, sortTerms := ParseQuery(query)

	plan := SearchPlan{
		QueryText:     text,
		MatchStrategy: "fts",
		CaseSensitive: false,
		SortTerms:     sortTerms,
		Filters:       filters,
	}
	if len(plan.SortTerms) == 0 {
		plan.SortTerms = []SortTerm{{Field: "score", Order: "desc"}}
	}
	if hasQuotedPhrase(query) {
		plan.MatchStrategy = "exact"
	}
	if len(filters.Tags.Any) > 1 || len(filters.Tags.Not) > 0 {
		plan.MatchStrategy = "exact"
	}

	if options.MatchStrategy != "" {
		plan.MatchStrategy = options.MatchStrategy
	}
	if options.CaseSensitive {
		plan.CaseSensitive = true
	}
	if len(options.SortTerms) > 0 {
		plan.SortTerms = options.SortTerms
	}
	if options.Filters.Related != nil {
		plan.Filters.Related = options.Filters.Related
	}

	switch plan.MatchStrategy {
	case "fts", "exact", "path_fuzzy":
	default:
		return SearchPlan{}, ErrInvalidOption
	}
	if plan.Filters.Related != nil && plan.Filters.Related.MaxDistance <= 0 {
		return SearchPlan{}, ErrInvalidOption
	}

	return plan, nil
}

func hasQuotedPhrase(query string) bool {
	return strings.Count(query, "\"") >= 2
}
