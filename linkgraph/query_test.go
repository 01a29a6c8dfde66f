package linkgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryExtractsTagOperator(t *testing.T) {
	text, filters, _ := ParseQuery("design tag:architecture")
	assert.Equal(t, "design", text)
	assert.Equal(t, []string{"architecture"}, filters.Tags.Any)
}

func TestParseQueryExtractsNegatedTagOperator(t *testing.T) {
	_, filters, _ := ParseQuery("-tag:draft")
	assert.Equal(t, []string{"draft"}, filters.Tags.Not)
}

func TestParseQueryExtractsOperatorGroup(t *testing.T) {
	_, filters, _ := ParseQuery("tag:(architecture OR design)")
	assert.Equal(t, []string{"architecture", "design"}, filters.Tags.Any)
}

func TestParseQueryExtractsSortTerm(t *testing.T) {
	_, _, sortTerms := ParseQuery("notes sort:path_asc")
	require.Len(t, sortTerms, 1)
	assert.Equal(t, SortTerm{Field: "path", Order: "asc"}, sortTerms[0])
}

func TestParseQueryExtractsRelatedSeeds(t *testing.T) {
	_, filters, _ := ParseQuery("related:alpha")
	require.NotNil(t, filters.Related)
	assert.Equal(t, []string{"alpha"}, filters.Related.Seeds)
}

func TestPlanSearchDefaultsToFTSWithScoreDescSort(t *testing.T) {
	plan, err := PlanSearch("alpha", SearchPlan{})
	require.NoError(t, err)
	assert.Equal(t, "fts", plan.MatchStrategy)
	assert.Equal(t, []SortTerm{{Field: "score", Order: "desc"}}, plan.SortTerms)
}

func TestPlanSearchQuotedPhraseForcesExactMatch(t *testing.T) {
	plan, err := PlanSearch(`"exact phrase"`, SearchPlan{})
	require.NoError(t, err)
	assert.Equal(t, "exact", plan.MatchStrategy)
}

func TestPlanSearchOptionsOverrideParsedOperators(t *testing.T) {
	plan, err := PlanSearch("alpha", SearchPlan{MatchStrategy: "path_fuzzy"})
	require.NoError(t, err)
	assert.Equal(t, "path_fuzzy", plan.MatchStrategy)
}

func TestPlanSearchRejectsUnknownMatchStrategy(t *testing.T) {
	_, err := PlanSearch("alpha", SearchPlan{MatchStrategy: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestPlanSearchRejectsNonPositiveRelatedMaxDistance(t *testing.T) {
	_, err := PlanSearch("related:alpha", SearchPlan{Filters: SearchFilters{Related: &RelatedFilter{Seeds: []string{"alpha"}, MaxDistance: 0}}})
	assert.ErrorIs(t, err, ErrInvalidOption)
}
