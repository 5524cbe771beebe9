package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize_Boundaries(t *testing.T) {
	assert.Equal(t, CategoryLow, Categorize(0))
	assert.Equal(t, CategoryLow, Categorize(4.99))
	assert.Equal(t, CategoryMedium, Categorize(5))
	assert.Equal(t, CategoryMedium, Categorize(9.99))
	assert.Equal(t, CategoryHigh, Categorize(10))
	assert.Equal(t, CategoryHigh, Categorize(19.99))
	assert.Equal(t, CategoryCritical, Categorize(20))
}

func TestIndicator_MatchesCategory(t *testing.T) {
	assert.Equal(t, "🔴", Indicator(CategoryCritical))
	assert.Equal(t, "🟠", Indicator(CategoryHigh))
	assert.Equal(t, "🟡", Indicator(CategoryMedium))
	assert.Equal(t, "🟢", Indicator(CategoryLow))
}

func TestSelect_QualityGateExcludesLowSimilarity(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Similarity: 0.9, BaseImportance: 10},
		{ID: "b", Similarity: 0.1, BaseImportance: 10},
	}
	out := Select(candidates, 0.35, 0.6, 0.4, 20, 0)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestSelect_RecentExemptFromGate(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Similarity: 0.01, BaseImportance: 10, Recent: true},
	}
	out := Select(candidates, 0.35, 0.6, 0.4, 20, 4)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
	assert.True(t, out[0].Recent)
}

func TestSelect_ZeroWhenAllBelowThreshold(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Similarity: 0.1, BaseImportance: 10},
	}
	out := Select(candidates, 0.35, 0.6, 0.4, 20, 0)
	assert.Empty(t, out)
}

func TestSelect_BoundedByKMax(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 30; i++ {
		candidates = append(candidates, Candidate{ID: string(rune('a' + i)), Similarity: 0.9, BaseImportance: 5})
	}
	out := Select(candidates, 0.35, 0.6, 0.4, 20, 0)
	assert.Len(t, out, 20)
}

func TestSelect_RecentDedupedAgainstTopK(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Similarity: 0.9, BaseImportance: 10},
		{ID: "a", Similarity: 0, BaseImportance: 10, Recent: true},
	}
	out := Select(candidates, 0.35, 0.6, 0.4, 20, 4)
	assert.Len(t, out, 1)
}

func TestSelect_SortedDescendingByFinalScore(t *testing.T) {
	candidates := []Candidate{
		{ID: "low", Similarity: 0.4, BaseImportance: 1},
		{ID: "high", Similarity: 0.95, BaseImportance: 20},
	}
	out := Select(candidates, 0.35, 0.6, 0.4, 20, 0)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].ID)
	assert.GreaterOrEqual(t, out[0].FinalScore, out[1].FinalScore)
}

func TestFormatLine_IncludesMarkersAndTag(t *testing.T) {
	s := Scored{Candidate: Candidate{Intent: "fix bug", Outcome: "tests pass", BaseImportance: 25, TaskBoost: 0.5, Recent: true}}
	line := FormatLine(s)
	assert.Contains(t, line, "🔴")
	assert.Contains(t, line, "fix bug")
	assert.Contains(t, line, "tests pass")
	assert.Contains(t, line, "★")
	assert.Contains(t, line, "[recent]")
}

func TestFormatLine_NoMarkerWhenNoBoost(t *testing.T) {
	s := Scored{Candidate: Candidate{Intent: "chat", BaseImportance: 1}}
	line := FormatLine(s)
	assert.NotContains(t, line, "★")
	assert.NotContains(t, line, "[recent]")
}
