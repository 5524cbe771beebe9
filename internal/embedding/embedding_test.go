package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicEngine_Idempotent(t *testing.T) {
	e := NewDeterministicEngine(128)
	v1, err := e.Embed(context.Background(), "fixed the login bug in auth.go")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "fixed the login bug in auth.go")
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "identical text must embed to bitwise identical vectors")
}

func TestDeterministicEngine_DifferentTextDiffers(t *testing.T) {
	e := NewDeterministicEngine(128)
	v1, _ := e.Embed(context.Background(), "fixed the login bug")
	v2, _ := e.Embed(context.Background(), "wrote a new test suite")
	assert.NotEqual(t, v1, v2)
}

func TestDeterministicEngine_EmptyText(t *testing.T) {
	e := NewDeterministicEngine(64)
	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, v, 64)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}

func TestDeterministicEngine_Normalized(t *testing.T) {
	e := NewDeterministicEngine(64)
	v, err := e.Embed(context.Background(), "some reasonably long chunk of text to embed")
	require.NoError(t, err)
	var mag float64
	for _, x := range v {
		mag += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, mag, 1e-4)
}

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{1, 2, 3}
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	sim, err := CosineSimilarity(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0, sim, 1e-9)
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestFindTopK_OrdersDescending(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{{0, 1}, {1, 0}, {0.7, 0.7}}
	results := FindTopK(query, corpus, 2)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

func TestContextualText_IncludesSessionTimeAndFiles(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	text := ContextualText("sess-1", ts, []string{"a.go", "b.go"}, "fix bug", "patched code", "tests pass")
	assert.Contains(t, text, "Session sess-1")
	assert.Contains(t, text, "2026-01-02T03:04:05Z")
	assert.Contains(t, text, "a.go, b.go")
	assert.Contains(t, text, "fix bug")
	assert.Contains(t, text, "patched code")
	assert.Contains(t, text, "tests pass")
}

func TestBatchEmbed_PreservesOrder(t *testing.T) {
	e := NewDeterministicEngine(32)
	texts := []string{"one", "two", "three", "four"}
	got, err := BatchEmbed(context.Background(), e, texts, 2)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, text := range texts {
		want, _ := e.Embed(context.Background(), text)
		assert.Equal(t, want, got[i])
	}
}

func TestNewOllamaEngine_RejectsDimensionMismatch(t *testing.T) {
	_, err := NewOllamaEngine("", "", 256)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "768")
}

func TestNewOllamaEngine_SkipsCheckWhenUnspecified(t *testing.T) {
	e, err := NewOllamaEngine("", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimensions())
}

func TestNewOllamaEngine_AcceptsMatchingDimension(t *testing.T) {
	e, err := NewOllamaEngine("", "", 768)
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimensions())
}

func TestBatchEmbed_EmptyInput(t *testing.T) {
	e := NewDeterministicEngine(32)
	got, err := BatchEmbed(context.Background(), e, nil, 4)
	require.NoError(t, err)
	assert.Nil(t, got)
}
