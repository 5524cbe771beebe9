package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"memoryweave/internal/logging"
)

// DeterministicEngine embeds text with a fixed, seeded hashing scheme: every
// character trigram is hashed into one of Dimensions buckets and accumulated
// with a sign derived from a second hash, the classic "hashing trick" used
// for bag-of-ngrams features. No model weights, no I/O, no randomness — the
// same text always produces the same vector, on any machine, forever.
type DeterministicEngine struct {
	dims int
}

// NewDeterministicEngine returns an engine producing dims-dimensional
// vectors.
func NewDeterministicEngine(dims int) *DeterministicEngine {
	if dims <= 0 {
		dims = 256
	}
	return &DeterministicEngine{dims: dims}
}

func (e *DeterministicEngine) Dimensions() int { return e.dims }
func (e *DeterministicEngine) Name() string    { return "deterministic-hashing" }

// Embed hashes text's character trigrams into a dense vector and L2-normalizes
// the result. Empty text yields the zero vector.
func (e *DeterministicEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float64, e.dims)

	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	runes := []rune(norm)
	if len(runes) == 0 {
		out := make([]float32, e.dims)
		return out, nil
	}

	n := 3
	if len(runes) < n {
		n = len(runes)
	}
	for i := 0; i+n <= len(runes); i++ {
		gram := string(runes[i : i+n])
		bucket, sign := hashGram(gram, e.dims)
		vec[bucket] += sign
	}
	// also fold in whole-word hashes so single-token chunks still spread mass
	for _, word := range strings.Fields(norm) {
		bucket, sign := hashGram("#"+word, e.dims)
		vec[bucket] += sign
	}

	var mag float64
	for _, v := range vec {
		mag += v * v
	}
	mag = math.Sqrt(mag)

	out := make([]float32, e.dims)
	if mag == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / mag)
	}
	return out, nil
}

// EmbedBatch embeds each text independently; deterministic hashing has no
// batching advantage, so this simply loops.
func (e *DeterministicEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	logging.EmbeddingDebug("deterministic EmbedBatch: %d texts", len(texts))
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// hashGram returns a bucket index in [0, dims) and a sign in {-1, +1} for
// gram, using two independent FNV hashes (one seeded) so bucket and sign
// don't correlate.
func hashGram(gram string, dims int) (int, float64) {
	h1 := fnv.New32a()
	h1.Write([]byte(gram))
	bucket := int(h1.Sum32() % uint32(dims))

	h2 := fnv.New32a()
	h2.Write([]byte("sign:" + gram))
	sign := 1.0
	if h2.Sum32()%2 == 0 {
		sign = -1.0
	}
	return bucket, sign
}
