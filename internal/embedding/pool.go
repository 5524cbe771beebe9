package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"memoryweave/internal/logging"
)

// BatchEmbed embeds texts with at most concurrency outstanding calls to
// engine.Embed, preserving input order in the result. Uses errgroup.WithContext
// with SetLimit as a bounded worker pool, so a PreCompact run with hundreds
// of chunks never opens hundreds of concurrent HTTP connections to a local
// embedding backend.
func BatchEmbed(ctx context.Context, engine EmbeddingEngine, texts []string, concurrency int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "BatchEmbed")
	defer timer.Stop()

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			v, err := engine.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	logging.EmbeddingDebug("BatchEmbed: embedded %d texts at concurrency=%d", len(texts), concurrency)
	return out, nil
}
