// Package pipeline implements the PreCompact and SessionStart lifecycle-hook
// orchestrations, wiring chunking, extraction, scoring, embedding, storage,
// the knowledge graph, pruning, and clustering together end to end. Each
// hook is a single function that calls each subsystem in sequence, times the
// whole call, and recovers any subsystem panic before it reaches the hook's
// stdout contract.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"memoryweave/internal/artifact"
	"memoryweave/internal/chunk"
	"memoryweave/internal/cluster"
	"memoryweave/internal/config"
	"memoryweave/internal/embedding"
	"memoryweave/internal/entity"
	"memoryweave/internal/graph"
	"memoryweave/internal/hook"
	"memoryweave/internal/logging"
	"memoryweave/internal/prune"
	"memoryweave/internal/score"
	"memoryweave/internal/store"
	"memoryweave/internal/transcript"
)

// Dependencies bundles the long-lived handles a pipeline invocation needs:
// the store, the embedding engine, and the graph cache, all process-wide and
// passed explicitly through the pipeline rather than reached for globally.
type Dependencies struct {
	Store      *store.LocalStore
	Engine     embedding.EmbeddingEngine
	GraphCache *graph.Cache
	Config     config.Config
}

// RunPreCompact executes the PreCompact hook end to end: load the
// transcript named by input.TranscriptPath, chunk it, extract+score+embed
// each chunk, persist the batch transactionally, merge new co-mention edges
// into the knowledge graph, and (optionally) sweep the pruner and run the
// clusterer. Never panics out to the caller: a top-level recover converts
// any subsystem panic into a structured error response.
func RunPreCompact(ctx context.Context, deps Dependencies, input hook.PreCompactInput) (out hook.PreCompactOutput, err error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "PreCompact")
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryPipeline).Error("PreCompact recovered from panic: %v", r)
			out = hook.PreCompactOutput{Status: "error", Error: fmt.Sprintf("internal error: %v", r)}
			err = nil
		}
	}()

	if input.SessionID == "" || input.TranscriptPath == "" {
		return hook.PreCompactOutput{Status: "error", Error: "session_id and transcript_path are required"}, nil
	}

	messages, loadErr := transcript.Load(input.TranscriptPath, deps.Config.Pipeline.MaxTranscriptMessages)
	if loadErr != nil {
		logging.Pipeline("PreCompact: failed to load transcript %s: %v", input.TranscriptPath, loadErr)
		return hook.PreCompactOutput{Status: "error", Error: loadErr.Error()}, nil
	}
	logging.Pipeline("PreCompact: loaded %d messages for session %s", len(messages), input.SessionID)

	chunks := chunk.New(deps.Config.Chunker).Run(messages)
	logging.Pipeline("PreCompact: chunked into %d units", len(chunks))
	if len(chunks) == 0 {
		return hook.PreCompactOutput{Status: "ok", MemoriesStored: 0}, nil
	}

	now := time.Now().UTC()
	type built struct {
		mem          store.Memory
		embeddedText string
	}
	var prepared []built
	var warnings int

	for _, c := range chunks {
		m, embeddedText, buildErr := buildMemory(deps.Config, input.SessionID, c, now)
		if buildErr != nil {
			// Per-chunk extraction errors degrade silently: log, skip the
			// chunk, never abort the batch.
			logging.Get(logging.CategoryPipeline).Warn("PreCompact: dropping chunk %d: %v", c.Index, buildErr)
			warnings++
			continue
		}
		prepared = append(prepared, built{mem: m, embeddedText: embeddedText})
	}

	if len(prepared) == 0 {
		return hook.PreCompactOutput{Status: "ok", MemoriesStored: 0, Warnings: warnings}, nil
	}

	texts := make([]string, len(prepared))
	for i, p := range prepared {
		texts[i] = p.embeddedText
	}

	vectors, embedErr := embedWithRetry(ctx, deps.Engine, texts, deps.Config.Embedding.BatchConcurrency)
	if embedErr != nil {
		// Embedder errors abort the whole batch leaving the store untouched:
		// nothing has been written yet, so there is nothing to roll back
		// beyond simply not calling PutBatch.
		logging.Get(logging.CategoryPipeline).Error("PreCompact: embedding failed after retry: %v", embedErr)
		return hook.PreCompactOutput{Status: "error", Error: fmt.Sprintf("embedding failed: %v", embedErr)}, nil
	}

	memories := make([]store.Memory, len(prepared))
	for i, p := range prepared {
		p.mem.Embedding = vectors[i]
		p.mem.EmbeddedText = texts[i]
		memories[i] = p.mem
	}

	if err := deps.Store.PutBatch(ctx, memories); err != nil {
		logging.Get(logging.CategoryPipeline).Error("PreCompact: PutBatch failed: %v", err)
		return hook.PreCompactOutput{Status: "error", Error: err.Error()}, nil
	}
	logging.Pipeline("PreCompact: stored %d memories", len(memories))

	if err := mergeGraphEdges(deps.Store, memories); err != nil {
		// Graph update failure is a warning, not a fatal error: the memories
		// are already durably stored, and the graph is fully reconstructible
		// from them on the next successful merge or rebuild.
		logging.Get(logging.CategoryPipeline).Warn("PreCompact: graph edge merge failed: %v", err)
		warnings++
	} else if deps.GraphCache != nil {
		deps.GraphCache.Invalidate()
	}

	pruned := 0
	if deps.Config.Pipeline.AutoPrune {
		report, pruneErr := sweepAndApply(ctx, deps, false)
		if pruneErr != nil {
			logging.Get(logging.CategoryPipeline).Warn("PreCompact: prune sweep failed: %v", pruneErr)
			warnings++
		} else {
			pruned = len(report.WouldDelete)
		}
	}

	if deps.Config.Pipeline.AutoCluster {
		if clusterErr := runClusterer(ctx, deps, input.SessionID); clusterErr != nil {
			logging.Get(logging.CategoryPipeline).Warn("PreCompact: clusterer failed: %v", clusterErr)
			warnings++
		}
	}

	return hook.PreCompactOutput{
		Status:         "ok",
		MemoriesStored: len(memories),
		Pruned:         pruned,
		Warnings:       warnings,
	}, nil
}

// buildMemory runs artifact extraction, entity extraction, and importance
// scoring over one chunk and assembles the Memory and its contextual
// embedding text, leaving only the embedding vector itself to be filled in
// by the caller.
func buildMemory(cfg config.Config, sessionID string, c chunk.Chunk, now time.Time) (store.Memory, string, error) {
	if c.Intent == "" {
		return store.Memory{}, "", fmt.Errorf("chunk %d has empty intent", c.Index)
	}

	text := c.Intent + "\n" + c.Action + "\n" + c.Outcome
	bundle := artifact.Extract(text)
	entities := entity.Extract(text, bundle)
	signals := score.DetectSignals(c, bundle, entities, len(bundle.Commands))
	// Importance is computed once, at ingestion time, so age is always zero
	// here and the decay factor is 1; the stored value is never re-scored,
	// and no later read applies the recency decay to it.
	importance := score.Importance(cfg.Scorer, signals, 0)

	m := store.Memory{
		ID:         store.ID(sessionID, c.Index, c.Intent),
		SessionID:  sessionID,
		ChunkIndex: c.Index,
		Timestamp:  now,
		Intent:     c.Intent,
		Action:     c.Action,
		Outcome:    c.Outcome,
		Files:      bundle.Files,
		Entities:   entities,
		Importance: importance,
	}

	embeddedText := embedding.ContextualText(shortSessionID(sessionID), now, bundle.Files, c.Intent, c.Action, c.Outcome)
	return m, embeddedText, nil
}

// shortSessionID truncates a session id to the first 8 characters for the
// contextual embedding prefix, keeping the prefix compact while still
// biasing retrieval toward the right session.
func shortSessionID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// embedWithRetry embeds a batch, retrying the whole batch once on failure
// before giving up and aborting.
func embedWithRetry(ctx context.Context, engine embedding.EmbeddingEngine, texts []string, concurrency int) ([][]float32, error) {
	vectors, err := embedding.BatchEmbed(ctx, engine, texts, concurrency)
	if err == nil {
		return vectors, nil
	}
	logging.Get(logging.CategoryEmbedding).Warn("BatchEmbed failed, retrying once: %v", err)
	return embedding.BatchEmbed(ctx, engine, texts, concurrency)
}

// graphLinker is the subset of *store.LocalStore mergeGraphEdges needs,
// allowing a fake in tests without standing up a full store.
type graphLinker interface {
	IncrementLink(entityA, relation, entityB string, delta float64) error
}

// mergeGraphEdges accumulates co-mention weight for every unordered entity
// pair appearing together in each newly ingested memory, via IncrementLink
// so repeated ingestion adds to prior weight rather than overwriting it.
func mergeGraphEdges(linker graphLinker, memories []store.Memory) error {
	for _, m := range memories {
		keys := make([]string, 0, len(m.Entities))
		seen := make(map[string]bool, len(m.Entities))
		for _, e := range m.Entities {
			k := e.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
		for i := 0; i < len(keys); i++ {
			for j := i + 1; j < len(keys); j++ {
				a, b := keys[i], keys[j]
				if b < a {
					a, b = b, a
				}
				if err := linker.IncrementLink(a, "co-occurs", b, 1.0); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// RunPrune runs a deletion sweep over the whole store and, unless dryRun is set,
// deletes everything it marks plus any entity the deletions orphan. Exposed
// for the standalone `prune` CLI command in addition to PreCompact's
// automatic sweep.
func RunPrune(ctx context.Context, deps Dependencies, dryRun bool) (prune.Report, error) {
	report, err := sweepAndApply(ctx, deps, dryRun)
	return report, err
}

func sweepAndApply(ctx context.Context, deps Dependencies, dryRun bool) (prune.Report, error) {
	memories, err := deps.Store.Scan(ctx)
	if err != nil {
		return prune.Report{}, fmt.Errorf("scan for prune: %w", err)
	}

	pruneMemories := make([]prune.Memory, len(memories))
	for i, m := range memories {
		pruneMemories[i] = prune.Memory{
			ID:         m.ID,
			SessionID:  m.SessionID,
			Timestamp:  m.Timestamp,
			Importance: m.Importance,
			Embedding:  m.Embedding,
		}
	}

	report, err := prune.Sweep(ctx, pruneMemories, deps.Config.Pruner, time.Now().UTC())
	if err != nil {
		return prune.Report{}, err
	}
	if dryRun || len(report.WouldDelete) == 0 {
		return report, nil
	}

	if err := deps.Store.DeleteBatch(ctx, report.WouldDelete); err != nil {
		return report, fmt.Errorf("delete pruned memories: %w", err)
	}
	if _, err := deps.Store.GCOrphanedEntities(ctx); err != nil {
		logging.Get(logging.CategoryPipeline).Warn("GCOrphanedEntities failed: %v", err)
	}
	if deps.GraphCache != nil {
		deps.GraphCache.Invalidate()
	}
	logging.Prune("sweep deleted %d memories", len(report.WouldDelete))
	return report, nil
}

// runClusterer clusters one session's memories and persists the resulting
// labels via SetClusterID. Labels are derived CLI/export data only —
// nothing in retrieval reads ClusterID.
func runClusterer(ctx context.Context, deps Dependencies, sessionID string) error {
	memories, err := deps.Store.Query(ctx, store.Filter{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("query session for clustering: %w", err)
	}
	items := make([]cluster.Item, len(memories))
	for i, m := range memories {
		items[i] = cluster.Item{ID: m.ID, Embedding: m.Embedding}
	}
	labels := cluster.Cluster(items, deps.Config.Cluster.DistanceThreshold)
	for id, label := range labels {
		if err := deps.Store.SetClusterID(ctx, id, label); err != nil {
			return fmt.Errorf("set cluster id for %s: %w", id, err)
		}
	}
	logging.Pipeline("clusterer: labeled %d memories in session %s", len(labels), sessionID)
	return nil
}
