package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"memoryweave/internal/artifact"
	"memoryweave/internal/entity"
	"memoryweave/internal/graph"
	"memoryweave/internal/hook"
	"memoryweave/internal/logging"
	"memoryweave/internal/retrieval"
	"memoryweave/internal/store"
)

// RunSessionStart executes the SessionStart hook end to end: extract the query's entities,
// embed it unprefixed, pull 2*k_max similarity candidates from the store,
// run the quality gate + task-context scoring + adaptive-K selection
// (internal/retrieval), prepend the k_recent most-recent memories, and
// render the formatted injection block. Read-only with respect to memories;
// may trigger a graph cache rebuild if the cache is stale.
func RunSessionStart(ctx context.Context, deps Dependencies, input hook.SessionStartInput, sessionScoped bool) (out hook.SessionStartOutput, err error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "SessionStart")
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryPipeline).Error("SessionStart recovered from panic: %v", r)
			out = hook.SessionStartOutput{}
			err = nil
		}
	}()

	cfg := deps.Config.Retrieval

	queryBundle := artifact.Extract(input.TaskQuery)
	queryEntities := entity.Extract(input.TaskQuery, queryBundle)

	queryVec, embedErr := deps.Engine.Embed(ctx, input.TaskQuery)
	if embedErr != nil {
		// Retrieval errors are non-fatal: an empty result is a valid outcome,
		// never a hook failure.
		logging.Get(logging.CategoryPipeline).Warn("SessionStart: query embedding failed: %v", embedErr)
		return hook.SessionStartOutput{AdditionalContext: "", MemoriesInjected: 0}, nil
	}

	var snap graph.Snapshot
	if deps.GraphCache != nil {
		snap, err = deps.GraphCache.Get()
		if err != nil {
			logging.Get(logging.CategoryPipeline).Warn("SessionStart: graph cache rebuild failed, scoring without graph boost: %v", err)
			err = nil
		}
	}

	kMax := cfg.KMax
	if kMax <= 0 {
		kMax = 20
	}
	results, searchErr := deps.Store.SimilaritySearch(ctx, queryVec, kMax*2)
	if searchErr != nil {
		logging.Get(logging.CategoryPipeline).Warn("SessionStart: similarity search failed: %v", searchErr)
		return hook.SessionStartOutput{AdditionalContext: "", MemoriesInjected: 0}, nil
	}

	sessionID := ""
	if sessionScoped {
		sessionID = input.SessionID
	}

	candidates := make([]retrieval.Candidate, 0, len(results))
	for _, r := range results {
		if sessionID != "" && r.Memory.SessionID != sessionID {
			continue
		}
		if r.Memory.Importance < cfg.MinImportance {
			continue
		}
		boost := retrieval.TaskBoost(snap.Graph, r.Memory.Entities, queryEntities, deps.Config.Graph.MaxHops)
		candidates = append(candidates, retrieval.Candidate{
			ID:             r.Memory.ID,
			Intent:         r.Memory.Intent,
			Outcome:        r.Memory.Outcome,
			Similarity:     r.Similarity,
			BaseImportance: r.Memory.Importance,
			TaskBoost:      boost,
		})
	}

	recentMemories, recentErr := recentCandidates(ctx, deps.Store, sessionID, cfg.KRecent)
	if recentErr != nil {
		logging.Get(logging.CategoryPipeline).Warn("SessionStart: fetching recent memories failed: %v", recentErr)
	}
	candidates = append(candidates, recentMemories...)

	selected := retrieval.Select(candidates, cfg.MinSimilarity, cfg.Alpha, cfg.Beta, kMax, cfg.KRecent)

	if len(selected) == 0 {
		logging.Retrieval("SessionStart: no memories passed the quality gate for query %q", input.TaskQuery)
		return hook.SessionStartOutput{AdditionalContext: "", MemoriesInjected: 0}, nil
	}

	lines := make([]string, 0, len(selected))
	for _, s := range selected {
		lines = append(lines, retrieval.FormatLine(s))
	}

	logging.Retrieval("SessionStart: injecting %d memories for query %q", len(selected), input.TaskQuery)
	return hook.SessionStartOutput{
		AdditionalContext: strings.Join(lines, "\n"),
		MemoriesInjected:  len(selected),
	}, nil
}

// recentCandidates fetches the kRecent most-recently-ingested memories
// (optionally scoped to a session) and marks them Recent, exempting them
// from the quality gate.
func recentCandidates(ctx context.Context, st *store.LocalStore, sessionID string, kRecent int) ([]retrieval.Candidate, error) {
	if kRecent <= 0 {
		return nil, nil
	}
	memories, err := st.Query(ctx, store.Filter{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("query recent memories: %w", err)
	}
	sort.Slice(memories, func(i, j int) bool { return memories[i].Timestamp.After(memories[j].Timestamp) })
	if len(memories) > kRecent {
		memories = memories[:kRecent]
	}
	out := make([]retrieval.Candidate, len(memories))
	for i, m := range memories {
		out[i] = retrieval.Candidate{
			ID:             m.ID,
			Intent:         m.Intent,
			Outcome:        m.Outcome,
			BaseImportance: m.Importance,
			Recent:         true,
		}
	}
	return out, nil
}
