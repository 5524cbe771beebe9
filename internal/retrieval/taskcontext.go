// Package retrieval implements task-context scoring and adaptive-K
// selection for SessionStart. Both are pure functions over memory store and
// graph outputs: no store dependency leaks in, and the graph enters only as
// an in-memory *graph.Graph argument, so the scoring math is directly
// testable.
package retrieval

import (
	"memoryweave/internal/entity"
	"memoryweave/internal/graph"
)

// entityFrequency counts, for a set of candidate entities, how many times
// each entity key appears — the freq(e, memory) term of task_boost.
func entityFrequency(entities []entity.Entity) map[string]int {
	freq := make(map[string]int, len(entities))
	for _, e := range entities {
		freq[e.Key()]++
	}
	return freq
}

// taskFreqCap bounds per-entity frequency before it enters task_boost, and
// clipMax bounds the summed result — both per the ten-signal scorer's own
// capped-contribution pattern (score.Importance), applied here to keep one
// high-frequency entity from dominating the boost.
const (
	taskFreqCap = 3
	clipMax     = 2.0
)

// TaskBoost computes task_boost = sum(relevance(e, Q) * freq(e, memory)) over
// a memory's entities, where relevance comes from the query entity set's
// k-hop graph neighborhood (an exact query-entity match counts as relevance
// 1.0, same as a 0-hop neighbor). The result is clipped to [0, 2] and never
// mutates the memory's stored importance — it only scales a transient
// ranking score.
func TaskBoost(g *graph.Graph, memoryEntities, queryEntities []entity.Entity, maxHops int) float64 {
	if len(queryEntities) == 0 || len(memoryEntities) == 0 {
		return 0
	}

	queryKeys := make(map[string]bool, len(queryEntities))
	for _, e := range queryEntities {
		queryKeys[e.Key()] = true
	}

	relevance := make(map[string]float64)
	for qk := range queryKeys {
		relevance[qk] = 1.0
		if g == nil {
			continue
		}
		for nb, w := range g.Neighbors(qk, maxHops) {
			if cur, ok := relevance[nb]; !ok || w > cur {
				relevance[nb] = w
			}
		}
	}

	freq := entityFrequency(memoryEntities)
	var boost float64
	for key, count := range freq {
		r, ok := relevance[key]
		if !ok {
			continue
		}
		if count > taskFreqCap {
			count = taskFreqCap
		}
		boost += r * float64(count)
	}

	if boost < 0 {
		return 0
	}
	if boost > clipMax {
		return clipMax
	}
	return boost
}

// TaskImportance applies task_boost to a memory's stored base importance:
// task_importance = base_importance * (1 + task_boost).
func TaskImportance(baseImportance, taskBoost float64) float64 {
	return baseImportance * (1 + taskBoost)
}
