// Package prune implements three ordered deletion policies
// (age+importance, redundancy, capacity) with a dry-run mode for operability.
package prune

import (
	"context"
	"fmt"
	"sort"
	"time"

	"memoryweave/internal/config"
	"memoryweave/internal/embedding"
)

// Memory is the subset of a stored memory the pruner needs to decide
// deletions, independent of internal/store so the policies are testable
// without a database.
type Memory struct {
	ID         string
	SessionID  string
	Timestamp  time.Time
	Importance float64
	Embedding  []float32
}

// Report describes what a sweep would do (dry-run) or did (real run).
type Report struct {
	WouldDelete []string
	Reasons     map[string]string
}

func newReport() Report {
	return Report{Reasons: make(map[string]string)}
}

func (r *Report) mark(id, reason string) {
	if _, already := r.Reasons[id]; already {
		return
	}
	r.WouldDelete = append(r.WouldDelete, id)
	r.Reasons[id] = reason
}

// Sweep evaluates all three policies in order against the full memory set
// and returns which IDs would be deleted and why. It never mutates memories
// or the input slice; deletion (and the entity GC/graph-cache invalidation
// that follows it) is the caller's responsibility so pruning stays testable
// as pure decision logic and the real-vs-dry-run boundary lives in the
// pipeline layer that owns the store.
func Sweep(ctx context.Context, memories []Memory, cfg config.PrunerConfig, now time.Time) (Report, error) {
	report := newReport()
	alive := make(map[string]Memory, len(memories))
	for _, m := range memories {
		alive[m.ID] = m
	}

	applyAgeImportance(alive, cfg, now, &report)
	applyRedundancy(alive, cfg, &report)
	applyCapacity(alive, cfg, &report)

	return report, ctx.Err()
}

func applyAgeImportance(alive map[string]Memory, cfg config.PrunerConfig, now time.Time, report *Report) {
	threshold := time.Duration(cfg.OldThresholdDays) * 24 * time.Hour
	for id, m := range alive {
		if now.Sub(m.Timestamp) > threshold && m.Importance < cfg.LowImportanceThreshold {
			report.mark(id, fmt.Sprintf("age %.0fd > %dd and importance %.2f < %.2f",
				now.Sub(m.Timestamp).Hours()/24, cfg.OldThresholdDays, m.Importance, cfg.LowImportanceThreshold))
			delete(alive, id)
		}
	}
}

// applyRedundancy performs an O(n^2) pairwise cosine comparison within each
// session, acceptable at the session-capacity scale max_per_session bounds
// things to. On a pair exceeding the redundancy threshold the lower-
// importance memory is dropped; ties keep the newer one.
func applyRedundancy(alive map[string]Memory, cfg config.PrunerConfig, report *Report) {
	bySession := make(map[string][]Memory)
	for _, m := range alive {
		bySession[m.SessionID] = append(bySession[m.SessionID], m)
	}

	for _, group := range bySession {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for i := 0; i < len(group); i++ {
			a := group[i]
			if _, ok := alive[a.ID]; !ok {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				b := group[j]
				if _, ok := alive[b.ID]; !ok {
					continue
				}
				sim, err := embedding.CosineSimilarity(a.Embedding, b.Embedding)
				if err != nil || sim <= cfg.RedundancyThreshold {
					continue
				}
				loser, reason := pickRedundancyLoser(a, b)
				report.mark(loser.ID, reason)
				delete(alive, loser.ID)
				if loser.ID == a.ID {
					break
				}
			}
		}
	}
}

func pickRedundancyLoser(a, b Memory) (Memory, string) {
	if a.Importance != b.Importance {
		if a.Importance < b.Importance {
			return a, fmt.Sprintf("redundant with %s (lower importance)", b.ID)
		}
		return b, fmt.Sprintf("redundant with %s (lower importance)", a.ID)
	}
	if a.Timestamp.Before(b.Timestamp) {
		return a, fmt.Sprintf("redundant with %s (older, tie on importance)", b.ID)
	}
	return b, fmt.Sprintf("redundant with %s (older, tie on importance)", a.ID)
}

func applyCapacity(alive map[string]Memory, cfg config.PrunerConfig, report *Report) {
	if cfg.MaxPerSession <= 0 {
		return
	}
	bySession := make(map[string][]Memory)
	for _, m := range alive {
		bySession[m.SessionID] = append(bySession[m.SessionID], m)
	}

	for _, group := range bySession {
		if len(group) <= cfg.MaxPerSession {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Importance < group[j].Importance })
		excess := len(group) - cfg.MaxPerSession
		for _, m := range group[:excess] {
			report.mark(m.ID, fmt.Sprintf("capacity: session over %d memories", cfg.MaxPerSession))
			delete(alive, m.ID)
		}
	}
}
