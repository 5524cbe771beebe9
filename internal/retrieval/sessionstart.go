package retrieval

// ImportanceCategory buckets a base importance score into the four bands
// used for the SessionStart summary indicators.
type ImportanceCategory string

const (
	CategoryLow      ImportanceCategory = "low"
	CategoryMedium   ImportanceCategory = "medium"
	CategoryHigh     ImportanceCategory = "high"
	CategoryCritical ImportanceCategory = "critical"
)

// Categorize buckets importance: low <5, medium 5-10, high 10-20, critical >=20.
func Categorize(importance float64) ImportanceCategory {
	switch {
	case importance >= 20:
		return CategoryCritical
	case importance >= 10:
		return CategoryHigh
	case importance >= 5:
		return CategoryMedium
	default:
		return CategoryLow
	}
}

// Indicator returns the emoji marker for a category.
func Indicator(cat ImportanceCategory) string {
	switch cat {
	case CategoryCritical:
		return "🔴"
	case CategoryHigh:
		return "🟠"
	case CategoryMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

// Candidate is one memory under consideration for the SessionStart summary,
// carrying everything the scoring and formatting stages need. It is
// deliberately store-shaped rather than store.Memory itself, so this package
// has no import-time dependency on internal/store.
type Candidate struct {
	ID             string
	Intent         string
	Outcome        string
	Similarity     float64 // cosine similarity to the query embedding
	BaseImportance float64
	TaskBoost      float64
	Recent         bool // true if added via the k_recent prepend, exempt from the quality gate
}

// Scored is a Candidate plus its computed final ranking score.
type Scored struct {
	Candidate
	TaskImportance float64
	FinalScore     float64
}

// Select runs the adaptive-K retrieval algorithm: quality-gate non-recent
// candidates at minSimilarity, score every survivor with
// alpha*similarity + beta*normalize(task_importance), sort descending, and
// keep at most kMax of them. Recent candidates are exempt from the gate and
// are not scored: up to kRecent of them are placed ahead of the top-K
// (deduplicated against it by ID) rather than padding a short result.
func Select(candidates []Candidate, minSimilarity, alpha, beta float64, kMax, kRecent int) []Scored {
	gated := make([]Candidate, 0, len(candidates))
	var recent []Candidate
	for _, c := range candidates {
		if c.Recent {
			recent = append(recent, c)
			continue
		}
		if c.Similarity >= minSimilarity {
			gated = append(gated, c)
		}
	}

	maxTaskImportance := 0.0
	for _, c := range gated {
		ti := TaskImportance(c.BaseImportance, c.TaskBoost)
		if ti > maxTaskImportance {
			maxTaskImportance = ti
		}
	}

	scored := make([]Scored, 0, len(gated))
	for _, c := range gated {
		ti := TaskImportance(c.BaseImportance, c.TaskBoost)
		norm := 0.0
		if maxTaskImportance > 0 {
			norm = ti / maxTaskImportance
		}
		scored = append(scored, Scored{
			Candidate:      c,
			TaskImportance: ti,
			FinalScore:     alpha*c.Similarity + beta*norm,
		})
	}
	sortByScoreDesc(scored)
	if kMax > 0 && len(scored) > kMax {
		scored = scored[:kMax]
	}

	seen := make(map[string]bool, len(scored))
	for _, s := range scored {
		seen[s.ID] = true
	}

	if kRecent > 0 && len(recent) > kRecent {
		recent = recent[:kRecent]
	}
	out := make([]Scored, 0, len(recent)+len(scored))
	for _, c := range recent {
		if seen[c.ID] {
			continue
		}
		ti := TaskImportance(c.BaseImportance, c.TaskBoost)
		out = append(out, Scored{Candidate: c, TaskImportance: ti})
		seen[c.ID] = true
	}

	return append(out, scored...)
}

// FormatLine renders one scored candidate as a SessionStart summary line:
// importance-category indicator, intent, a one-line outcome, a task-boost
// marker when task_boost > 0, and a distinct [recent] tag for entries
// exempted from the quality gate via the k_recent prepend.
func FormatLine(s Scored) string {
	line := Indicator(Categorize(s.BaseImportance)) + " " + s.Intent
	if s.Outcome != "" {
		line += " — " + s.Outcome
	}
	if s.TaskBoost > 0 {
		line += " ★"
	}
	if s.Recent {
		line += " [recent]"
	}
	return line
}

func sortByScoreDesc(s []Scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].FinalScore > s[j-1].FinalScore; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
