// Package score implements the importance scorer: a ten-signal weighted
// sum over a chunk's detected content, decayed multiplicatively by age.
package score

import (
	"math"
	"regexp"
	"strings"

	"memoryweave/internal/artifact"
	"memoryweave/internal/chunk"
	"memoryweave/internal/config"
	"memoryweave/internal/entity"
)

// Signals is the detected presence/count of each scoring dimension for one
// chunk. DetectSignals builds this from the chunk text plus its already
// extracted artifact bundle and entities, so detection logic lives in one
// place instead of being duplicated by every caller.
type Signals struct {
	HasDecisionMarker   bool
	HasErrorResolution  bool
	HasLearningMarker   bool
	FilesCreated        int
	HasTestSuccess      bool
	ToolCallCount       int
	HasCodePresence     bool
	HasArchitectureNote bool
	FileOpsCount        int
}

var (
	learningMarkerRe = regexp.MustCompile(`(?i)\b(learned|discovered|turns out|realized)\b`)
	testSuccessRe    = regexp.MustCompile(`(?i)\b(tests? pass(?:ed|ing)?|all (?:tests? )?green|all green)\b`)
	resolvedRe       = regexp.MustCompile(`(?i)\b(fixed|resolved|works? now)\b`)
)

// DetectSignals derives the ten scoring signals for one chunk.
func DetectSignals(c chunk.Chunk, bundle artifact.Bundle, entities []entity.Entity, toolCallCount int) Signals {
	text := c.Intent + "\n" + c.Action + "\n" + c.Outcome

	var s Signals
	s.ToolCallCount = toolCallCount
	s.HasCodePresence = len(bundle.CodeSnippets) > 0
	s.HasArchitectureNote = len(bundle.Architecture) > 0
	s.HasLearningMarker = learningMarkerRe.MatchString(text)
	s.HasTestSuccess = testSuccessRe.MatchString(c.Outcome)
	s.HasErrorResolution = len(bundle.Errors) > 0 && resolvedRe.MatchString(c.Outcome)

	for _, e := range entities {
		switch e.Type {
		case entity.TypeDecision:
			s.HasDecisionMarker = true
		case entity.TypeFile:
			s.FileOpsCount++
			if strings.Contains(strings.ToLower(c.Action), "creat") {
				s.FilesCreated++
			}
		}
	}
	return s
}

// Importance computes the task-independent base importance for a chunk,
// given its signals and age in days. Each signal contributes its configured
// weight (capped counts scale linearly up to their cap), then the sum is
// decayed multiplicatively by age: factor = 0.5^(age_days/half_life).
func Importance(cfg config.ScorerConfig, s Signals, ageDays float64) float64 {
	base := 0.0

	if s.HasDecisionMarker {
		base += cfg.DecisionMarkerWeight
	}
	if s.HasErrorResolution {
		base += cfg.ErrorResolutionWeight
	}
	if s.HasLearningMarker {
		base += cfg.LearningWeight
	}
	if s.FilesCreated > 0 {
		base += cfg.FileCreationWeight
	}
	if s.HasTestSuccess {
		base += cfg.TestSuccessWeight
	}

	toolCalls := s.ToolCallCount
	if cfg.ToolUsageCap > 0 && toolCalls > cfg.ToolUsageCap {
		toolCalls = cfg.ToolUsageCap
	}
	base += float64(toolCalls) * cfg.ToolUsagePerCallWeight

	if s.HasCodePresence {
		base += cfg.CodePresenceWeight
	}
	if s.HasArchitectureNote {
		base += cfg.ArchitectureWeight
	}

	fileOps := s.FileOpsCount
	if cfg.FileOpsCap > 0 && fileOps > cfg.FileOpsCap {
		fileOps = cfg.FileOpsCap
	}
	base += float64(fileOps) * cfg.FileOpsPerFileWeight

	decay := RecencyDecay(cfg.RecencyHalfLifeDays, ageDays)
	return base * decay
}

// RecencyDecay returns the multiplicative recency factor for age_days given a
// half-life: 0.5^(age_days/half_life). A non-positive half-life disables
// decay (factor 1).
func RecencyDecay(halfLifeDays, ageDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1.0
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}
