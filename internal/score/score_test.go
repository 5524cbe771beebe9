package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"memoryweave/internal/artifact"
	"memoryweave/internal/chunk"
	"memoryweave/internal/config"
	"memoryweave/internal/entity"
)

func testCfg() config.ScorerConfig {
	return config.Default("/tmp/ws").Scorer
}

func TestDetectSignals_Basic(t *testing.T) {
	c := chunk.Chunk{
		Intent:  "fix the login bug",
		Action:  "Created auth.go.\n```go\nfunc login() {}\n```",
		Outcome: "tests pass",
	}
	bundle := artifact.Bundle{
		CodeSnippets: []artifact.CodeSnippet{{Language: "go"}},
		Errors:       []string{"Error: boom"},
	}
	entities := []entity.Entity{
		{Type: entity.TypeFile, CanonicalForm: "auth.go"},
		{Type: entity.TypeDecision, CanonicalForm: "use repository pattern"},
	}

	s := DetectSignals(c, bundle, entities, 4)

	assert.True(t, s.HasDecisionMarker)
	assert.True(t, s.HasCodePresence)
	assert.True(t, s.HasTestSuccess)
	assert.Equal(t, 1, s.FileOpsCount)
	assert.Equal(t, 1, s.FilesCreated)
	assert.Equal(t, 4, s.ToolCallCount)
}

func TestImportance_WeightsSum(t *testing.T) {
	cfg := testCfg()
	s := Signals{HasDecisionMarker: true, HasTestSuccess: true}
	got := Importance(cfg, s, 0)
	want := cfg.DecisionMarkerWeight + cfg.TestSuccessWeight
	assert.InDelta(t, want, got, 1e-9)
}

func TestImportance_ToolUsageCap(t *testing.T) {
	cfg := testCfg()
	cfg.ToolUsageCap = 5
	cfg.ToolUsagePerCallWeight = 1.0
	uncapped := Importance(cfg, Signals{ToolCallCount: 5}, 0)
	overCap := Importance(cfg, Signals{ToolCallCount: 50}, 0)
	assert.InDelta(t, uncapped, overCap, 1e-9, "tool usage contribution should saturate at the cap")
}

func TestImportance_RecencyDecay(t *testing.T) {
	cfg := testCfg()
	s := Signals{HasDecisionMarker: true}
	fresh := Importance(cfg, s, 0)
	aged := Importance(cfg, s, cfg.RecencyHalfLifeDays)
	assert.InDelta(t, fresh/2, aged, 1e-6, "importance should halve after one half-life")
}

func TestRecencyDecay_ZeroHalfLifeDisablesDecay(t *testing.T) {
	assert.Equal(t, 1.0, RecencyDecay(0, 1000))
}

func TestRecencyDecay_Monotonic(t *testing.T) {
	f1 := RecencyDecay(30, 10)
	f2 := RecencyDecay(30, 20)
	assert.Greater(t, f1, f2)
}
