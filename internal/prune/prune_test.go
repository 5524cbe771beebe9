package prune

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryweave/internal/config"
)

func testCfg() config.PrunerConfig {
	return config.PrunerConfig{
		OldThresholdDays:       90,
		LowImportanceThreshold: 3.0,
		RedundancyThreshold:    0.95,
		MaxPerSession:          500,
	}
}

func TestSweep_AgeAndImportance(t *testing.T) {
	now := time.Now()
	memories := []Memory{
		{ID: "old-low", SessionID: "s1", Timestamp: now.Add(-100 * 24 * time.Hour), Importance: 1},
		{ID: "old-high", SessionID: "s1", Timestamp: now.Add(-100 * 24 * time.Hour), Importance: 10},
		{ID: "new-low", SessionID: "s1", Timestamp: now, Importance: 1},
	}
	report, err := Sweep(context.Background(), memories, testCfg(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-low"}, report.WouldDelete)
}

func TestSweep_Redundancy(t *testing.T) {
	now := time.Now()
	memories := []Memory{
		{ID: "a", SessionID: "s1", Timestamp: now, Importance: 5, Embedding: []float32{1, 0, 0}},
		{ID: "b", SessionID: "s1", Timestamp: now.Add(time.Hour), Importance: 2, Embedding: []float32{1, 0, 0}},
	}
	cfg := testCfg()
	report, err := Sweep(context.Background(), memories, cfg, now)
	require.NoError(t, err)
	assert.Contains(t, report.WouldDelete, "b")
	assert.NotContains(t, report.WouldDelete, "a")
}

func TestSweep_RedundancyTieBrokenByRecency(t *testing.T) {
	now := time.Now()
	memories := []Memory{
		{ID: "older", SessionID: "s1", Timestamp: now, Importance: 5, Embedding: []float32{1, 0}},
		{ID: "newer", SessionID: "s1", Timestamp: now.Add(time.Hour), Importance: 5, Embedding: []float32{1, 0}},
	}
	report, err := Sweep(context.Background(), memories, testCfg(), now)
	require.NoError(t, err)
	assert.Contains(t, report.WouldDelete, "older")
	assert.NotContains(t, report.WouldDelete, "newer")
}

func TestSweep_NotRedundantBelowThreshold(t *testing.T) {
	now := time.Now()
	memories := []Memory{
		{ID: "a", SessionID: "s1", Timestamp: now, Importance: 5, Embedding: []float32{1, 0}},
		{ID: "b", SessionID: "s1", Timestamp: now, Importance: 5, Embedding: []float32{0, 1}},
	}
	report, err := Sweep(context.Background(), memories, testCfg(), now)
	require.NoError(t, err)
	assert.Empty(t, report.WouldDelete)
}

func TestSweep_Capacity(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	cfg.MaxPerSession = 2
	memories := []Memory{
		{ID: "low", SessionID: "s1", Timestamp: now, Importance: 1, Embedding: []float32{1, 0, 0}},
		{ID: "mid", SessionID: "s1", Timestamp: now, Importance: 5, Embedding: []float32{0, 1, 0}},
		{ID: "high", SessionID: "s1", Timestamp: now, Importance: 10, Embedding: []float32{0, 0, 1}},
	}
	report, err := Sweep(context.Background(), memories, cfg, now)
	require.NoError(t, err)
	assert.Contains(t, report.WouldDelete, "low")
	assert.NotContains(t, report.WouldDelete, "high")
}

func TestSweep_AgeRuleDoesNotRemoveImportantOldMemory(t *testing.T) {
	now := time.Now()
	memories := []Memory{
		{ID: "old-important", SessionID: "s1", Timestamp: now.Add(-200 * 24 * time.Hour), Importance: 15},
	}
	report, err := Sweep(context.Background(), memories, testCfg(), now)
	require.NoError(t, err)
	assert.Empty(t, report.WouldDelete)
}

func TestSweep_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	memories := []Memory{
		{ID: "old-low", SessionID: "s1", Timestamp: now.Add(-100 * 24 * time.Hour), Importance: 1},
	}
	_, err := Sweep(context.Background(), memories, testCfg(), now)
	require.NoError(t, err)
	assert.Equal(t, "old-low", memories[0].ID)
}
