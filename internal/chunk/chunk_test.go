package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryweave/internal/config"
	"memoryweave/internal/transcript"
)

func testCfg() config.ChunkerConfig {
	return config.Default("/tmp/ws").Chunker
}

func TestRun_EmptyInput(t *testing.T) {
	c := New(testCfg())
	chunks := c.Run(nil)
	assert.Empty(t, chunks)
}

func TestRun_SingleUserMessage(t *testing.T) {
	c := New(testCfg())
	chunks := c.Run([]transcript.Message{
		{Role: transcript.RoleUser, Content: "fix the login bug"},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, "fix the login bug", chunks[0].Intent)
	assert.Empty(t, chunks[0].Action)
	assert.Empty(t, chunks[0].Outcome)
}

func TestRun_IntentActionOutcome(t *testing.T) {
	c := New(testCfg())
	chunks := c.Run([]transcript.Message{
		{Role: transcript.RoleUser, Content: "fix the login bug"},
		{Role: transcript.RoleAssistant, Content: "Patched auth.go to check the token expiry."},
		{Role: transcript.RoleAssistant, Content: "tests pass"},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, "fix the login bug", chunks[0].Intent)
	assert.Contains(t, chunks[0].Action, "auth.go")
	assert.Equal(t, "tests pass", chunks[0].Outcome)
}

func TestRun_DedupConsecutiveIdentical(t *testing.T) {
	c := New(testCfg())
	msgs := []transcript.Message{
		{Role: transcript.RoleUser, Content: "ping"},
		{Role: transcript.RoleAssistant, Content: "pong"},
		{Role: transcript.RoleUser, Content: "ping"},
		{Role: transcript.RoleAssistant, Content: "pong"},
	}
	chunks := c.Run(msgs)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestRun_SoftCapTruncation(t *testing.T) {
	cfg := testCfg()
	cfg.ActionSoftCap = 20
	c := New(cfg)
	chunks := c.Run([]transcript.Message{
		{Role: transcript.RoleUser, Content: "summarize"},
		{Role: transcript.RoleAssistant, Content: strings.Repeat("x", 100)},
	})
	require.Len(t, chunks, 1)
	assert.LessOrEqual(t, len([]rune(chunks[0].Action)), 21) // cap + ellipsis rune
	assert.True(t, strings.HasSuffix(chunks[0].Action, "…"))
}

func TestRun_FileWriteGroupingSplit(t *testing.T) {
	cfg := testCfg()
	cfg.FileGroupMax = 2
	c := New(cfg)
	chunks := c.Run([]transcript.Message{
		{Role: transcript.RoleUser, Content: "refactor the store layer"},
		{Role: transcript.RoleAssistant, Content: "Updated store.go", ToolCalls: []transcript.ToolCall{{Name: "write"}}},
		{Role: transcript.RoleAssistant, Content: "Updated schema.go", ToolCalls: []transcript.ToolCall{{Name: "write"}}},
		{Role: transcript.RoleAssistant, Content: "Updated memory.go", ToolCalls: []transcript.ToolCall{{Name: "write"}}},
	})
	assert.GreaterOrEqual(t, len(chunks), 2)
	for _, ch := range chunks {
		assert.Equal(t, "refactor the store layer", ch.Intent)
	}
}

func TestRun_NaturalBoundaryOnDecision(t *testing.T) {
	c := New(testCfg())
	chunks := c.Run([]transcript.Message{
		{Role: transcript.RoleUser, Content: "how should we store sessions"},
		{Role: transcript.RoleAssistant, Content: "Looking at the options now."},
		{Role: transcript.RoleAssistant, Content: "We decided to use a repository pattern for storage."},
	})
	require.GreaterOrEqual(t, len(chunks), 2)
}

func TestRun_ToolGapSplit(t *testing.T) {
	cfg := testCfg()
	cfg.ToolGapThreshold = 1
	c := New(cfg)
	chunks := c.Run([]transcript.Message{
		{Role: transcript.RoleUser, Content: "investigate the flaky test"},
		{Role: transcript.RoleAssistant, Content: "Let me check.", ToolCalls: []transcript.ToolCall{{Name: "read"}}},
		{Role: transcript.RoleAssistant, Content: "Still thinking about this."},
		{Role: transcript.RoleAssistant, Content: "And more thinking, no tool use here either."},
	})
	assert.GreaterOrEqual(t, len(chunks), 2)
}

func TestChunk_HashStability(t *testing.T) {
	a := Chunk{Intent: "x", Action: "y"}
	b := Chunk{Intent: "x", Action: "y"}
	c := Chunk{Intent: "x", Action: "z"}
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}
