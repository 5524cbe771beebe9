// Package chunk converts an ordered transcript into Intent/Action/Outcome
// triples along semantic boundaries.
//
// It walks messages in order, accumulates a run of assistant activity into a
// buffer, and flushes it into an emitted unit whenever a new user turn starts,
// a natural-boundary signal appears within the run, or the transcript ends.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"memoryweave/internal/config"
	"memoryweave/internal/transcript"
)

// Chunk is one Intent/Action/Outcome triple, in session order.
type Chunk struct {
	Index   int
	Intent  string
	Action  string
	Outcome string
}

// Hash returns a stable content hash of (intent, action), used for dedup.
// The memory identity is derived separately (store.ID).
func (c Chunk) Hash() string {
	h := sha256.Sum256([]byte(c.Intent + "\x00" + c.Action))
	return hex.EncodeToString(h[:])
}

var (
	outcomeMarkerRe = regexp.MustCompile(`(?i)\b(done|fixed|tests? pass(?:ed|ing)?|all green|error|failed?|resolved|works? now)\b`)
	fileWriteRe     = regexp.MustCompile(`(?i)\b(write|edit|creat(?:e|ed|ing)|updat(?:e|ed|ing))\b.*\.(go|py|js|ts|rb|java|rs|c|cpp|md|json|yaml)\b`)
	decisionRe      = regexp.MustCompile(`(?i)\b(decided to|chose|will use|going with)\b`)
)

// pendingAction accumulates the messages following a user turn.
type pendingAction struct {
	parts        []string
	fileWriteRun int // consecutive file-write messages seen in the current run
	sinceToolGap int // messages since the last tool call, for gap detection
}

func (p pendingAction) empty() bool { return len(p.parts) == 0 }

// Chunker splits a transcript into chunks under a fixed ChunkerConfig.
type Chunker struct {
	cfg config.ChunkerConfig
}

// New returns a Chunker bound to cfg.
func New(cfg config.ChunkerConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// Run converts messages into an ordered, deduplicated chunk sequence. Empty
// input yields empty output. A transcript containing only a single user
// message yields one chunk with empty action/outcome.
func (c *Chunker) Run(messages []transcript.Message) []Chunk {
	var chunks []Chunk
	var curIntent string
	var haveIntent bool
	var pending pendingAction

	emit := func(intent, action string) {
		intent, action = c.applyCaps(intent, action)
		chunks = append(chunks, Chunk{Intent: intent, Action: action, Outcome: c.extractOutcome(action)})
	}

	flush := func() {
		if !haveIntent {
			return
		}
		emit(curIntent, strings.Join(pending.parts, "\n"))
		pending = pendingAction{}
	}

	for _, msg := range messages {
		switch msg.Role {
		case transcript.RoleUser:
			flush()
			curIntent = msg.Content
			haveIntent = true
		case transcript.RoleAssistant, transcript.RoleTool:
			if !haveIntent {
				// No preceding user turn (e.g. a leading system/assistant
				// message) — infer an intent placeholder so every emitted
				// chunk satisfies the non-empty-intent contract.
				curIntent = "(continued session)"
				haveIntent = true
			}
			c.absorb(&pending, msg, &chunks, curIntent)
		}
	}
	flush()

	return dedup(reindex(chunks))
}

// absorb appends one assistant/tool message to the pending action buffer,
// applying the natural-boundary override and the file-write grouping window.
// On a natural-boundary split it flushes the buffered action as its own
// chunk (sharing intent) and starts a fresh one.
func (c *Chunker) absorb(pending *pendingAction, msg transcript.Message, chunks *[]Chunk, intent string) {
	isFileWrite := fileWriteRe.MatchString(msg.Content)
	isDecision := decisionRe.MatchString(msg.Content)
	hasToolCall := len(msg.ToolCalls) > 0

	splitNow := false
	if isDecision && !pending.empty() {
		splitNow = true
	}
	if isFileWrite {
		pending.fileWriteRun++
		if pending.fileWriteRun > c.cfg.FileGroupMax && !pending.empty() {
			splitNow = true
		}
	} else {
		pending.fileWriteRun = 0
	}
	if hasToolCall {
		pending.sinceToolGap = 0
	} else {
		pending.sinceToolGap++
		if c.cfg.ToolGapThreshold > 0 && pending.sinceToolGap > c.cfg.ToolGapThreshold && !pending.empty() {
			splitNow = true
		}
	}

	if splitNow {
		splitIntent, action := c.applyCaps(intent, strings.Join(pending.parts, "\n"))
		*chunks = append(*chunks, Chunk{Intent: splitIntent, Action: action, Outcome: c.extractOutcome(action)})
		*pending = pendingAction{}
	}

	text := msg.Content
	if msg.ToolResult != nil && msg.ToolResult.Output != "" {
		text = strings.TrimSpace(text + "\n" + msg.ToolResult.Output)
	}
	if text != "" {
		pending.parts = append(pending.parts, text)
	}
}

// applyCaps enforces the chunker's soft character caps, truncating with an
// ellipsis marker when exceeded.
func (c *Chunker) applyCaps(intent, action string) (string, string) {
	return truncate(intent, c.cfg.IntentSoftCap), truncate(action, c.cfg.ActionSoftCap)
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

// extractOutcome inspects the final non-empty line of an action for an
// outcome marker (done/fixed/tests pass/error/...); any other ending yields
// no outcome rather than a guessed one.
func (c *Chunker) extractOutcome(action string) string {
	lines := strings.Split(action, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if outcomeMarkerRe.MatchString(line) {
			return truncate(line, c.cfg.OutcomeSoftCap)
		}
		break
	}
	return ""
}

func reindex(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// dedup drops a chunk whose (intent, action) hash matches the immediately
// previous chunk, then re-indexes.
func dedup(chunks []Chunk) []Chunk {
	var out []Chunk
	var lastHash string
	for _, ch := range chunks {
		h := ch.Hash()
		if h == lastHash {
			continue
		}
		out = append(out, ch)
		lastHash = h
	}
	return reindex(out)
}
