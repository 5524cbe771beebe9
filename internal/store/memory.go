// Package store implements the memory store: durable SQLite persistence
// for chunks, their derived entities, and the vector index used for semantic
// recall.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"memoryweave/internal/entity"
)

// Memory is one persisted Intent/Action/Outcome triple with everything
// derived from it during PreCompact ingestion.
type Memory struct {
	ID         string
	SessionID  string
	ChunkIndex int
	Timestamp  time.Time

	Intent  string
	Action  string
	Outcome string

	Files    []string
	Entities []entity.Entity

	Embedding  []float32
	Importance float64

	// EmbeddedText is the exact contextual-prefix string fed to the embedder,
	// stored for reproducibility and to satisfy the "embedded_text begins with
	// the contextual prefix" invariant.
	EmbeddedText string

	// ClusterID is set by the clusterer; empty until a clustering pass runs.
	ClusterID string
}

// ID derives the stable memory identity from session_id + chunk_index +
// intent only, so it is stable across re-runs even if action/outcome
// extraction logic changes later, and re-ingesting the same chunk at the
// same session position is idempotent.
func ID(sessionID string, chunkIndex int, intent string) string {
	h := sha256.Sum256([]byte(sessionID + "\x00" + strconv.Itoa(chunkIndex) + "\x00" + intent))
	return hex.EncodeToString(h[:])[:32]
}
