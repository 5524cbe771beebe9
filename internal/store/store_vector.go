package store

import (
	"context"
	"fmt"

	"memoryweave/internal/embedding"
	"memoryweave/internal/logging"
)

// rebuildVecIndex repopulates the in-memory vec_index virtual table from
// memories.embedding. The vec0 compat shim keeps no state across process
// restarts, so every store Open() re-seeds it from the durable column.
func (s *LocalStore) rebuildVecIndex() error {
	rows, err := s.db.Query(`SELECT id, embedding FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("query embeddings for vec index rebuild: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		if _, err := s.db.Exec(`INSERT INTO vec_index (embedding, memory_id) VALUES (?, ?)`, blob, id); err != nil {
			return err
		}
		n++
	}
	logging.StoreDebug("rebuildVecIndex: reseeded %d rows", n)
	return rows.Err()
}

// insertVecRow is called after a successful PutBatch commit so the vec_index
// reflects what's durable. It runs outside the write transaction: the vec0
// compat table is not part of the SQLite WAL, so it cannot participate in
// transactional atomicity, but it is purely a derived acceleration structure
// rebuildVecIndex can always regenerate from memories.embedding.
func insertVecRow(id string, vec []float32) {
	vecTablesMu.RLock()
	tbl, ok := vecTables["vec_index"]
	vecTablesMu.RUnlock()
	if !ok {
		return
	}
	// A re-embedded memory already has a row; only pay for the delete scan
	// when the secondary index says one actually exists.
	if tbl.hasMemoryID(id) {
		tbl.deleteByMemoryID(id)
	}
	tbl.mu.Lock()
	rid := tbl.nextRowID
	tbl.nextRowID++
	tbl.rows = append(tbl.rows, vecRow{rowid: rid, embedding: EncodeEmbedding(vec), memoryID: id})
	tbl.index(rid, id)
	tbl.mu.Unlock()
}

// SimilaritySearch returns the k memories whose embeddings are most similar
// to query, using the vec0 compat table when it has rows, falling back to a
// brute-force scan over memories.embedding otherwise (e.g. a store opened
// with RequireVec=false where the virtual table is empty or unavailable).
func (s *LocalStore) SimilaritySearch(ctx context.Context, query []float32, k int) ([]ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vecTablesMu.RLock()
	tbl, haveVec := vecTables["vec_index"]
	vecTablesMu.RUnlock()
	if haveVec {
		tbl.mu.RLock()
		n := len(tbl.rows)
		tbl.mu.RUnlock()
		if n > 0 {
			return s.vecSimilaritySearch(ctx, query, k)
		}
	}
	return s.bruteForceSimilaritySearch(ctx, query, k)
}

// ScoredMemory pairs a memory with its similarity to a query vector.
type ScoredMemory struct {
	Memory     Memory
	Similarity float64
}

func (s *LocalStore) vecSimilaritySearch(ctx context.Context, query []float32, k int) ([]ScoredMemory, error) {
	qBlob := EncodeEmbedding(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, vector_distance_cos(embedding, ?) AS dist
		FROM vec_index
		ORDER BY dist ASC
		LIMIT ?`, qBlob, k)
	if err != nil {
		return nil, fmt.Errorf("vec_index search: %w", err)
	}
	defer rows.Close()

	var out []ScoredMemory
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			return nil, err
		}
		m, err := s.getLocked(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, ScoredMemory{Memory: *m, Similarity: 1 - dist})
	}
	return out, rows.Err()
}

func (s *LocalStore) bruteForceSimilaritySearch(ctx context.Context, query []float32, k int) ([]ScoredMemory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		ids = append(ids, id)
		vecs = append(vecs, DecodeEmbedding(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top := embedding.FindTopK(query, vecs, k)
	out := make([]ScoredMemory, 0, len(top))
	for _, r := range top {
		m, err := s.getLocked(ctx, ids[r.Index])
		if err != nil {
			continue
		}
		out = append(out, ScoredMemory{Memory: *m, Similarity: r.Similarity})
	}
	return out, nil
}
