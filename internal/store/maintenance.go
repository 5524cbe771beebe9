package store

import (
	"context"
	"fmt"

	"memoryweave/internal/logging"
)

// DeleteBatch removes a set of memories and their derived rows atomically.
// Used by the pruner and by explicit operator cleanup.
func (s *LocalStore) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryStore, "DeleteBatch")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete memory %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	for _, id := range ids {
		deleteVecRowsForMemory(id)
	}
	logging.StoreDebug("DeleteBatch: removed %d memories", len(ids))
	return nil
}

// SetClusterID records the clusterer's label for one memory. Cluster labels
// are derived data only — this never touches importance, embedding, or any
// field a ranking signal reads.
func (s *LocalStore) SetClusterID(ctx context.Context, id, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE memories SET cluster_id = ? WHERE id = ?`, clusterID, id)
	return err
}

// GCOrphanedEntities deletes every entity no longer referenced by any
// memory_entities row, plus any knowledge_graph edge touching it, and returns
// the number of entities removed. Run after a real (non-dry-run) pruner
// sweep so the graph's reachable entities always have a live memory backing
// them.
func (s *LocalStore) GCOrphanedEntities(ctx context.Context) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GCOrphanedEntities")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.type, e.canonical_form FROM entities e
		WHERE NOT EXISTS (
			SELECT 1 FROM memory_entities me
			WHERE me.entity_type = e.type AND me.entity_canonical = e.canonical_form
		)`)
	if err != nil {
		return 0, fmt.Errorf("query orphaned entities: %w", err)
	}
	type key struct{ typ, canonical string }
	var orphans []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.typ, &k.canonical); err != nil {
			rows.Close()
			return 0, err
		}
		orphans = append(orphans, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, o := range orphans {
		entityKey := o.typ + "\x00" + o.canonical
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM knowledge_graph WHERE entity_a = ? OR entity_b = ?`, entityKey, entityKey); err != nil {
			return 0, fmt.Errorf("delete orphaned graph edges for %s: %w", entityKey, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entities WHERE type = ? AND canonical_form = ?`, o.typ, o.canonical); err != nil {
			return 0, fmt.Errorf("delete orphaned entity %s: %w", entityKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	logging.StoreDebug("GCOrphanedEntities: removed %d entities", len(orphans))
	return len(orphans), nil
}
