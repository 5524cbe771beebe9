package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"memoryweave/internal/config"
	"memoryweave/internal/entity"
	"memoryweave/internal/logging"
)

// LocalStore is the memory store: a single SQLite database guarded by an
// RWMutex (single *sql.DB, SetMaxOpenConns(1), WAL + NORMAL synchronous
// pragmas for crash-safe single-writer throughput).
type LocalStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
	dims int
}

// Open initializes (creating if absent) the SQLite database described by cfg.
func Open(cfg config.StoreConfig) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed %q: %v", pragma, err)
		}
	}

	s := &LocalStore{db: db, path: cfg.DatabasePath, dims: cfg.Dimensions}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := s.rebuildVecIndex(); err != nil {
		if cfg.RequireVec {
			db.Close()
			return nil, fmt.Errorf("rebuild vector index: %w", err)
		}
		logging.Get(logging.CategoryStore).Warn("vector index rebuild failed, falling back to brute-force search: %v", err)
	}

	logging.Store("store opened at %s", cfg.DatabasePath)
	return s, nil
}

// Close releases the underlying database handle.
func (s *LocalStore) Close() error { return s.db.Close() }

// Put inserts or replaces a single memory and its entity edges inside one
// transaction; its vector index row is written after the commit.
func (s *LocalStore) Put(ctx context.Context, m Memory) error {
	return s.PutBatch(ctx, []Memory{m})
}

// PutBatch ingests memories inside a single SQL transaction: either every
// memory in the batch lands, or none does. This is the mechanism backing
// transactional PreCompact ingestion — the store genuinely supports
// transactions, so no staging-directory/rename scheme is needed.
func (s *LocalStore) PutBatch(ctx context.Context, memories []Memory) error {
	if len(memories) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryStore, "PutBatch")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range memories {
		if s.dims > 0 && len(m.Embedding) > 0 && len(m.Embedding) != s.dims {
			return fmt.Errorf("put memory %s: embedding has %d dimensions, store requires %d", m.ID, len(m.Embedding), s.dims)
		}
		if err := putOne(ctx, tx, m); err != nil {
			return fmt.Errorf("put memory %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	for _, m := range memories {
		if len(m.Embedding) > 0 {
			insertVecRow(m.ID, m.Embedding)
		}
	}
	logging.StoreDebug("PutBatch: ingested %d memories", len(memories))
	return nil
}

func putOne(ctx context.Context, tx *sql.Tx, m Memory) error {
	filesJSON, err := json.Marshal(m.Files)
	if err != nil {
		return err
	}

	var embBlob []byte
	if len(m.Embedding) > 0 {
		embBlob = EncodeEmbedding(m.Embedding)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, session_id, chunk_index, timestamp, intent, action, outcome, files, embedding, embedded_text, importance, cluster_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id=excluded.session_id, chunk_index=excluded.chunk_index, timestamp=excluded.timestamp,
			intent=excluded.intent, action=excluded.action, outcome=excluded.outcome, files=excluded.files,
			embedding=excluded.embedding, embedded_text=excluded.embedded_text, importance=excluded.importance, cluster_id=excluded.cluster_id`,
		m.ID, m.SessionID, m.ChunkIndex, m.Timestamp.UTC(), m.Intent, m.Action, m.Outcome,
		string(filesJSON), embBlob, m.EmbeddedText, m.Importance, m.ClusterID,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_entities WHERE memory_id = ?`, m.ID); err != nil {
		return err
	}
	for _, e := range m.Entities {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO entities (type, canonical_form, surface_form) VALUES (?, ?, ?)`,
			string(e.Type), e.CanonicalForm, e.SurfaceForm); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_entities (memory_id, entity_type, entity_canonical) VALUES (?, ?, ?)`,
			m.ID, string(e.Type), e.CanonicalForm); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the memory with id, if present.
func (s *LocalStore) Get(ctx context.Context, id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx, id)
}

func (s *LocalStore) getLocked(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, chunk_index, timestamp, intent, action, outcome, files, embedding, embedded_text, importance, cluster_id
		FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err != nil {
		return nil, err
	}
	m.Entities, err = s.entitiesForLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *LocalStore) entitiesForLocked(ctx context.Context, memoryID string) ([]entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.type, e.canonical_form, e.surface_form
		FROM memory_entities me JOIN entities e ON e.type = me.entity_type AND e.canonical_form = me.entity_canonical
		WHERE me.memory_id = ?`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		var e entity.Entity
		var typ string
		if err := rows.Scan(&typ, &e.CanonicalForm, &e.SurfaceForm); err != nil {
			return nil, err
		}
		e.Type = entity.Type(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes a memory and its derived rows.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return err
	}
	deleteVecRowsForMemory(id)
	return nil
}

// Filter restricts which memories a query considers.
type Filter struct {
	SessionID string // empty = all sessions
	Since     time.Time
	Until     time.Time
}

// Query returns memories matching filter, ordered by timestamp ascending.
func (s *LocalStore) Query(ctx context.Context, f Filter) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, session_id, chunk_index, timestamp, intent, action, outcome, files, embedding, embedded_text, importance, cluster_id FROM memories WHERE 1=1`
	var args []any
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if !f.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, f.Until.UTC())
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		ents, err := s.entitiesForLocked(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		m.Entities = ents
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Scan returns every memory in the store (used by pruning, clustering, and
// graph construction, which all need the full corpus).
func (s *LocalStore) Scan(ctx context.Context) ([]Memory, error) {
	return s.Query(ctx, Filter{})
}

// Count returns the number of stored memories, overall or scoped to a
// session.
func (s *LocalStore) Count(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	var err error
	if sessionID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE session_id = ?`, sessionID).Scan(&n)
	}
	return n, err
}

// Stats summarizes the store's contents for the `stats` command.
type Stats struct {
	TotalMemories   int
	TotalSessions   int
	TotalEntities   int
	OldestTimestamp time.Time
	NewestTimestamp time.Time
	AverageImportance float64
}

// Stats computes summary statistics over the whole store.
func (s *LocalStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT session_id), COALESCE(AVG(importance), 0),
		       MIN(timestamp), MAX(timestamp)
		FROM memories`)
	var minTS, maxTS sql.NullTime
	if err := row.Scan(&st.TotalMemories, &st.TotalSessions, &st.AverageImportance, &minTS, &maxTS); err != nil {
		return st, err
	}
	if minTS.Valid {
		st.OldestTimestamp = minTS.Time
	}
	if maxTS.Valid {
		st.NewestTimestamp = maxTS.Time
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&st.TotalEntities); err != nil {
		return st, err
	}
	return st, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMemory(row scannable) (*Memory, error) {
	var m Memory
	var filesJSON string
	var embBlob []byte
	var ts time.Time
	if err := row.Scan(&m.ID, &m.SessionID, &m.ChunkIndex, &ts, &m.Intent, &m.Action, &m.Outcome,
		&filesJSON, &embBlob, &m.EmbeddedText, &m.Importance, &m.ClusterID); err != nil {
		return nil, err
	}
	m.Timestamp = ts
	if filesJSON != "" {
		_ = json.Unmarshal([]byte(filesJSON), &m.Files)
	}
	if len(embBlob) > 0 {
		m.Embedding = DecodeEmbedding(embBlob)
	}
	return &m, nil
}
