package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	timestamp DATETIME NOT NULL,
	intent TEXT NOT NULL,
	action TEXT NOT NULL,
	outcome TEXT NOT NULL,
	files TEXT NOT NULL DEFAULT '[]',
	embedding BLOB,
	embedded_text TEXT NOT NULL DEFAULT '',
	importance REAL NOT NULL DEFAULT 0,
	cluster_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
CREATE INDEX IF NOT EXISTS idx_memories_cluster ON memories(cluster_id);

CREATE TABLE IF NOT EXISTS entities (
	type TEXT NOT NULL,
	canonical_form TEXT NOT NULL,
	surface_form TEXT NOT NULL,
	PRIMARY KEY (type, canonical_form)
);

CREATE TABLE IF NOT EXISTS memory_entities (
	memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	entity_type TEXT NOT NULL,
	entity_canonical TEXT NOT NULL,
	PRIMARY KEY (memory_id, entity_type, entity_canonical)
);
CREATE INDEX IF NOT EXISTS idx_memory_entities_memory ON memory_entities(memory_id);
CREATE INDEX IF NOT EXISTS idx_memory_entities_entity ON memory_entities(entity_type, entity_canonical);

CREATE TABLE IF NOT EXISTS kg_cache (
	generation TEXT PRIMARY KEY,
	computed_at DATETIME NOT NULL,
	payload BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS knowledge_graph (
	entity_a TEXT NOT NULL,
	relation TEXT NOT NULL,
	entity_b TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 1.0,
	metadata TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (entity_a, relation, entity_b)
);
CREATE INDEX IF NOT EXISTS idx_kg_entity_a ON knowledge_graph(entity_a);
CREATE INDEX IF NOT EXISTS idx_kg_entity_b ON knowledge_graph(entity_b);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_index USING vec0(embedding, memory_id);
`

func (s *LocalStore) createSchema() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}
