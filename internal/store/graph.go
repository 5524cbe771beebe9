package store

import (
	"encoding/json"
	"fmt"
	"math"

	"memoryweave/internal/logging"
)

// KnowledgeLink is a weighted edge between two entity keys (Entity.Key()).
type KnowledgeLink struct {
	EntityA  string
	Relation string
	EntityB  string
	Weight   float64
	Metadata map[string]interface{}
}

// StoreLink upserts a knowledge graph edge.
func (s *LocalStore) StoreLink(entityA, relation, entityB string, weight float64, metadata map[string]interface{}) error {
	timer := logging.StartTimer(logging.CategoryGraph, "StoreLink")
	defer timer.Stop()

	if entityA == "" || relation == "" || entityB == "" {
		return fmt.Errorf("invalid knowledge graph link: entityA/relation/entityB must be non-empty")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("invalid knowledge graph link weight: %v", weight)
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal knowledge graph metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO knowledge_graph (entity_a, relation, entity_b, weight, metadata)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(entity_a, relation, entity_b) DO UPDATE SET weight=excluded.weight, metadata=excluded.metadata`,
		entityA, relation, entityB, weight, string(metaJSON),
	)
	if err != nil {
		logging.Get(logging.CategoryGraph).Error("StoreLink failed: %v", err)
		return err
	}
	return nil
}

// IncrementLink adds delta to the weight of the (entityA, relation, entityB)
// edge, creating it at that weight if absent. Used by the PreCompact
// pipeline to accumulate co-mention weight across memories instead of
// StoreLink's overwrite semantics, which would lose prior ingestions' counts.
func (s *LocalStore) IncrementLink(entityA, relation, entityB string, delta float64) error {
	if entityA == "" || relation == "" || entityB == "" {
		return fmt.Errorf("invalid knowledge graph link: entityA/relation/entityB must be non-empty")
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return fmt.Errorf("invalid knowledge graph link delta: %v", delta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO knowledge_graph (entity_a, relation, entity_b, weight, metadata)
		 VALUES (?, ?, ?, ?, '{}')
		 ON CONFLICT(entity_a, relation, entity_b) DO UPDATE SET weight = weight + excluded.weight`,
		entityA, relation, entityB, delta,
	)
	if err != nil {
		logging.Get(logging.CategoryGraph).Error("IncrementLink failed: %v", err)
		return err
	}
	return nil
}

// queryLinksLocked executes the link query assuming the caller already holds
// at least s.mu.RLock(). Kept separate from QueryLinks so TraversePath and
// AllLinks can call it without re-acquiring RLock, which can deadlock when a
// writer is pending.
func (s *LocalStore) queryLinksLocked(entity string, direction string) ([]KnowledgeLink, error) {
	var query string
	switch direction {
	case "outgoing":
		query = "SELECT entity_a, relation, entity_b, weight, metadata FROM knowledge_graph WHERE entity_a = ?"
	case "incoming":
		query = "SELECT entity_a, relation, entity_b, weight, metadata FROM knowledge_graph WHERE entity_b = ?"
	default:
		query = "SELECT entity_a, relation, entity_b, weight, metadata FROM knowledge_graph WHERE entity_a = ? OR entity_b = ?"
	}

	var args []interface{}
	if direction == "both" {
		args = []interface{}{entity, entity}
	} else {
		args = []interface{}{entity}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []KnowledgeLink
	for rows.Next() {
		var link KnowledgeLink
		var metaJSON string
		if err := rows.Scan(&link.EntityA, &link.Relation, &link.EntityB, &link.Weight, &metaJSON); err != nil {
			logging.Get(logging.CategoryGraph).Warn("graph row scan failed: %v", err)
			continue
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &link.Metadata); err != nil {
				logging.Get(logging.CategoryGraph).Warn("graph metadata unmarshal failed for %q-[%s]->%q: %v",
					link.EntityA, link.Relation, link.EntityB, err)
			}
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// QueryLinks retrieves links touching entity in the given direction
// ("outgoing", "incoming", or "both").
func (s *LocalStore) QueryLinks(entity string, direction string) ([]KnowledgeLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLinksLocked(entity, direction)
}

// AllLinks returns every stored edge, used by internal/graph to build its
// in-memory adjacency map for PageRank/betweenness/k-hop queries.
func (s *LocalStore) AllLinks() ([]KnowledgeLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT entity_a, relation, entity_b, weight, metadata FROM knowledge_graph`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []KnowledgeLink
	for rows.Next() {
		var link KnowledgeLink
		var metaJSON string
		if err := rows.Scan(&link.EntityA, &link.Relation, &link.EntityB, &link.Weight, &metaJSON); err != nil {
			continue
		}
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &link.Metadata)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// TraversePath finds a path between two entities using BFS, bounded at
// maxDepth hops.
func (s *LocalStore) TraversePath(from, to string, maxDepth int) ([]KnowledgeLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 5
	}

	type queueItem struct {
		entity string
		depth  int
	}

	cameFrom := make(map[string]*KnowledgeLink)
	queue := []queueItem{{entity: from, depth: 0}}
	cameFrom[from] = nil

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.entity == to {
			path := make([]KnowledgeLink, current.depth)
			curr := to
			for i := current.depth - 1; i >= 0; i-- {
				link := cameFrom[curr]
				if link == nil {
					break
				}
				path[i] = *link
				curr = link.EntityA
			}
			return path, nil
		}

		if current.depth >= maxDepth {
			continue
		}

		links, err := s.queryLinksLocked(current.entity, "outgoing")
		if err != nil {
			continue
		}
		for _, link := range links {
			if _, visited := cameFrom[link.EntityB]; !visited {
				l := link
				cameFrom[link.EntityB] = &l
				queue = append(queue, queueItem{entity: link.EntityB, depth: current.depth + 1})
			}
		}
	}

	return nil, fmt.Errorf("no path found from %s to %s", from, to)
}
