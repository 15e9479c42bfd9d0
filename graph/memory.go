package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/siherrmann/resolver/model"
)

// MemoryStore is an in-memory Store implementation, used in tests and as a
// fallback when no Postgres store is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	nodes     map[int64]*model.Entity
	edges     map[string]*model.Relation
	adjacency map[int64][]string
	decisions []*model.Decision
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:     map[int64]*model.Entity{},
		edges:     map[string]*model.Relation{},
		adjacency: map[int64][]string{},
	}
}

// UpsertNode stores a snapshot of the entity, replacing any previous version.
func (s *MemoryStore) UpsertNode(ctx context.Context, entity *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[entity.ID] = entity.Clone()
	return nil
}

// UpsertEdge stores an edge keyed by (subject, predicate, object); replays
// update the edge in place instead of duplicating it.
func (s *MemoryStore) UpsertEdge(ctx context.Context, relation *model.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey(relation)
	if _, exists := s.edges[key]; !exists {
		s.adjacency[relation.SubjectID] = append(s.adjacency[relation.SubjectID], key)
		if relation.ObjectID != relation.SubjectID {
			s.adjacency[relation.ObjectID] = append(s.adjacency[relation.ObjectID], key)
		}
	}
	s.edges[key] = relation
	return nil
}

// Node returns the stored entity for an id.
func (s *MemoryStore) Node(ctx context.Context, id int64) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d not found", id)
	}
	return node.Clone(), nil
}

// Edges returns all edges connected to the given node id.
func (s *MemoryStore) Edges(ctx context.Context, id int64) ([]*model.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var relations []*model.Relation
	for _, key := range s.adjacency[id] {
		relations = append(relations, s.edges[key])
	}
	return relations, nil
}

// SimilarNodes scans all nodes by cosine similarity against the query
// embedding.
func (s *MemoryStore) SimilarNodes(ctx context.Context, embedding []float32, limit int, threshold float64) ([]NodeMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []NodeMatch
	for _, node := range s.nodes {
		if len(node.Embedding) == 0 {
			continue
		}
		similarity := cosine(embedding, node.Embedding)
		if similarity < threshold {
			continue
		}
		matches = append(matches, NodeMatch{Entity: node.Clone(), Similarity: similarity})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// AppendDecision records a merge decision in the in-memory audit log.
func (s *MemoryStore) AppendDecision(ctx context.Context, decision *model.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, decision)
	return nil
}

// Decisions returns the audit log recorded so far.
func (s *MemoryStore) Decisions() []*model.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.Decision{}, s.decisions...)
}

// NodeCount returns the number of stored nodes.
func (s *MemoryStore) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of stored edges.
func (s *MemoryStore) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

func edgeKey(relation *model.Relation) string {
	return fmt.Sprintf("%d|%s|%d", relation.SubjectID, relation.Predicate, relation.ObjectID)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
