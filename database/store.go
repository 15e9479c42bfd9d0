package database

import (
	"context"

	"github.com/siherrmann/resolver/graph"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	loadSql "github.com/siherrmann/resolver/sql"
)

// PostgresStore is the Postgres-backed graph store. It composes the
// per-table handlers into the graph.Store and graph.DecisionLog
// capabilities used by the graph builder and the search engine.
type PostgresStore struct {
	db        *helper.Database
	nodes     *NodesDBHandler
	edges     *EdgesDBHandler
	decisions *DecisionsDBHandler
}

// NewPostgresStore initializes the database extensions, loads all stored
// SQL functions and creates the nodes, edges and decisions tables.
// If force is true, SQL functions are reloaded even if they already exist.
func NewPostgresStore(db *helper.Database, embeddingDim int, force bool) (*PostgresStore, error) {
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("init database extensions", err)
	}

	nodes, err := NewNodesDBHandler(db, embeddingDim, force)
	if err != nil {
		return nil, helper.NewError("new nodes handler", err)
	}

	edges, err := NewEdgesDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("new edges handler", err)
	}

	decisions, err := NewDecisionsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("new decisions handler", err)
	}

	return &PostgresStore{
		db:        db,
		nodes:     nodes,
		edges:     edges,
		decisions: decisions,
	}, nil
}

// NodesHandler exposes the underlying nodes handler, e.g. for index tuning.
func (s *PostgresStore) NodesHandler() *NodesDBHandler {
	return s.nodes
}

// DecisionsHandler exposes the underlying decisions handler for audit queries.
func (s *PostgresStore) DecisionsHandler() *DecisionsDBHandler {
	return s.decisions
}

// UpsertNode materializes one canonical entity as a node.
func (s *PostgresStore) UpsertNode(ctx context.Context, entity *model.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.nodes.UpsertNode(entity)
}

// UpsertEdge materializes one relation as an edge.
func (s *PostgresStore) UpsertEdge(ctx context.Context, relation *model.Relation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.edges.UpsertEdge(relation)
}

// Node retrieves one node by canonical entity id.
func (s *PostgresStore) Node(ctx context.Context, id int64) (*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.nodes.SelectNode(id)
}

// Edges retrieves all edges connected to the given node id.
func (s *PostgresStore) Edges(ctx context.Context, id int64) ([]*model.Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.edges.SelectEdgesForNode(id)
}

// SimilarNodes retrieves up to limit nodes by embedding cosine similarity.
func (s *PostgresStore) SimilarNodes(ctx context.Context, embedding []float32, limit int, threshold float64) ([]graph.NodeMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entities, similarities, err := s.nodes.SelectNodesBySimilarity(embedding, limit, threshold)
	if err != nil {
		return nil, err
	}

	matches := make([]graph.NodeMatch, 0, len(entities))
	for i, entity := range entities {
		matches = append(matches, graph.NodeMatch{
			Entity:     entity,
			Similarity: similarities[i],
		})
	}
	return matches, nil
}

// AppendDecision appends one merge decision to the audit log.
func (s *PostgresStore) AppendDecision(ctx context.Context, decision *model.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.decisions.InsertDecision(decision)
	return err
}
