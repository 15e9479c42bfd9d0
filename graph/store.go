package graph

import (
	"context"

	"github.com/siherrmann/resolver/model"
)

// NodeMatch is a node returned by a vector similarity query.
type NodeMatch struct {
	Entity     *model.Entity
	Similarity float64
}

// Store is the external graph store capability. Upserts are idempotent:
// re-materializing an unchanged entity is a no-op, re-materializing with new
// aliases or frequencies updates the existing node in place, and re-upserting
// an edge with the same endpoints and predicate never duplicates it.
type Store interface {
	UpsertNode(ctx context.Context, entity *model.Entity) error
	UpsertEdge(ctx context.Context, relation *model.Relation) error
	Node(ctx context.Context, id int64) (*model.Entity, error)
	// Edges returns all edges connected to the given node id.
	Edges(ctx context.Context, id int64) ([]*model.Relation, error)
	// SimilarNodes returns up to limit nodes by embedding cosine similarity,
	// filtered by the optional threshold.
	SimilarNodes(ctx context.Context, embedding []float32, limit int, threshold float64) ([]NodeMatch, error)
}

// DecisionLog is the append-only audit sink for merge decisions.
type DecisionLog interface {
	AppendDecision(ctx context.Context, decision *model.Decision) error
}
