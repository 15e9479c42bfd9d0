package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/graph"
	"github.com/siherrmann/resolver/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ graph.Store       = (*PostgresStore)(nil)
	_ graph.DecisionLog = (*PostgresStore)(nil)
)

func initStore(t *testing.T) *PostgresStore {
	t.Helper()
	database := initDB(t)

	store, err := NewPostgresStore(database, 3, true)
	require.NoError(t, err, "Expected NewPostgresStore to not return an error")

	_, err = database.Instance.Exec(`TRUNCATE nodes, edges, decisions;`)
	require.NoError(t, err)

	return store
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	store := initStore(t)

	t.Run("Node round trip", func(t *testing.T) {
		entity := testNodeEntity(1)
		require.NoError(t, store.UpsertNode(ctx, entity))

		stored, err := store.Node(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, entity.Label, stored.Label)
		assert.Equal(t, entity.Aliases, stored.Aliases)
	})

	t.Run("Edge round trip", func(t *testing.T) {
		require.NoError(t, store.UpsertNode(ctx, testNodeEntity(2)))
		require.NoError(t, store.UpsertEdge(ctx, testEdgeRelation(1, 2)))

		edges, err := store.Edges(ctx, 1)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, int64(2), edges[0].ObjectID)
	})

	t.Run("Similarity search through the store interface", func(t *testing.T) {
		near := testNodeEntity(3)
		near.Embedding = []float32{1, 0, 0}
		require.NoError(t, store.UpsertNode(ctx, near))

		matches, err := store.SimilarNodes(ctx, []float32{1, 0, 0}, 10, 0.9)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, int64(3), matches[0].Entity.ID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	})

	t.Run("Decision log through the store interface", func(t *testing.T) {
		decision := &model.Decision{
			Candidate: &model.Candidate{
				Key:     "apple",
				Surface: "Apple",
				Type:    model.EntityTypeOrganization,
				Mention: &model.Mention{ID: uuid.New(), DocumentID: uuid.New(), Surface: "Apple"},
			},
			TargetID: 1,
			Score:    1.0,
			Tier:     model.TierAutoMerge,
		}
		require.NoError(t, store.AppendDecision(ctx, decision))

		count, err := store.DecisionsHandler().CountDecisions()
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Cancelled context aborts writes", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := store.UpsertNode(cancelled, testNodeEntity(9))
		assert.Error(t, err)
	})
}
