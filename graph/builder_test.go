package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testBuilder(store Store) *Builder {
	config := model.DefaultResolverConfig()
	config.GraphMaxAttempts = 3
	config.GraphBackoff = time.Millisecond
	return NewBuilder(store, config, testLogger())
}

func entityWithID(id int64, label string) *model.Entity {
	return &model.Entity{
		ID:      id,
		Type:    model.EntityTypePerson,
		Label:   label,
		Aliases: map[string]int{label: 1},
	}
}

func relationBetween(subject, object int64) *model.Relation {
	return &model.Relation{
		ID:        uuid.New(),
		SubjectID: subject,
		Predicate: "co_occurs_with",
		ObjectID:  object,
		Weight:    1.0,
	}
}

// flakyStore fails the first failures writes, then delegates to a MemoryStore.
type flakyStore struct {
	*MemoryStore
	failures atomic.Int32
}

func (s *flakyStore) UpsertNode(ctx context.Context, entity *model.Entity) error {
	if s.failures.Add(-1) >= 0 {
		return fmt.Errorf("connection reset")
	}
	return s.MemoryStore.UpsertNode(ctx, entity)
}

func (s *flakyStore) UpsertEdge(ctx context.Context, relation *model.Relation) error {
	if s.failures.Add(-1) >= 0 {
		return fmt.Errorf("connection reset")
	}
	return s.MemoryStore.UpsertEdge(ctx, relation)
}

func TestBuilderMaterializeEntity(t *testing.T) {
	ctx := context.Background()

	t.Run("Upserts the node", func(t *testing.T) {
		store := NewMemoryStore()
		builder := testBuilder(store)

		flushed, err := builder.MaterializeEntity(ctx, entityWithID(1, "Tim Cook"))
		require.NoError(t, err)
		assert.Empty(t, flushed)
		assert.Equal(t, 1, store.NodeCount())
	})

	t.Run("Re-materializing updates in place", func(t *testing.T) {
		store := NewMemoryStore()
		builder := testBuilder(store)

		_, err := builder.MaterializeEntity(ctx, entityWithID(1, "Cook"))
		require.NoError(t, err)

		updated := entityWithID(1, "Tim Cook")
		updated.Aliases["Cook"] = 2
		_, err = builder.MaterializeEntity(ctx, updated)
		require.NoError(t, err)

		assert.Equal(t, 1, store.NodeCount())
		node, err := store.Node(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Tim Cook", node.Label)
	})

	t.Run("Transient write failures retry", func(t *testing.T) {
		store := &flakyStore{MemoryStore: NewMemoryStore()}
		store.failures.Store(2)
		builder := testBuilder(store)

		_, err := builder.MaterializeEntity(ctx, entityWithID(1, "Tim Cook"))
		require.NoError(t, err)
		assert.Equal(t, 1, store.NodeCount())
	})

	t.Run("Exhausted retries surface a graph write error", func(t *testing.T) {
		store := &flakyStore{MemoryStore: NewMemoryStore()}
		store.failures.Store(100)
		builder := testBuilder(store)

		_, err := builder.MaterializeEntity(ctx, entityWithID(1, "Tim Cook"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrGraphWrite))
	})
}

func TestBuilderMaterializeRelation(t *testing.T) {
	ctx := context.Background()

	t.Run("Both endpoints present writes the edge", func(t *testing.T) {
		store := NewMemoryStore()
		builder := testBuilder(store)

		_, err := builder.MaterializeEntity(ctx, entityWithID(1, "Tim Cook"))
		require.NoError(t, err)
		_, err = builder.MaterializeEntity(ctx, entityWithID(2, "Apple"))
		require.NoError(t, err)

		pending, err := builder.MaterializeRelation(ctx, relationBetween(1, 2))
		require.NoError(t, err)
		assert.False(t, pending)
		assert.Equal(t, 1, store.EdgeCount())
	})

	t.Run("Missing endpoint queues and flushes once materialized", func(t *testing.T) {
		store := NewMemoryStore()
		builder := testBuilder(store)

		_, err := builder.MaterializeEntity(ctx, entityWithID(1, "Tim Cook"))
		require.NoError(t, err)

		pending, err := builder.MaterializeRelation(ctx, relationBetween(1, 2))
		require.NoError(t, err)
		assert.True(t, pending)
		assert.Equal(t, 0, store.EdgeCount())
		assert.Equal(t, 1, builder.PendingCount())

		flushed, err := builder.MaterializeEntity(ctx, entityWithID(2, "Apple"))
		require.NoError(t, err)
		assert.Len(t, flushed, 1)
		assert.Equal(t, 1, store.EdgeCount())
		assert.Equal(t, 0, builder.PendingCount())
	})

	t.Run("Replayed pending relation flushes exactly once", func(t *testing.T) {
		store := NewMemoryStore()
		builder := testBuilder(store)

		_, err := builder.MaterializeEntity(ctx, entityWithID(1, "Tim Cook"))
		require.NoError(t, err)

		relation := relationBetween(1, 2)
		for i := 0; i < 3; i++ {
			pending, err := builder.MaterializeRelation(ctx, relation)
			require.NoError(t, err)
			assert.True(t, pending)
		}
		assert.Equal(t, 1, builder.PendingCount(), "replays must not duplicate the queue entry")

		flushed, err := builder.MaterializeEntity(ctx, entityWithID(2, "Apple"))
		require.NoError(t, err)
		assert.Len(t, flushed, 1)
		assert.Equal(t, 1, store.EdgeCount())
	})

	t.Run("Flushed relations are returned to the caller", func(t *testing.T) {
		store := NewMemoryStore()
		builder := testBuilder(store)

		_, err := builder.MaterializeEntity(ctx, entityWithID(1, "Tim Cook"))
		require.NoError(t, err)

		relation := relationBetween(1, 2)
		pending, err := builder.MaterializeRelation(ctx, relation)
		require.NoError(t, err)
		require.True(t, pending)

		flushed, err := builder.MaterializeEntity(ctx, entityWithID(2, "Apple"))
		require.NoError(t, err)
		require.Len(t, flushed, 1)
		assert.Equal(t, relation.ID, flushed[0].ID, "callers match flushes back by relation id")
	})

	t.Run("Relation waiting on both endpoints flushes after the last one", func(t *testing.T) {
		store := NewMemoryStore()
		builder := testBuilder(store)

		pending, err := builder.MaterializeRelation(ctx, relationBetween(1, 2))
		require.NoError(t, err)
		assert.True(t, pending)

		// Materializing the subject re-queues on the still-missing object.
		flushed, err := builder.MaterializeEntity(ctx, entityWithID(1, "Tim Cook"))
		require.NoError(t, err)
		assert.Empty(t, flushed)
		assert.Equal(t, 0, store.EdgeCount())

		flushed, err = builder.MaterializeEntity(ctx, entityWithID(2, "Apple"))
		require.NoError(t, err)
		assert.Len(t, flushed, 1)
		assert.Equal(t, 1, store.EdgeCount())
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Edge upsert replays update in place", func(t *testing.T) {
		store := NewMemoryStore()

		first := relationBetween(1, 2)
		first.Weight = 0.5
		require.NoError(t, store.UpsertEdge(ctx, first))

		second := relationBetween(1, 2)
		second.Weight = 0.9
		require.NoError(t, store.UpsertEdge(ctx, second))

		assert.Equal(t, 1, store.EdgeCount())
		edges, err := store.Edges(ctx, 1)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, 0.9, edges[0].Weight)
	})

	t.Run("Edges are visible from both endpoints", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.UpsertEdge(ctx, relationBetween(1, 2)))

		fromSubject, err := store.Edges(ctx, 1)
		require.NoError(t, err)
		fromObject, err := store.Edges(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, fromSubject, 1)
		assert.Len(t, fromObject, 1)
	})

	t.Run("Similar nodes ranked by cosine similarity", func(t *testing.T) {
		store := NewMemoryStore()

		near := entityWithID(1, "Tim Cook")
		near.Embedding = []float32{1, 0, 0}
		mid := entityWithID(2, "Tim Cooke")
		mid.Embedding = []float32{0.7, 0.7, 0}
		far := entityWithID(3, "Unrelated")
		far.Embedding = []float32{0, 0, 1}
		noEmbedding := entityWithID(4, "No Vector")

		for _, e := range []*model.Entity{near, mid, far, noEmbedding} {
			require.NoError(t, store.UpsertNode(ctx, e))
		}

		matches, err := store.SimilarNodes(ctx, []float32{1, 0, 0}, 10, 0.5)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, int64(1), matches[0].Entity.ID)
		assert.Equal(t, int64(2), matches[1].Entity.ID)

		limited, err := store.SimilarNodes(ctx, []float32{1, 0, 0}, 1, 0.0)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("Decision log appends", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.AppendDecision(ctx, &model.Decision{Tier: model.TierAutoMerge}))
		require.NoError(t, store.AppendDecision(ctx, &model.Decision{Tier: model.TierFlaggedMerge}))
		assert.Len(t, store.Decisions(), 2)
	})
}
