package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/graph"
	"github.com/siherrmann/resolver/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEntity(id int64, label string, embedding []float32) *model.Entity {
	return &model.Entity{
		ID:        id,
		Type:      model.EntityTypeMisc,
		Label:     label,
		Aliases:   map[string]int{label: 1},
		Embedding: embedding,
	}
}

func testRelation(subject, object int64, weight float64) *model.Relation {
	return &model.Relation{
		ID:        uuid.New(),
		SubjectID: subject,
		Predicate: "co_occurs_with",
		ObjectID:  object,
		Weight:    weight,
	}
}

// testGraph builds a small graph:
//
//	1 (apple-ish) -- 2 (cook) -- 3 (cupertino)
//	4 (orthogonal, disconnected)
func testGraph(t *testing.T) *graph.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := graph.NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, testEntity(1, "Apple", []float32{1, 0, 0})))
	require.NoError(t, store.UpsertNode(ctx, testEntity(2, "Tim Cook", []float32{0.9, 0.1, 0})))
	require.NoError(t, store.UpsertNode(ctx, testEntity(3, "Cupertino", []float32{0, 0.2, 0.8})))
	require.NoError(t, store.UpsertNode(ctx, testEntity(4, "Zebra", []float32{0, 1, 0})))
	require.NoError(t, store.UpsertEdge(ctx, testRelation(1, 2, 1.0)))
	require.NoError(t, store.UpsertEdge(ctx, testRelation(2, 3, 0.5)))

	return store
}

func queryEmbedder(embedding []float32) func(string) ([]float32, error) {
	return func(string) ([]float32, error) {
		return embedding, nil
	}
}

func TestEngineSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Vector matches come back ranked", func(t *testing.T) {
		engine := NewEngine(testGraph(t), queryEmbedder([]float32{1, 0, 0}), testLogger())

		config := model.DefaultQueryConfig()
		config.SimilarityThreshold = 0.5
		config.ExploreDepth = 0

		results, err := engine.Search(ctx, "apple", &config)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, int64(1), results[0].Entity.ID)
		assert.Equal(t, int64(2), results[1].Entity.ID)
		assert.Equal(t, "vector", results[0].RetrievalMethod)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("Graph expansion reaches entities beyond the vector set", func(t *testing.T) {
		engine := NewEngine(testGraph(t), queryEmbedder([]float32{1, 0, 0}), testLogger())

		config := model.DefaultQueryConfig()
		config.SimilarityThreshold = 0.8
		config.ExploreDepth = 2
		config.Limit = 10

		results, err := engine.Search(ctx, "apple", &config)
		require.NoError(t, err)

		byID := map[int64]*model.SearchResult{}
		for _, result := range results {
			byID[result.Entity.ID] = result
		}

		// Cupertino has low cosine similarity but sits one hop from the
		// Tim Cook seed, which gives it its best graph score.
		require.Contains(t, byID, int64(3))
		assert.Equal(t, "graph", byID[3].RetrievalMethod)
		assert.Equal(t, 1, byID[3].GraphDistance)
		assert.Equal(t, []int64{2, 3}, byID[3].Path)

		// The disconnected entity stays out.
		assert.NotContains(t, byID, int64(4))
	})

	t.Run("Vector score wins over a graph path to the same entity", func(t *testing.T) {
		engine := NewEngine(testGraph(t), queryEmbedder([]float32{1, 0, 0}), testLogger())

		config := model.DefaultQueryConfig()
		config.SimilarityThreshold = 0.5
		config.ExploreDepth = 2
		config.Limit = 10

		results, err := engine.Search(ctx, "apple", &config)
		require.NoError(t, err)

		for _, result := range results {
			if result.Entity.ID == 2 {
				assert.Equal(t, "vector", result.RetrievalMethod,
					"an entity in the vector set keeps its vector score")
			}
		}
	})

	t.Run("Limit truncates the ranked list", func(t *testing.T) {
		engine := NewEngine(testGraph(t), queryEmbedder([]float32{1, 0, 0}), testLogger())

		config := model.DefaultQueryConfig()
		config.SimilarityThreshold = 0.0
		config.Limit = 1

		results, err := engine.Search(ctx, "apple", &config)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, int64(1), results[0].Entity.ID)
	})

	t.Run("Nil config uses defaults", func(t *testing.T) {
		engine := NewEngine(testGraph(t), queryEmbedder([]float32{1, 0, 0}), testLogger())
		results, err := engine.Search(ctx, "apple", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, results)
	})

	t.Run("Embedder failure aborts the query", func(t *testing.T) {
		failing := func(string) ([]float32, error) {
			return nil, fmt.Errorf("model not loaded")
		}
		engine := NewEngine(testGraph(t), failing, testLogger())
		_, err := engine.Search(ctx, "apple", nil)
		assert.Error(t, err)
	})
}

func TestTraversal(t *testing.T) {
	ctx := context.Background()

	t.Run("BFS visits by increasing distance", func(t *testing.T) {
		store := testGraph(t)

		results, err := BFS(ctx, store, 1, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, int64(1), results[0].Entity.ID)
		assert.Equal(t, 0, results[0].Distance)
		assert.Equal(t, int64(2), results[1].Entity.ID)
		assert.Equal(t, 1, results[1].Distance)
		assert.Equal(t, int64(3), results[2].Entity.ID)
		assert.Equal(t, 2, results[2].Distance)
		assert.Equal(t, []int64{1, 2, 3}, results[2].Path)
	})

	t.Run("Max hops bounds the walk", func(t *testing.T) {
		store := testGraph(t)

		results, err := BFS(ctx, store, 1, 1, nil)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("Predicate filter prunes edges", func(t *testing.T) {
		store := testGraph(t)

		results, err := BFS(ctx, store, 1, 3, []string{"works_for"})
		require.NoError(t, err)
		assert.Len(t, results, 1, "no matching predicates leaves only the source")
	})

	t.Run("Edges are followed against their direction", func(t *testing.T) {
		store := testGraph(t)

		results, err := BFS(ctx, store, 3, 2, nil)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("DFS reaches the same set as BFS", func(t *testing.T) {
		store := testGraph(t)

		bfsResults, err := BFS(ctx, store, 1, 3, nil)
		require.NoError(t, err)
		dfsResults, err := DFS(ctx, store, 1, 3, nil)
		require.NoError(t, err)

		bfsIDs := map[int64]bool{}
		for _, r := range bfsResults {
			bfsIDs[r.Entity.ID] = true
		}
		dfsIDs := map[int64]bool{}
		for _, r := range dfsResults {
			dfsIDs[r.Entity.ID] = true
		}
		assert.Equal(t, bfsIDs, dfsIDs)
	})

	t.Run("Unknown source errors", func(t *testing.T) {
		store := testGraph(t)
		_, err := BFS(ctx, store, 99, 2, nil)
		assert.Error(t, err)
	})
}
