package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/siherrmann/resolver/core/extraction"
	"github.com/siherrmann/resolver/graph"
	"github.com/siherrmann/resolver/model"
)

// Engine answers queries by combining vector similarity over entity
// embeddings with bounded-depth graph expansion. Pure read path, it never
// mutates canonical state.
type Engine struct {
	store graph.Store
	embed extraction.EmbedFunc
	log   *slog.Logger
}

// NewEngine creates a search engine over the given store and embedder.
func NewEngine(store graph.Store, embed extraction.EmbedFunc, logger *slog.Logger) *Engine {
	return &Engine{
		store: store,
		embed: embed,
		log:   logger,
	}
}

// Search embeds the query text, retrieves the vector candidate set, expands
// each candidate through the graph up to the configured explore depth, and
// re-ranks by combined relevance.
func (e *Engine) Search(ctx context.Context, query string, config *model.QueryConfig) ([]*model.SearchResult, error) {
	if config == nil {
		defaults := model.DefaultQueryConfig()
		config = &defaults
	}

	embedding, err := e.embed(query)
	if err != nil {
		return nil, err
	}

	matches, err := e.store.SimilarNodes(ctx, embedding, config.Limit, config.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	results := make(map[int64]*model.SearchResult, len(matches))
	for _, match := range matches {
		results[match.Entity.ID] = &model.SearchResult{
			Entity:          match.Entity,
			Score:           config.VectorWeight * match.Similarity,
			SimilarityScore: match.Similarity,
			RetrievalMethod: "vector",
			Path:            []int64{match.Entity.ID},
		}
	}

	for _, match := range matches {
		if err := e.expand(ctx, match, config, results); err != nil {
			return nil, err
		}
	}

	ranked := make([]*model.SearchResult, 0, len(results))
	for _, result := range results {
		ranked = append(ranked, result)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Entity.ID < ranked[j].Entity.ID
	})
	if config.Limit > 0 && len(ranked) > config.Limit {
		ranked = ranked[:config.Limit]
	}
	return ranked, nil
}

// expand walks the graph breadth-first from one vector match up to the
// explore depth, scoring reached entities by the seed similarity damped per
// hop with the graph weight.
func (e *Engine) expand(ctx context.Context, seed graph.NodeMatch, config *model.QueryConfig, results map[int64]*model.SearchResult) error {
	type frontierNode struct {
		id    int64
		depth int
		path  []int64
	}

	visited := map[int64]bool{seed.Entity.ID: true}
	frontier := []frontierNode{{id: seed.Entity.ID, depth: 0, path: []int64{seed.Entity.ID}}}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		if current.depth >= config.ExploreDepth {
			continue
		}

		edges, err := e.store.Edges(ctx, current.id)
		if err != nil {
			return err
		}

		for _, edge := range edges {
			next := edge.ObjectID
			if next == current.id {
				next = edge.SubjectID
			}
			if visited[next] {
				continue
			}
			visited[next] = true

			node, err := e.store.Node(ctx, next)
			if err != nil {
				// The endpoint may not be materialized yet; skip it.
				continue
			}

			path := append(append([]int64{}, current.path...), next)
			depth := current.depth + 1
			score := seed.Similarity * config.GraphWeight * edge.Weight / float64(depth)

			if existing, ok := results[next]; !ok || score > existing.Score {
				results[next] = &model.SearchResult{
					Entity:          node,
					Score:           score,
					SimilarityScore: 0,
					GraphDistance:   depth,
					RetrievalMethod: "graph",
					Path:            path,
				}
			}

			frontier = append(frontier, frontierNode{id: next, depth: depth, path: path})
		}
	}

	return nil
}
