package search

import (
	"context"

	"github.com/siherrmann/resolver/graph"
	"github.com/siherrmann/resolver/model"
)

// TraversalResult contains an entity and its distance from the source
type TraversalResult struct {
	Entity   *model.Entity
	Distance int
	Path     []int64 // Path from source to this entity
}

// BFS performs breadth-first search from a source entity. Edges are
// followed in both directions. An empty predicates slice follows all edges.
func BFS(ctx context.Context, store graph.Store, sourceID int64, maxHops int, predicates []string) ([]*TraversalResult, error) {
	// Get source entity
	source, err := store.Node(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	visited := map[int64]bool{sourceID: true}
	queue := []TraversalResult{{
		Entity:   source,
		Distance: 0,
		Path:     []int64{sourceID},
	}}

	var results []*TraversalResult

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		results = append(results, &current)

		// Stop if we've reached max hops
		if current.Distance >= maxHops {
			continue
		}

		edges, err := store.Edges(ctx, current.Entity.ID)
		if err != nil {
			return nil, err
		}

		for _, edge := range edges {
			if !matchesPredicate(edge.Predicate, predicates) {
				continue
			}

			targetID := edge.ObjectID
			if targetID == current.Entity.ID {
				targetID = edge.SubjectID
			}

			// Skip if already visited
			if visited[targetID] {
				continue
			}

			target, err := store.Node(ctx, targetID)
			if err != nil {
				continue // Skip if entity not materialized yet
			}

			visited[targetID] = true

			// Create new path
			newPath := make([]int64, len(current.Path))
			copy(newPath, current.Path)
			newPath = append(newPath, targetID)

			queue = append(queue, TraversalResult{
				Entity:   target,
				Distance: current.Distance + 1,
				Path:     newPath,
			})
		}
	}

	return results, nil
}

// DFS performs depth-first search from a source entity
func DFS(ctx context.Context, store graph.Store, sourceID int64, maxHops int, predicates []string) ([]*TraversalResult, error) {
	source, err := store.Node(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]bool)
	var results []*TraversalResult

	err = dfsRecursive(ctx, store, source, 0, maxHops, []int64{sourceID}, predicates, visited, &results)
	if err != nil {
		return nil, err
	}

	return results, nil
}

// dfsRecursive is the recursive helper for DFS
func dfsRecursive(
	ctx context.Context,
	store graph.Store,
	current *model.Entity,
	distance int,
	maxHops int,
	path []int64,
	predicates []string,
	visited map[int64]bool,
	results *[]*TraversalResult,
) error {
	if visited[current.ID] {
		return nil
	}
	visited[current.ID] = true

	*results = append(*results, &TraversalResult{
		Entity:   current,
		Distance: distance,
		Path:     path,
	})

	if distance >= maxHops {
		return nil
	}

	edges, err := store.Edges(ctx, current.ID)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		if !matchesPredicate(edge.Predicate, predicates) {
			continue
		}

		targetID := edge.ObjectID
		if targetID == current.ID {
			targetID = edge.SubjectID
		}

		if visited[targetID] {
			continue
		}

		target, err := store.Node(ctx, targetID)
		if err != nil {
			continue
		}

		newPath := make([]int64, len(path))
		copy(newPath, path)
		newPath = append(newPath, targetID)

		err = dfsRecursive(ctx, store, target, distance+1, maxHops, newPath, predicates, visited, results)
		if err != nil {
			return err
		}
	}

	return nil
}

// matchesPredicate checks whether an edge predicate passes the filter.
// An empty filter matches everything.
func matchesPredicate(predicate string, predicates []string) bool {
	if len(predicates) == 0 {
		return true
	}
	for _, p := range predicates {
		if p == predicate {
			return true
		}
	}
	return false
}
