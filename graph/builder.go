package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/siherrmann/resolver/model"
)

// Builder materializes canonical entities and relations into the graph
// store. Relations whose endpoints are not yet present are queued by the
// missing entity id and flushed once that node is materialized.
type Builder struct {
	store Store
	log   *slog.Logger

	maxAttempts int
	backoff     time.Duration

	mu           sync.Mutex
	materialized map[int64]bool
	pending      map[int64][]*model.Relation
	queued       map[string]bool // dedupes pending entries across replays
}

// NewBuilder creates a builder over the given store.
func NewBuilder(store Store, config model.ResolverConfig, logger *slog.Logger) *Builder {
	attempts := config.GraphMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Builder{
		store:        store,
		log:          logger,
		maxAttempts:  attempts,
		backoff:      config.GraphBackoff,
		materialized: map[int64]bool{},
		pending:      map[int64][]*model.Relation{},
		queued:       map[string]bool{},
	}
}

// MaterializeEntity upserts the entity node, then flushes any relations
// that were waiting on it. Returns the flushed relations so callers can
// attribute each flush to the ingest that queued it.
func (b *Builder) MaterializeEntity(ctx context.Context, entity *model.Entity) ([]*model.Relation, error) {
	if err := b.write(ctx, func(ctx context.Context) error {
		return b.store.UpsertNode(ctx, entity)
	}); err != nil {
		return nil, fmt.Errorf("%w: node %d: %v", model.ErrGraphWrite, entity.ID, err)
	}

	b.mu.Lock()
	b.materialized[entity.ID] = true
	waiting := b.pending[entity.ID]
	delete(b.pending, entity.ID)
	// Clear the dedupe marks so a relation still missing its other
	// endpoint can re-queue there.
	for _, relation := range waiting {
		delete(b.queued, relationKey(relation))
	}
	b.mu.Unlock()

	var flushed []*model.Relation
	for _, relation := range waiting {
		pending, err := b.MaterializeRelation(ctx, relation)
		if err != nil {
			return flushed, err
		}
		if !pending {
			flushed = append(flushed, relation)
		}
	}
	return flushed, nil
}

// MaterializeRelation upserts the edge when both endpoints are present in
// the store, otherwise queues it on the first missing endpoint. Returns true
// when the relation was queued. Queued relations are deduplicated, so a
// replay cannot flush the same edge twice.
func (b *Builder) MaterializeRelation(ctx context.Context, relation *model.Relation) (bool, error) {
	b.mu.Lock()
	var missing int64 = 0
	if !b.materialized[relation.SubjectID] {
		missing = relation.SubjectID
	} else if !b.materialized[relation.ObjectID] {
		missing = relation.ObjectID
	}
	if missing != 0 {
		key := relationKey(relation)
		if !b.queued[key] {
			b.queued[key] = true
			b.pending[missing] = append(b.pending[missing], relation)
			b.log.Debug("Queued relation on missing endpoint",
				slog.Int64("missing_entity", missing),
				slog.String("predicate", relation.Predicate),
			)
		}
		b.mu.Unlock()
		return true, nil
	}
	b.mu.Unlock()

	if err := b.write(ctx, func(ctx context.Context) error {
		return b.store.UpsertEdge(ctx, relation)
	}); err != nil {
		return false, fmt.Errorf("%w: edge %d-%s-%d: %v",
			model.ErrGraphWrite, relation.SubjectID, relation.Predicate, relation.ObjectID, err)
	}
	return false, nil
}

func relationKey(relation *model.Relation) string {
	return fmt.Sprintf("%d|%s|%d", relation.SubjectID, relation.Predicate, relation.ObjectID)
}

// PendingCount returns the number of relations still waiting on an endpoint.
func (b *Builder) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, relations := range b.pending {
		count += len(relations)
	}
	return count
}

// write retries a store write with exponential backoff.
func (b *Builder) write(ctx context.Context, fn func(context.Context) error) error {
	backoff := b.backoff
	var lastErr error
	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
