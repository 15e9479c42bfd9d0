package registry

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/core/resolve"
	"github.com/siherrmann/resolver/model"
)

// Registry is the merge engine: the one authoritative owner of canonical
// entity state. Mutations flow through per-shard request channels so that
// within a blocking bucket only one merge decision ever commits at a time,
// while independent buckets proceed fully in parallel. Reads go against
// published immutable snapshots and never take a lock.
type Registry struct {
	shards   []*shard
	resolver *resolve.Resolver
	log      *slog.Logger

	nextID atomic.Int64

	// Published read state. Values are immutable once stored: entities holds
	// deep clones republished after every commit, mentions maps mention ids
	// to the entity id they committed into, redirects maps merged-away ids
	// to their absorbing id. Readers resolve through redirects to the root,
	// so stale intermediate ids never leak.
	entities   sync.Map // int64 -> *model.Entity
	mentions   sync.Map // uuid.UUID -> int64
	redirects  sync.Map // int64 -> int64
	keyTypes   sync.Map // normalized key -> model.EntityType of first holder
	blockIndex sync.Map // int64 -> blocking bucket key

	corrupt atomic.Pointer[error]
	wg      sync.WaitGroup
	done    chan struct{}
	closed  atomic.Bool
}

// Result is the outcome of applying one candidate.
type Result struct {
	Entity   *model.Entity
	Decision *model.Decision
	// Replay is true when the mention had already been committed; the apply
	// was a no-op returning the existing canonical entity.
	Replay bool
}

// NewRegistry creates a registry with the given number of writer shards.
func NewRegistry(config model.ResolverConfig, resolver *resolve.Resolver, logger *slog.Logger) *Registry {
	shards := config.Shards
	if shards <= 0 {
		shards = 1
	}

	r := &Registry{
		resolver: resolver,
		log:      logger,
		done:     make(chan struct{}),
	}
	r.shards = make([]*shard, shards)
	for i := range r.shards {
		r.shards[i] = newShard(r)
		r.wg.Add(1)
		go r.shards[i].run(&r.wg)
	}

	return r
}

// Apply resolves a candidate against its blocking bucket and commits the
// decision. Idempotent: replaying a mention id that already committed
// returns the existing canonical entity without double-counting.
func (r *Registry) Apply(ctx context.Context, candidate *model.Candidate) (*Result, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.closed.Load() {
		return nil, fmt.Errorf("registry is closed")
	}

	req := &applyRequest{
		candidate: candidate,
		reply:     make(chan applyResult, 1),
	}

	s := r.shardFor(candidate.BlockKey())
	select {
	case s.requests <- request{apply: req}:
	case <-r.done:
		return nil, fmt.Errorf("registry is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.result, res.err
	case <-r.done:
		// The shard may have replied just before shutting down.
		select {
		case res := <-req.reply:
			return res.result, res.err
		default:
			return nil, fmt.Errorf("registry is closed")
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MergeEntities merges the entity fromID into toID, for manual curation of
// flagged decisions. Incompatible types are rejected unless override is set.
// The merge is one-directional and irreversible: fromID becomes a redirect
// to toID.
func (r *Registry) MergeEntities(ctx context.Context, fromID, toID int64, override bool) (*model.Entity, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}

	fromRoot, err := r.resolveRoot(fromID)
	if err != nil {
		return nil, err
	}
	toRoot, err := r.resolveRoot(toID)
	if err != nil {
		return nil, err
	}
	if fromRoot == toRoot {
		return r.Entity(toRoot)
	}

	from, ok := r.loadEntity(fromRoot)
	if !ok {
		return nil, fmt.Errorf("unknown entity id %d", fromID)
	}
	to, ok := r.loadEntity(toRoot)
	if !ok {
		return nil, fmt.Errorf("unknown entity id %d", toID)
	}
	if from.Type != to.Type && !override {
		return nil, model.TypeConflict(from.Type, to.Type)
	}

	fromBlock, ok := r.loadBlock(fromRoot)
	if !ok {
		return nil, fmt.Errorf("unknown entity id %d", fromID)
	}
	toBlock, ok := r.loadBlock(toRoot)
	if !ok {
		return nil, fmt.Errorf("unknown entity id %d", toID)
	}

	// Two-phase handoff: the owning shard detaches the record, then the
	// target's shard absorbs it. Requests are sequential from this
	// goroutine, so the phases cannot deadlock even on the same shard.
	detach := &detachRequest{id: fromRoot, reply: make(chan detachResult, 1)}
	fromShard := r.shardFor(fromBlock)
	select {
	case fromShard.requests <- request{detach: detach}:
	case <-r.done:
		return nil, fmt.Errorf("registry is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var detached detachResult
	select {
	case detached = <-detach.reply:
	case <-r.done:
		return nil, fmt.Errorf("registry is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if detached.err != nil {
		return nil, detached.err
	}

	absorb := &absorbRequest{record: detached.record, targetID: toRoot, reply: make(chan absorbResult, 1)}
	toShard := r.shardFor(toBlock)
	select {
	case toShard.requests <- request{absorb: absorb}:
	case <-r.done:
		return nil, fmt.Errorf("registry is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-absorb.reply:
		return res.entity, res.err
	case <-r.done:
		return nil, fmt.Errorf("registry is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup resolves a mention id to its canonical entity, always through the
// union-find root.
func (r *Registry) Lookup(mentionID uuid.UUID) (*model.Entity, error) {
	v, ok := r.mentions.Load(mentionID)
	if !ok {
		return nil, fmt.Errorf("unknown mention id %v", mentionID)
	}
	return r.Entity(v.(int64))
}

// Entity resolves an entity id (possibly merged away) to its current root
// entity snapshot.
func (r *Registry) Entity(id int64) (*model.Entity, error) {
	root, err := r.resolveRoot(id)
	if err != nil {
		return nil, err
	}
	entity, ok := r.loadEntity(root)
	if !ok {
		return nil, fmt.Errorf("unknown entity id %d", id)
	}
	return entity, nil
}

// All returns a snapshot of all live canonical entities.
func (r *Registry) All() []*model.Entity {
	var entities []*model.Entity
	r.entities.Range(func(key, value any) bool {
		if _, merged := r.redirects.Load(key.(int64)); !merged {
			entities = append(entities, value.(*model.Entity))
		}
		return true
	})
	return entities
}

// Count returns the number of live canonical entities.
func (r *Registry) Count() int {
	return len(r.All())
}

// Err reports the fatal corruption error if the registry detected one.
func (r *Registry) Err() error {
	if p := r.corrupt.Load(); p != nil {
		return *p
	}
	return nil
}

// Close stops all shard writers. Requests still queued are dropped and
// their callers released with an error. The request channels themselves
// stay open so that a concurrent Apply can never send on a closed channel.
func (r *Registry) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.done)
		r.wg.Wait()
	}
}

func (r *Registry) shardFor(blockKey string) *shard {
	h := fnv.New32a()
	h.Write([]byte(blockKey))
	return r.shards[int(h.Sum32())%len(r.shards)]
}

func (r *Registry) loadBlock(id int64) (string, bool) {
	v, ok := r.blockIndex.Load(id)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (r *Registry) loadEntity(id int64) (*model.Entity, bool) {
	v, ok := r.entities.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*model.Entity), true
}

// resolveRoot follows the redirect index to the root id. The walk is
// bounded: a chain longer than the number of allocated ids means a cycle,
// which is a fatal registry corruption.
func (r *Registry) resolveRoot(id int64) (int64, error) {
	limit := r.nextID.Load() + 1
	current := id
	for i := int64(0); i <= limit; i++ {
		v, ok := r.redirects.Load(current)
		if !ok {
			return current, nil
		}
		current = v.(int64)
	}
	err := model.RegistryCorruption(fmt.Sprintf("redirect cycle resolving entity id %d", id))
	r.fail(err)
	return 0, err
}

// fail records a fatal corruption error; every subsequent operation
// surfaces it immediately.
func (r *Registry) fail(err error) {
	r.corrupt.CompareAndSwap(nil, &err)
	if r.log != nil {
		r.log.Error("Registry corruption detected", slog.String("error", err.Error()))
	}
}
