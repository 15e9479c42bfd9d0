package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/core/resolve"
	"github.com/siherrmann/resolver/model"
)

// record is the shard-owned working state of one canonical entity: the
// mutable entity, its normalized alias keys, and the mention ids already
// committed (the idempotence check). Records live in the arena of exactly
// one shard; only that shard's goroutine ever touches them.
type record struct {
	entity   *model.Entity
	keys     map[string]bool
	mentions map[uuid.UUID]bool
	block    string
}

type applyRequest struct {
	candidate *model.Candidate
	reply     chan applyResult
}

type applyResult struct {
	result *Result
	err    error
}

type detachRequest struct {
	id    int64
	reply chan detachResult
}

type detachResult struct {
	record *record
	err    error
}

type absorbRequest struct {
	record   *record
	targetID int64
	reply    chan absorbResult
}

type absorbResult struct {
	entity *model.Entity
	err    error
}

// request is the tagged union sent over a shard's channel.
type request struct {
	apply  *applyRequest
	detach *detachRequest
	absorb *absorbRequest
}

// shard owns the blocking buckets hashed to it. All state below requests is
// exclusively accessed from the run goroutine.
type shard struct {
	registry *Registry
	requests chan request

	records map[int64]*record  // arena, keyed by entity id
	blocks  map[string][]int64 // blocking bucket -> root entity ids
}

func newShard(r *Registry) *shard {
	return &shard{
		registry: r,
		requests: make(chan request, 64),
		records:  make(map[int64]*record),
		blocks:   make(map[string][]int64),
	}
}

func (s *shard) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case req := <-s.requests:
			switch {
			case req.apply != nil:
				result, err := s.apply(req.apply.candidate)
				req.apply.reply <- applyResult{result: result, err: err}
			case req.detach != nil:
				rec, err := s.detach(req.detach.id)
				req.detach.reply <- detachResult{record: rec, err: err}
			case req.absorb != nil:
				entity, err := s.absorb(req.absorb.record, req.absorb.targetID)
				req.absorb.reply <- absorbResult{entity: entity, err: err}
			}
		case <-s.registry.done:
			return
		}
	}
}

// apply resolves and commits one candidate. Decide and commit happen inside
// the same single-writer scope, so two concurrent first mentions of the same
// unseen entity cannot race into two canonical entities.
func (s *shard) apply(candidate *model.Candidate) (*Result, error) {
	if err := s.registry.Err(); err != nil {
		return nil, err
	}

	block := candidate.BlockKey()
	mentionID := candidate.Mention.ID

	// Idempotence: a replayed mention returns its existing canonical
	// entity without touching frequencies or provenance. The published
	// mention index covers entities merged away to other shards too.
	if committed, ok := s.registry.mentions.Load(mentionID); ok {
		entity, err := s.registry.Entity(committed.(int64))
		if err != nil {
			return nil, err
		}
		return &Result{Entity: entity, Replay: true}, nil
	}

	targets := make([]resolve.Target, 0, len(s.blocks[block]))
	for _, id := range s.blocks[block] {
		rec, ok := s.records[id]
		if !ok {
			err := model.RegistryCorruption(fmt.Sprintf("block %q references missing entity id %d", block, id))
			s.registry.fail(err)
			return nil, err
		}
		targets = append(targets, resolve.Target{
			ID:        rec.entity.ID,
			Type:      rec.entity.Type,
			Keys:      keysOf(rec),
			Frequency: rec.entity.MentionCount(),
			Embedding: rec.entity.Embedding,
		})
	}

	decision := s.registry.resolver.Decide(candidate, targets)

	var rec *record
	if decision.Merge() {
		rec = s.records[decision.TargetID]
		if rec == nil {
			err := model.RegistryCorruption(fmt.Sprintf("decision targets missing entity id %d", decision.TargetID))
			s.registry.fail(err)
			return nil, err
		}
		s.mergeCandidate(rec, candidate)
	} else {
		// Same surface, different type: refuse silently matching across
		// types but flag the new entity for manual review.
		if existing, ok := s.registry.keyTypes.Load(candidate.Key); ok && existing.(model.EntityType) != candidate.Type {
			decision.Tier = model.TierTypeConflict
		}
		rec = s.create(candidate, block)
		decision.TargetID = rec.entity.ID
	}

	s.publish(rec)
	return &Result{Entity: rec.entity.Clone(), Decision: decision}, nil
}

// create allocates a fresh canonical entity for an unmatched candidate.
func (s *shard) create(candidate *model.Candidate, block string) *record {
	id := s.registry.nextID.Add(1)
	entity := &model.Entity{
		ID:        id,
		Type:      candidate.Type,
		Label:     candidate.Surface,
		Aliases:   map[string]int{},
		Embedding: candidate.Embedding,
		CreatedAt: time.Now(),
	}
	rec := &record{
		entity:   entity,
		keys:     map[string]bool{},
		mentions: map[uuid.UUID]bool{},
		block:    block,
	}
	s.mergeCandidate(rec, candidate)

	s.records[id] = rec
	s.blocks[block] = append(s.blocks[block], id)
	s.registry.keyTypes.LoadOrStore(candidate.Key, candidate.Type)
	return rec
}

// mergeCandidate unions one candidate's surface form and provenance into a
// record and recomputes the primary label.
func (s *shard) mergeCandidate(rec *record, candidate *model.Candidate) {
	rec.entity.Aliases[candidate.Surface]++
	rec.keys[candidate.Key] = true
	rec.mentions[candidate.Mention.ID] = true
	rec.entity.Provenance = append(rec.entity.Provenance, model.Provenance{
		MentionID:  candidate.Mention.ID,
		DocumentID: candidate.Mention.DocumentID,
		StartPos:   candidate.Mention.StartPos,
		EndPos:     candidate.Mention.EndPos,
	})
	if len(rec.entity.Embedding) == 0 && len(candidate.Embedding) > 0 {
		rec.entity.Embedding = candidate.Embedding
	}
	rec.entity.RecomputeLabel()
}

// detach removes a record from this shard's arena for a cross-entity merge.
// Ownership of the record transfers to the caller through the reply channel.
func (s *shard) detach(id int64) (*record, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("unknown entity id %d", id)
	}
	delete(s.records, id)
	s.blocks[rec.block] = removeID(s.blocks[rec.block], id)
	return rec, nil
}

// absorb unions a detached record into a target entity of this shard and
// publishes a redirect from the merged-away id to the target id.
func (s *shard) absorb(from *record, targetID int64) (*model.Entity, error) {
	target, ok := s.records[targetID]
	if !ok {
		return nil, fmt.Errorf("unknown entity id %d", targetID)
	}

	for alias, count := range from.entity.Aliases {
		target.entity.Aliases[alias] += count
	}
	for key := range from.keys {
		target.keys[key] = true
	}
	for mention := range from.mentions {
		target.mentions[mention] = true
	}
	target.entity.Provenance = append(target.entity.Provenance, from.entity.Provenance...)
	target.entity.RecomputeLabel()

	s.registry.redirects.Store(from.entity.ID, targetID)
	s.publish(target)

	// Repoint the merged entity's mentions at the root as well; readers
	// resolving through redirects would find it anyway, this just keeps
	// chains short.
	for mention := range from.mentions {
		s.registry.mentions.Store(mention, targetID)
	}

	return target.entity.Clone(), nil
}

// publish pushes an immutable snapshot of the record into the read maps.
func (s *shard) publish(rec *record) {
	clone := rec.entity.Clone()
	s.registry.entities.Store(clone.ID, clone)
	s.registry.blockIndex.Store(clone.ID, rec.block)
	for mention := range rec.mentions {
		if _, ok := s.registry.mentions.Load(mention); !ok {
			s.registry.mentions.Store(mention, clone.ID)
		}
	}
}

func keysOf(rec *record) []string {
	keys := make([]string, 0, len(rec.keys))
	for key := range rec.keys {
		keys = append(keys, key)
	}
	return keys
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
