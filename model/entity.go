package model

import (
	"time"

	"github.com/google/uuid"
)

// EntityType classifies a canonical entity. Types follow the labels emitted
// by NER models (PER, ORG, LOC, MISC) but are open-ended strings so custom
// extractors can introduce their own.
type EntityType string

const (
	EntityTypePerson       EntityType = "PER"
	EntityTypeOrganization EntityType = "ORG"
	EntityTypeLocation     EntityType = "LOC"
	EntityTypeMisc         EntityType = "MISC"
	EntityTypeUnknown      EntityType = ""
)

// Provenance records where a mention of an entity was found.
type Provenance struct {
	MentionID  uuid.UUID `json:"mention_id"`
	DocumentID uuid.UUID `json:"document_id"`
	StartPos   int       `json:"start_pos"`
	EndPos     int       `json:"end_pos"`
}

// Entity is the canonical, deduplicated representation of a real-world
// entity across all documents. Entities are created by the registry on the
// first unmatched candidate of a type and afterwards only ever grow:
// merging adds aliases, frequencies and provenance, never removes them.
type Entity struct {
	ID         int64          `json:"id"`
	Type       EntityType     `json:"entity_type"`
	Label      string         `json:"label"` // primary label, most frequent alias
	Aliases    map[string]int `json:"aliases"`
	Provenance []Provenance   `json:"provenance"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   Metadata       `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// MentionCount returns the total number of mentions resolved to this entity.
func (e *Entity) MentionCount() int {
	total := 0
	for _, n := range e.Aliases {
		total += n
	}
	return total
}

// RecomputeLabel sets the primary label to the most frequent alias,
// tie-broken by the longest surface form.
func (e *Entity) RecomputeLabel() {
	best := ""
	bestCount := -1
	for alias, count := range e.Aliases {
		switch {
		case count > bestCount:
		case count == bestCount && len(alias) > len(best):
		case count == bestCount && len(alias) == len(best) && alias < best:
		default:
			continue
		}
		best = alias
		bestCount = count
	}
	e.Label = best
}

// Clone returns a deep copy of the entity. The registry publishes clones to
// readers so commits never mutate a snapshot a reader may still hold.
func (e *Entity) Clone() *Entity {
	clone := &Entity{
		ID:        e.ID,
		Type:      e.Type,
		Label:     e.Label,
		Aliases:   make(map[string]int, len(e.Aliases)),
		CreatedAt: e.CreatedAt,
	}
	for alias, count := range e.Aliases {
		clone.Aliases[alias] = count
	}
	clone.Provenance = append(clone.Provenance, e.Provenance...)
	clone.Embedding = append(clone.Embedding, e.Embedding...)
	if e.Metadata != nil {
		clone.Metadata = make(Metadata, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}
