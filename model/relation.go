package model

import (
	"time"

	"github.com/google/uuid"
)

// Relation represents a typed relationship between two canonical entities.
// A relation is valid only once both endpoints are resolved to canonical
// entity ids; until then the graph builder holds it on a pending queue.
type Relation struct {
	ID         uuid.UUID   `json:"id"`
	SubjectID  int64       `json:"subject_id"`
	Predicate  string      `json:"predicate"`
	ObjectID   int64       `json:"object_id"`
	Weight     float64     `json:"weight"`
	MentionIDs []uuid.UUID `json:"mention_ids,omitempty"`
	Metadata   Metadata    `json:"metadata,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// MentionRelation is a relation between two mentions as reported by the
// extraction capability, before either endpoint has been resolved.
type MentionRelation struct {
	SubjectMention uuid.UUID `json:"subject_mention"`
	Predicate      string    `json:"predicate"`
	ObjectMention  uuid.UUID `json:"object_mention"`
	Weight         float64   `json:"weight"`
}
