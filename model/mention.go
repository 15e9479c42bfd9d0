package model

import (
	"github.com/google/uuid"
)

// Mention represents one textual occurrence of an entity in one document.
// Mentions are produced by the extraction gateway and are immutable.
type Mention struct {
	ID         uuid.UUID  `json:"id"`
	DocumentID uuid.UUID  `json:"document_id"`
	Surface    string     `json:"surface"`
	Type       EntityType `json:"entity_type"`
	StartPos   int        `json:"start_pos"`
	EndPos     int        `json:"end_pos"`
	Context    string     `json:"context,omitempty"`
}

// Candidate is a normalized, not-yet-resolved mention awaiting a merge decision.
// Exactly one Candidate is produced per Mention; it is transient and never stored.
type Candidate struct {
	Key       string     `json:"key"`     // normalized comparison key
	Surface   string     `json:"surface"` // original surface form, kept verbatim
	Type      EntityType `json:"entity_type"`
	Mention   *Mention   `json:"mention"`
	Embedding []float32  `json:"embedding,omitempty"`
}

// BlockKey returns the blocking bucket for the candidate: entity type plus a
// coarse phonetic code of the first token of the normalized key. The code is
// deliberately coarse so spelling variants of one name ("tim", "timothy")
// share a bucket; the resolver scores candidates inside it. Candidates are
// only ever compared within their bucket.
func (c *Candidate) BlockKey() string {
	token := c.Key
	for i := 0; i < len(token); i++ {
		if token[i] == ' ' {
			token = token[:i]
			break
		}
	}
	return string(c.Type) + ":" + phoneticCode(token)
}

// soundexClass groups consonants that swap across spelling variants,
// following the Soundex letter classes.
var soundexClass = map[byte]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// phoneticCode reduces a token to its first letter plus the class of the
// next consonant of a different class. Tokens not starting with a letter
// (numbers, symbols) are kept verbatim.
func phoneticCode(token string) string {
	if len(token) == 0 || token[0] < 'a' || token[0] > 'z' {
		return token
	}
	first := token[0]
	for i := 1; i < len(token); i++ {
		if class, ok := soundexClass[token[i]]; ok && class != soundexClass[first] {
			return string(first) + string(class)
		}
	}
	return string(first)
}
