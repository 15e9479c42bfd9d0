package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion error taxonomy. All of them except
// ErrRegistryCorruption are non-fatal: they are recorded in the ingestion
// report and the pipeline continues.
var (
	// ErrTransientExtraction marks an extraction call failure worth retrying.
	// After retries are exhausted the chunk is skipped, not the document.
	ErrTransientExtraction = errors.New("transient extraction failure")
	// ErrMalformedMention marks a mention the normalizer could not parse.
	// The mention is dropped and logged.
	ErrMalformedMention = errors.New("malformed mention")
	// ErrTypeConflict marks a merge refused because the entity types were
	// incompatible. The candidate becomes a new entity flagged for review.
	ErrTypeConflict = errors.New("entity type conflict")
	// ErrGraphWrite marks a graph store write failure. Retried with backoff;
	// when exhausted the document is marked partially materialized.
	ErrGraphWrite = errors.New("graph write failure")
	// ErrRegistryCorruption marks a violated union-find invariant, e.g. a
	// cycle in the merge chain. Fatal: ingestion halts immediately because
	// downstream data can no longer be trusted.
	ErrRegistryCorruption = errors.New("registry corruption")
)

// MalformedMention wraps a cause into an ErrMalformedMention for one mention.
func MalformedMention(surface string, cause error) error {
	return fmt.Errorf("%w: %q: %v", ErrMalformedMention, surface, cause)
}

// TypeConflict describes a refused cross-type merge.
func TypeConflict(candidate, existing EntityType) error {
	return fmt.Errorf("%w: candidate %q vs entity %q", ErrTypeConflict, candidate, existing)
}

// RegistryCorruption wraps an invariant violation into a fatal error.
func RegistryCorruption(detail string) error {
	return fmt.Errorf("%w: %s", ErrRegistryCorruption, detail)
}
