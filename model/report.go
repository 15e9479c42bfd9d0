package model

import (
	"github.com/google/uuid"
)

// IngestionReport summarizes the outcome of ingesting one document.
// Non-fatal errors accumulate here instead of aborting the batch.
type IngestionReport struct {
	DocumentID        uuid.UUID `json:"document_id"`
	ChunksTotal       int       `json:"chunks_total"`
	ChunksFailed      int       `json:"chunks_failed"`
	MentionsExtracted int       `json:"mentions_extracted"`
	MentionsMerged    int       `json:"mentions_merged"`
	MentionsCreated   int       `json:"mentions_created"`
	MentionsDropped   int       `json:"mentions_dropped"`
	MentionsFlagged   int       `json:"mentions_flagged"`
	RelationsUpserted int       `json:"relations_upserted"`
	RelationsPending  int       `json:"relations_pending"`
	PartialGraph      bool      `json:"partial_graph"` // graph writes exhausted retries
	Errors            []string  `json:"errors,omitempty"`
}

// Record appends a non-fatal error to the report.
func (r *IngestionReport) Record(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}
