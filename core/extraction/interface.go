package extraction

import (
	"context"

	"github.com/siherrmann/resolver/model"
)

// Extraction is one raw hit returned by the extraction capability: a surface
// form with its declared type and byte span inside the submitted text.
type Extraction struct {
	Surface string
	Type    model.EntityType
	Start   int
	End     int
}

// ExtractFunc is the external extraction capability. The callee has no
// ordering guarantee obligation; the caller supplies batched chunks.
type ExtractFunc func(ctx context.Context, text string) ([]Extraction, error)

// EmbedFunc is a function that generates embeddings for text.
type EmbedFunc func(text string) ([]float32, error)

// RelationFunc derives relations between the mentions of one chunk.
// Optional; the gateway falls back to co-occurrence derivation.
type RelationFunc func(ctx context.Context, text string, mentions []*model.Mention) ([]model.MentionRelation, error)

// ChunkResult carries everything extracted from one chunk, or the terminal
// error if the chunk failed all attempts. Chunks complete in any order.
type ChunkResult struct {
	ChunkIndex int
	Mentions   []*model.Mention
	Relations  []model.MentionRelation
	Err        error
}
