package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/model"
)

// Gateway batches document text into extractor-sized chunks and fans them
// out to the extraction capability with bounded concurrency. Each chunk is
// retried with exponential backoff; a chunk that exhausts its attempts is
// reported failed and skipped, the rest of the document continues.
type Gateway struct {
	extract ExtractFunc
	relate  RelationFunc
	config  model.ResolverConfig
	log     *slog.Logger
}

// NewGateway creates a gateway around the given extraction capability.
// A nil relate falls back to co-occurrence relation derivation.
func NewGateway(extract ExtractFunc, relate RelationFunc, config model.ResolverConfig, logger *slog.Logger) *Gateway {
	g := &Gateway{
		extract: extract,
		relate:  relate,
		config:  config,
		log:     logger,
	}
	if g.relate == nil {
		g.relate = CoOccurrenceRelations(config.RelationWindow)
	}
	return g
}

// Submit streams extraction results for one document. Results arrive in the
// order chunks complete, not document order; downstream must not assume
// ordering. The channel closes once all chunks finished or ctx is done.
func (g *Gateway) Submit(ctx context.Context, documentID uuid.UUID, text string) (<-chan ChunkResult, int, error) {
	chunks, err := SplitDocument(text, g.config.ChunkSize)
	if err != nil {
		return nil, 0, err
	}

	results := make(chan ChunkResult, len(chunks))
	jobs := make(chan Chunk)

	workers := g.config.Concurrency
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				results <- g.processChunk(ctx, documentID, text, chunk)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, chunk := range chunks {
			select {
			case jobs <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results, len(chunks), nil
}

// processChunk runs one extraction call with retries. Cancelling the context
// discards the chunk's in-flight mentions without affecting other chunks.
func (g *Gateway) processChunk(ctx context.Context, documentID uuid.UUID, document string, chunk Chunk) ChunkResult {
	var extractions []Extraction
	var lastErr error

	backoff := g.config.InitialBackoff
	attempts := g.config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return ChunkResult{ChunkIndex: chunk.Index, Err: ctx.Err()}
		}
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ChunkResult{ChunkIndex: chunk.Index, Err: ctx.Err()}
			}
			backoff *= 2
		}

		chunkCtx := ctx
		var cancel context.CancelFunc
		if g.config.ChunkTimeout > 0 {
			chunkCtx, cancel = context.WithTimeout(ctx, g.config.ChunkTimeout)
		}
		extractions, lastErr = g.extract(chunkCtx, chunk.Text)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			break
		}
		g.log.Warn("Extraction attempt failed",
			slog.String("document_id", documentID.String()),
			slog.Int("chunk", chunk.Index),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)
	}
	if lastErr != nil {
		return ChunkResult{
			ChunkIndex: chunk.Index,
			Err:        fmt.Errorf("%w: chunk %d: %v", model.ErrTransientExtraction, chunk.Index, lastErr),
		}
	}

	mentions := make([]*model.Mention, 0, len(extractions))
	for _, ex := range extractions {
		start := chunk.Offset + ex.Start
		end := chunk.Offset + ex.End
		mentions = append(mentions, &model.Mention{
			ID:         mentionID(documentID, start, end),
			DocumentID: documentID,
			Surface:    ex.Surface,
			Type:       ex.Type,
			StartPos:   start,
			EndPos:     end,
			Context:    contextWindow(document, start, end, g.config.ContextWindow),
		})
	}

	relations, err := g.relate(ctx, chunk.Text, mentions)
	if err != nil {
		// Relation derivation is best effort, mentions still count.
		g.log.Warn("Relation derivation failed",
			slog.String("document_id", documentID.String()),
			slog.Int("chunk", chunk.Index),
			slog.String("error", err.Error()),
		)
		relations = nil
	}

	return ChunkResult{
		ChunkIndex: chunk.Index,
		Mentions:   mentions,
		Relations:  relations,
	}
}

// mentionID derives a stable id from what identifies a mention: the
// document and its byte span. Re-extracting the same document yields the
// same ids, which keeps replayed ingests idempotent downstream.
func mentionID(documentID uuid.UUID, start, end int) uuid.UUID {
	return uuid.NewSHA1(documentID, []byte(fmt.Sprintf("%d:%d", start, end)))
}

// contextWindow returns the text surrounding a span, clamped to the
// document bounds.
func contextWindow(document string, start, end, window int) string {
	from := start - window
	if from < 0 {
		from = 0
	}
	to := end + window
	if to > len(document) {
		to = len(document)
	}
	if from >= to || from < 0 || to > len(document) {
		return ""
	}
	return document[from:to]
}
