package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/core/extraction"
	"github.com/siherrmann/resolver/core/normalize"
	"github.com/siherrmann/resolver/core/registry"
	"github.com/siherrmann/resolver/core/resolve"
	"github.com/siherrmann/resolver/database"
	"github.com/siherrmann/resolver/graph"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	"github.com/siherrmann/resolver/search"
)

// Resolver provides a unified interface to the full ingestion path:
// extraction gateway, candidate normalizer, entity registry, graph builder
// and hybrid search engine.
type Resolver struct {
	DB         *helper.Database
	Gateway    *extraction.Gateway // Optional extraction gateway
	Normalizer *normalize.Normalizer
	Registry   *registry.Registry
	Builder    *graph.Builder
	Engine     *search.Engine

	store     graph.Store
	decisions graph.DecisionLog
	embed     extraction.EmbedFunc
	config    model.ResolverConfig
	// Logging
	log *slog.Logger
}

// NewResolver creates a resolver on top of an arbitrary graph store.
// The extraction capability is set separately via SetExtraction or
// UseDefaultExtraction.
func NewResolver(store graph.Store, config model.ResolverConfig) *Resolver {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	scorer := resolve.NewResolver(config)
	reg := registry.NewRegistry(config, scorer, logger)
	builder := graph.NewBuilder(store, config, logger)

	r := &Resolver{
		Gateway:    nil,
		Normalizer: normalize.NewNormalizer(),
		Registry:   reg,
		Builder:    builder,
		store:      store,
		config:     config,
		log:        logger,
	}

	if log, ok := store.(graph.DecisionLog); ok {
		r.decisions = log
	}

	return r
}

// NewPostgresResolver creates a resolver backed by a Postgres graph store.
// It connects to the database, loads all stored SQL functions and creates
// the nodes, edges and decisions tables.
func NewPostgresResolver(dbConfig *helper.DatabaseConfiguration, embeddingDim int, config model.ResolverConfig) (*Resolver, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("resolver", dbConfig, logger)

	// force=false to not reload if functions already exist
	store, err := database.NewPostgresStore(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create postgres store", err)
	}

	r := NewResolver(store, config)
	r.DB = db
	r.log = logger
	return r, nil
}

// SetExtraction sets the extraction, relation and embedding capabilities.
// A nil relate falls back to co-occurrence relation derivation.
func (r *Resolver) SetExtraction(extract extraction.ExtractFunc, relate extraction.RelationFunc, embed extraction.EmbedFunc) {
	r.Gateway = extraction.NewGateway(extract, relate, r.config, r.log)
	r.embed = embed
	r.Engine = search.NewEngine(r.store, embed, r.log)
}

// UseDefaultExtraction sets up the default NER and embedding capabilities.
// This uses the distilbert-NER token classification model for extraction and
// the all-MiniLM-L6-v2 model (384 dimensions) for embeddings, with
// co-occurrence relation derivation.
func (r *Resolver) UseDefaultExtraction() error {
	extract, err := extraction.DefaultExtractor()
	if err != nil {
		return helper.NewError("create default extractor", err)
	}

	embed, err := extraction.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	r.SetExtraction(extract, nil, embed)
	return nil
}

// SetDecisionLog sets the audit sink for merge decisions. The Postgres
// store registers itself automatically.
func (r *Resolver) SetDecisionLog(log graph.DecisionLog) {
	r.decisions = log
}

// Ingest processes one document end to end:
// 1. The gateway splits the text into chunks and extracts mentions in parallel
// 2. Each mention is normalized into a candidate and resolved in the registry
// 3. Resolved entities and their relations are materialized into the graph
// Non-fatal failures (failed chunks, malformed mentions, exhausted graph
// writes) accumulate in the report; only registry corruption aborts.
func (r *Resolver) Ingest(ctx context.Context, documentID uuid.UUID, text string) (*model.IngestionReport, error) {
	if r.Gateway == nil {
		return nil, helper.NewError("ingest", fmt.Errorf("extraction not set, use SetExtraction() first"))
	}

	report := &model.IngestionReport{DocumentID: documentID}

	results, chunkCount, err := r.Gateway.Submit(ctx, documentID, text)
	if err != nil {
		return report, helper.NewError("submit document", err)
	}
	report.ChunksTotal = chunkCount

	// Relations queued by this ingest, so flushes triggered for earlier
	// documents are not folded into this report's tallies.
	queued := map[uuid.UUID]bool{}

	for result := range results {
		if result.Err != nil {
			report.ChunksFailed++
			report.Record(result.Err)
			continue
		}

		if err := r.ingestMentions(ctx, result.Mentions, queued, report); err != nil {
			return report, err
		}
		r.ingestRelations(ctx, result.Relations, queued, report)
	}

	if err := r.Registry.Err(); err != nil {
		return report, err
	}

	r.log.Info("Ingested document",
		slog.String("document_id", documentID.String()),
		slog.Int("chunks", report.ChunksTotal),
		slog.Int("mentions", report.MentionsExtracted),
		slog.Int("merged", report.MentionsMerged),
		slog.Int("created", report.MentionsCreated),
	)

	return report, nil
}

// ingestMentions resolves the mentions of one chunk and materializes the
// resulting entities. Registry corruption is the only fatal error.
func (r *Resolver) ingestMentions(ctx context.Context, mentions []*model.Mention, queued map[uuid.UUID]bool, report *model.IngestionReport) error {
	for _, mention := range mentions {
		report.MentionsExtracted++

		candidate, err := r.Normalizer.Normalize(mention)
		if err != nil {
			report.MentionsDropped++
			report.Record(err)
			continue
		}

		if r.embed != nil {
			embedding, err := r.embed(candidate.Surface)
			if err != nil {
				// Scoring degrades to string similarity only.
				report.Record(helper.NewError("embed candidate", err))
			} else {
				candidate.Embedding = embedding
			}
		}

		result, err := r.Registry.Apply(ctx, candidate)
		if err != nil {
			if errors.Is(err, model.ErrRegistryCorruption) {
				return err
			}
			report.Record(err)
			continue
		}
		if !result.Replay {
			switch result.Decision.Tier {
			case model.TierAutoMerge:
				report.MentionsMerged++
			case model.TierFlaggedMerge:
				report.MentionsMerged++
				report.MentionsFlagged++
			default:
				report.MentionsCreated++
			}

			if r.decisions != nil {
				if err := r.decisions.AppendDecision(ctx, result.Decision); err != nil {
					report.Record(helper.NewError("append decision", err))
				}
			}
		}

		// Materialize on replay too, a graph write that failed during the
		// first ingest of the document heals here.
		flushed, err := r.Builder.MaterializeEntity(ctx, result.Entity)
		if err != nil {
			report.PartialGraph = true
			report.Record(err)
		}
		for _, relation := range flushed {
			if queued[relation.ID] {
				delete(queued, relation.ID)
				report.RelationsPending--
				report.RelationsUpserted++
			}
		}
	}
	return nil
}

// ingestRelations resolves the mention-level relations of one chunk to
// canonical entity ids and materializes them as edges. Relations whose
// endpoints collapsed into one entity are dropped.
func (r *Resolver) ingestRelations(ctx context.Context, relations []model.MentionRelation, queued map[uuid.UUID]bool, report *model.IngestionReport) {
	for _, rel := range relations {
		subject, err := r.Registry.Lookup(rel.SubjectMention)
		if err != nil {
			continue
		}
		object, err := r.Registry.Lookup(rel.ObjectMention)
		if err != nil {
			continue
		}
		if subject.ID == object.ID {
			continue
		}

		relation := &model.Relation{
			ID:         uuid.New(),
			SubjectID:  subject.ID,
			Predicate:  rel.Predicate,
			ObjectID:   object.ID,
			Weight:     rel.Weight,
			MentionIDs: []uuid.UUID{rel.SubjectMention, rel.ObjectMention},
		}

		pending, err := r.Builder.MaterializeRelation(ctx, relation)
		if err != nil {
			report.PartialGraph = true
			report.Record(err)
			continue
		}
		if pending {
			queued[relation.ID] = true
			report.RelationsPending++
		} else {
			report.RelationsUpserted++
		}
	}
}

// Search performs hybrid retrieval: vector similarity seeds expanded by
// graph traversal.
func (r *Resolver) Search(ctx context.Context, query string, config *model.QueryConfig) ([]*model.SearchResult, error) {
	if r.Engine == nil {
		return nil, helper.NewError("search", fmt.Errorf("extraction not set, use SetExtraction() first"))
	}
	return r.Engine.Search(ctx, query, config)
}

// Lookup returns the canonical entity a mention was resolved into.
func (r *Resolver) Lookup(mentionID uuid.UUID) (*model.Entity, error) {
	return r.Registry.Lookup(mentionID)
}

// Entity returns the canonical entity for an id, following merge redirects.
func (r *Resolver) Entity(id int64) (*model.Entity, error) {
	return r.Registry.Entity(id)
}

// Aliases returns the surface forms observed for an entity with their
// mention frequencies.
func (r *Resolver) Aliases(id int64) (map[string]int, error) {
	entity, err := r.Registry.Entity(id)
	if err != nil {
		return nil, err
	}
	return entity.Aliases, nil
}

// MergeEntities manually merges one entity into another, e.g. after
// reviewing a flagged decision. With override set, a type conflict between
// the two entities is merged anyway. The merged entity is re-materialized.
func (r *Resolver) MergeEntities(ctx context.Context, fromID, toID int64, override bool) (*model.Entity, error) {
	entity, err := r.Registry.MergeEntities(ctx, fromID, toID, override)
	if err != nil {
		return nil, err
	}

	if _, err := r.Builder.MaterializeEntity(ctx, entity); err != nil {
		return entity, helper.NewError("materialize merged entity", err)
	}
	return entity, nil
}

// BFSTraversal performs breadth-first search from an entity
func (r *Resolver) BFSTraversal(ctx context.Context, sourceID int64, maxHops int, predicates []string) ([]*search.TraversalResult, error) {
	return search.BFS(ctx, r.store, sourceID, maxHops, predicates)
}

// DFSTraversal performs depth-first search from an entity
func (r *Resolver) DFSTraversal(ctx context.Context, sourceID int64, maxHops int, predicates []string) ([]*search.TraversalResult, error) {
	return search.DFS(ctx, r.store, sourceID, maxHops, predicates)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat.
// Only available with the Postgres store.
func (r *Resolver) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	store, ok := r.store.(*database.PostgresStore)
	if !ok {
		return helper.NewError("change index type", fmt.Errorf("index tuning requires the postgres store"))
	}
	return store.NodesHandler().ChangeIndexType(ctx, indexType, params)
}

// Close shuts the registry down and closes the database connection.
func (r *Resolver) Close() error {
	r.Registry.Close()
	if r.DB != nil && r.DB.Instance != nil {
		return r.DB.Instance.Close()
	}
	return nil
}
