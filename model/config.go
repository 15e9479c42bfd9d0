package model

import "time"

// ResolverConfig tunes the ingestion pipeline: chunking, extraction fan-out,
// similarity scoring and registry sharding.
type ResolverConfig struct {
	// Extraction gateway parameters
	ChunkSize      int           `json:"chunk_size"`      // max characters per extraction call
	Concurrency    int           `json:"concurrency"`     // parallel extraction workers
	MaxAttempts    int           `json:"max_attempts"`    // attempts per chunk before it is skipped
	InitialBackoff time.Duration `json:"initial_backoff"` // first retry delay, doubled per attempt
	ChunkTimeout   time.Duration `json:"chunk_timeout"`   // per-chunk extraction timeout
	ContextWindow  int           `json:"context_window"`  // characters kept around each mention
	RelationWindow int           `json:"relation_window"` // max distance for co-occurrence relations

	// Similarity resolver parameters
	HighThreshold float64 `json:"high_threshold"` // score at or above auto-merges
	MidThreshold  float64 `json:"mid_threshold"`  // score at or above merges flagged
	EditWeight    float64 `json:"edit_weight"`    // weight of edit-distance similarity
	TokenWeight   float64 `json:"token_weight"`   // weight of token-set overlap
	CosineWeight  float64 `json:"cosine_weight"`  // weight of embedding cosine similarity

	// Registry parameters
	Shards int `json:"shards"` // writer goroutines, one blocking bucket maps to one shard

	// Graph builder parameters
	GraphMaxAttempts int           `json:"graph_max_attempts"`
	GraphBackoff     time.Duration `json:"graph_backoff"`
}

// DefaultResolverConfig returns the documented default tuning. The score
// weights and thresholds were validated against the dedup fixtures in the
// resolver tests, not taken from any external contract.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ChunkSize:      1000,
		Concurrency:    4,
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		ChunkTimeout:   30 * time.Second,
		ContextWindow:  100,
		RelationWindow: 100,

		HighThreshold: 0.90,
		MidThreshold:  0.75,
		EditWeight:    0.5,
		TokenWeight:   0.3,
		CosineWeight:  0.2,

		Shards: 16,

		GraphMaxAttempts: 3,
		GraphBackoff:     50 * time.Millisecond,
	}
}

// QueryConfig represents configuration for a hybrid search query.
type QueryConfig struct {
	Limit               int     `json:"limit"`
	ExploreDepth        int     `json:"explore_depth"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	VectorWeight        float64 `json:"vector_weight"`
	GraphWeight         float64 `json:"graph_weight"`
}

// DefaultQueryConfig returns a sensible default configuration.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Limit:        5,
		ExploreDepth: 2,
		VectorWeight: 0.7,
		GraphWeight:  0.3,
	}
}
