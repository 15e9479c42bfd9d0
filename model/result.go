package model

// SearchResult represents a canonical entity retrieved by a hybrid query.
type SearchResult struct {
	Entity          *Entity `json:"entity"`
	Score           float64 `json:"score"`            // combined score from ranking
	SimilarityScore float64 `json:"similarity_score"` // cosine similarity score
	GraphDistance   int     `json:"graph_distance"`   // hops from the nearest vector match
	RetrievalMethod string  `json:"retrieval_method"` // vector or graph
	Path            []int64 `json:"path,omitempty"`   // entity ids from the vector match
}
