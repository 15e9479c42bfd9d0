package resolve

import (
	"time"

	"github.com/siherrmann/resolver/model"
)

// Target is the registry's read view of an existing canonical entity inside
// one blocking bucket: its normalized alias keys plus the tie-break data.
type Target struct {
	ID        int64
	Type      model.EntityType
	Keys      []string
	Frequency int
	Embedding []float32
}

// Resolver scores candidates against existing canonical entities and decides
// merge versus new-entity. Comparison cost is bounded upstream: the registry
// only hands the resolver the targets of the candidate's blocking bucket.
type Resolver struct {
	highThreshold float64
	midThreshold  float64
	editWeight    float64
	tokenWeight   float64
	cosineWeight  float64
}

// NewResolver creates a resolver with the given scoring configuration.
func NewResolver(config model.ResolverConfig) *Resolver {
	return &Resolver{
		highThreshold: config.HighThreshold,
		midThreshold:  config.MidThreshold,
		editWeight:    config.EditWeight,
		tokenWeight:   config.TokenWeight,
		cosineWeight:  config.CosineWeight,
	}
}

// Score computes the composite similarity of a candidate against one target.
// A type mismatch disqualifies the target regardless of string similarity
// and returns -1. An exact normalized-key match scores 1.0.
func (r *Resolver) Score(candidate *model.Candidate, target Target) float64 {
	if candidate.Type != target.Type {
		return -1
	}

	best := 0.0
	for _, key := range target.Keys {
		if key == candidate.Key {
			return 1.0
		}

		edit := editSimilarity(candidate.Key, key)
		tokens := tokenOverlap(candidate.Key, key)

		editW, tokenW, cosineW := r.editWeight, r.tokenWeight, r.cosineWeight
		cosine := 0.0
		if len(candidate.Embedding) > 0 && len(target.Embedding) > 0 {
			cosine = cosineSimilarity(candidate.Embedding, target.Embedding)
		} else {
			// Redistribute the cosine weight pro-rata when embeddings
			// are unavailable for either side.
			total := editW + tokenW
			if total > 0 {
				editW += cosineW * editW / total
				tokenW += cosineW * tokenW / total
			}
			cosineW = 0
		}

		score := editW*edit + tokenW*tokens + cosineW*cosine
		if score > best {
			best = score
		}
	}
	return best
}

// Decide resolves a candidate against the targets of its blocking bucket.
// Ties on score go to the target with the larger mention frequency, the
// more established entity absorbs the new alias.
func (r *Resolver) Decide(candidate *model.Candidate, targets []Target) *model.Decision {
	decision := &model.Decision{
		Candidate: candidate,
		Tier:      model.TierCreateNew,
		Timestamp: time.Now(),
	}

	bestScore := -1.0
	bestFrequency := -1
	var bestID int64

	for _, target := range targets {
		score := r.Score(candidate, target)
		if score < 0 {
			continue
		}
		if score > bestScore || (score == bestScore && target.Frequency > bestFrequency) {
			bestScore = score
			bestFrequency = target.Frequency
			bestID = target.ID
		}
	}

	switch {
	case bestScore >= r.highThreshold:
		decision.TargetID = bestID
		decision.Score = bestScore
		decision.Tier = model.TierAutoMerge
	case bestScore >= r.midThreshold:
		decision.TargetID = bestID
		decision.Score = bestScore
		decision.Tier = model.TierFlaggedMerge
	default:
		if bestScore > 0 {
			decision.Score = bestScore
		}
	}

	return decision
}
