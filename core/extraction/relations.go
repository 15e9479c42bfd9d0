package extraction

import (
	"context"

	"github.com/siherrmann/resolver/model"
)

// CoOccurrenceRelations derives relations between mentions that appear
// within window bytes of each other in the same chunk. Closer mentions get
// higher weights: weight 1.0 for adjacent spans, linearly decaying to 0 at
// twice the window.
func CoOccurrenceRelations(window int) RelationFunc {
	return func(ctx context.Context, text string, mentions []*model.Mention) ([]model.MentionRelation, error) {
		if window <= 0 || len(mentions) < 2 {
			return nil, nil
		}

		var relations []model.MentionRelation
		for i := 0; i < len(mentions); i++ {
			for j := i + 1; j < len(mentions); j++ {
				distance := mentions[j].StartPos - mentions[i].StartPos
				if distance < 0 {
					distance = -distance
				}
				if distance >= window {
					continue
				}
				relations = append(relations, model.MentionRelation{
					SubjectMention: mentions[i].ID,
					Predicate:      "co_occurs_with",
					ObjectMention:  mentions[j].ID,
					Weight:         coOccurrenceWeight(distance, window),
				})
			}
		}
		return relations, nil
	}
}

// coOccurrenceWeight decays linearly from 1.0 at distance 0 to 0.0 at twice
// the window.
func coOccurrenceWeight(distance, window int) float64 {
	weight := 1.0 - float64(distance)/float64(2*window)
	if weight < 0 {
		return 0.0
	}
	return weight
}
