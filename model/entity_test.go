package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityMentionCount(t *testing.T) {
	t.Run("Sums all alias frequencies", func(t *testing.T) {
		entity := &Entity{
			Aliases: map[string]int{"Apple": 3, "Apple Inc.": 2, "AAPL": 1},
		}
		assert.Equal(t, 6, entity.MentionCount())
	})

	t.Run("Zero for no aliases", func(t *testing.T) {
		entity := &Entity{}
		assert.Equal(t, 0, entity.MentionCount())
	})
}

func TestEntityRecomputeLabel(t *testing.T) {
	t.Run("Most frequent alias wins", func(t *testing.T) {
		entity := &Entity{
			Aliases: map[string]int{"Tim Cook": 5, "Cook": 2, "T. Cook": 1},
		}
		entity.RecomputeLabel()
		assert.Equal(t, "Tim Cook", entity.Label)
	})

	t.Run("Tie broken by longest alias", func(t *testing.T) {
		entity := &Entity{
			Aliases: map[string]int{"IBM": 2, "International Business Machines": 2},
		}
		entity.RecomputeLabel()
		assert.Equal(t, "International Business Machines", entity.Label)
	})

	t.Run("Equal length tie is deterministic", func(t *testing.T) {
		entity := &Entity{
			Aliases: map[string]int{"abc": 1, "abd": 1},
		}
		for i := 0; i < 10; i++ {
			entity.RecomputeLabel()
			assert.Equal(t, "abc", entity.Label)
		}
	})
}

func TestEntityClone(t *testing.T) {
	mentionID := uuid.New()
	entity := &Entity{
		ID:      42,
		Type:    EntityTypeOrganization,
		Label:   "Apple Inc.",
		Aliases: map[string]int{"Apple Inc.": 2, "Apple": 1},
		Provenance: []Provenance{
			{MentionID: mentionID, StartPos: 0, EndPos: 10},
		},
		Embedding: []float32{0.1, 0.2, 0.3},
		Metadata:  Metadata{"source": "test"},
	}

	clone := entity.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, entity.ID, clone.ID)
	assert.Equal(t, entity.Label, clone.Label)
	assert.Equal(t, entity.Aliases, clone.Aliases)
	assert.Equal(t, entity.Provenance, clone.Provenance)
	assert.Equal(t, entity.Embedding, clone.Embedding)
	assert.Equal(t, entity.Metadata, clone.Metadata)

	t.Run("Mutating the clone leaves the original untouched", func(t *testing.T) {
		clone.Aliases["Apple"] = 99
		clone.Provenance[0].StartPos = 99
		clone.Embedding[0] = 99
		clone.Metadata["source"] = "changed"

		assert.Equal(t, 1, entity.Aliases["Apple"])
		assert.Equal(t, 0, entity.Provenance[0].StartPos)
		assert.Equal(t, float32(0.1), entity.Embedding[0])
		assert.Equal(t, "test", entity.Metadata["source"])
	})
}

func TestCandidateBlockKey(t *testing.T) {
	t.Run("Type plus phonetic code of the first token", func(t *testing.T) {
		candidate := &Candidate{Key: "tim cook", Type: EntityTypePerson}
		assert.Equal(t, "PER:t5", candidate.BlockKey())
	})

	t.Run("Single token key", func(t *testing.T) {
		candidate := &Candidate{Key: "apple", Type: EntityTypeOrganization}
		assert.Equal(t, "ORG:a1", candidate.BlockKey())
	})

	t.Run("Short and full first names share a bucket", func(t *testing.T) {
		short := &Candidate{Key: "tim cook", Type: EntityTypePerson}
		full := &Candidate{Key: "timothy cook", Type: EntityTypePerson}
		assert.Equal(t, short.BlockKey(), full.BlockKey())
	})

	t.Run("Same key different type blocks apart", func(t *testing.T) {
		person := &Candidate{Key: "apple", Type: EntityTypePerson}
		org := &Candidate{Key: "apple", Type: EntityTypeOrganization}
		assert.NotEqual(t, person.BlockKey(), org.BlockKey())
	})

	t.Run("Numeric tokens are kept verbatim", func(t *testing.T) {
		candidate := &Candidate{Key: "51 area", Type: EntityTypeLocation}
		assert.Equal(t, "LOC:51", candidate.BlockKey())
	})
}

func TestDecisionMerge(t *testing.T) {
	assert.True(t, (&Decision{Tier: TierAutoMerge}).Merge())
	assert.True(t, (&Decision{Tier: TierFlaggedMerge}).Merge())
	assert.False(t, (&Decision{Tier: TierCreateNew}).Merge())
	assert.False(t, (&Decision{Tier: TierTypeConflict}).Merge())
}
