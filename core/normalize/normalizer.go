package normalize

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/siherrmann/resolver/model"
)

// TypeInferFunc infers an entity type from a mention's surrounding context
// when the extractor did not declare one. Pluggable.
type TypeInferFunc func(surface string, context string) model.EntityType

// Normalizer turns raw mentions into comparable, typed candidates.
type Normalizer struct {
	inferType TypeInferFunc
}

// NewNormalizer creates a normalizer with the default type inference heuristic.
func NewNormalizer() *Normalizer {
	return &Normalizer{inferType: DefaultTypeInference}
}

// SetTypeInference replaces the type inference heuristic used for mentions
// without a declared type.
func (n *Normalizer) SetTypeInference(infer TypeInferFunc) {
	if infer != nil {
		n.inferType = infer
	}
}

// Normalize produces exactly one candidate from a mention. The comparison
// key is lowercased, diacritic-folded and stripped of honorifics and legal
// suffixes according to the per-type rule table; the stored surface form
// stays verbatim. An unparseable mention yields a malformed-mention error.
func (n *Normalizer) Normalize(mention *model.Mention) (*model.Candidate, error) {
	surface := strings.TrimSpace(mention.Surface)
	if surface == "" {
		return nil, model.MalformedMention(mention.Surface, fmt.Errorf("empty surface form"))
	}

	entityType := mention.Type
	if entityType == model.EntityTypeUnknown {
		entityType = n.inferType(surface, mention.Context)
	}

	key := ApplyRules(FoldKey(surface), RulesFor(entityType))
	if key == "" {
		return nil, model.MalformedMention(surface, fmt.Errorf("no comparable characters"))
	}

	return &model.Candidate{
		Key:     key,
		Surface: surface,
		Type:    entityType,
		Mention: mention,
	}, nil
}

// DefaultTypeInference guesses a type from the surface form alone: a known
// honorific prefix suggests a person, a legal suffix suggests an
// organization, anything else falls back to MISC.
func DefaultTypeInference(surface string, context string) model.EntityType {
	key := FoldKey(surface)
	tokens := strings.Fields(key)
	if len(tokens) == 0 {
		return model.EntityTypeMisc
	}

	if containsToken(honorifics, tokens[0]) {
		return model.EntityTypePerson
	}
	if containsToken(legalSuffixes, tokens[len(tokens)-1]) {
		return model.EntityTypeOrganization
	}

	// Multi-word title case with no other signal reads like a person name.
	if len(tokens) > 1 && allTitleCase(surface) {
		return model.EntityTypePerson
	}

	return model.EntityTypeMisc
}

func allTitleCase(surface string) bool {
	for _, word := range strings.Fields(surface) {
		r := []rune(word)[0]
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
