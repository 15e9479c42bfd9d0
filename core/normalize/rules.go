package normalize

import (
	"strings"
	"unicode"

	"github.com/siherrmann/resolver/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TypeRules carries the normalization rules for one entity type. The rule
// table is a closed set of tagged variants keyed by entity type, so adding
// a type means adding an entry, not subclassing.
type TypeRules struct {
	Type model.EntityType
	// StripPrefixes are removed from the front of the comparison key
	// (honorifics for persons). Lowercase, without trailing dots.
	StripPrefixes []string
	// StripSuffixes are removed from the end of the comparison key
	// (legal forms for organizations). Lowercase, without trailing dots.
	StripSuffixes []string
}

var honorifics = []string{"mr", "mrs", "ms", "miss", "dr", "prof", "sir", "dame", "lord", "lady"}

var legalSuffixes = []string{
	"inc", "incorporated", "corp", "corporation", "co", "company",
	"ltd", "limited", "llc", "llp", "plc", "gmbh", "ag", "sa", "sas", "sarl",
	"bv", "nv", "ab", "oy", "kk", "pte", "pty",
}

// defaultRules is the dispatch table for per-type key normalization.
var defaultRules = map[model.EntityType]TypeRules{
	model.EntityTypePerson: {
		Type:          model.EntityTypePerson,
		StripPrefixes: honorifics,
	},
	model.EntityTypeOrganization: {
		Type:          model.EntityTypeOrganization,
		StripSuffixes: legalSuffixes,
	},
	model.EntityTypeLocation: {Type: model.EntityTypeLocation},
	model.EntityTypeMisc:     {Type: model.EntityTypeMisc},
}

// RulesFor returns the rule variant for the given type. Unknown types get
// the MISC rules, which strip nothing.
func RulesFor(entityType model.EntityType) TypeRules {
	if rules, ok := defaultRules[entityType]; ok {
		return rules
	}
	return defaultRules[model.EntityTypeMisc]
}

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldKey lowercases text, strips diacritics and collapses all runs of
// non-alphanumeric runes into single spaces. Used for comparison keys only,
// stored surface forms are never touched.
func FoldKey(text string) string {
	folded, _, err := transform.String(diacriticFolder, text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		} else {
			space = true
		}
	}
	return b.String()
}

// ApplyRules strips the rule variant's prefixes and suffixes from an already
// folded key. Stripping never empties the key: if removing a token would
// leave nothing, the token is kept.
func ApplyRules(key string, rules TypeRules) string {
	tokens := strings.Fields(key)

	for len(tokens) > 1 && containsToken(rules.StripPrefixes, tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 1 && containsToken(rules.StripSuffixes, tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

func containsToken(list []string, token string) bool {
	for _, t := range list {
		if t == token {
			return true
		}
	}
	return false
}
