package resolve

import (
	"math"
	"strings"
)

// editSimilarity returns a similarity ratio in [0,1] based on the
// Levenshtein distance between two normalized keys.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	distance := prev[len(rb)]
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1.0 - float64(distance)/float64(longest)
}

// tokenOverlap returns the Jaccard overlap of the token sets of two keys.
// A token pair also counts as shared when one is a prefix of the other, so
// short forms ("tim") line up with the full form ("timothy"). Single-token
// keys fall back to edit similarity, overlap is only meaningful for
// multi-word names.
func tokenOverlap(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) <= 1 && len(tokensB) <= 1 {
		return editSimilarity(a, b)
	}

	used := make([]bool, len(tokensB))
	intersection := 0
	for _, ta := range tokensA {
		for j, tb := range tokensB {
			if used[j] {
				continue
			}
			if ta == tb || prefixMatch(ta, tb) {
				used[j] = true
				intersection++
				break
			}
		}
	}

	union := len(tokensA) + len(tokensB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// prefixMatch reports whether one token is a strict prefix of the other.
// Prefixes shorter than three characters ("al", "jo") match too much and
// don't count.
func prefixMatch(a, b string) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	return len(shorter) >= 3 && len(shorter) < len(longer) && strings.HasPrefix(longer, shorter)
}

// cosineSimilarity calculates the cosine similarity between two embedding vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
