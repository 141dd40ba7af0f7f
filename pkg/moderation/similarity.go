package moderation

import (
	"github.com/agnivade/levenshtein"
)

// Similarity scores how alike two strings are in [0, 1]. The matcher
// treats the measure as a pluggable strategy so the algorithm can be
// swapped without touching the detection control flow.
type Similarity interface {
	Compare(a, b string) float64
}

// DiceBigram is the default measure: the Sørensen–Dice coefficient over
// character bigrams. Identical strings score 1; strings shorter than
// one bigram score 0.
type DiceBigram struct{}

func (DiceBigram) Compare(a, b string) float64 {
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	grams := make(map[string]int, len(ra)-1)
	for i := 0; i+2 <= len(ra); i++ {
		grams[string(ra[i:i+2])]++
	}

	var hits int
	for i := 0; i+2 <= len(rb); i++ {
		g := string(rb[i : i+2])
		if grams[g] > 0 {
			grams[g]--
			hits++
		}
	}

	return 2 * float64(hits) / float64(len(ra)+len(rb)-2)
}

// Levenshtein scores 1 - distance/maxLen, an alternative measure for
// deployments that prefer edit distance over bigram overlap.
type Levenshtein struct{}

func (Levenshtein) Compare(a, b string) float64 {
	if a == b {
		return 1
	}

	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// SimilarityByName returns the measure registered under name, falling
// back to DiceBigram for unknown values.
func SimilarityByName(name string) Similarity {
	switch name {
	case "levenshtein":
		return Levenshtein{}
	default:
		return DiceBigram{}
	}
}
