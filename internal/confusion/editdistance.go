package confusion

import "github.com/antzucaro/matchr"

// EditDistance returns the Levenshtein edit distance between a and b, via
// the same fuzzy-matching library the word resolver uses for alias ranking.
func EditDistance(a, b string) int {
	return matchr.Levenshtein(a, b)
}
