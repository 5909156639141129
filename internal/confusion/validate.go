package confusion

import (
	"regexp"
	"strings"
)

// MinScore is the minimum [WeightedEditDistance] score an alias must reach
// to be considered valid (§4.6 step 4, §8 scenario 8).
const MinScore = 0.5

var aliasPattern = regexp.MustCompile(`^[A-Z0-9\-\s]{2,40}$`)

// ValidateAlias checks a candidate alias against its surface term and
// returns whether it is valid along with its confusion-weighted score.
//
// An alias is valid when: its length (after trimming) is in [2,40]; it
// matches [A-Z0-9\-\s]{2,40}; its edit distance to the surface (spaces and
// hyphens stripped) is at most 2; and its [WeightedEditDistance] score is at
// least [MinScore]. The returned score is always computed, even when the
// alias is rejected on length or charset grounds (0 in that case), so
// callers can log why a candidate was dropped.
func ValidateAlias(surface, alias string) (valid bool, score float64) {
	alias = strings.ToUpper(strings.TrimSpace(alias))
	surface = strings.ToUpper(strings.TrimSpace(surface))

	if len(alias) < 2 || len(alias) > 40 {
		return false, 0
	}
	if !aliasPattern.MatchString(alias) {
		return false, 0
	}

	cleanSurface := stripSeparators(surface)
	cleanAlias := stripSeparators(alias)
	if EditDistance(cleanSurface, cleanAlias) > 2 {
		return false, 0
	}

	score = WeightedEditDistance(surface, alias)
	if score < MinScore {
		return false, score
	}
	return true, score
}
