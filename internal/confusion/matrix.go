// Package confusion scores alias candidates against an empirical ASL
// fingerspelling confusion matrix: a 37x37 table of observed
// character-to-character misclassification counts used to validate and
// rank aliases synthesized by the alias builder (see §4.6).
package confusion

import "strings"

// Size is the alphabet size indexed by the matrix: digits 0-9, letters A-Z,
// and the pause placeholder "_".
const Size = 37

// Matrix is the empirical confusion count table. Indices: 0-9 map to
// digits, 10-35 map to A-Z, 36 maps to "_". Row i, column j is the number of
// times a handshape whose true class was i was observed/predicted as j.
var Matrix = [Size][Size]int{
	{434, 12, 1, 0, 1, 1, 0, 2, 0, 0, 2, 0, 9, 2, 2, 0, 0, 0, 0, 2, 0, 0, 0, 3, 8, 1, 0, 0, 0, 4, 0, 0, 0, 1, 1, 0, 20},
	{2, 681, 19, 0, 0, 0, 3, 2, 0, 0, 18, 2, 0, 48, 1, 0, 1, 0, 2, 0, 3, 0, 0, 7, 2, 1, 0, 1, 3, 10, 0, 0, 1, 7, 1, 0, 3},
	{5, 129, 542, 11, 0, 3, 11, 3, 2, 1, 6, 2, 1, 9, 2, 0, 1, 0, 1, 0, 25, 3, 0, 4, 2, 0, 0, 0, 7, 10, 8, 40, 0, 0, 1, 0, 1},
	{5, 20, 8, 1100, 3, 12, 0, 2, 2, 3, 3, 0, 1, 8, 0, 0, 0, 0, 0, 0, 7, 9, 0, 0, 0, 0, 1, 0, 0, 2, 0, 2, 0, 0, 0, 0, 5},
	{4, 1, 1, 2, 1272, 23, 0, 1, 0, 1, 0, 10, 0, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 3},
	{1, 1, 0, 2, 19, 1862, 0, 1, 4, 2, 1, 1, 0, 1, 0, 0, 0, 0, 0, 1, 2, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0},
	{7, 13, 24, 2, 7, 10, 680, 9, 8, 0, 7, 0, 5, 1, 1, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 2, 3, 5, 44, 3, 1, 1, 2},
	{9, 10, 5, 2, 40, 7, 7, 1018, 9, 3, 12, 0, 7, 0, 0, 0, 0, 0, 8, 0, 1, 0, 0, 1, 3, 0, 0, 0, 0, 3, 0, 4, 0, 0, 0, 0, 6},
	{4, 3, 1, 2, 26, 13, 4, 25, 1049, 21, 2, 1, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 0, 1, 6, 0, 0, 0, 0, 4, 0, 0, 0, 0, 1, 1, 1},
	{5, 3, 1, 2, 3, 12, 1, 1, 1, 1138, 0, 1, 1, 0, 0, 22, 0, 0, 0, 0, 7, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	{3, 19, 2, 3, 1, 2, 0, 5, 0, 2, 954, 7, 3, 3, 0, 0, 0, 0, 1, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 2, 0, 0, 0},
	{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1772, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	{10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1685, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 16},
	{0, 21, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1746, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 1, 0, 1, 0, 0, 0, 0, 0},
	{1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 63, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 0, 1, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0, 0, 0, 0, 31, 0, 10, 0, 0, 0, 1740, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	{1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1762, 3, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 0},
	{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 1770, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 3},
	{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1700, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	{4, 2, 0, 0, 1, 0, 0, 2, 0, 0, 1, 0, 0, 0, 0, 0, 2, 0, 4, 1360, 0, 0, 0, 1, 0, 1, 0, 0, 0, 3, 0, 0, 0, 1, 0, 2, 4},
	{0, 1, 2, 0, 0, 3, 0, 1, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1670, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1547, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	{6, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 3, 0, 0, 0, 0, 0, 0, 0, 16, 3, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1, 2},
	{2, 2, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 0, 0, 1, 0, 5, 1509, 0, 0, 0, 0, 2, 1, 0, 0, 0, 0, 0, 0, 0},
	{79, 2, 0, 0, 0, 0, 0, 0, 2, 0, 1, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 36, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0},
	{0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1760, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1761, 0, 1, 4, 0, 0, 0, 0, 0, 0, 0},
	{0, 2, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 852, 0, 0, 12, 5, 0, 0, 0, 0, 0},
	{9, 12, 0, 0, 0, 0, 0, 1, 0, 0, 4, 0, 6, 2, 3, 0, 0, 0, 0, 0, 0, 0, 0, 12, 10, 0, 3, 0, 19, 6, 0, 0, 0, 0, 0, 0, 1},
	{4, 11, 0, 0, 0, 3, 0, 1, 1, 1, 10, 0, 0, 2, 1, 0, 0, 0, 0, 0, 1, 0, 0, 3, 3, 0, 1, 0, 0, 394, 0, 0, 0, 1, 1, 0, 0},
	{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1553, 0, 0, 0, 0, 0, 0},
	{0, 0, 14, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 12, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 2, 0, 0, 6, 852, 1, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0, 8, 0, 0, 9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1738, 0, 0, 0, 0},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1765, 0, 0, 1},
	{3, 6, 3, 0, 0, 3, 0, 2, 3, 2, 15, 0, 0, 0, 3, 0, 0, 0, 0, 0, 3, 0, 0, 0, 1, 0, 0, 0, 0, 4, 0, 0, 0, 1, 97, 0, 5},
	{2, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 1, 1499, 16},
	{1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 881},
}

// knownConfusionPairs is the curated set of substitutions the alias-builder
// LLM prompt is constrained to (see §4.6 step 3): digit/letter swaps,
// compact-fist look-alikes, orientation/mirror pairs, circle/thumb shapes,
// and motion-dependent pairs. Pairs here receive a probability floor of 0.4
// when the matrix's empirical probability falls below 0.3, to account for
// confusions that are real but underrepresented in the training counts.
var knownConfusionPairs = map[[2]byte]struct{}{
	{'W', '6'}: {}, {'6', 'W'}: {},
	{'W', '3'}: {}, {'3', 'W'}: {},
	{'V', '2'}: {}, {'2', 'V'}: {},
	{'F', '9'}: {}, {'9', 'F'}: {},
	{'D', '1'}: {}, {'1', 'D'}: {},
	{'O', '0'}: {}, {'0', 'O'}: {},

	{'A', 'T'}: {}, {'T', 'A'}: {}, {'A', 'E'}: {}, {'E', 'A'}: {},
	{'E', 'S'}: {}, {'S', 'E'}: {}, {'E', 'T'}: {}, {'T', 'E'}: {},
	{'E', 'N'}: {}, {'N', 'E'}: {}, {'E', 'M'}: {}, {'M', 'E'}: {},
	{'T', 'M'}: {}, {'M', 'T'}: {}, {'S', 'N'}: {}, {'N', 'S'}: {}, {'S', 'T'}: {}, {'T', 'S'}: {},
	{'N', 'M'}: {}, {'M', 'N'}: {},

	{'H', 'U'}: {}, {'U', 'H'}: {}, {'H', 'V'}: {}, {'V', 'H'}: {}, {'H', '7'}: {}, {'7', 'H'}: {},
	{'R', 'U'}: {}, {'U', 'R'}: {}, {'R', 'V'}: {}, {'V', 'R'}: {},
	{'U', 'V'}: {}, {'V', 'U'}: {}, {'U', '7'}: {}, {'7', 'U'}: {},
	{'V', '7'}: {}, {'7', 'V'}: {},

	{'C', 'O'}: {}, {'O', 'C'}: {}, {'C', '0'}: {}, {'0', 'C'}: {},

	{'J', 'Z'}: {}, {'Z', 'J'}: {},
	{'J', 'I'}: {}, {'I', 'J'}: {},
	{'Z', '1'}: {}, {'1', 'Z'}: {},
}

// CharToIndex converts a character to its confusion-matrix index, or -1 if
// the character is not in the alphabet.
func CharToIndex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c == '_':
		return 36
	default:
		return -1
	}
}

// IndexToChar is the inverse of [CharToIndex].
func IndexToChar(idx int) byte {
	switch {
	case idx >= 0 && idx <= 9:
		return byte('0' + idx)
	case idx >= 10 && idx <= 35:
		return byte('A' + idx - 10)
	case idx == 36:
		return '_'
	default:
		return '?'
	}
}

// IsKnownConfusion reports whether (c1, c2) is in the curated confusion set,
// independent of what the empirical matrix says.
func IsKnownConfusion(c1, c2 byte) bool {
	_, ok := knownConfusionPairs[[2]byte{upper(c1), upper(c2)}]
	return ok
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// Probability returns the row-normalized confusion probability between two
// characters: matrix[idx1][idx2] / sum(matrix[idx1]). Returns 0 for
// characters outside the alphabet or an all-zero row.
func Probability(c1, c2 byte) float64 {
	i1, i2 := CharToIndex(c1), CharToIndex(c2)
	if i1 < 0 || i2 < 0 {
		return 0
	}
	row := Matrix[i1]
	var total int
	for _, v := range row {
		total += v
	}
	if total == 0 {
		return 0
	}
	return float64(row[i2]) / float64(total)
}

// knownConfusionFloor is the minimum score attributed to a substitution
// between a curated known-confusion pair when the empirical matrix
// probability falls below knownConfusionThreshold.
const (
	knownConfusionThreshold = 0.3
	knownConfusionFloor     = 0.4
)

// WeightedEditDistance computes the confusion-weighted score between a
// surface term and a candidate alias, per §4.6 step 4: matching characters
// in the aligned prefix contribute 1.0, mismatches contribute the
// row-normalized confusion probability (floored at knownConfusionFloor for
// curated known-confusion pairs scoring below knownConfusionThreshold), and
// the total is divided by the cleaned surface length. Spaces and hyphens are
// stripped from both strings before comparison. Returns 0 if the edit
// distance (after stripping) exceeds 2.
func WeightedEditDistance(surface, alias string) float64 {
	surfaceClean := stripSeparators(strings.ToUpper(surface))
	aliasClean := stripSeparators(strings.ToUpper(alias))

	if EditDistance(surfaceClean, aliasClean) > 2 {
		return 0
	}

	minLen := len(surfaceClean)
	if len(aliasClean) < minLen {
		minLen = len(aliasClean)
	}

	var score float64
	for i := 0; i < minLen; i++ {
		a, b := surfaceClean[i], aliasClean[i]
		if a == b {
			score += 1.0
			continue
		}
		prob := Probability(a, b)
		if prob < knownConfusionThreshold && IsKnownConfusion(a, b) {
			prob = knownConfusionFloor
		}
		score += prob
	}

	if len(surfaceClean) == 0 {
		return 0
	}
	return score / float64(len(surfaceClean))
}

// stripSeparators removes spaces and hyphens, matching the "strip"
// normalization applied throughout §4.5/§4.6 before comparing surfaces and
// aliases.
func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
