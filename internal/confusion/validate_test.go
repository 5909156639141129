package confusion

import "testing"

func TestValidateAliasKnownConfusion(t *testing.T) {
	valid, score := ValidateAlias("AWS", "AW6")
	if !valid {
		t.Fatalf("expected AW6 to be a valid alias of AWS, score=%v", score)
	}
	if score <= MinScore {
		t.Fatalf("expected score > %v, got %v", MinScore, score)
	}
}

func TestValidateAliasRejectsUnrelated(t *testing.T) {
	valid, _ := ValidateAlias("AWS", "XYZ")
	if valid {
		t.Fatal("expected XYZ to be rejected as an alias of AWS")
	}
}

func TestValidateAliasRejectsTooShort(t *testing.T) {
	valid, score := ValidateAlias("AWS", "A")
	if valid || score != 0 {
		t.Fatalf("expected single-character alias to be rejected, got valid=%v score=%v", valid, score)
	}
}

func TestValidateAliasRejectsBadCharset(t *testing.T) {
	valid, _ := ValidateAlias("AWS", "AW$")
	if valid {
		t.Fatal("expected alias with disallowed characters to be rejected")
	}
}

func TestValidateAliasAllowsSpacingVariant(t *testing.T) {
	valid, score := ValidateAlias("AWS", "A W S")
	if !valid {
		t.Fatalf("expected spaced variant to be valid, score=%v", score)
	}
}

func TestWeightedEditDistancePerfectMatch(t *testing.T) {
	if got := WeightedEditDistance("AWS", "AWS"); got != 1.0 {
		t.Fatalf("expected perfect match score of 1.0, got %v", got)
	}
}

func TestWeightedEditDistanceRejectsFarAlias(t *testing.T) {
	if got := WeightedEditDistance("AWS", "ZZZZZZ"); got != 0 {
		t.Fatalf("expected 0 for an alias beyond edit distance 2, got %v", got)
	}
}

func TestIsKnownConfusionSymmetric(t *testing.T) {
	if !IsKnownConfusion('W', '6') || !IsKnownConfusion('6', 'W') {
		t.Fatal("expected W<->6 to be a known confusion pair in both directions")
	}
	if IsKnownConfusion('A', 'Z') {
		t.Fatal("did not expect A<->Z to be a known confusion pair")
	}
}

func TestCharIndexRoundTrip(t *testing.T) {
	for idx := 0; idx < Size; idx++ {
		c := IndexToChar(idx)
		if got := CharToIndex(c); got != idx {
			t.Fatalf("round trip failed for index %d: char=%q got back %d", idx, c, got)
		}
	}
}
