package aliasbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeDropsStopwordsAndShortTokens(t *testing.T) {
	got := Tokenize("The quick brown fox jumps over a lazy dog")
	assert.Equal(t, []string{"quick", "brown", "fox", "jumps", "lazy", "dog"}, got)
}

func TestTokenizeDropsStopwordsNumericAndDuplicateFragments(t *testing.T) {
	// The split regex breaks "https://example.com" and "me@example.com" apart
	// on ":" "/" and "@" before the URL/email checks ever see a whole token —
	// matching kb-ingest's own tokenizer, which has the same property.
	got := Tokenize("Visit https://example.com or email me@example.com in 2017 or 608-421-0314")
	assert.Equal(t, []string{"visit", "https", "example.com", "email"}, got)
}

func TestTokenizeDeduplicates(t *testing.T) {
	got := Tokenize("glossary glossary GLOSSARY")
	assert.Equal(t, []string{"glossary"}, got)
}

func TestTokenizeSplitsOnNonASCIIBoundaries(t *testing.T) {
	// Non-ASCII runes fall outside the split charset, so they act as
	// separators before the isASCII guard ever sees them (matching
	// kb-ingest's behavior, where the split regex already strips non-ASCII).
	got := Tokenize("café library")
	assert.Equal(t, []string{"caf", "library"}, got)
}

func TestTokenizeEmptyInput(t *testing.T) {
	assert.Nil(t, Tokenize(""))
}
