// Package aliasbuilder implements the offline alias-builder pipeline (§4.6):
// submit, ingest, LLM-driven alias synthesis, validation, and persistence
// into the lexicon store.
//
// Grounded on the three original_source lambdas under
// _examples/original_source/iac/lambda/{kb-submit,kb-ingest,kb-aliases},
// reimplemented as a single in-process pipeline over [jobstore.Store],
// [objectstore.Store], and [lexicon.Store] rather than DynamoDB/S3/SQS/SNS.
package aliasbuilder

import (
	"regexp"
	"strings"
)

// stopwords mirrors kb-ingest's STOPWORDS set: common English function
// words plus OCR/document-noise artifacts that would otherwise pollute the
// term list sent to alias synthesis.
var stopwords = buildStopwords()

func buildStopwords() map[string]struct{} {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "am", "an", "and", "any", "are",
		"as", "at", "be", "because", "been", "before", "being", "below", "between", "both", "but",
		"by", "can", "did", "do", "does", "doing", "down", "during", "each", "few", "for", "from",
		"further", "had", "has", "have", "having", "he", "her", "here", "hers", "herself", "him",
		"himself", "his", "how", "i", "if", "in", "into", "is", "it", "its", "itself", "just",
		"me", "might", "more", "most", "must", "my", "myself", "no", "nor", "not", "now", "of",
		"off", "on", "once", "only", "or", "other", "our", "ours", "ourselves", "out", "over",
		"own", "s", "same", "she", "should", "so", "some", "such", "t", "than", "that", "the",
		"their", "theirs", "them", "themselves", "then", "there", "these", "they", "this", "those",
		"through", "to", "too", "under", "until", "up", "very", "was", "we", "were", "what",
		"when", "where", "which", "while", "who", "whom", "why", "will", "with", "would", "you",
		"your", "yours", "yourself", "yourselves",

		"page", "pages", "figure", "fig", "table", "tables", "etc", "eg", "ie", "www", "com",

		"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",

		"copyright", "rights", "reserved", "inc", "ltd", "corp", "co", "company", "llc", "isbn",
		"doi", "vol", "edition", "chapter", "section", "article",

		"say", "says", "said", "get", "got", "make", "made", "use", "used", "using", "may", "shall",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

var (
	tokenSplitPattern     = regexp.MustCompile(`[^A-Za-z0-9+_.\-]+`)
	urlPattern            = regexp.MustCompile(`^(https?://|www\.|ftp://)`)
	emailPattern          = regexp.MustCompile(`^[\w.\-]+@[\w.\-]+\.\w+$`)
	punctuationOnlyRegexp = regexp.MustCompile(`^[+_.\-]+$`)
	numericOnlyRegexp     = regexp.MustCompile(`^[\d+_.\-]+$`)
)

// Tokenize cleans and deduplicates raw extracted text into the candidate
// term set that alias synthesis operates on (kb-ingest's clean_and_tokenize):
// split on everything but [A-Za-z0-9+_.-], lowercase, length 2-40, and drop
// stopwords, URLs, emails, punctuation-only and numeric-only tokens, and any
// token containing a non-ASCII byte.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string

	for _, raw := range tokenSplitPattern.Split(text, -1) {
		if raw == "" {
			continue
		}
		token := strings.ToLower(raw)

		if len(token) < 2 || len(token) > 40 {
			continue
		}
		if _, ok := stopwords[token]; ok {
			continue
		}
		if urlPattern.MatchString(token) {
			continue
		}
		if emailPattern.MatchString(token) {
			continue
		}
		if punctuationOnlyRegexp.MatchString(token) {
			continue
		}
		if numericOnlyRegexp.MatchString(token) {
			continue
		}
		if !isASCII(token) {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}

	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 128 {
			return false
		}
	}
	return true
}
