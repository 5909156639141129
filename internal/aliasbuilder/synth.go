package aliasbuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aslstream/fingerspell/internal/confusion"
	"github.com/aslstream/fingerspell/pkg/provider/llm"
	"github.com/aslstream/fingerspell/pkg/types"
)

// synthesisSystemPrompt constrains the model to the same closed
// confusion-substitution ruleset as kb-aliases' SYSTEM_PROMPT, listing the
// confusion pairs inline so the model has the same grounding the original
// prompt gave it.
const synthesisSystemPrompt = `TASK
Generate spelling-level alias variants for ASL fingerspelling, using ONLY the confusion pairs listed below.

OUTPUT (JSON ONLY)
Return an UPPERCASE JSON array of objects. No prose, no markdown. Example:
[
  {"surface":"AWS","aliases":["AW6","A W S"]}
]
Constraints:
- surface: UPPERCASE, 2-40 chars
- aliases: array of UPPERCASE strings (2-40 chars), max 50 per surface, minimum 10 per surface
- Return valid JSON only

ALLOWED CONFUSIONS (ONLY THESE)

1) Digit <-> Letter swaps: W<->6, W<->3, V<->2, F<->9, D<->1, O<->0
2) Compact-fist look-alikes: A<->E, A<->T, E<->S, E<->T, E<->N, E<->M, T<->M, S<->N, S<->T, N<->M
3) Orientation/mirror/pointing-finger: H<->U, H<->V, H<->7, R<->U, R<->V, U<->V, U<->7, V<->7
4) Circle or thumb-contact shapes: C<->O, C<->0, D<->1, O<->0
5) Dynamic/motion-dependent: J<->Z, J<->I, Z<->1

STRUCTURAL EDITS
- Allow minor repetition or deletion of one character ("WW" <-> "W").
- Allow spacing/hyphenation ("AWS" -> "A W S", "A-W-S").
- Disallow any alias with edit distance > 2 from surface or length < 2.

RULES
- Apply substitutions anywhere (first/middle/last character).
- Do NOT modify any character unless it appears in the allowed lists above.
- Ignore "_" (pause); never emit it.
- Output JSON ONLY in uppercase; do not add explanations.`

// llmAliasItem is one element of the JSON array the model is instructed to
// return.
type llmAliasItem struct {
	Surface string   `json:"surface"`
	Aliases []string `json:"aliases"`
}

// ScoredAlias is one validated, confusion-weighted alias candidate for a
// surface term.
type ScoredAlias struct {
	Alias      string
	Confidence float64
}

// Synthesizer generates and validates aliases for a batch of surface terms
// via an LLM, following kb-aliases' generate_aliases_with_llm /
// validate_alias / confusion_weighted_edit_distance pipeline.
type Synthesizer struct {
	provider      llm.Provider
	batchSize     int
	maxPerSurface int
	minScore      float64
}

// NewSynthesizer constructs a [Synthesizer]. batchSize, maxPerSurface, and
// minScore fall back to kb-aliases' own defaults (50, 50, 0.5) when zero.
func NewSynthesizer(provider llm.Provider, batchSize, maxPerSurface int, minScore float64) *Synthesizer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxPerSurface <= 0 {
		maxPerSurface = 50
	}
	if minScore <= 0 {
		minScore = confusion.MinScore
	}
	return &Synthesizer{provider: provider, batchSize: batchSize, maxPerSurface: maxPerSurface, minScore: minScore}
}

// Synthesize generates and validates aliases for terms, batching requests to
// the provider at s.batchSize terms per call. The returned map is keyed by
// uppercased surface term; terms with zero validated aliases are omitted,
// matching kb-aliases' behavior of only writing surfaces that validated at
// least one alias.
func (s *Synthesizer) Synthesize(ctx context.Context, terms []string) (map[string][]ScoredAlias, error) {
	result := make(map[string][]ScoredAlias)

	for start := 0; start < len(terms); start += s.batchSize {
		end := start + s.batchSize
		if end > len(terms) {
			end = len(terms)
		}
		batch := terms[start:end]

		items, err := s.synthesizeBatch(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("aliasbuilder: synthesize batch %d-%d: %w", start, end, err)
		}

		allowed := make(map[string]struct{}, len(batch))
		for _, t := range batch {
			allowed[strings.ToUpper(t)] = struct{}{}
		}

		for _, item := range items {
			surface := strings.ToUpper(item.Surface)
			if _, ok := allowed[surface]; !ok {
				continue
			}

			var scored []ScoredAlias
			for _, alias := range item.Aliases {
				valid, score := confusion.ValidateAlias(surface, alias)
				if !valid || score < s.minScore {
					continue
				}
				scored = append(scored, ScoredAlias{Alias: strings.ToUpper(strings.TrimSpace(alias)), Confidence: score})
			}
			if len(scored) == 0 {
				continue
			}

			sort.SliceStable(scored, func(i, j int) bool { return scored[i].Confidence > scored[j].Confidence })
			if len(scored) > s.maxPerSurface {
				scored = scored[:s.maxPerSurface]
			}
			result[surface] = scored
		}
	}

	return result, nil
}

func (s *Synthesizer) synthesizeBatch(ctx context.Context, batch []string) ([]llmAliasItem, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("aliasbuilder: marshal batch: %w", err)
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: synthesisSystemPrompt,
		Messages: []types.Message{
			{Role: "user", Content: "Generate aliases for these terms:\n" + string(payload)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("aliasbuilder: llm completion: %w", err)
	}

	return parseAliasResponse(resp.Content)
}

// parseAliasResponse extracts the JSON array from the model's response,
// tolerating leading/trailing prose the same way kb-aliases does by
// locating the outermost '[' ... ']' span.
func parseAliasResponse(content string) ([]llmAliasItem, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("aliasbuilder: no JSON array found in response")
	}

	var items []llmAliasItem
	if err := json.Unmarshal([]byte(content[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("aliasbuilder: unmarshal response: %w", err)
	}
	return items, nil
}
