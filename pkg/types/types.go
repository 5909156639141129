// Package types defines the shared domain types used across all packages of
// the fingerspelling recognition pipeline.
//
// These types form the lingua franca between the ingress, fan-out consumer,
// classifier bridge, commit engine, resolver, and alias builder. They are
// intentionally minimal — each package owns its own internal logic, but the
// data structures that cross package boundaries live here to avoid circular
// imports.
package types

import "time"

// Alphabet is the 37-symbol fingerspelling alphabet: digits 0-9, letters
// A-Z, and the underscore placeholder for an unrecognized handshape.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_"

// UnknownChar is emitted by the classifier bridge when a predicted class
// index falls outside the known alphabet.
const UnknownChar = "Unknown"

// LandmarkFrame is a single holistic-pose observation: 1662 reals laid out
// as pose (33x4), face (468x3), left hand (21x3), right hand (21x3).
type LandmarkFrame struct {
	SessionID    string
	ConnectionID string
	Timestamp    time.Time
	Values       []float64
	SourceMeta   map[string]any
}

// Handedness identifies which hand produced a prediction.
type Handedness string

const (
	HandLeft  Handedness = "left"
	HandRight Handedness = "right"
)

// SkipReason explains why a frame produced no prediction.
type SkipReason string

const (
	SkipMultiHand SkipReason = "multi_hand"
	SkipNoHands   SkipReason = "no_hands"
)

// LetterEvent is the tagged union carried on the letters stream: it is
// either a Prediction or a Skip, never both.
type LetterEvent struct {
	SessionID        string
	ConnectionID     string
	Timestamp        time.Time
	IsPrediction     bool
	Prediction       string
	Confidence       float64
	Handedness       Handedness
	MultiHand        bool
	ProcessingTimeMs float64
	SkipReason       SkipReason
	Metadata         map[string]any
}

// LetterObservation is one vote in a session's sliding window.
type LetterObservation struct {
	Char       string
	Confidence float64
	Timestamp  time.Time
}

// CommitCandidate is a computed per-character aggregate over the current
// window; it is never persisted on its own.
type CommitCandidate struct {
	Char             string
	AggregateConf    float64
	Count            int
	FirstSeen        time.Time
	LastSeen         time.Time
}

// AverageConfidence returns AggregateConf / Count, or 0 if Count is 0.
func (c CommitCandidate) AverageConfidence() float64 {
	if c.Count == 0 {
		return 0
	}
	return c.AggregateConf / float64(c.Count)
}

// WordBuffer is the ordered sequence of letters committed for a session
// since the last finalization.
type WordBuffer struct {
	SessionID     string
	UserID        string
	Letters       []string
	LastCommitTS  time.Time
}

// Word joins the buffer's letters into the raw word string.
func (b WordBuffer) Word() string {
	buf := make([]byte, 0, len(b.Letters))
	for _, l := range b.Letters {
		buf = append(buf, l...)
	}
	return string(buf)
}

// LexiconEntry is a surface term and its ASL-aware aliases for one user.
type LexiconEntry struct {
	Surface          string
	UserID           string
	Aliases          []string
	ConfidenceScores map[string]float64
	UpdatedAt        time.Time
}

// SearchResult is one candidate returned by the word resolver.
type SearchResult struct {
	Surface         string
	AtlasScore      float64
	AliasConfidence float64
	HybridScore     float64
	MatchedVia      string
}

// ResolvedWord is the output of resolving a raw committed word against the
// lexicon.
type ResolvedWord struct {
	SessionID    string
	UserID       string
	RawWord      string
	AllResults   []SearchResult
	SearchMethod SearchMethod
}

// SearchMethod names the adaptive lexicon search strategy used.
type SearchMethod string

const (
	SearchAutocomplete SearchMethod = "autocomplete"
	SearchFuzzy        SearchMethod = "fuzzy"
)

// JobStatus enumerates the alias-builder job lifecycle states.
type JobStatus string

const (
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobIngested  JobStatus = "INGESTED"
	JobCompleted JobStatus = "COMPLETED"
)

// Job tracks one uploaded document through the offline alias-builder
// pipeline.
type Job struct {
	JobID         string
	RequestID     string
	UserID        string
	Bucket        string
	Key           string
	ETag          string
	FileSize      int64
	Status        JobStatus
	SNSMessageID  string
	LastPolledAt  time.Time
	RawTextKey    string
	TTL           time.Time
}

// Message represents a single message in an LLM conversation history, used
// by the alias builder's LLM-driven alias synthesis step (§4.6 step 3).
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any

	// EstimatedDurationMs is the declared p50 latency for budget tier assignment.
	EstimatedDurationMs int

	// MaxDurationMs is the declared p99 upper bound, used as a hard timeout.
	MaxDurationMs int

	// Idempotent indicates whether the tool can be safely retried.
	Idempotent bool

	// CacheableSeconds is how long results can be cached (0 = never).
	CacheableSeconds int
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}
