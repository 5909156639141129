// Package config provides the configuration schema, loader, and provider
// registry for the fingerspelling recognition pipeline.
package config

import "time"

// Config is the root configuration structure for the pipeline.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Streams   StreamsConfig   `yaml:"streams"`
	Commit    CommitConfig    `yaml:"commit"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
	Outbound  OutboundConfig  `yaml:"outbound"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the ingress HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised level names.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return true
	default:
		return false
	}
}

// StreamsConfig configures the partitioned landmarks/letters stream bus and
// the fan-out consumer's shard topology.
type StreamsConfig struct {
	// ShardCount is the number of partitions the landmarks and letters
	// streams are split into. session_id hashes to a shard.
	ShardCount int `yaml:"shard_count"`

	// ConsumerName is the durable name registered for the fan-out push
	// consumer on the landmarks stream.
	ConsumerName string `yaml:"consumer_name"`

	// MaxBackoff caps the exponential backoff applied to a shard after
	// repeated transient subscription failures.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// BaseBackoff is the initial backoff duration before doubling.
	BaseBackoff time.Duration `yaml:"base_backoff"`
}

// CommitConfig holds the sliding-window commit engine thresholds.
type CommitConfig struct {
	// WindowMS is the sliding window duration in milliseconds (W_ms).
	WindowMS int64 `yaml:"window_ms"`

	// StabilityMS is the minimum duration a candidate must remain the top
	// vote before it may be committed (S_ms).
	StabilityMS int64 `yaml:"stability_ms"`

	// VoteThreshold is the minimum per-observation confidence considered
	// during voting (θ_vote).
	VoteThreshold float64 `yaml:"vote_threshold"`

	// CommitThreshold is the minimum average confidence required to commit
	// the winning candidate (θ_commit).
	CommitThreshold float64 `yaml:"commit_threshold"`

	// PauseMS is the inactivity duration after which a word is finalized
	// (P_ms).
	PauseMS int64 `yaml:"pause_ms"`

	// MaxConsecutiveSame bounds consecutive repeats of the same letter in a
	// word buffer (R_max).
	MaxConsecutiveSame int `yaml:"max_consecutive_same"`

	// PauseSweepInterval is how often the periodic pause sweep runs for
	// sessions that have gone silent. Must be at least 1 Hz per the design
	// notes; defaults to 1s.
	PauseSweepInterval time.Duration `yaml:"pause_sweep_interval"`
}

// ResolverConfig holds settings for the adaptive lexicon search strategy
// switch. They are loaded, defaulted and validated, but [resolver.New] does
// not take them: the resolver uses its own fixed constants instead.
type ResolverConfig struct {
	// AutocompleteMaxLen is the inclusive raw_word length at or below which
	// the autocomplete (prefix) strategy is used instead of fuzzy search.
	AutocompleteMaxLen int `yaml:"autocomplete_max_len"`

	// AutocompleteMaxEdits is maxEdits for the autocomplete strategy.
	AutocompleteMaxEdits int `yaml:"autocomplete_max_edits"`

	// FuzzyMaxEdits is maxEdits for the fuzzy strategy.
	FuzzyMaxEdits int `yaml:"fuzzy_max_edits"`

	// TopN bounds the number of candidates requested from the store before
	// hybrid ranking trims to the top 5.
	TopN int `yaml:"top_n"`

	// StoreTimeout bounds a single lexicon store call.
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// SessionConfig configures session and connection TTLs.
type SessionConfig struct {
	// WindowTTL is the TTL renewed on every window push (default 300s).
	WindowTTL time.Duration `yaml:"window_ttl"`

	// ConnectionTTL is the TTL for a connection-registry row created on
	// connect (default 24h).
	ConnectionTTL time.Duration `yaml:"connection_ttl"`

	// RedisAddr is the address of the Redis instance backing the session
	// store (window, buffer, connection registry).
	RedisAddr string `yaml:"redis_addr"`

	// RedisDB selects the logical Redis database.
	RedisDB int `yaml:"redis_db"`
}

// LexiconConfig holds settings for the Postgres-backed lexicon and job
// store, plus the alias-builder pipeline.
type LexiconConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the lexicon and
	// job tables.
	PostgresDSN string `yaml:"postgres_dsn"`

	// JobTTL is the retention period for completed job rows (default 30d).
	JobTTL time.Duration `yaml:"job_ttl"`

	// MaxAliasesPerSurface caps the number of aliases persisted per surface
	// term (default 50).
	MaxAliasesPerSurface int `yaml:"max_aliases_per_surface"`

	// MinValidationScore is the minimum confusion-weighted score an alias
	// must reach to be persisted (default 0.5).
	MinValidationScore float64 `yaml:"min_validation_score"`

	// TermBatchSize is the number of tokenized terms sent to the LLM per
	// alias-synthesis request (default 50).
	TermBatchSize int `yaml:"term_batch_size"`

	// ObjectStoreRoot is the filesystem root the alias-builder pipeline's
	// object store (raw uploads, tokenized terms, synthesized aliases
	// manifests) is rooted at. Defaults to "./data/objects".
	ObjectStoreRoot string `yaml:"object_store_root"`
}

// OutboundConfig configures delivery of resolved words back to the
// connection that sent the landmarks producing them.
type OutboundConfig struct {
	// BaseURL is the bridge endpoint a [outbound.WebSocketWriter] dials,
	// with the connection id appended as a path segment (e.g.
	// "wss://gateway.internal/outbound"). Empty disables live delivery:
	// resolved words are still computed and logged, just never pushed.
	BaseURL string `yaml:"base_url"`

	// DialTimeout bounds a single delivery attempt's dial (default 5s).
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ProvidersConfig declares which LLM provider implementation backs the
// alias builder's synthesis step, plus an optional fallback chain.
type ProvidersConfig struct {
	LLM      ProviderEntry   `yaml:"llm"`
	Fallback []ProviderEntry `yaml:"fallback"`
}

// ProviderEntry is the common configuration block for an LLM provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}
