package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known LLM provider names. Used by [Validate] to
// warn about unrecognised provider names.
var ValidProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the defaults named in §4.4 and
// §6 of the specification.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Streams.ShardCount <= 0 {
		cfg.Streams.ShardCount = 4
	}
	if cfg.Streams.ConsumerName == "" {
		cfg.Streams.ConsumerName = "fanout-consumer"
	}
	if cfg.Streams.BaseBackoff <= 0 {
		cfg.Streams.BaseBackoff = defaultBaseBackoff
	}
	if cfg.Streams.MaxBackoff <= 0 {
		cfg.Streams.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Commit.WindowMS <= 0 {
		cfg.Commit.WindowMS = 300
	}
	if cfg.Commit.StabilityMS <= 0 {
		cfg.Commit.StabilityMS = 200
	}
	if cfg.Commit.VoteThreshold == 0 {
		cfg.Commit.VoteThreshold = 0.3
	}
	if cfg.Commit.CommitThreshold == 0 {
		cfg.Commit.CommitThreshold = 0.4
	}
	if cfg.Commit.PauseMS <= 0 {
		cfg.Commit.PauseMS = 2000
	}
	if cfg.Commit.MaxConsecutiveSame <= 0 {
		cfg.Commit.MaxConsecutiveSame = 1
	}
	if cfg.Commit.PauseSweepInterval <= 0 {
		cfg.Commit.PauseSweepInterval = defaultPauseSweepInterval
	}
	if cfg.Resolver.AutocompleteMaxLen <= 0 {
		cfg.Resolver.AutocompleteMaxLen = 3
	}
	if cfg.Resolver.AutocompleteMaxEdits == 0 {
		cfg.Resolver.AutocompleteMaxEdits = 1
	}
	if cfg.Resolver.FuzzyMaxEdits == 0 {
		cfg.Resolver.FuzzyMaxEdits = 2
	}
	if cfg.Resolver.TopN <= 0 {
		cfg.Resolver.TopN = 20
	}
	if cfg.Resolver.StoreTimeout <= 0 {
		cfg.Resolver.StoreTimeout = defaultStoreTimeout
	}
	if cfg.Session.WindowTTL <= 0 {
		cfg.Session.WindowTTL = defaultWindowTTL
	}
	if cfg.Session.ConnectionTTL <= 0 {
		cfg.Session.ConnectionTTL = defaultConnectionTTL
	}
	if cfg.Lexicon.JobTTL <= 0 {
		cfg.Lexicon.JobTTL = defaultJobTTL
	}
	if cfg.Lexicon.MaxAliasesPerSurface <= 0 {
		cfg.Lexicon.MaxAliasesPerSurface = 50
	}
	if cfg.Lexicon.MinValidationScore == 0 {
		cfg.Lexicon.MinValidationScore = 0.5
	}
	if cfg.Lexicon.TermBatchSize <= 0 {
		cfg.Lexicon.TermBatchSize = 50
	}
	if cfg.Lexicon.ObjectStoreRoot == "" {
		cfg.Lexicon.ObjectStoreRoot = "./data/objects"
	}
	if cfg.Outbound.DialTimeout <= 0 {
		cfg.Outbound.DialTimeout = defaultDialTimeout
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Streams.ShardCount <= 0 {
		errs = append(errs, errors.New("streams.shard_count must be positive"))
	}

	if cfg.Commit.VoteThreshold < 0 || cfg.Commit.VoteThreshold > 1 {
		errs = append(errs, fmt.Errorf("commit.vote_threshold %.2f is out of range [0,1]", cfg.Commit.VoteThreshold))
	}
	if cfg.Commit.CommitThreshold < 0 || cfg.Commit.CommitThreshold > 1 {
		errs = append(errs, fmt.Errorf("commit.commit_threshold %.2f is out of range [0,1]", cfg.Commit.CommitThreshold))
	}
	if cfg.Commit.StabilityMS < 0 {
		errs = append(errs, errors.New("commit.stability_ms must not be negative"))
	}
	if cfg.Commit.MaxConsecutiveSame < 1 {
		errs = append(errs, errors.New("commit.max_consecutive_same must be at least 1"))
	}

	if cfg.Resolver.AutocompleteMaxLen < 1 {
		errs = append(errs, errors.New("resolver.autocomplete_max_len must be at least 1"))
	}

	validateProviderName(cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.Fallback {
		validateProviderName(fb.Name)
	}

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no llm provider configured; alias synthesis will fail at runtime")
	}
	if cfg.Lexicon.PostgresDSN == "" {
		slog.Warn("lexicon.postgres_dsn is empty; falling back to in-process lexicon and job stores")
	}
	if cfg.Session.RedisAddr == "" {
		slog.Warn("session.redis_addr is empty; falling back to an in-process session store")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown llm provider name — may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
