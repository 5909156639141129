// Command aslstream is the main entry point for the ASL fingerspelling
// recognition pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/aslstream/fingerspell/internal/app"
	"github.com/aslstream/fingerspell/internal/config"
	"github.com/aslstream/fingerspell/internal/resilience"
	"github.com/aslstream/fingerspell/pkg/provider/llm"
	"github.com/aslstream/fingerspell/pkg/provider/llm/anyllm"
	"github.com/aslstream/fingerspell/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aslstream: config file %q not found — pass the path of a YAML config file with -config\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aslstream: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("aslstream starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Application wiring ───────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ─────────────────────────────────────────────────────────

// registerBuiltinProviders registers one factory per name in
// [config.ValidProviderNames]: "openai" uses the dedicated openai.Provider,
// every other name goes through the any-llm-go universal backend.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range config.ValidProviderNames {
		if name == "openai" {
			continue
		}
		name := name
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}
}

// buildProviders instantiates the primary LLM provider plus any configured
// fallbacks and wraps them in a [resilience.LLMFallback], matching the
// teacher's circuit-breaker-guarded failover pattern. A missing or
// not-yet-registered primary provider is not an error at startup: the alias
// builder's synthesis routes simply reject requests until one is configured
// (see internal/app/admin.go), the same "skip, don't fail" posture the
// original buildProviders used for providers left unconfigured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	name := cfg.Providers.LLM.Name
	if name == "" {
		slog.Debug("no llm provider configured")
		return &app.Providers{}, nil
	}

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("llm provider not registered — skipping", "name", name)
		return &app.Providers{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", name)

	fallback := resilience.NewLLMFallback(primary, name, resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.Fallback {
		if entry.Name == "" {
			continue
		}
		p, err := reg.CreateLLM(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("llm fallback provider not registered — skipping", "name", entry.Name)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("create llm fallback provider %q: %w", entry.Name, err)
		}
		fallback.AddFallback(entry.Name, p)
		slog.Info("fallback provider created", "kind", "llm", "name", entry.Name)
	}

	return &app.Providers{LLM: fallback}, nil
}

// ── Startup summary ──────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        aslstream — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  Fallback LLMs   : %-19d ║\n", len(cfg.Providers.Fallback))
	fmt.Printf("║  Stream shards   : %-19d ║\n", cfg.Streams.ShardCount)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
