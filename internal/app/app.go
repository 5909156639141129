// Package app wires all pipeline subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem in dependency order, Run starts the background consumers and
// the ingress HTTP server and blocks until cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject store/bridge doubles via functional options
// (WithSessionStore, WithLexiconStore, etc.). When an option is not
// provided, New creates a real implementation from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aslstream/fingerspell/internal/aliasbuilder"
	"github.com/aslstream/fingerspell/internal/classifier"
	"github.com/aslstream/fingerspell/internal/commit"
	"github.com/aslstream/fingerspell/internal/config"
	"github.com/aslstream/fingerspell/internal/fanout"
	"github.com/aslstream/fingerspell/internal/handext"
	"github.com/aslstream/fingerspell/internal/health"
	"github.com/aslstream/fingerspell/internal/ingress"
	"github.com/aslstream/fingerspell/internal/jobstore"
	"github.com/aslstream/fingerspell/internal/lexicon"
	"github.com/aslstream/fingerspell/internal/objectstore"
	"github.com/aslstream/fingerspell/internal/observe"
	"github.com/aslstream/fingerspell/internal/outbound"
	"github.com/aslstream/fingerspell/internal/resolver"
	"github.com/aslstream/fingerspell/internal/sessionstore"
	"github.com/aslstream/fingerspell/internal/streambus"
	"github.com/aslstream/fingerspell/pkg/provider/llm"
)

// Providers holds the external service clients the application needs that
// main.go builds from the config registry. LLM is nil when no provider is
// configured; no alias-builder pipeline is built then, and the admin alias
// routes answer 503 Service Unavailable.
type Providers struct {
	LLM llm.Provider
}

// App owns every subsystem's lifetime and drives the fingerspelling
// recognition pipeline: ingress -> fan-out/classifier -> commit engine ->
// resolver -> outbound, plus the offline alias-builder pipeline reachable
// through the admin routes registered in admin.go.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	landmarks *streambus.Stream
	letters   *streambus.Stream

	sessions sessionstore.Store
	jobs     jobstore.Store
	objects  objectstore.Store
	lexicon  lexicon.Store

	bridge       fanout.ClassifierBridge
	connWriter   outbound.ConnectionWriter
	fanoutEngine *fanout.Consumer
	commitEngine *commit.Engine
	wordResolver *resolver.Resolver
	dispatcher   *outbound.Dispatcher

	ingressHandler *ingress.Handler
	aliasPipeline  *aliasbuilder.Pipeline

	mux        *http.ServeMux
	httpServer *http.Server

	// activeSessions tracks every session_id seen on the letters stream so
	// the pause sweep (§4.4) knows which sessions to check; commit engine
	// state itself is a query, not an enumeration, so the application layer
	// keeps its own index.
	activeSessions sync.Map // map[string]struct{}

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a session store instead of creating one from config.
func WithSessionStore(s sessionstore.Store) Option {
	return func(a *App) { a.sessions = s }
}

// WithJobStore injects a job store instead of creating one from config.
func WithJobStore(s jobstore.Store) Option {
	return func(a *App) { a.jobs = s }
}

// WithObjectStore injects an object store instead of creating an [objectstore.FSStore].
func WithObjectStore(s objectstore.Store) Option {
	return func(a *App) { a.objects = s }
}

// WithLexiconStore injects a lexicon store instead of creating one from config.
func WithLexiconStore(s lexicon.Store) Option {
	return func(a *App) { a.lexicon = s }
}

// WithClassifierBridge injects a classifier bridge instead of building the
// reference [classifier.LookupModel].
func WithClassifierBridge(b fanout.ClassifierBridge) Option {
	return func(a *App) { a.bridge = b }
}

// WithConnectionWriter injects the outbound delivery transport instead of
// creating a [outbound.WebSocketWriter].
func WithConnectionWriter(w outbound.ConnectionWriter) Option {
	return func(a *App) { a.connWriter = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. providers comes
// from main.go (populated via the config registry). Use Option functions to
// inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	a.landmarks = streambus.New("landmarks", cfg.Streams.ShardCount)
	a.letters = streambus.New("letters", cfg.Streams.ShardCount)

	if err := a.initSessionStore(); err != nil {
		return nil, fmt.Errorf("app: init session store: %w", err)
	}
	if err := a.initLexiconStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init lexicon stores: %w", err)
	}
	if err := a.initObjectStore(); err != nil {
		return nil, fmt.Errorf("app: init object store: %w", err)
	}

	if a.bridge == nil {
		model := classifier.NewLookupModel(handext.FeatureLen)
		a.bridge = classifier.NewBridge(model, a.metrics)
	}
	a.fanoutEngine = fanout.New(a.landmarks, a.letters, a.bridge, fanout.Config{
		Name:       cfg.Streams.ConsumerName,
		Backoff:    cfg.Streams.BaseBackoff,
		MaxBackoff: cfg.Streams.MaxBackoff,
	}, a.metrics)

	a.wordResolver = resolver.New(a.lexicon, a.metrics)
	a.commitEngine = commit.NewEngine(a.sessions, a.wordResolver, commit.Config{
		WindowMS:           cfg.Commit.WindowMS,
		StabilityMS:        cfg.Commit.StabilityMS,
		VoteThreshold:      cfg.Commit.VoteThreshold,
		CommitThreshold:    cfg.Commit.CommitThreshold,
		PauseMS:            cfg.Commit.PauseMS,
		MaxConsecutiveSame: cfg.Commit.MaxConsecutiveSame,
		WindowTTL:          cfg.Session.WindowTTL,
		BufferTTL:          cfg.Session.WindowTTL,
	}, a.metrics)

	if a.connWriter == nil {
		a.connWriter = outbound.NewWebSocketWriter(cfg.Outbound.BaseURL, cfg.Outbound.DialTimeout)
	}
	pusher := outbound.NewRegistryPusher(a.sessions, a.connWriter)
	a.dispatcher = outbound.NewDispatcher(pusher, a.metrics)

	a.ingressHandler = ingress.New(a.landmarks, a.sessions, cfg.Session.ConnectionTTL, a.metrics)

	if a.providers != nil && a.providers.LLM != nil {
		synth := aliasbuilder.NewSynthesizer(a.providers.LLM, cfg.Lexicon.TermBatchSize, cfg.Lexicon.MaxAliasesPerSurface, cfg.Lexicon.MinValidationScore)
		a.aliasPipeline = aliasbuilder.NewPipeline(a.jobs, a.objects, a.lexicon, synth, a.metrics, cfg.Lexicon.JobTTL)
	} else {
		slog.Warn("app: no llm provider configured, alias-builder synthesis routes will reject requests")
	}

	a.mux = http.NewServeMux()
	a.ingressHandler.Register(a.mux)
	health.New().Register(a.mux)
	a.registerAliasRoutes()

	a.httpServer = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(a.mux),
	}

	return a, nil
}

// initSessionStore wires the Redis-backed session store when
// session.redis_addr is configured, falling back to an in-process store
// otherwise.
func (a *App) initSessionStore() error {
	if a.sessions != nil {
		return nil
	}
	if a.cfg.Session.RedisAddr == "" {
		a.sessions = sessionstore.NewMemStore()
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: a.cfg.Session.RedisAddr,
		DB:   a.cfg.Session.RedisDB,
	})
	a.closers = append(a.closers, rdb.Close)
	a.sessions = sessionstore.NewRedisStore(rdb)
	return nil
}

// initLexiconStores wires the Postgres-backed job and lexicon stores when
// lexicon.postgres_dsn is configured, falling back to in-process stores
// otherwise. The two stores are independent so options can inject one
// without the other.
func (a *App) initLexiconStores(ctx context.Context) error {
	dsn := a.cfg.Lexicon.PostgresDSN

	if a.jobs == nil {
		if dsn == "" {
			a.jobs = jobstore.NewMemStore()
		} else {
			js, err := jobstore.NewPostgresStore(ctx, dsn)
			if err != nil {
				return fmt.Errorf("job store: %w", err)
			}
			a.closers = append(a.closers, func() error { js.Close(); return nil })
			a.jobs = js
		}
	}

	if a.lexicon == nil {
		if dsn == "" {
			a.lexicon = lexicon.NewMemStore()
		} else {
			ls, err := lexicon.NewPostgresStore(ctx, dsn)
			if err != nil {
				return fmt.Errorf("lexicon store: %w", err)
			}
			a.closers = append(a.closers, func() error { ls.Close(); return nil })
			a.lexicon = ls
		}
	}

	return nil
}

// initObjectStore wires the alias-builder pipeline's object store, rooted
// at lexicon.object_store_root.
func (a *App) initObjectStore() error {
	if a.objects != nil {
		return nil
	}
	fs, err := objectstore.NewFSStore(a.cfg.Lexicon.ObjectStoreRoot)
	if err != nil {
		return err
	}
	a.objects = fs
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// SessionStore returns the session/window/connection-registry store.
func (a *App) SessionStore() sessionstore.Store { return a.sessions }

// LexiconStore returns the lexicon store.
func (a *App) LexiconStore() lexicon.Store { return a.lexicon }

// JobStore returns the alias-builder job store.
func (a *App) JobStore() jobstore.Store { return a.jobs }

// Mux returns the registered HTTP route multiplexer, mainly for tests that
// want to drive requests through httptest without starting a listener.
func (a *App) Mux() *http.ServeMux { return a.mux }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the fan-out consumer, the letters-stream consumer driving the
// commit engine, the periodic pause sweep, and the ingress HTTP server, and
// blocks until ctx is cancelled or the server fails to start.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.fanoutEngine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runLettersConsumer(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runPauseSweep(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("app: ingress http server listening", "addr", a.cfg.Server.ListenAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("app: http server shutdown error", "error", err)
		}
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		wg.Wait()
		return err
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown runs every registered closer once, in registration order. It
// respects ctx's deadline: if ctx expires before all closers finish, the
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "error", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// markSessionActive records sessionID in the pause-sweep index.
func (a *App) markSessionActive(sessionID string) {
	a.activeSessions.Store(sessionID, struct{}{})
}

// forEachActiveSession calls fn for every session_id seen so far.
func (a *App) forEachActiveSession(fn func(sessionID string)) {
	a.activeSessions.Range(func(key, _ any) bool {
		fn(key.(string))
		return true
	})
}

// decodeJSON is a tiny helper used by admin.go to decode a request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
