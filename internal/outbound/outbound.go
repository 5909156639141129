// Package outbound implements the outbound dispatcher (§4.7): after the
// word resolver produces a [types.ResolvedWord], hand it off to an external
// push worker with (session_id, payload). The caller never waits on
// delivery and is never informed of delivery success — [Dispatcher.Dispatch]
// returns as soon as the handoff goroutine is started.
package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aslstream/fingerspell/internal/observe"
	"github.com/aslstream/fingerspell/internal/sessionstore"
	"github.com/aslstream/fingerspell/pkg/types"
)

// PushWorker is the external push worker boundary (§6): a single
// asynchronous invocation with {session_id, resolved_word} and no response
// contract. Implementations decide how (or whether) to actually deliver the
// payload to a live client connection.
type PushWorker interface {
	Push(ctx context.Context, sessionID string, resolved types.ResolvedWord) error
}

// Dispatcher fires resolved words at a [PushWorker] without blocking the
// caller (the commit engine / resolver pipeline).
type Dispatcher struct {
	worker  PushWorker
	metrics *observe.Metrics
}

// NewDispatcher constructs a [Dispatcher]. metrics may be nil, in which
// case [observe.DefaultMetrics] is used.
func NewDispatcher(worker PushWorker, metrics *observe.Metrics) *Dispatcher {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{worker: worker, metrics: metrics}
}

// Dispatch hands resolved to the push worker on a detached goroutine. The
// goroutine's context carries ctx's trace/span for log correlation but is
// decoupled from ctx's cancellation, since the worker's delivery attempt
// must be allowed to outlive the request that triggered it.
func (d *Dispatcher) Dispatch(ctx context.Context, resolved types.ResolvedWord) {
	dctx := context.WithoutCancel(ctx)
	go func() {
		if err := d.worker.Push(dctx, resolved.SessionID, resolved); err != nil {
			observe.Logger(dctx).Warn("outbound: push failed",
				"session_id", resolved.SessionID, "raw_word", resolved.RawWord, "error", err)
		}
	}()
}

// ConnectionWriter delivers a raw payload to a specific live connection.
// Implementations are the actual bridge-facing transport (e.g. a WebSocket
// dial to the gateway's outbound channel); the registry-driven lookup in
// [RegistryPusher] is transport-agnostic.
type ConnectionWriter interface {
	Write(ctx context.Context, connectionID string, payload []byte) error
}

// RegistryPusher is the reference [PushWorker]: it looks up the connection
// currently bound to a session in the connection registry (§4.1/§4.7) and
// writes the resolved word to it via a [ConnectionWriter]. If no connection
// is currently bound (the client disconnected, or never connected under
// this session), the resolved word is dropped — there is nowhere to
// deliver it, and the pipeline is not informed either way.
type RegistryPusher struct {
	registry sessionstore.Store
	writer   ConnectionWriter
}

// NewRegistryPusher constructs a [RegistryPusher].
func NewRegistryPusher(registry sessionstore.Store, writer ConnectionWriter) *RegistryPusher {
	return &RegistryPusher{registry: registry, writer: writer}
}

// resolvedWordWire is the JSON shape delivered to the client connection.
type resolvedWordWire struct {
	SessionID    string             `json:"session_id"`
	RawWord      string             `json:"raw_word"`
	SearchMethod types.SearchMethod `json:"search_method"`
	AllResults   []searchResultWire `json:"all_results"`
}

type searchResultWire struct {
	Surface         string  `json:"surface"`
	AtlasScore      float64 `json:"atlas_score"`
	AliasConfidence float64 `json:"alias_confidence"`
	HybridScore     float64 `json:"hybrid_score"`
	MatchedVia      string  `json:"matched_via"`
}

// Push implements [PushWorker].
func (p *RegistryPusher) Push(ctx context.Context, sessionID string, resolved types.ResolvedWord) error {
	connectionID, err := p.registry.ConnectionForSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("outbound: no connection bound to session %s: %w", sessionID, err)
	}

	results := make([]searchResultWire, len(resolved.AllResults))
	for i, r := range resolved.AllResults {
		results[i] = searchResultWire{
			Surface:         r.Surface,
			AtlasScore:      r.AtlasScore,
			AliasConfidence: r.AliasConfidence,
			HybridScore:     r.HybridScore,
			MatchedVia:      r.MatchedVia,
		}
	}
	payload, err := json.Marshal(resolvedWordWire{
		SessionID:    resolved.SessionID,
		RawWord:      resolved.RawWord,
		SearchMethod: resolved.SearchMethod,
		AllResults:   results,
	})
	if err != nil {
		return fmt.Errorf("outbound: encode resolved word: %w", err)
	}

	if err := p.writer.Write(ctx, connectionID, payload); err != nil {
		return fmt.Errorf("outbound: write to connection %s: %w", connectionID, err)
	}
	return nil
}

// defaultDialTimeout bounds how long the reference WebSocket writer waits
// to establish a connection to the bridge before giving up on a single
// delivery attempt.
const defaultDialTimeout = 5 * time.Second
