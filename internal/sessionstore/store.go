// Package sessionstore holds the durable per-session state the sliding
// window commit engine depends on (§4.4): each session's letter
// observation window and its in-progress word buffer. Both are keyed by
// session_id and carry a TTL so abandoned sessions self-clean.
//
// Grounded on RedisManager in the original word-resolver-service: a
// right-pushed list for the window (oldest first, pruned from the left),
// and a TTL'd string blob for the word buffer.
package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/aslstream/fingerspell/pkg/types"
)

// ErrConnectionNotFound is returned by connection-registry lookups when the
// connection_id (or its bound session_id) is unknown, expired, or was never
// registered. Per §4.1, the registry is a convenience, not the source of
// truth — callers log this and continue rather than treating it as fatal.
var ErrConnectionNotFound = errors.New("sessionstore: connection not found")

// Store is the durable per-session state backing the commit engine and the
// ingress multiplexer's connection registry.
// Implementations must be safe for concurrent use across sessions; within a
// single session, the commit engine serializes its own calls.
type Store interface {
	// PushObservation appends obs to sessionID's sliding window and
	// (re)sets the window's TTL to windowTTL.
	PushObservation(ctx context.Context, sessionID string, obs types.LetterObservation, windowTTL time.Duration) error

	// PruneWindow removes every observation in sessionID's window with a
	// timestamp strictly before cutoff, oldest first, and returns the
	// number removed.
	PruneWindow(ctx context.Context, sessionID string, cutoff time.Time) (int, error)

	// Window returns sessionID's current window in chronological order
	// (oldest first).
	Window(ctx context.Context, sessionID string) ([]types.LetterObservation, error)

	// ClearWindow deletes sessionID's window entirely.
	ClearWindow(ctx context.Context, sessionID string) error

	// WordBuffer returns sessionID's word buffer, creating an empty one
	// for userID if none exists yet.
	WordBuffer(ctx context.Context, sessionID, userID string) (types.WordBuffer, error)

	// AppendToWord appends char to sessionID's word buffer, stamps
	// LastCommitTS to now, refreshes the buffer's TTL to bufferTTL, and
	// returns the updated buffer.
	AppendToWord(ctx context.Context, sessionID, userID, char string, bufferTTL time.Duration) (types.WordBuffer, error)

	// ClearWordBuffer deletes sessionID's word buffer, used after
	// finalization.
	ClearWordBuffer(ctx context.Context, sessionID string) error

	// CleanupSession clears both the window and the word buffer for
	// sessionID.
	CleanupSession(ctx context.Context, sessionID string) error

	// RegisterConnection records a new gateway connection with a pending
	// (empty) session binding, expiring after ttl. Used on the ingress
	// multiplexer's connect route.
	RegisterConnection(ctx context.Context, connectionID string, ttl time.Duration) error

	// TouchConnection binds connectionID to sessionID and stamps its last
	// activity to now, refreshing the registry row's TTL to ttl. Used on
	// the ingress multiplexer's sendlandmarks route. Returns
	// [ErrConnectionNotFound] if the connection was never registered or
	// has already expired.
	TouchConnection(ctx context.Context, connectionID, sessionID string, ttl time.Duration) error

	// RemoveConnection deletes a connection's registry row. Used on the
	// ingress multiplexer's disconnect route.
	RemoveConnection(ctx context.Context, connectionID string) error

	// ConnectionForSession returns the connection_id currently bound to
	// sessionID, for the outbound dispatcher to locate a live connection.
	// Returns [ErrConnectionNotFound] if no connection is currently bound.
	ConnectionForSession(ctx context.Context, sessionID string) (string, error)
}

func windowKey(sessionID string) string      { return "window:" + sessionID }
func wordKey(sessionID string) string        { return "word:" + sessionID }
func connKey(connectionID string) string     { return "conn:" + connectionID }
func connSessionKey(sessionID string) string { return "connsession:" + sessionID }
