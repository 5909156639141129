package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/aslstream/fingerspell/pkg/types"
)

// MemStore is an in-process [Store] with the same TTL and prune semantics
// as [RedisStore], for tests and for single-process deployments that don't
// need cross-instance session sharing.
type MemStore struct {
	mu          sync.Mutex
	windows     map[string][]types.LetterObservation
	buffers     map[string]types.WordBuffer
	connections map[string]memConnection
	sessionConn map[string]string
	expireAt    map[string]time.Time
}

type memConnection struct {
	connectionID string
	sessionID    string
	lastActivity time.Time
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		windows:     make(map[string][]types.LetterObservation),
		buffers:     make(map[string]types.WordBuffer),
		connections: make(map[string]memConnection),
		sessionConn: make(map[string]string),
		expireAt:    make(map[string]time.Time),
	}
}

func (s *MemStore) expired(key string) bool {
	exp, ok := s.expireAt[key]
	return ok && time.Now().After(exp)
}

// PushObservation implements [Store].
func (s *MemStore) PushObservation(_ context.Context, sessionID string, obs types.LetterObservation, windowTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := windowKey(sessionID)
	if s.expired(key) {
		s.windows[sessionID] = nil
	}
	s.windows[sessionID] = append(s.windows[sessionID], obs)
	s.expireAt[key] = time.Now().Add(windowTTL)
	return nil
}

// PruneWindow implements [Store].
func (s *MemStore) PruneWindow(_ context.Context, sessionID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	win := s.windows[sessionID]
	idx := 0
	for idx < len(win) && win[idx].Timestamp.Before(cutoff) {
		idx++
	}
	s.windows[sessionID] = win[idx:]
	return idx, nil
}

// Window implements [Store].
func (s *MemStore) Window(_ context.Context, sessionID string) ([]types.LetterObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(windowKey(sessionID)) {
		return nil, nil
	}
	out := make([]types.LetterObservation, len(s.windows[sessionID]))
	copy(out, s.windows[sessionID])
	return out, nil
}

// ClearWindow implements [Store].
func (s *MemStore) ClearWindow(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, sessionID)
	delete(s.expireAt, windowKey(sessionID))
	return nil
}

// WordBuffer implements [Store].
func (s *MemStore) WordBuffer(_ context.Context, sessionID, userID string) (types.WordBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(wordKey(sessionID)) {
		delete(s.buffers, sessionID)
	}
	buf, ok := s.buffers[sessionID]
	if !ok {
		buf = types.WordBuffer{SessionID: sessionID, UserID: userID}
		s.buffers[sessionID] = buf
	}
	return buf, nil
}

// AppendToWord implements [Store].
func (s *MemStore) AppendToWord(_ context.Context, sessionID, userID, char string, bufferTTL time.Duration) (types.WordBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := wordKey(sessionID)
	if s.expired(key) {
		delete(s.buffers, sessionID)
	}
	buf, ok := s.buffers[sessionID]
	if !ok {
		buf = types.WordBuffer{SessionID: sessionID, UserID: userID}
	}
	buf.Letters = append(buf.Letters, char)
	buf.LastCommitTS = time.Now()
	s.buffers[sessionID] = buf
	s.expireAt[key] = time.Now().Add(bufferTTL)
	return buf, nil
}

// ClearWordBuffer implements [Store].
func (s *MemStore) ClearWordBuffer(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, sessionID)
	delete(s.expireAt, wordKey(sessionID))
	return nil
}

// CleanupSession implements [Store].
func (s *MemStore) CleanupSession(ctx context.Context, sessionID string) error {
	_ = s.ClearWindow(ctx, sessionID)
	_ = s.ClearWordBuffer(ctx, sessionID)
	return nil
}

// RegisterConnection implements [Store].
func (s *MemStore) RegisterConnection(_ context.Context, connectionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[connectionID] = memConnection{connectionID: connectionID, lastActivity: time.Now()}
	s.expireAt[connKey(connectionID)] = time.Now().Add(ttl)
	return nil
}

// TouchConnection implements [Store].
func (s *MemStore) TouchConnection(_ context.Context, connectionID, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(connKey(connectionID)) {
		delete(s.connections, connectionID)
	}
	if _, ok := s.connections[connectionID]; !ok {
		return ErrConnectionNotFound
	}
	s.connections[connectionID] = memConnection{connectionID: connectionID, sessionID: sessionID, lastActivity: time.Now()}
	s.sessionConn[sessionID] = connectionID
	now := time.Now()
	s.expireAt[connKey(connectionID)] = now.Add(ttl)
	s.expireAt[connSessionKey(sessionID)] = now.Add(ttl)
	return nil
}

// RemoveConnection implements [Store].
func (s *MemStore) RemoveConnection(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.connections[connectionID]; ok && conn.sessionID != "" {
		delete(s.sessionConn, conn.sessionID)
		delete(s.expireAt, connSessionKey(conn.sessionID))
	}
	delete(s.connections, connectionID)
	delete(s.expireAt, connKey(connectionID))
	return nil
}

// ConnectionForSession implements [Store].
func (s *MemStore) ConnectionForSession(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(connSessionKey(sessionID)) {
		delete(s.sessionConn, sessionID)
	}
	connectionID, ok := s.sessionConn[sessionID]
	if !ok {
		return "", ErrConnectionNotFound
	}
	return connectionID, nil
}

var _ Store = (*MemStore)(nil)
