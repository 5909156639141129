package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aslstream/fingerspell/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a [Store] backed by Redis: the window is a right-pushed
// list, pruned from the left; the word buffer is a single TTL'd JSON blob.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing Redis client. The caller owns the
// client's lifecycle (including closing it).
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

type observationJSON struct {
	Char       string  `json:"char"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp_unix_ms"`
}

func encodeObservation(obs types.LetterObservation) ([]byte, error) {
	return json.Marshal(observationJSON{
		Char:       obs.Char,
		Confidence: obs.Confidence,
		Timestamp:  obs.Timestamp.UnixMilli(),
	})
}

func decodeObservation(data string) (types.LetterObservation, error) {
	var raw observationJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return types.LetterObservation{}, err
	}
	return types.LetterObservation{
		Char:       raw.Char,
		Confidence: raw.Confidence,
		Timestamp:  time.UnixMilli(raw.Timestamp),
	}, nil
}

// PushObservation implements [Store].
func (s *RedisStore) PushObservation(ctx context.Context, sessionID string, obs types.LetterObservation, windowTTL time.Duration) error {
	data, err := encodeObservation(obs)
	if err != nil {
		return fmt.Errorf("sessionstore: encode observation: %w", err)
	}
	key := windowKey(sessionID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, windowTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sessionstore: push observation: %w", err)
	}
	return nil
}

// PruneWindow implements [Store].
func (s *RedisStore) PruneWindow(ctx context.Context, sessionID string, cutoff time.Time) (int, error) {
	key := windowKey(sessionID)
	removed := 0
	for {
		head, err := s.rdb.LIndex(ctx, key, 0).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("sessionstore: prune window: %w", err)
		}
		obs, err := decodeObservation(head)
		if err != nil {
			return removed, fmt.Errorf("sessionstore: prune window decode: %w", err)
		}
		if !obs.Timestamp.Before(cutoff) {
			break
		}
		if err := s.rdb.LPop(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("sessionstore: prune window pop: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Window implements [Store].
func (s *RedisStore) Window(ctx context.Context, sessionID string) ([]types.LetterObservation, error) {
	raw, err := s.rdb.LRange(ctx, windowKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get window: %w", err)
	}
	out := make([]types.LetterObservation, 0, len(raw))
	for _, item := range raw {
		obs, err := decodeObservation(item)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: decode window entry: %w", err)
		}
		out = append(out, obs)
	}
	return out, nil
}

// ClearWindow implements [Store].
func (s *RedisStore) ClearWindow(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, windowKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("sessionstore: clear window: %w", err)
	}
	return nil
}

type wordBufferJSON struct {
	SessionID    string   `json:"session_id"`
	UserID       string   `json:"user_id"`
	Letters      []string `json:"letters"`
	LastCommitTS int64    `json:"last_commit_ts_unix_ms"`
}

func encodeWordBuffer(b types.WordBuffer) ([]byte, error) {
	return json.Marshal(wordBufferJSON{
		SessionID:    b.SessionID,
		UserID:       b.UserID,
		Letters:      b.Letters,
		LastCommitTS: b.LastCommitTS.UnixMilli(),
	})
}

func decodeWordBuffer(data string) (types.WordBuffer, error) {
	var raw wordBufferJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return types.WordBuffer{}, err
	}
	return types.WordBuffer{
		SessionID:    raw.SessionID,
		UserID:       raw.UserID,
		Letters:      raw.Letters,
		LastCommitTS: time.UnixMilli(raw.LastCommitTS),
	}, nil
}

// WordBuffer implements [Store].
func (s *RedisStore) WordBuffer(ctx context.Context, sessionID, userID string) (types.WordBuffer, error) {
	data, err := s.rdb.Get(ctx, wordKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return types.WordBuffer{SessionID: sessionID, UserID: userID}, nil
	}
	if err != nil {
		return types.WordBuffer{}, fmt.Errorf("sessionstore: get word buffer: %w", err)
	}
	return decodeWordBuffer(data)
}

// AppendToWord implements [Store].
func (s *RedisStore) AppendToWord(ctx context.Context, sessionID, userID, char string, bufferTTL time.Duration) (types.WordBuffer, error) {
	buf, err := s.WordBuffer(ctx, sessionID, userID)
	if err != nil {
		return types.WordBuffer{}, err
	}
	buf.Letters = append(buf.Letters, char)
	buf.LastCommitTS = time.Now()

	data, err := encodeWordBuffer(buf)
	if err != nil {
		return types.WordBuffer{}, fmt.Errorf("sessionstore: encode word buffer: %w", err)
	}
	if err := s.rdb.SetEx(ctx, wordKey(sessionID), data, bufferTTL).Err(); err != nil {
		return types.WordBuffer{}, fmt.Errorf("sessionstore: append to word: %w", err)
	}
	return buf, nil
}

// ClearWordBuffer implements [Store].
func (s *RedisStore) ClearWordBuffer(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, wordKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("sessionstore: clear word buffer: %w", err)
	}
	return nil
}

// CleanupSession implements [Store].
func (s *RedisStore) CleanupSession(ctx context.Context, sessionID string) error {
	if err := s.ClearWindow(ctx, sessionID); err != nil {
		return err
	}
	return s.ClearWordBuffer(ctx, sessionID)
}

type connectionJSON struct {
	ConnectionID string `json:"connection_id"`
	SessionID    string `json:"session_id"`
	LastActivity int64  `json:"last_activity_unix_ms"`
}

// RegisterConnection implements [Store].
func (s *RedisStore) RegisterConnection(ctx context.Context, connectionID string, ttl time.Duration) error {
	data, err := json.Marshal(connectionJSON{ConnectionID: connectionID, LastActivity: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("sessionstore: encode connection: %w", err)
	}
	if err := s.rdb.SetEx(ctx, connKey(connectionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("sessionstore: register connection: %w", err)
	}
	return nil
}

// TouchConnection implements [Store].
func (s *RedisStore) TouchConnection(ctx context.Context, connectionID, sessionID string, ttl time.Duration) error {
	exists, err := s.rdb.Exists(ctx, connKey(connectionID)).Result()
	if err != nil {
		return fmt.Errorf("sessionstore: check connection: %w", err)
	}
	if exists == 0 {
		return ErrConnectionNotFound
	}

	data, err := json.Marshal(connectionJSON{
		ConnectionID: connectionID,
		SessionID:    sessionID,
		LastActivity: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("sessionstore: encode connection: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.SetEx(ctx, connKey(connectionID), data, ttl)
	pipe.SetEx(ctx, connSessionKey(sessionID), connectionID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sessionstore: touch connection: %w", err)
	}
	return nil
}

// RemoveConnection implements [Store].
func (s *RedisStore) RemoveConnection(ctx context.Context, connectionID string) error {
	data, err := s.rdb.Get(ctx, connKey(connectionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("sessionstore: get connection: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, connKey(connectionID))
	if err == nil {
		var rec connectionJSON
		if jsonErr := json.Unmarshal([]byte(data), &rec); jsonErr == nil && rec.SessionID != "" {
			pipe.Del(ctx, connSessionKey(rec.SessionID))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sessionstore: remove connection: %w", err)
	}
	return nil
}

// ConnectionForSession implements [Store].
func (s *RedisStore) ConnectionForSession(ctx context.Context, sessionID string) (string, error) {
	connectionID, err := s.rdb.Get(ctx, connSessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrConnectionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sessionstore: get connection for session: %w", err)
	}
	return connectionID, nil
}
