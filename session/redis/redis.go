package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ixlab/aibox/session"
)

// API is the slice of the go-redis client the store needs. Narrowing the
// surface keeps the store testable against an in-process fake.
type API interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store persists sessions as JSON values with a server-side TTL. Every Put
// re-issues the expiry, so active sessions never age out.
type Store struct {
	client    API
	retention time.Duration
}

func NewStore(client API, retention time.Duration) *Store {
	return &Store{client: client, retention: retention}
}

var _ session.Store = (*Store)(nil)

func sessionKey(id string) string       { return "aibox:session:" + id }
func userIndexKey(userID string) string { return "aibox:user:" + userID + ":sessions" }

func (s *Store) Get(ctx context.Context, userID, sessionID string) (*session.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if sess.UserID != userID {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	sess.Touch(s.retention)
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.SessionID, err)
	}

	if err := s.client.Set(ctx, sessionKey(sess.SessionID), raw, s.retention).Err(); err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	if err := s.client.SAdd(ctx, userIndexKey(sess.UserID), sess.SessionID).Err(); err != nil {
		return fmt.Errorf("redis index session: %w", err)
	}
	// The index follows the longest-lived member; List drops stragglers.
	if err := s.client.Expire(ctx, userIndexKey(sess.UserID), s.retention).Err(); err != nil {
		return fmt.Errorf("redis expire index: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, userID string) ([]session.Summary, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list sessions: %w", err)
	}

	var out []session.Summary
	var stale []string
	for _, id := range ids {
		sess, err := s.Get(ctx, userID, id)
		if errors.Is(err, session.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess.Summary())
	}
	if len(stale) > 0 {
		// Expired entries linger in the index; drop them opportunistically.
		members := make([]interface{}, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		_ = s.client.SRem(ctx, userIndexKey(userID), members...).Err()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	if err := s.client.SRem(ctx, userIndexKey(userID), sessionID).Err(); err != nil {
		return fmt.Errorf("redis unindex session: %w", err)
	}
	return nil
}
