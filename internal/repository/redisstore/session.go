// Package redisstore keeps login sessions in Redis instead of the SQL store.
//
// Enabled with REDIS_ADDR. Each session is one JSON value whose Redis TTL is
// the session's own expiry, so expired sessions vanish without a sweep. A
// per-user set indexes session ids for "log this user out everywhere".
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
	"github.com/sakif/game-market/internal/repository"
)

const (
	sessionKeyPrefix     = "market:sess:" // market:sess:{sid} -> JSON record
	userSessionSetPrefix = "market:user:" // market:user:{user_id}:sessions -> set of sids
	userSessionSetSuffix = ":sessions"
)

var _ repository.SessionRepository = (*SessionStore)(nil)

type SessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// record is the stored shape. Session itself carries no JSON tags because
// the SQL stores flatten it into columns.
type record struct {
	ID        string         `json:"sid"`
	UserID    string         `json:"userId"`
	Identity  model.Identity `json:"sess"`
	ExpiresAt time.Time      `json:"expire"`
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

// Connect opens a client and verifies the server answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func userSessionsKey(userID string) string {
	return userSessionSetPrefix + userID + userSessionSetSuffix
}

func (s *SessionStore) CreateSession(ctx context.Context, sess *model.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// Already expired: storing it would only make Redis delete it again.
		return nil
	}

	data, err := json.Marshal(record{
		ID:        sess.ID,
		UserID:    sess.UserID,
		Identity:  sess.Identity,
		ExpiresAt: sess.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: encoding session %s: %w", sess.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), data, ttl)
	pipe.SAdd(ctx, userSessionsKey(sess.UserID), sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: creating session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.NotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: getting session %s: %w", id, err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("redis: decoding session %s: %w", id, err)
	}
	return &model.Session{ID: r.ID, UserID: r.UserID, Identity: r.Identity, ExpiresAt: r.ExpiresAt}, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, userSessionsKey(sess.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: deleting session %s: %w", id, err)
	}
	return nil
}

func (s *SessionStore) DeleteUserSessions(ctx context.Context, userID string) error {
	setKey := userSessionsKey(userID)
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("redis: listing sessions of user %s: %w", userID, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, setKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: deleting sessions of user %s: %w", userID, err)
	}
	return nil
}

// DeleteExpiredSessions cleans the per-user index. The session values
// themselves expire through their TTL; what is left behind are set members
// pointing at keys that no longer exist. The count is of those references.
func (s *SessionStore) DeleteExpiredSessions(ctx context.Context, _ time.Time) (int64, error) {
	var removed int64

	iter := s.client.Scan(ctx, 0, userSessionSetPrefix+"*"+userSessionSetSuffix, 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		if !strings.HasSuffix(setKey, userSessionSetSuffix) {
			continue
		}

		ids, err := s.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return removed, fmt.Errorf("redis: reading %s: %w", setKey, err)
		}
		for _, id := range ids {
			n, err := s.client.Exists(ctx, sessionKey(id)).Result()
			if err != nil {
				return removed, fmt.Errorf("redis: checking session %s: %w", id, err)
			}
			if n > 0 {
				continue
			}
			if err := s.client.SRem(ctx, setKey, id).Err(); err != nil {
				return removed, fmt.Errorf("redis: pruning %s from %s: %w", id, setKey, err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis: scanning session indexes: %w", err)
	}
	return removed, nil
}
