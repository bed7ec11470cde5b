package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

// RedisSessionStore keeps sessions as JSON values with a sliding TTL.
type RedisSessionStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisSessionStore(client *RedisClient, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) sessionKey(chatID int64) string {
	return s.client.key("session", strconv.FormatInt(chatID, 10))
}

func (s *RedisSessionStore) Get(ctx context.Context, chatID int64) (*types.Session, error) {
	var sess types.Session
	if err := s.client.Get(ctx, s.sessionKey(chatID), &sess); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, session *types.Session) error {
	session.UpdatedAt = time.Now()
	return s.client.Set(ctx, s.sessionKey(session.ChatID), session, s.ttl)
}

func (s *RedisSessionStore) Delete(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, s.sessionKey(chatID))
}
