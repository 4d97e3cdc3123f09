package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-engine/internal/domain"
)

// LocalStore keeps durable progress in Redis so it survives restarts of the process.
// Keys are stored as: SET quiz:local:{key} {value} EX {ttl}
type LocalStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocalStore returns a store whose keys expire after ttl. A zero ttl keeps keys forever.
func NewLocalStore(client *redis.Client, ttl time.Duration) *LocalStore {
	return &LocalStore{client: client, ttl: ttl}
}

func (s *LocalStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *LocalStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) key(key string) string {
	return "quiz:local:" + key
}
