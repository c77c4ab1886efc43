package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"scorm-quiz-service/internal/domain"
)

// StateStore keeps attempt slots in Redis so a taker can resume on any
// instance. Slots expire after ttl of inactivity.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	return v, err
}

func (s *StateStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

func (s *StateStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *StateStore) key(key string) string {
	return "quiz:" + key
}
