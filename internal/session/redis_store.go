package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed pending-authorization store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "oauth_state:",
	}
}

func (r *RedisStore) key(state string) string {
	return r.prefix + state
}

func (r *RedisStore) Create(ctx context.Context, s Session) error {
	if s.State == "" || s.UserID == "" {
		return fmt.Errorf("session: missing state or user_id")
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	return r.client.Set(ctx, r.key(s.State), data, ttl).Err()
}

// Consume removes and returns the session in one round trip. GETDEL
// makes the single-use guarantee hold across service instances.
func (r *RedisStore) Consume(ctx context.Context, state string) (*Session, error) {
	val, err := r.client.GetDel(ctx, r.key(state)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}

	if time.Now().After(s.ExpiresAt) {
		return nil, ErrNotFound
	}

	return &s, nil
}
