package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps drafts in Redis with a TTL so abandoned sessions
// expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: c, ttl: ttl}
}

func draftKey(sessionID string) string { return "booking:draft:" + sessionID }

func (r *RedisStore) Save(ctx context.Context, sessionID string, d Draft) error {
	d.Version = SchemaVersion
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := r.client.Set(ctx, draftKey(sessionID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (Draft, error) {
	b, err := r.client.Get(ctx, draftKey(sessionID)).Bytes()
	if err == redis.Nil {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}
	return decode(b)
}

func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, draftKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func decode(b []byte) (Draft, error) {
	var d Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if d.Version != SchemaVersion {
		return Draft{}, fmt.Errorf("%w: got %d, want %d", ErrIncompatible, d.Version, SchemaVersion)
	}
	return d, nil
}
