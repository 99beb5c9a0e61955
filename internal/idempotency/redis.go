package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type redisEntry struct {
	Status    string          `json:"status"`
	Response  json.RawMessage `json:"response,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RedisStore holds idempotency entries in Redis so every API process sees
// the same pending/success state. SET NX supplies the insert-if-absent
// atomicity; the TTL bounds how long a success response stays replayable.
type RedisStore struct {
	client    goredis.Cmdable
	ttl       time.Duration
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client goredis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, keyPrefix: "idem:"}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var re redisEntry
	if err := json.Unmarshal([]byte(raw), &re); err != nil {
		return nil, err
	}
	return &Entry{Status: re.Status, Response: re.Response, CreatedAt: re.CreatedAt}, nil
}

func (s *RedisStore) SetPending(ctx context.Context, key string) error {
	raw, err := json.Marshal(redisEntry{Status: StatusPending, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, raw, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

func (s *RedisStore) SetSuccess(ctx context.Context, key string, response []byte) error {
	raw, err := json.Marshal(redisEntry{
		Status:    StatusSuccess,
		Response:  response,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyPrefix+key, raw, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}
