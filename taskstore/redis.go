package taskstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const redisKeyPrefix = "headchecker:task:"

// RedisStore keeps task records in Redis so that several service instances
// can share one task space. TTL handling is delegated to Redis key expiry.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Create(ctx context.Context, id string, initial State, ttl time.Duration) error {
	b, err := json.Marshal(initial)
	if err != nil {
		return errors.Wrap(err, "serializing task state")
	}
	ok, err := s.rdb.SetNX(ctx, redisKeyPrefix+id, b, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "writing task state")
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	b, err := s.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "reading task state")
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, errors.Wrap(err, "deserializing task state")
	}
	return &st, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, ttl time.Duration, patches ...Patch) error {
	st, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, patch := range patches {
		patch(st)
	}
	b, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "serializing task state")
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+id, b, ttl).Err(); err != nil {
		return errors.Wrap(err, "writing task state")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, "deleting task state")
	}
	return nil
}
