package store

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/stores/redis"

	"coinchart-api/internal/chart"
)

// RedisStore implements Store on a shared Redis instance. Series payloads
// are msgpack-encoded; sidecar values are plain strings.
type RedisStore struct {
	rds *redis.Redis
}

// NewRedisStore wraps an existing go-zero Redis client.
func NewRedisStore(rds *redis.Redis) *RedisStore {
	return &RedisStore{rds: rds}
}

func (s *RedisStore) GetSeries(ctx context.Context, key string) ([]chart.PricePoint, bool, error) {
	raw, err := s.rds.GetCtx(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	if raw == "" {
		return nil, false, nil
	}
	var points []chart.PricePoint
	if err := msgpack.Unmarshal([]byte(raw), &points); err != nil {
		return nil, false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return points, true, nil
}

func (s *RedisStore) SetSeries(ctx context.Context, key string, points []chart.PricePoint, ttl time.Duration) error {
	payload, err := msgpack.Marshal(points)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.setRaw(ctx, key, string(payload), ttl)
}

func (s *RedisStore) GetString(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.rds.GetCtx(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return raw, raw != "", nil
}

func (s *RedisStore) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.setRaw(ctx, key, value, ttl)
}

func (s *RedisStore) SetStringNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl > 0 {
		ok, err := s.rds.SetnxExCtx(ctx, key, value, int(ttl/time.Second))
		if err != nil {
			return false, fmt.Errorf("store: setnx %s: %w", key, err)
		}
		return ok, nil
	}
	ok, err := s.rds.SetnxCtx(ctx, key, value)
	if err != nil {
		return false, fmt.Errorf("store: setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.rds.DelCtx(ctx, keys...); err != nil {
		return fmt.Errorf("store: del %v: %w", keys, err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.rds.KeysCtx(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("store: keys %s: %w", prefix, err)
	}
	return keys, nil
}

func (s *RedisStore) setRaw(ctx context.Context, key, value string, ttl time.Duration) error {
	var err error
	if ttl > 0 {
		err = s.rds.SetexCtx(ctx, key, value, int(ttl/time.Second))
	} else {
		err = s.rds.SetCtx(ctx, key, value)
	}
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}
