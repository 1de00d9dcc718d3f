package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect initializes a Redis client from URL or host:port input.
// Supporting both formats keeps local/dev and container config paths simple.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

const (
	hitCounterKey  = "sim:cache:hits"
	missCounterKey = "sim:cache:misses"
)

// RedisCacheStore backs the simulation cache with Redis string entries and
// keeps rolling hit/miss counters for observability.
type RedisCacheStore struct {
	client *redis.Client
}

func NewRedisCacheStore(client *redis.Client) *RedisCacheStore {
	return &RedisCacheStore{client: client}
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.client.Incr(ctx, missCounterKey)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.client.Incr(ctx, hitCounterKey)
	return data, true, nil
}

// Stats reports the counter values; missing counters read as zero.
func (s *RedisCacheStore) Stats(ctx context.Context) (hits, misses int64, err error) {
	vals, err := s.client.MGet(ctx, hitCounterKey, missCounterKey).Result()
	if err != nil {
		return 0, 0, err
	}
	parse := func(v any) int64 {
		str, ok := v.(string)
		if !ok {
			return 0
		}
		n, convErr := strconv.ParseInt(str, 10, 64)
		if convErr != nil {
			return 0
		}
		return n
	}
	return parse(vals[0]), parse(vals[1]), nil
}

func (s *RedisCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisCacheStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
