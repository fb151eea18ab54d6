package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/redis/go-redis/v9"
)

// incrementScript increments KEYS[1] and sets its expiry only when the
// increment created the key, so the window starts at the first request.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 and tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// KVStore implements domain.KVStore on Redis strings.
type KVStore struct {
	client redis.UniversalClient
}

func NewKVStore(client redis.UniversalClient) *KVStore {
	return &KVStore{client: client}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrementScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment %s: %w", key, err)
	}
	return count, nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
