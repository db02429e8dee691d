package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fapiaolink/internal/clock"
)

const redisKeyPrefix = "fapiaolink:correlation:"

// RedisStore backs the correlation cache with redis so routing context
// survives restarts and is shared across replicas. Expiry rides on the
// key TTL, so Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  clock.Clock
}

func NewRedisStore(client *redis.Client, ttl time.Duration, clk clock.Clock) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, clock: clk}
}

func (s *RedisStore) Put(ctx context.Context, token string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+token, payload, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Entry, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var (
		stats  Stats
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return Stats{}, err
		}
		for _, key := range keys {
			payload, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return Stats{}, err
			}
			var entry Entry
			if err := json.Unmarshal(payload, &entry); err != nil {
				continue
			}
			stats.Count++
			created := entry.CreatedAt
			if stats.Oldest == nil || created.Before(*stats.Oldest) {
				t := created
				stats.Oldest = &t
			}
			if stats.Newest == nil || created.After(*stats.Newest) {
				t := created
				stats.Newest = &t
			}
		}
		if next == 0 {
			return stats, nil
		}
		cursor = next
	}
}
