package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists one owner's cart under a single Redis key. Carts
// are device/session-scoped in this system, so a fast local store with no
// cross-device sync is the intended durability level.
type RedisStore struct {
	client *redis.Client
	key    string
	log    *slog.Logger
}

func NewRedisStore(client *redis.Client, ownerID string, log *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    "cart:" + ownerID,
		log:    log,
	}
}

// Load returns the stored cart, or an empty cart when nothing is stored.
// A corrupt payload is discarded and logged, never surfaced: the buyer
// starts over with an empty cart rather than seeing an error.
func (s *RedisStore) Load(ctx context.Context) ([]Entry, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", s.key, err)
	}

	entries, err := decodeEntries(data)
	if err != nil {
		s.log.Warn("discarding corrupt cart payload",
			slog.String("key", s.key), slog.Any("error", err))
		if delErr := s.client.Del(ctx, s.key).Err(); delErr != nil {
			s.log.Error("failed to delete corrupt cart",
				slog.String("key", s.key), slog.Any("error", delErr))
		}
		return nil, nil
	}
	return entries, nil
}

func (s *RedisStore) Save(ctx context.Context, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cart %s: %w", s.key, err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save cart %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear cart %s: %w", s.key, err)
	}
	return nil
}
