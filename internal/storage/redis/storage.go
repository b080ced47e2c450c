package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"snakes-server/internal/room"
	"snakes-server/internal/storage"
)

const keyPrefix = "snakes"

func roomKey(id string) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, id)
}

func roomIndexKey() string {
	return fmt.Sprintf("%s:rooms", keyPrefix)
}

// Storage keeps each room as a JSON string with a TTL, plus a set of known ids.
type Storage struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to url and verifies the connection.
func New(ctx context.Context, url string, ttl time.Duration) (*Storage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client (tests use miniredis).
func NewWithClient(client *redis.Client, ttl time.Duration) *Storage {
	return &Storage{client: client, ttl: ttl}
}

var _ storage.Store = (*Storage)(nil)

func (s *Storage) SaveRoom(ctx context.Context, r *room.Room) error {
	data, err := storage.Encode(r)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, roomKey(r.ID), data, s.ttl)
	pipe.SAdd(ctx, roomIndexKey(), r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save room %s: %w", r.ID, err)
	}
	return nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, roomKey(id))
	pipe.SRem(ctx, roomIndexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", id, err)
	}
	return nil
}

// LoadRooms reads every indexed room. Ids whose key has expired are pruned
// from the index.
func (s *Storage) LoadRooms(ctx context.Context) ([]*room.Room, error) {
	ids, err := s.client.SMembers(ctx, roomIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	slices.Sort(ids)

	var out []*room.Room
	var expired []any
	for _, id := range ids {
		data, err := s.client.Get(ctx, roomKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			expired = append(expired, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load room %s: %w", id, err)
		}
		r, err := storage.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	if len(expired) > 0 {
		if err := s.client.SRem(ctx, roomIndexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune room index: %w", err)
		}
	}
	return out, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) Close() error {
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
