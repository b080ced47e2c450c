package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"snakes-server/internal/config"
	"snakes-server/internal/room"
	"snakes-server/internal/storage"
	"snakes-server/internal/storage/memory"
	"snakes-server/internal/storage/postgres"
	"snakes-server/internal/storage/redis"
)

// OpenStorage builds the snapshot backend named by cfg.StorageType.
func OpenStorage(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageType {
	case config.StoragePostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case config.StorageRedis:
		return redis.New(ctx, cfg.RedisURL, cfg.SnapshotTTL)
	case config.StorageMemory, "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
}

// cleaner is implemented by backends that need explicit expiry; redis keys
// expire on their own.
type cleaner interface {
	CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// PersistenceManager writes room snapshots and remembers which ids it wrote,
// so rooms that have since been deleted are removed from storage too.
type PersistenceManager struct {
	store storage.Store
	known map[string]struct{}
	mu    sync.Mutex
	log   zerolog.Logger
}

func NewPersistenceManager(store storage.Store, log zerolog.Logger) *PersistenceManager {
	return &PersistenceManager{
		store: store,
		known: make(map[string]struct{}),
		log:   log.With().Str("component", "persistence").Logger(),
	}
}

// Save writes every room in rooms and deletes stored rooms that are gone.
// Individual failures are logged and joined into the returned error.
func (pm *PersistenceManager) Save(ctx context.Context, rooms []*room.Room) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	current := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		current[r.ID] = struct{}{}
		if err := pm.store.SaveRoom(ctx, r); err != nil {
			pm.log.Warn().Err(err).Str("room", r.ID).Msg("failed to save room")
			errs = append(errs, err)
		}
	}

	for id := range pm.known {
		if _, ok := current[id]; ok {
			continue
		}
		if err := pm.store.DeleteRoom(ctx, id); err != nil {
			pm.log.Warn().Err(err).Str("room", id).Msg("failed to delete room")
			errs = append(errs, err)
			// Retry on the next pass.
			current[id] = struct{}{}
		}
	}
	pm.known = current

	pm.log.Debug().Int("rooms", len(rooms)).Msg("snapshot completed")
	return errors.Join(errs...)
}

// Load returns the stored rooms. Every loaded id counts as known, so the ones
// the caller chooses not to restore are deleted on the next Save.
func (pm *PersistenceManager) Load(ctx context.Context) ([]*room.Room, error) {
	rooms, err := pm.store.LoadRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rooms: %w", err)
	}

	pm.mu.Lock()
	for _, r := range rooms {
		pm.known[r.ID] = struct{}{}
	}
	pm.mu.Unlock()

	pm.log.Info().Int("rooms", len(rooms)).Msg("loaded room snapshots")
	return rooms, nil
}

// Cleanup removes snapshots older than age where the backend supports it.
func (pm *PersistenceManager) Cleanup(ctx context.Context, age time.Duration) (int64, error) {
	c, ok := pm.store.(cleaner)
	if !ok {
		return 0, nil
	}
	return c.CleanupOlderThan(ctx, age)
}

func (pm *PersistenceManager) Ping(ctx context.Context) error {
	return pm.store.Ping(ctx)
}

func (pm *PersistenceManager) Close() error {
	return pm.store.Close()
}
