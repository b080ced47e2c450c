package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"snakes-server/internal/room"
	"snakes-server/internal/storage"
)

// Storage keeps encoded snapshots in a map. Nothing survives the process.
type Storage struct {
	mu    sync.RWMutex
	rooms map[string][]byte
}

func New() *Storage {
	return &Storage{rooms: make(map[string][]byte)}
}

var _ storage.Store = (*Storage)(nil)

func (s *Storage) SaveRoom(_ context.Context, r *room.Room) error {
	data, err := storage.Encode(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rooms[r.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *Storage) DeleteRoom(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
	return nil
}

// LoadRooms returns the stored rooms ordered by id.
func (s *Storage) LoadRooms(_ context.Context) ([]*room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*room.Room, 0, len(s.rooms))
	for _, data := range s.rooms {
		r, err := storage.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *room.Room) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Storage) Ping(context.Context) error {
	return nil
}

func (s *Storage) Close() error {
	return nil
}
