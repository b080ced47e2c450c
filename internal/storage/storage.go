package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"snakes-server/internal/room"
)

// Store persists room snapshots so an active game survives a restart.
// Implementations must be safe for concurrent use.
type Store interface {
	SaveRoom(ctx context.Context, r *room.Room) error
	DeleteRoom(ctx context.Context, id string) error
	LoadRooms(ctx context.Context) ([]*room.Room, error)
	Ping(ctx context.Context) error
	Close() error
}

// Encode is the on-disk form shared by every backend.
func Encode(r *room.Room) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize room %s: %w", r.ID, err)
	}
	return data, nil
}

func Decode(data []byte) (*room.Room, error) {
	var r room.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to deserialize room: %w", err)
	}
	if r.Game.Players == nil {
		r.Game.Players = make(map[string]*room.Player)
	}
	return &r, nil
}
