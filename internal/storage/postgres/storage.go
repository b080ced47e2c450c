package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"snakes-server/internal/room"
	"snakes-server/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	phase      TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Storage writes one row per room with the full snapshot as JSONB.
type Storage struct {
	pool *pgxpool.Pool
}

// New connects to url and verifies the connection.
func New(ctx context.Context, url string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Storage{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

var _ storage.Store = (*Storage)(nil)

// Migrate creates the rooms table if needed.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate rooms table: %w", err)
	}
	return nil
}

func (s *Storage) SaveRoom(ctx context.Context, r *room.Room) error {
	data, err := storage.Encode(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rooms (id, name, phase, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, phase = EXCLUDED.phase, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query, r.ID, r.Name, string(r.Game.Phase), data, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save room %s: %w", r.ID, err)
	}
	return nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", id, err)
	}
	return nil
}

// LoadRooms returns every stored room, most recently updated first.
func (s *Storage) LoadRooms(ctx context.Context) ([]*room.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM rooms ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	var out []*room.Room
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		r, err := storage.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}
	return out, nil
}

// CleanupOlderThan removes rooms not updated within age and reports how many
// rows went.
func (s *Storage) CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE updated_at < $1`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old rooms: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}
