package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snakes-server/internal/room"
	"snakes-server/internal/storage"
	"snakes-server/internal/storage/memory"
)

// flakyStore wraps a real store and fails selected calls.
type flakyStore struct {
	storage.Store
	deleteFailures int

	mu      sync.Mutex
	pingErr error
}

func (f *flakyStore) failPing(err error) {
	f.mu.Lock()
	f.pingErr = err
	f.mu.Unlock()
}

func (f *flakyStore) DeleteRoom(ctx context.Context, id string) error {
	if f.deleteFailures > 0 {
		f.deleteFailures--
		return errors.New("delete failed")
	}
	return f.Store.DeleteRoom(ctx, id)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	err := f.pingErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Ping(ctx)
}

type cleaningStore struct {
	storage.Store
	age time.Duration
}

func (c *cleaningStore) CleanupOlderThan(_ context.Context, age time.Duration) (int64, error) {
	c.age = age
	return 3, nil
}

// testRoom builds a room seating players in order; started moves it to Active.
func testRoom(t *testing.T, id string, started bool, players ...string) *room.Room {
	t.Helper()
	rooms := room.NewStore()
	r := rooms.Create(id, "Room "+id, players[0])
	for _, p := range players {
		require.NoError(t, rooms.AddPlayer(id, p, p, "client-"+p))
	}
	if started {
		require.NoError(t, r.Start())
	}
	return r
}

func storedIDs(t *testing.T, s storage.Store) []string {
	t.Helper()
	rooms, err := s.LoadRooms(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	return ids
}

func TestPersistenceManager_SaveDeletesVanishedRooms(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pm := NewPersistenceManager(store, zerolog.Nop())

	a := testRoom(t, "room_a", true, "alice", "bob")
	b := testRoom(t, "room_b", false, "carol")

	require.NoError(t, pm.Save(ctx, []*room.Room{a, b}))
	assert.Equal(t, []string{"room_a", "room_b"}, storedIDs(t, store))

	require.NoError(t, pm.Save(ctx, []*room.Room{a}))
	assert.Equal(t, []string{"room_a"}, storedIDs(t, store))
}

func TestPersistenceManager_LoadedRoomsAreTracked(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveRoom(ctx, testRoom(t, "room_old", false, "alice")))

	pm := NewPersistenceManager(store, zerolog.Nop())
	rooms, err := pm.Load(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	// Not restored, so the next snapshot removes it.
	require.NoError(t, pm.Save(ctx, nil))
	assert.Empty(t, storedIDs(t, store))
}

func TestPersistenceManager_FailedDeleteIsRetried(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	pm := NewPersistenceManager(store, zerolog.Nop())

	require.NoError(t, pm.Save(ctx, []*room.Room{testRoom(t, "room_a", false, "alice")}))

	store.deleteFailures = 1
	assert.Error(t, pm.Save(ctx, nil))
	assert.Equal(t, []string{"room_a"}, storedIDs(t, store))

	require.NoError(t, pm.Save(ctx, nil))
	assert.Empty(t, storedIDs(t, store))
}

func TestPersistenceManager_Cleanup(t *testing.T) {
	ctx := context.Background()

	pm := NewPersistenceManager(memory.New(), zerolog.Nop())
	n, err := pm.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	cs := &cleaningStore{Store: memory.New()}
	pm = NewPersistenceManager(cs, zerolog.Nop())
	n, err = pm.Cleanup(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, 2*time.Hour, cs.age)
}
