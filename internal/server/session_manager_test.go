package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_StartAndExpire(t *testing.T) {
	var mu sync.Mutex
	sched := &manualScheduler{}
	sm := NewSessionManager(&mu, 90*time.Second, sched)

	expired := 0
	heldLock := false
	sm.Start("client-1", "room_a", func() {
		expired++
		// The callback runs with the lock held.
		heldLock = !mu.TryLock()
	})

	assert.True(t, sm.Pending("client-1"))
	require.Equal(t, 1, sched.count())
	assert.Equal(t, 90*time.Second, sched.timers[0].d)

	sched.fire(0)
	assert.Equal(t, 1, expired)
	assert.True(t, heldLock)
	assert.False(t, sm.Pending("client-1"))
	assert.Equal(t, 0, sm.Len())
}

// A timer that already fired when Cancel ran must not evict.
func TestSessionManager_CancelBeatsLateTimer(t *testing.T) {
	var mu sync.Mutex
	sched := &manualScheduler{}
	sm := NewSessionManager(&mu, time.Minute, sched)

	expired := false
	sm.Start("client-1", "room_a", func() { expired = true })

	assert.True(t, sm.Cancel("client-1"))
	assert.False(t, sm.Cancel("client-1"))
	assert.True(t, sched.stopped(0))

	sched.fire(0)
	assert.False(t, expired)
}

func TestSessionManager_RestartReplacesTimer(t *testing.T) {
	var mu sync.Mutex
	sched := &manualScheduler{}
	sm := NewSessionManager(&mu, time.Minute, sched)

	var fired []string
	sm.Start("client-1", "room_a", func() { fired = append(fired, "first") })
	sm.Start("client-1", "room_a", func() { fired = append(fired, "second") })

	assert.Equal(t, 1, sm.Len())
	assert.True(t, sched.stopped(0))

	sched.fire(0)
	sched.fire(1)
	assert.Equal(t, []string{"second"}, fired)
}

func TestSessionManager_CancelRoomAndAll(t *testing.T) {
	var mu sync.Mutex
	sched := &manualScheduler{}
	sm := NewSessionManager(&mu, time.Minute, sched)

	noop := func() {}
	sm.Start("c1", "room_a", noop)
	sm.Start("c2", "room_a", noop)
	sm.Start("c3", "room_b", noop)

	assert.Equal(t, 2, sm.CancelRoom("room_a"))
	assert.Equal(t, 0, sm.CancelRoom("room_a"))
	assert.True(t, sm.Pending("c3"))

	sm.CancelAll()
	assert.Equal(t, 0, sm.Len())
	for i := 0; i < sched.count(); i++ {
		assert.True(t, sched.stopped(i))
	}
}

func TestSessionManager_WallClock(t *testing.T) {
	var mu sync.Mutex
	sm := NewSessionManager(&mu, 10*time.Millisecond, nil)

	done := make(chan struct{})
	mu.Lock()
	sm.Start("client-1", "room_a", func() { close(done) })
	mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("grace timer never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, sm.Pending("client-1"))
}
