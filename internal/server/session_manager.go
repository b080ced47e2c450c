package server

import (
	"sync"
	"time"
)

// Timer is the cancellable handle a Scheduler returns.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests substitute a manual scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type graceTimer struct {
	roomID string
	gen    uint64
	timer  Timer
}

// SessionManager owns the rejoin grace timers, keyed by the stable clientId.
// Its methods are called with lock held; expiry callbacks take lock
// themselves, so they run serialized with command handling.
type SessionManager struct {
	lock   sync.Locker
	grace  time.Duration
	sched  Scheduler
	timers map[string]*graceTimer // clientID -> pending eviction
	gen    uint64
}

func NewSessionManager(lock sync.Locker, grace time.Duration, sched Scheduler) *SessionManager {
	if sched == nil {
		sched = clockScheduler{}
	}
	return &SessionManager{
		lock:   lock,
		grace:  grace,
		sched:  sched,
		timers: make(map[string]*graceTimer),
	}
}

// Start (re)arms the eviction timer for clientID. Any earlier timer for the
// same client is cancelled, never stacked. onExpire runs with lock held.
func (sm *SessionManager) Start(clientID, roomID string, onExpire func()) {
	sm.Cancel(clientID)

	sm.gen++
	gen := sm.gen
	entry := &graceTimer{roomID: roomID, gen: gen}
	entry.timer = sm.sched.AfterFunc(sm.grace, func() {
		sm.lock.Lock()
		defer sm.lock.Unlock()
		// A timer that lost the race with Cancel or a newer Start is stale.
		cur, ok := sm.timers[clientID]
		if !ok || cur.gen != gen {
			return
		}
		delete(sm.timers, clientID)
		onExpire()
	})
	sm.timers[clientID] = entry
}

// Cancel stops a pending eviction. It reports whether one was pending and is
// safe to call repeatedly.
func (sm *SessionManager) Cancel(clientID string) bool {
	entry, ok := sm.timers[clientID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(sm.timers, clientID)
	return true
}

// CancelRoom stops every pending eviction that targets roomID.
func (sm *SessionManager) CancelRoom(roomID string) int {
	n := 0
	for clientID, entry := range sm.timers {
		if entry.roomID == roomID {
			entry.timer.Stop()
			delete(sm.timers, clientID)
			n++
		}
	}
	return n
}

// CancelAll stops every timer, used on shutdown.
func (sm *SessionManager) CancelAll() {
	for clientID, entry := range sm.timers {
		entry.timer.Stop()
		delete(sm.timers, clientID)
	}
}

func (sm *SessionManager) Pending(clientID string) bool {
	_, ok := sm.timers[clientID]
	return ok
}

func (sm *SessionManager) Len() int {
	return len(sm.timers)
}
