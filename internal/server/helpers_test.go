package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"snakes-server/internal/board"
	"snakes-server/internal/config"
	"snakes-server/internal/protocol"
)

// manualTimer is a timer that only fires when the test says so.
type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs timer i even if it was stopped, the way a timer that already
// fired races a Stop call.
func (s *manualScheduler) fire(i int) {
	s.mu.Lock()
	t := s.timers[i]
	s.mu.Unlock()
	t.f()
}

func (s *manualScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *manualScheduler) stopped(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i].stopped
}

func testConfig() *config.Config {
	return &config.Config{
		Port:             0,
		Env:              "test",
		LogLevel:         "disabled",
		RejoinGrace:      2 * time.Minute,
		StorageType:      config.StorageMemory,
		SnapshotInterval: time.Hour,
		SnapshotTTL:      24 * time.Hour,
		RateLimit:        10,
		RateWindow:       time.Second,
		AllowedOrigins:   []string{"*"},
	}
}

type harness struct {
	t       *testing.T
	s       *Server
	sched   *manualScheduler
	dice    *board.FixedDice
	clients map[string]*Client
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		sched:   &manualScheduler{},
		dice:    board.NewFixedDice(),
		clients: make(map[string]*Client),
	}
	opts = append([]Option{WithScheduler(h.sched), WithDice(h.dice)}, opts...)
	h.s = NewServer(testConfig(), zerolog.Nop(), opts...)
	return h
}

// connect registers connID and discards the lobby greeting.
func (h *harness) connect(connID string) {
	h.t.Helper()
	h.clients[connID] = h.s.connections.Register(connID)
	h.s.Connect(connID)
	msgs := h.drain(connID)
	require.Len(h.t, msgs, 1)
	require.Equal(h.t, protocol.TypeRoomsList, msgs[0].Type)
}

// disconnect mirrors the websocket handler's teardown.
func (h *harness) disconnect(connID string) {
	h.s.HandleDisconnect(connID)
	h.s.connections.Unregister(connID)
}

func (h *harness) send(connID, msgType string, payload any) {
	h.t.Helper()
	msg := protocol.ClientMessage{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(h.t, err)
		msg.Payload = raw
	}
	h.s.Dispatch(connID, msg)
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// drain returns everything queued for connID so far.
func (h *harness) drain(connID string) []received {
	h.t.Helper()
	c := h.clients[connID]
	var out []received
	for {
		select {
		case data := <-c.Outbound():
			var m received
			require.NoError(h.t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(msgs []received) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func decode[T any](t *testing.T, m received) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(m.Payload, &v))
	return v
}

// createRoom has connID create a room and returns its id.
func (h *harness) createRoom(connID, playerName string) string {
	h.t.Helper()
	h.send(connID, protocol.TypeCreateRoom, map[string]string{
		"roomName":   "Test Room",
		"playerName": playerName,
		"clientId":   "client-" + connID,
	})
	msgs := h.drain(connID)
	require.NotEmpty(h.t, msgs)
	require.Equal(h.t, protocol.TypeRoomJoined, msgs[0].Type)
	return decode[protocol.RoomJoinedPayload](h.t, msgs[0]).RoomID
}

func (h *harness) joinRoom(connID, roomID, playerName string) {
	h.t.Helper()
	h.send(connID, protocol.TypeJoinRoom, map[string]string{
		"roomId":     roomID,
		"playerName": playerName,
		"clientId":   "client-" + connID,
	})
}

func (h *harness) roomCmd(connID, msgType, roomID string) {
	h.t.Helper()
	h.send(connID, msgType, map[string]string{"roomId": roomID})
}

// drainAll empties every client's queue.
func (h *harness) drainAll() {
	for id := range h.clients {
		h.drain(id)
	}
}

// startedGame seats the named connections in a fresh room, first one as
// host, starts it and clears every queue.
func (h *harness) startedGame(conns ...string) string {
	h.t.Helper()
	for _, c := range conns {
		h.connect(c)
	}
	roomID := h.createRoom(conns[0], conns[0])
	for _, c := range conns[1:] {
		h.joinRoom(c, roomID, c)
	}
	h.roomCmd(conns[0], protocol.TypeStartGame, roomID)
	h.drainAll()
	return roomID
}

func lastError(t *testing.T, msgs []received) protocol.ErrorPayload {
	t.Helper()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	require.Equal(t, protocol.TypeError, last.Type)
	return decode[protocol.ErrorPayload](t, last)
}
