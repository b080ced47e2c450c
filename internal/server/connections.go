package server

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"snakes-server/internal/protocol"
)

// outboundQueueSize bounds how far a client may fall behind before it is
// dropped as a slow consumer.
const outboundQueueSize = 64

// Client is one live connection. Messages are queued in order and written by
// a single writer goroutine.
type Client struct {
	ID        string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	roomID    string
}

// Outbound is the ordered stream of encoded messages for this client.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed when the client must be disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Broadcaster is the fan-out surface the command handlers use. Sends never
// block; delivery order per client matches call order.
type Broadcaster interface {
	Send(connID string, msg protocol.ServerMessage)
	SendRoom(roomID string, msg protocol.ServerMessage)
	SendAll(msg protocol.ServerMessage)
	Join(connID, roomID string)
	Leave(connID, roomID string)
}

// ConnectionManager tracks live clients and room broadcast groups.
type ConnectionManager struct {
	clients map[string]*Client             // connectionID -> client
	groups  map[string]map[string]struct{} // roomID -> connectionIDs
	mu      sync.RWMutex
	log     zerolog.Logger
}

var _ Broadcaster = (*ConnectionManager)(nil)

func NewConnectionManager(log zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]struct{}),
		log:     log.With().Str("component", "connections").Logger(),
	}
}

func (cm *ConnectionManager) Register(id string) *Client {
	c := &Client{
		ID:   id,
		send: make(chan []byte, outboundQueueSize),
		done: make(chan struct{}),
	}
	cm.mu.Lock()
	cm.clients[id] = c
	cm.mu.Unlock()
	return c
}

// Unregister drops the client and its group membership.
func (cm *ConnectionManager) Unregister(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.clients[id]
	if !ok {
		return
	}
	cm.leaveLocked(c)
	delete(cm.clients, id)
	c.close()
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// Join moves connID into roomID's group, leaving any previous group.
func (cm *ConnectionManager) Join(connID, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.clients[connID]
	if !ok {
		return
	}
	cm.leaveLocked(c)
	members, ok := cm.groups[roomID]
	if !ok {
		members = make(map[string]struct{})
		cm.groups[roomID] = members
	}
	members[connID] = struct{}{}
	c.roomID = roomID
}

func (cm *ConnectionManager) Leave(connID, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if c, ok := cm.clients[connID]; ok && c.roomID == roomID {
		cm.leaveLocked(c)
	}
}

func (cm *ConnectionManager) leaveLocked(c *Client) {
	if c.roomID == "" {
		return
	}
	if members, ok := cm.groups[c.roomID]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(cm.groups, c.roomID)
		}
	}
	c.roomID = ""
}

// RoomOf returns the group connID currently belongs to.
func (cm *ConnectionManager) RoomOf(connID string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if c, ok := cm.clients[connID]; ok {
		return c.roomID
	}
	return ""
}

func (cm *ConnectionManager) Send(connID string, msg protocol.ServerMessage) {
	data, ok := cm.encode(msg)
	if !ok {
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if c, ok := cm.clients[connID]; ok {
		cm.enqueue(c, data)
	}
}

func (cm *ConnectionManager) SendRoom(roomID string, msg protocol.ServerMessage) {
	data, ok := cm.encode(msg)
	if !ok {
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for id := range cm.groups[roomID] {
		if c, ok := cm.clients[id]; ok {
			cm.enqueue(c, data)
		}
	}
}

func (cm *ConnectionManager) SendAll(msg protocol.ServerMessage) {
	data, ok := cm.encode(msg)
	if !ok {
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, c := range cm.clients {
		cm.enqueue(c, data)
	}
}

// CloseAll signals every client to disconnect.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, c := range cm.clients {
		c.close()
	}
}

func (cm *ConnectionManager) encode(msg protocol.ServerMessage) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		cm.log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode message")
		return nil, false
	}
	return data, true
}

// enqueue never blocks. A full queue means the client stopped reading; it is
// closed instead of stalling everyone else.
func (cm *ConnectionManager) enqueue(c *Client, data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		cm.log.Warn().Str("conn", c.ID).Msg("outbound queue full, dropping slow client")
		c.close()
	}
}
