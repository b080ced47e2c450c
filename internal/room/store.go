package room

import (
	"slices"
	"strings"
	"time"

	"snakes-server/internal/board"
	"snakes-server/internal/gameerr"
)

type Room struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	MaxPlayers int       `json:"maxPlayers"`
	Game       GameState `json:"gameState"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Game = r.Game.clone()
	return &cp
}

// PlayerCount counts seats, connected or not.
func (r *Room) PlayerCount() int {
	return len(r.Game.Players)
}

func (r *Room) IsHost(playerID string) bool {
	return r.Host == playerID
}

// Snapshot is the full room as sent in roomJoined.
type Snapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Host       string `json:"host"`
	MaxPlayers int    `json:"maxPlayers"`
	GameState  View   `json:"gameState"`
}

func (r *Room) Snapshot() Snapshot {
	return Snapshot{
		ID:         r.ID,
		Name:       r.Name,
		Host:       r.Host,
		MaxPlayers: r.MaxPlayers,
		GameState:  r.Game.View(),
	}
}

// Info is the lobby projection of a room.
type Info struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PlayerCount    int    `json:"playerCount"`
	ConnectedCount int    `json:"connectedCount"`
	MaxPlayers     int    `json:"maxPlayers"`
	GameStarted    bool   `json:"gameStarted"`
}

func (r *Room) Info() Info {
	return Info{
		ID:             r.ID,
		Name:           r.Name,
		PlayerCount:    r.PlayerCount(),
		ConnectedCount: r.Game.ConnectedCount(),
		MaxPlayers:     r.MaxPlayers,
		GameStarted:    r.Game.Started(),
	}
}

// Start begins the first round.
func (r *Room) Start() error {
	if err := r.Game.start(); err != nil {
		return err
	}
	r.touch()
	return nil
}

// Roll resolves roll for playerID; guards must have been checked by the caller.
func (r *Room) Roll(playerID string, roll int) (RollResult, error) {
	res, err := r.Game.roll(playerID, roll)
	if err != nil {
		return RollResult{}, err
	}
	r.touch()
	return res, nil
}

// Reset starts a new round in the same room.
func (r *Room) Reset() error {
	if err := r.Game.reset(); err != nil {
		return err
	}
	r.touch()
	return nil
}

// EnsureConnectedHost hands host to the first connected seat when the host
// is away. It reports whether the host changed.
func (r *Room) EnsureConnectedHost() bool {
	if r.Game.connected(r.Host) {
		return false
	}
	next := r.Game.FirstConnected(r.Host)
	if next == "" {
		return false
	}
	r.Host = next
	r.touch()
	return true
}

func (r *Room) touch() {
	r.UpdatedAt = time.Now()
}

// Store is the registry of live rooms. It is not safe for concurrent use;
// the owner serializes every call.
type Store struct {
	rooms      map[string]*Room
	maxPlayers int
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		rooms:      make(map[string]*Room),
		maxPlayers: board.MaxPlayers,
		now:        time.Now,
	}
}

// Create registers an empty pending room. The caller seats the host with
// AddPlayer; id must not be in use.
func (s *Store) Create(id, name, hostID string) *Room {
	now := s.now()
	r := &Room{
		ID:         id,
		Name:       name,
		Host:       hostID,
		MaxPlayers: s.maxPlayers,
		Game:       newGameState(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.rooms[id] = r
	return r
}

// Get returns the live room, not a copy. Use Clone before handing it to
// another goroutine.
func (s *Store) Get(id string) (*Room, bool) {
	r, ok := s.rooms[id]
	return r, ok
}

// Delete drops the room and reports whether it existed.
func (s *Store) Delete(id string) bool {
	if _, ok := s.rooms[id]; !ok {
		return false
	}
	delete(s.rooms, id)
	return true
}

func (s *Store) Len() int {
	return len(s.rooms)
}

// All returns the rooms ordered by creation time, then id.
func (s *Store) All() []*Room {
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// RoomsInfo is the lobby listing, in All order.
func (s *Store) RoomsInfo() []Info {
	rooms := s.All()
	out := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	return out
}

// Restore replaces a room wholesale, used when loading snapshots.
func (s *Store) Restore(r *Room) {
	if r.Game.Players == nil {
		r.Game.Players = make(map[string]*Player)
	}
	s.rooms[r.ID] = r
}

// AddPlayer seats a new player at the end of the turn order. A clientId holds
// at most one seat per room.
func (s *Store) AddPlayer(roomID, playerID, name, clientID string) error {
	r, ok := s.rooms[roomID]
	if !ok {
		return gameerr.RoomNotFound(roomID)
	}
	if err := ValidateClientNotSeated(r, clientID); err != nil {
		return err
	}
	r.Game.Players[playerID] = &Player{
		ID:       playerID,
		ClientID: clientID,
		Name:     name,
		Position: board.StartingPosition,
	}
	r.Game.PlayerOrder = append(r.Game.PlayerOrder, playerID)
	r.touch()
	return nil
}

// RemovePlayer drops a seat. It reports whether the room was deleted because
// it became empty. The turn moves on if the player held it, and the host
// passes to the new first seat if the player was host.
func (s *Store) RemovePlayer(roomID, playerID string) (bool, error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return false, gameerr.RoomNotFound(roomID)
	}
	if _, ok := r.Game.Players[playerID]; !ok {
		return false, gameerr.PlayerNotFound(playerID)
	}

	g := &r.Game
	if g.CurrentTurn == playerID {
		// Rotate before removal so the next seat in order is found.
		next := g.NextActiveTurn(playerID)
		if next == playerID {
			next = ""
		}
		g.CurrentTurn = next
	}

	delete(g.Players, playerID)
	g.PlayerOrder = slices.DeleteFunc(g.PlayerOrder, func(id string) bool { return id == playerID })

	if len(g.Players) == 0 {
		delete(s.rooms, roomID)
		return true, nil
	}

	if r.Host == playerID {
		r.Host = g.FirstConnected("")
		if r.Host == "" {
			r.Host = g.PlayerOrder[0]
		}
	}
	r.touch()
	return false, nil
}

// MarkPlayerDisconnected flags a seat as away without freeing it.
func (s *Store) MarkPlayerDisconnected(roomID, playerID string) error {
	r, ok := s.rooms[roomID]
	if !ok {
		return gameerr.RoomNotFound(roomID)
	}
	p, ok := r.Game.Players[playerID]
	if !ok {
		return gameerr.PlayerNotFound(playerID)
	}
	p.Disconnected = true
	r.touch()
	return nil
}

// SuspendPlayer marks a seat disconnected and, if it held the turn, passes the
// turn to the next connected seat. With nobody connected the turn is cleared.
func (s *Store) SuspendPlayer(roomID, playerID string) error {
	if err := s.MarkPlayerDisconnected(roomID, playerID); err != nil {
		return err
	}
	g := &s.rooms[roomID].Game
	if g.CurrentTurn == playerID {
		g.CurrentTurn = g.NextActiveTurn(playerID)
	}
	return nil
}

// ReconnectPlayer moves a seat from oldID to newID in place, keeping its turn
// order slot and, if it held the turn, the turn itself. An active game with
// nobody holding the turn hands it to the returning player.
func (s *Store) ReconnectPlayer(roomID, oldID, newID string) error {
	r, ok := s.rooms[roomID]
	if !ok {
		return gameerr.RoomNotFound(roomID)
	}
	g := &r.Game
	p, ok := g.Players[oldID]
	if !ok {
		return gameerr.PlayerNotFound(oldID)
	}

	delete(g.Players, oldID)
	p.ID = newID
	p.Disconnected = false
	g.Players[newID] = p

	if idx := slices.Index(g.PlayerOrder, oldID); idx != -1 {
		g.PlayerOrder[idx] = newID
	}
	if g.CurrentTurn == oldID || (g.InProgress() && g.CurrentTurn == "") {
		g.CurrentTurn = newID
	}
	if g.Winner == oldID {
		g.Winner = newID
	}
	if r.Host == oldID {
		r.Host = newID
	}
	r.touch()
	return nil
}

// FindPlayerByClientID returns the seat held by clientID in roomID.
func (s *Store) FindPlayerByClientID(roomID, clientID string) (*Player, bool) {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	for _, p := range r.Game.Players {
		if p.ClientID == clientID {
			return p, true
		}
	}
	return nil, false
}

// FindPlayerRoom scans every room for the player. Room counts are small; a
// reverse index would be the next step if that changes.
func (s *Store) FindPlayerRoom(playerID string) (*Room, bool) {
	for _, r := range s.rooms {
		if _, ok := r.Game.Players[playerID]; ok {
			return r, true
		}
	}
	return nil, false
}
