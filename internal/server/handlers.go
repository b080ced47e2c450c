package server

import (
	"errors"

	"snakes-server/internal/gameerr"
	"snakes-server/internal/protocol"
	"snakes-server/internal/room"
)

// Dispatch decodes and runs one client message for connID. Failures go back
// to connID only as an error event.
func (s *Server) Dispatch(connID string, msg protocol.ClientMessage) {
	cmd, err := protocol.Decode(msg)
	if err != nil {
		s.fail(connID, msg.Type, err)
		return
	}
	if _, ok := cmd.(protocol.Ping); ok {
		s.connections.Send(connID, protocol.Pong())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch c := cmd.(type) {
	case protocol.CreateRoom:
		err = s.handleCreateRoom(connID, c)
	case protocol.JoinRoom:
		err = s.handleJoinRoom(connID, c)
	case protocol.RejoinRoom:
		err = s.handleRejoinRoom(connID, c)
	case protocol.StartGame:
		err = s.handleStartGame(connID, c)
	case protocol.RollDice:
		err = s.handleRollDice(connID, c)
	case protocol.ResetGame:
		err = s.handleResetGame(connID, c)
	case protocol.LeaveRoom:
		err = s.handleLeaveRoom(connID, c)
	}
	if err != nil {
		s.fail(connID, msg.Type, err)
	}
}

func (s *Server) fail(connID, msgType string, err error) {
	e := gameerr.From(err)
	ev := s.log.Warn()
	if e.Kind == gameerr.KindInternal {
		ev = s.log.Error()
	}
	ev.Err(err).Str("conn", connID).Str("type", msgType).Str("code", string(e.Code)).Msg("command failed")
	s.connections.Send(connID, protocol.Error(err))
}

func (s *Server) broadcastRooms() {
	s.connections.SendAll(protocol.RoomsList(s.rooms.RoomsInfo()))
}

func (s *Server) newRoomID() string {
	return GenerateRoomID(s.now(), func(id string) bool {
		_, taken := s.rooms.Get(id)
		return taken
	})
}

func (s *Server) handleCreateRoom(connID string, c protocol.CreateRoom) error {
	s.vacate(connID)

	id := s.newRoomID()
	r := s.rooms.Create(id, c.RoomName, connID)
	if err := s.rooms.AddPlayer(id, connID, c.PlayerName, c.ClientID); err != nil {
		s.rooms.Delete(id)
		return err
	}
	s.connections.Join(connID, id)

	s.log.Info().Str("room", id).Str("conn", connID).Str("client", c.ClientID).Msg("room created")
	s.connections.Send(connID, protocol.RoomJoined(r))
	s.broadcastRooms()
	return nil
}

func (s *Server) handleJoinRoom(connID string, c protocol.JoinRoom) error {
	r, ok := s.rooms.Get(c.RoomID)
	if err := room.ValidateRoomExists(r, ok, c.RoomID); err != nil {
		return err
	}
	if r.Game.Players[connID] != nil {
		// Already seated here; resend the snapshot.
		s.connections.Send(connID, protocol.RoomJoined(r))
		return nil
	}
	if err := room.ValidateClientNotSeated(r, c.ClientID); err != nil {
		return err
	}
	if err := room.ValidateRoomNotFull(r); err != nil {
		return err
	}
	if err := room.ValidateNotStarted(r); err != nil {
		return err
	}

	s.vacate(connID)
	if err := s.rooms.AddPlayer(r.ID, connID, c.PlayerName, c.ClientID); err != nil {
		return err
	}
	s.connections.Join(connID, r.ID)

	s.log.Info().Str("room", r.ID).Str("conn", connID).Str("client", c.ClientID).Msg("player joined")
	s.connections.Send(connID, protocol.RoomJoined(r))
	s.connections.SendRoom(r.ID, protocol.GameState(r))
	s.broadcastRooms()
	return nil
}

func (s *Server) handleStartGame(connID string, c protocol.StartGame) error {
	r, ok := s.rooms.Get(c.RoomID)
	if err := room.ValidateRoomExists(r, ok, c.RoomID); err != nil {
		return err
	}
	if err := room.ValidateIsHost(r, connID, "start the game"); err != nil {
		return err
	}
	if err := room.ValidateMinimumPlayers(r); err != nil {
		return err
	}
	if err := room.ValidateNotStarted(r); err != nil {
		return err
	}
	if err := r.Start(); err != nil {
		return err
	}

	s.log.Info().Str("room", r.ID).Int("players", r.PlayerCount()).Msg("game started")
	s.connections.SendRoom(r.ID, protocol.GameState(r))
	s.broadcastRooms()
	return nil
}

func (s *Server) handleRollDice(connID string, c protocol.RollDice) error {
	r, ok := s.rooms.Get(c.RoomID)
	if err := room.ValidateRoomExists(r, ok, c.RoomID); err != nil {
		return err
	}
	if err := room.ValidateGameStarted(r); err != nil {
		return err
	}
	if err := room.ValidateGameNotOver(r); err != nil {
		return err
	}
	if err := room.ValidatePlayerTurn(r, connID); err != nil {
		return err
	}

	res, err := r.Roll(connID, s.dice.Roll())
	if err != nil {
		return err
	}

	s.log.Debug().Str("room", r.ID).Str("conn", connID).Int("roll", res.Roll).Int("position", res.NewPosition).Msg("dice rolled")
	s.connections.SendRoom(r.ID, protocol.GameState(r))
	s.connections.SendRoom(r.ID, protocol.DiceRolled(res))
	if res.Won {
		name := r.Game.Players[connID].Name
		s.log.Info().Str("room", r.ID).Str("winner", connID).Msg("game won")
		s.connections.SendRoom(r.ID, protocol.GameWon(connID, name))
	}
	return nil
}

func (s *Server) handleResetGame(connID string, c protocol.ResetGame) error {
	r, ok := s.rooms.Get(c.RoomID)
	if err := room.ValidateRoomExists(r, ok, c.RoomID); err != nil {
		return err
	}
	if err := room.ValidateIsHost(r, connID, "reset the game"); err != nil {
		return err
	}
	if err := r.Reset(); err != nil {
		return err
	}

	s.log.Info().Str("room", r.ID).Msg("game reset")
	s.connections.SendRoom(r.ID, protocol.GameState(r))
	s.connections.SendRoom(r.ID, protocol.GameReset())
	return nil
}

func (s *Server) handleLeaveRoom(connID string, c protocol.LeaveRoom) error {
	r, ok := s.rooms.Get(c.RoomID)
	if err := room.ValidateRoomExists(r, ok, c.RoomID); err != nil {
		return err
	}
	if err := room.ValidateMember(r, connID); err != nil {
		return err
	}

	s.connections.Send(connID, protocol.RoomLeft(r.ID))
	if err := s.removeSeat(r, connID); err != nil {
		return err
	}
	s.broadcastRooms()
	return nil
}

func (s *Server) handleRejoinRoom(connID string, c protocol.RejoinRoom) error {
	r, ok := s.rooms.Get(c.RoomID)
	if !ok {
		s.connections.Send(connID, protocol.RejoinFailed("Room no longer exists"))
		return nil
	}
	p, ok := s.rooms.FindPlayerByClientID(r.ID, c.ClientID)
	if !ok || !p.Disconnected {
		s.connections.Send(connID, protocol.RejoinFailed("No disconnected seat for this client"))
		return nil
	}

	s.vacate(connID)
	s.sessions.Cancel(c.ClientID)
	if err := s.rooms.ReconnectPlayer(r.ID, p.ID, connID); err != nil {
		return err
	}
	s.connections.Join(connID, r.ID)
	hostChanged := r.EnsureConnectedHost()

	s.log.Info().Str("room", r.ID).Str("conn", connID).Str("client", c.ClientID).Msg("player rejoined")
	s.connections.Send(connID, protocol.RoomJoined(r))
	s.connections.SendRoom(r.ID, protocol.GameState(r))
	if hostChanged {
		s.connections.SendRoom(r.ID, protocol.HostChanged(r.Host))
	}
	s.broadcastRooms()
	return nil
}

// HandleDisconnect runs when connID's transport is gone. Mid-game the seat is
// held for the grace period; otherwise it is removed like a leave.
func (s *Server) HandleDisconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms.FindPlayerRoom(connID)
	if !ok {
		return
	}
	s.connections.Leave(connID, r.ID)

	if s.closing {
		// Seats were snapshotted as they are; restore marks them away.
		return
	}

	if !r.Game.InProgress() {
		if err := s.removeSeat(r, connID); err != nil {
			s.log.Error().Err(err).Str("room", r.ID).Str("conn", connID).Msg("failed to remove player")
		}
		s.broadcastRooms()
		return
	}

	p := r.Game.Players[connID]
	if err := s.rooms.SuspendPlayer(r.ID, connID); err != nil {
		s.log.Error().Err(err).Str("room", r.ID).Str("conn", connID).Msg("failed to suspend player")
		return
	}
	hostChanged := r.EnsureConnectedHost()

	s.log.Info().Str("room", r.ID).Str("conn", connID).Str("client", p.ClientID).Dur("grace", s.cfg.RejoinGrace).Msg("player disconnected, holding seat")
	s.connections.SendRoom(r.ID, protocol.GameState(r))
	if hostChanged {
		s.connections.SendRoom(r.ID, protocol.HostChanged(r.Host))
	}
	s.sessions.Start(p.ClientID, r.ID, s.evictFunc(r.ID, p.ClientID))
	s.broadcastRooms()
}

// evictFunc removes the seat held for clientID if it is still away when the
// grace period ends. It runs with s.mu held.
func (s *Server) evictFunc(roomID, clientID string) func() {
	return func() {
		r, ok := s.rooms.Get(roomID)
		if !ok {
			return
		}
		p, ok := s.rooms.FindPlayerByClientID(roomID, clientID)
		if !ok || !p.Disconnected {
			return
		}
		s.log.Info().Str("room", roomID).Str("client", clientID).Msg("grace period expired, removing player")
		if err := s.removeSeat(r, p.ID); err != nil {
			s.log.Error().Err(err).Str("room", roomID).Msg("failed to evict player")
		}
		s.broadcastRooms()
	}
}

// removeSeat deletes playerID from r, then tells the room about the new
// state and any host change. An emptied room is dropped with its timers.
func (s *Server) removeSeat(r *room.Room, playerID string) error {
	if p, ok := r.Game.Players[playerID]; ok {
		s.sessions.Cancel(p.ClientID)
	}
	s.connections.Leave(playerID, r.ID)

	oldHost := r.Host
	deleted, err := s.rooms.RemovePlayer(r.ID, playerID)
	if err != nil {
		return err
	}
	if deleted {
		s.sessions.CancelRoom(r.ID)
		s.log.Info().Str("room", r.ID).Msg("room deleted")
		return nil
	}

	s.connections.SendRoom(r.ID, protocol.GameState(r))
	if r.Host != oldHost {
		s.connections.SendRoom(r.ID, protocol.HostChanged(r.Host))
	}
	return nil
}

// vacate takes connID out of whatever room it sits in before it takes a seat
// elsewhere. The room is told; the lobby update is left to the caller.
func (s *Server) vacate(connID string) {
	r, ok := s.rooms.FindPlayerRoom(connID)
	if !ok {
		return
	}
	if err := s.removeSeat(r, connID); err != nil && !errors.Is(err, gameerr.ErrPlayerNotFound) {
		s.log.Error().Err(err).Str("room", r.ID).Str("conn", connID).Msg("failed to vacate seat")
	}
}

// Connect greets a new connection with the lobby.
func (s *Server) Connect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections.Send(connID, protocol.RoomsList(s.rooms.RoomsInfo()))
}
