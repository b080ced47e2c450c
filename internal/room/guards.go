package room

import (
	"snakes-server/internal/board"
	"snakes-server/internal/gameerr"
)

// Precondition guards. Handlers call them in the order that matches the
// command, e.g. a roll checks exists, started, not over, then turn.

func ValidateRoomExists(r *Room, ok bool, roomID string) error {
	if !ok || r == nil {
		return gameerr.RoomNotFound(roomID)
	}
	return nil
}

func ValidateRoomNotFull(r *Room) error {
	if r.PlayerCount() >= r.MaxPlayers {
		return gameerr.ErrRoomFull
	}
	return nil
}

func ValidateNotStarted(r *Room) error {
	if r.Game.Started() {
		return gameerr.ErrGameAlreadyStarted
	}
	return nil
}

func ValidateGameStarted(r *Room) error {
	if !r.Game.Started() {
		return gameerr.ErrGameNotStarted
	}
	return nil
}

func ValidateGameNotOver(r *Room) error {
	if r.Game.Phase == PhaseWon {
		return gameerr.ErrGameOver
	}
	return nil
}

func ValidatePlayerTurn(r *Room, playerID string) error {
	if r.Game.CurrentTurn == "" || r.Game.CurrentTurn != playerID {
		return gameerr.ErrNotYourTurn
	}
	return nil
}

func ValidateIsHost(r *Room, playerID string, action string) error {
	if !r.IsHost(playerID) {
		return gameerr.NotHost("Only host can " + action)
	}
	return nil
}

func ValidateMinimumPlayers(r *Room) error {
	if r.PlayerCount() < board.MinPlayers {
		return gameerr.InsufficientPlayers("Need at least 2 players to start")
	}
	return nil
}

func ValidateMember(r *Room, playerID string) error {
	if _, ok := r.Game.Players[playerID]; !ok {
		return gameerr.PlayerNotFound(playerID)
	}
	return nil
}

// ValidateClientNotSeated rejects a second seat for the same clientId. Grace
// timers and rejoins are keyed by clientId, so it must name one seat.
func ValidateClientNotSeated(r *Room, clientID string) error {
	for _, p := range r.Game.Players {
		if p.ClientID == clientID {
			return gameerr.ErrAlreadySeated
		}
	}
	return nil
}
