package protocol

import (
	"encoding/json"

	"snakes-server/internal/gameerr"
	"snakes-server/internal/room"
)

// Client to server message types.
const (
	TypeCreateRoom = "createRoom"
	TypeJoinRoom   = "joinRoom"
	TypeRejoinRoom = "rejoinRoom"
	TypeStartGame  = "startGame"
	TypeRollDice   = "rollDice"
	TypeResetGame  = "resetGame"
	TypeLeaveRoom  = "leaveRoom"
	TypePing       = "ping"
)

// Server to client message types.
const (
	TypeRoomsList    = "roomsList"
	TypeRoomJoined   = "roomJoined"
	TypeRoomLeft     = "roomLeft"
	TypeGameState    = "gameState"
	TypeDiceRolled   = "diceRolled"
	TypeGameWon      = "gameWon"
	TypeGameReset    = "gameReset"
	TypeHostChanged  = "hostChanged"
	TypeRejoinFailed = "rejoinFailed"
	TypeError        = "error"
	TypePong         = "pong"
)

// ClientMessage is the inbound envelope. Payload is decoded per Type.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is the outbound envelope.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func NewMessage(msgType string, payload any) ServerMessage {
	return ServerMessage{Type: msgType, Payload: payload}
}

type RoomJoinedPayload struct {
	RoomID string        `json:"roomId"`
	Room   room.Snapshot `json:"room"`
}

type RoomLeftPayload struct {
	RoomID string `json:"roomId"`
}

type DiceRolledPayload struct {
	PlayerID    string `json:"playerId"`
	Roll        int    `json:"roll"`
	NewPosition int    `json:"newPosition"`
}

type GameWonPayload struct {
	Winner     string `json:"winner"`
	WinnerName string `json:"winnerName"`
}

type HostChangedPayload struct {
	NewHostID string `json:"newHostId"`
}

type RejoinFailedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Message string       `json:"message"`
	Code    gameerr.Code `json:"code"`
}

func RoomsList(infos []room.Info) ServerMessage {
	if infos == nil {
		infos = []room.Info{}
	}
	return NewMessage(TypeRoomsList, infos)
}

func RoomJoined(r *room.Room) ServerMessage {
	return NewMessage(TypeRoomJoined, RoomJoinedPayload{RoomID: r.ID, Room: r.Snapshot()})
}

func RoomLeft(roomID string) ServerMessage {
	return NewMessage(TypeRoomLeft, RoomLeftPayload{RoomID: roomID})
}

func GameState(r *room.Room) ServerMessage {
	return NewMessage(TypeGameState, r.Game.View())
}

func DiceRolled(res room.RollResult) ServerMessage {
	return NewMessage(TypeDiceRolled, DiceRolledPayload{
		PlayerID:    res.PlayerID,
		Roll:        res.Roll,
		NewPosition: res.NewPosition,
	})
}

func GameWon(winnerID, winnerName string) ServerMessage {
	return NewMessage(TypeGameWon, GameWonPayload{Winner: winnerID, WinnerName: winnerName})
}

func GameReset() ServerMessage {
	return NewMessage(TypeGameReset, nil)
}

func HostChanged(newHostID string) ServerMessage {
	return NewMessage(TypeHostChanged, HostChangedPayload{NewHostID: newHostID})
}

func RejoinFailed(reason string) ServerMessage {
	return NewMessage(TypeRejoinFailed, RejoinFailedPayload{Reason: reason})
}

// Error renders err for the client. Non-game errors become INTERNAL_ERROR.
func Error(err error) ServerMessage {
	e := gameerr.From(err)
	return NewMessage(TypeError, ErrorPayload{Message: e.Message, Code: e.Code})
}

func Pong() ServerMessage {
	return NewMessage(TypePong, nil)
}
