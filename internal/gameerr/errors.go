package gameerr

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how a client should react to them.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindCapacity      Kind = "capacity"
	KindStateConflict Kind = "state_conflict"
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindInternal      Kind = "internal"
)

type Code string

const (
	CodeRoomNotFound        Code = "ROOM_NOT_FOUND"
	CodePlayerNotFound      Code = "PLAYER_NOT_FOUND"
	CodeRoomFull            Code = "ROOM_FULL"
	CodeInsufficientPlayers Code = "INSUFFICIENT_PLAYERS"
	CodeGameAlreadyStarted  Code = "GAME_ALREADY_STARTED"
	CodeGameNotStarted      Code = "GAME_NOT_STARTED"
	CodeGameOver            Code = "GAME_OVER"
	CodeNotYourTurn         Code = "NOT_YOUR_TURN"
	CodeNotHost             Code = "NOT_HOST"
	CodeInvalidData         Code = "INVALID_DATA"
	CodeInvalidRoomName     Code = "INVALID_ROOM_NAME"
	CodeInvalidPlayerName   Code = "INVALID_PLAYER_NAME"
	CodeInvalidRoomID       Code = "INVALID_ROOM_ID"
	CodeAlreadySeated       Code = "ALREADY_SEATED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

var kinds = map[Code]Kind{
	CodeRoomNotFound:        KindNotFound,
	CodePlayerNotFound:      KindNotFound,
	CodeRoomFull:            KindCapacity,
	CodeInsufficientPlayers: KindCapacity,
	CodeGameAlreadyStarted:  KindStateConflict,
	CodeGameNotStarted:      KindStateConflict,
	CodeGameOver:            KindStateConflict,
	CodeNotYourTurn:         KindStateConflict,
	CodeAlreadySeated:       KindStateConflict,
	CodeNotHost:             KindAuthorization,
	CodeInvalidData:         KindValidation,
	CodeInvalidRoomName:     KindValidation,
	CodeInvalidPlayerName:   KindValidation,
	CodeInvalidRoomID:       KindValidation,
	CodeRateLimited:         KindCapacity,
	CodeInternal:            KindInternal,
}

// Error is a coded game error. It is safe to show Message to the client.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error carrying the same code, so sentinel values and
// constructor results compare equal under errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, message string) *Error {
	kind, ok := kinds[code]
	if !ok {
		kind = KindInternal
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

// Sentinels for errors.Is comparisons.
var (
	ErrRoomNotFound        = New(CodeRoomNotFound, "Room not found")
	ErrPlayerNotFound      = New(CodePlayerNotFound, "Player not found")
	ErrRoomFull            = New(CodeRoomFull, "Room is full")
	ErrInsufficientPlayers = New(CodeInsufficientPlayers, "Need at least 2 players to start")
	ErrGameAlreadyStarted  = New(CodeGameAlreadyStarted, "Game already started")
	ErrGameNotStarted      = New(CodeGameNotStarted, "Game not started yet")
	ErrGameOver            = New(CodeGameOver, "Game is over!")
	ErrNotYourTurn         = New(CodeNotYourTurn, "Not your turn!")
	ErrNotHost             = New(CodeNotHost, "Only the host can do that")
	ErrAlreadySeated       = New(CodeAlreadySeated, "This client already has a seat in the room")
	ErrInvalidData         = New(CodeInvalidData, "Invalid data")
	ErrInvalidRoomName     = New(CodeInvalidRoomName, "Room name must be 1-50 characters")
	ErrInvalidPlayerName   = New(CodeInvalidPlayerName, "Player name must be 1-20 characters")
	ErrInvalidRoomID       = New(CodeInvalidRoomID, "Invalid room ID format")
	ErrRateLimited         = New(CodeRateLimited, "Too many messages, slow down")
	ErrInternal            = New(CodeInternal, "Something went wrong")
)

func RoomNotFound(roomID string) *Error {
	return New(CodeRoomNotFound, fmt.Sprintf("Room %s not found", roomID))
}

func PlayerNotFound(playerID string) *Error {
	return New(CodePlayerNotFound, fmt.Sprintf("Player %s not found", playerID))
}

func NotHost(message string) *Error {
	return New(CodeNotHost, message)
}

func InsufficientPlayers(message string) *Error {
	return New(CodeInsufficientPlayers, message)
}

// InvalidData reports a malformed payload; field is the offending path.
func InvalidData(field string) *Error {
	return New(CodeInvalidData, fmt.Sprintf("Invalid %s", field))
}

// From converts any error into a client-presentable *Error. Anything that is
// not already a game error becomes INTERNAL_ERROR so internals never leak.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
