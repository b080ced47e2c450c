package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"snakes-server/internal/gameerr"
)

// RoomIDPrefix marks identifiers minted by this server.
const RoomIDPrefix = "room_"

// Command is one decoded, validated client request.
type Command interface {
	Type() string
}

// RoomCommand is implemented by every command that targets an existing room.
type RoomCommand interface {
	Command
	Room() string
}

type CreateRoom struct {
	RoomName   string `json:"roomName" validate:"required,max=50"`
	PlayerName string `json:"playerName" validate:"required,max=20"`
	ClientID   string `json:"clientId" validate:"required,max=128"`
}

type JoinRoom struct {
	RoomID     string `json:"roomId" validate:"required,roomid"`
	PlayerName string `json:"playerName" validate:"required,max=20"`
	ClientID   string `json:"clientId" validate:"required,max=128"`
}

type RejoinRoom struct {
	RoomID   string `json:"roomId" validate:"required,roomid"`
	ClientID string `json:"clientId" validate:"required,max=128"`
}

type StartGame struct {
	RoomID string `json:"roomId" validate:"required,roomid"`
}

type RollDice struct {
	RoomID string `json:"roomId" validate:"required,roomid"`
}

type ResetGame struct {
	RoomID string `json:"roomId" validate:"required,roomid"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId" validate:"required,roomid"`
}

type Ping struct{}

func (CreateRoom) Type() string { return TypeCreateRoom }
func (JoinRoom) Type() string   { return TypeJoinRoom }
func (RejoinRoom) Type() string { return TypeRejoinRoom }
func (StartGame) Type() string  { return TypeStartGame }
func (RollDice) Type() string   { return TypeRollDice }
func (ResetGame) Type() string  { return TypeResetGame }
func (LeaveRoom) Type() string  { return TypeLeaveRoom }
func (Ping) Type() string       { return TypePing }

func (c JoinRoom) Room() string   { return c.RoomID }
func (c RejoinRoom) Room() string { return c.RoomID }
func (c StartGame) Room() string  { return c.RoomID }
func (c RollDice) Room() string   { return c.RoomID }
func (c ResetGame) Room() string  { return c.RoomID }
func (c LeaveRoom) Room() string  { return c.RoomID }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so error messages match what the client sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return IsRoomID(fl.Field().String())
	})
	return v
}

// IsRoomID reports whether id has the shape of a server-minted room id.
func IsRoomID(id string) bool {
	return strings.HasPrefix(id, RoomIDPrefix) && len(id) > len(RoomIDPrefix)
}

// Decode turns an envelope into a Command. Every failure is a
// *gameerr.Error with a validation code; nothing is partially applied.
func Decode(msg ClientMessage) (Command, error) {
	var cmd Command
	switch msg.Type {
	case TypeCreateRoom:
		var c CreateRoom
		if err := unmarshal(msg.Payload, &c); err != nil {
			return nil, err
		}
		c.RoomName = strings.TrimSpace(c.RoomName)
		c.PlayerName = strings.TrimSpace(c.PlayerName)
		c.ClientID = strings.TrimSpace(c.ClientID)
		cmd = c
	case TypeJoinRoom:
		var c JoinRoom
		if err := unmarshal(msg.Payload, &c); err != nil {
			return nil, err
		}
		c.RoomID = strings.TrimSpace(c.RoomID)
		c.PlayerName = strings.TrimSpace(c.PlayerName)
		c.ClientID = strings.TrimSpace(c.ClientID)
		cmd = c
	case TypeRejoinRoom:
		var c RejoinRoom
		if err := unmarshal(msg.Payload, &c); err != nil {
			return nil, err
		}
		c.RoomID = strings.TrimSpace(c.RoomID)
		c.ClientID = strings.TrimSpace(c.ClientID)
		cmd = c
	case TypeStartGame:
		var c StartGame
		if err := unmarshal(msg.Payload, &c); err != nil {
			return nil, err
		}
		cmd = c
	case TypeRollDice:
		var c RollDice
		if err := unmarshal(msg.Payload, &c); err != nil {
			return nil, err
		}
		cmd = c
	case TypeResetGame:
		var c ResetGame
		if err := unmarshal(msg.Payload, &c); err != nil {
			return nil, err
		}
		cmd = c
	case TypeLeaveRoom:
		var c LeaveRoom
		if err := unmarshal(msg.Payload, &c); err != nil {
			return nil, err
		}
		cmd = c
	case TypePing:
		return Ping{}, nil
	default:
		return nil, gameerr.New(gameerr.CodeInvalidData, "Unknown message type: "+msg.Type)
	}

	if err := validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	return cmd, nil
}

func unmarshal(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return gameerr.InvalidData("payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return gameerr.InvalidData(te.Field)
		}
		return gameerr.InvalidData("payload")
	}
	return nil
}

// validationError maps the first failing field to its error code.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return gameerr.InvalidData("payload")
	}
	fe := verrs[0]
	switch fe.Field() {
	case "roomName":
		return gameerr.ErrInvalidRoomName
	case "playerName":
		return gameerr.ErrInvalidPlayerName
	case "roomId":
		return gameerr.ErrInvalidRoomID
	default:
		return gameerr.InvalidData(fe.Field())
	}
}
