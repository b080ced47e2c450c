package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snakes-server/internal/gameerr"
)

func msg(t *testing.T, msgType string, payload any) ClientMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return ClientMessage{Type: msgType, Payload: raw}
}

func TestDecode_CreateRoomTrims(t *testing.T) {
	cmd, err := Decode(msg(t, TypeCreateRoom, map[string]string{
		"roomName":   "  Test  ",
		"playerName": " Alice ",
		"clientId":   "c1",
	}))
	require.NoError(t, err)

	c, ok := cmd.(CreateRoom)
	require.True(t, ok)
	assert.Equal(t, "Test", c.RoomName)
	assert.Equal(t, "Alice", c.PlayerName)
	assert.Equal(t, "c1", c.ClientID)
}

func TestDecode_FieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		payload map[string]any
		want    error
	}{
		{"blank room name", TypeCreateRoom, map[string]any{"roomName": "   ", "playerName": "A", "clientId": "c"}, gameerr.ErrInvalidRoomName},
		{"long room name", TypeCreateRoom, map[string]any{"roomName": strings.Repeat("r", 51), "playerName": "A", "clientId": "c"}, gameerr.ErrInvalidRoomName},
		{"long player name", TypeJoinRoom, map[string]any{"roomId": "room_1_abc", "playerName": strings.Repeat("p", 21), "clientId": "c"}, gameerr.ErrInvalidPlayerName},
		{"foreign room id", TypeJoinRoom, map[string]any{"roomId": "lobby_1", "playerName": "A", "clientId": "c"}, gameerr.ErrInvalidRoomID},
		{"bare prefix", TypeStartGame, map[string]any{"roomId": "room_"}, gameerr.ErrInvalidRoomID},
		{"missing room id", TypeRollDice, map[string]any{}, gameerr.ErrInvalidRoomID},
		{"missing client id", TypeRejoinRoom, map[string]any{"roomId": "room_1_abc"}, gameerr.InvalidData("clientId")},
		{"wrong type", TypeLeaveRoom, map[string]any{"roomId": 5}, gameerr.InvalidData("roomId")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(msg(t, tt.msgType, tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_NameLengthCountsCharacters(t *testing.T) {
	// 20 multi-byte characters is still a valid name
	_, err := Decode(msg(t, TypeCreateRoom, map[string]string{
		"roomName":   "Room",
		"playerName": strings.Repeat("é", 20),
		"clientId":   "c1",
	}))
	assert.NoError(t, err)
}

func TestDecode_InvalidDataMessageNamesField(t *testing.T) {
	_, err := Decode(msg(t, TypeRejoinRoom, map[string]string{"roomId": "room_1_abc"}))
	require.Error(t, err)

	e := gameerr.From(err)
	assert.Equal(t, gameerr.CodeInvalidData, e.Code)
	assert.Contains(t, e.Message, "clientId")
}

func TestDecode_RoomCommands(t *testing.T) {
	for _, msgType := range []string{TypeStartGame, TypeRollDice, TypeResetGame, TypeLeaveRoom} {
		cmd, err := Decode(msg(t, msgType, map[string]string{"roomId": "room_1_abc"}))
		require.NoError(t, err, msgType)
		assert.Equal(t, msgType, cmd.Type())

		rc, ok := cmd.(RoomCommand)
		require.True(t, ok, msgType)
		assert.Equal(t, "room_1_abc", rc.Room())
	}
}

func TestDecode_MalformedEnvelope(t *testing.T) {
	_, err := Decode(ClientMessage{Type: TypeJoinRoom})
	assert.ErrorIs(t, err, gameerr.InvalidData("payload"))

	_, err = Decode(ClientMessage{Type: TypeJoinRoom, Payload: json.RawMessage(`"nope"`)})
	assert.ErrorIs(t, err, gameerr.ErrInvalidData)

	_, err = Decode(ClientMessage{Type: "dance"})
	assert.ErrorIs(t, err, gameerr.ErrInvalidData)
}

func TestDecode_Ping(t *testing.T) {
	cmd, err := Decode(ClientMessage{Type: TypePing})
	require.NoError(t, err)
	assert.Equal(t, Ping{}, cmd)
}

func TestIsRoomID(t *testing.T) {
	assert.True(t, IsRoomID("room_1700000000000_ab12cd"))
	assert.False(t, IsRoomID("room_"))
	assert.False(t, IsRoomID("Room_1"))
	assert.False(t, IsRoomID(""))
}

func TestErrorMessage(t *testing.T) {
	m := Error(gameerr.ErrNotYourTurn)
	assert.Equal(t, TypeError, m.Type)
	assert.Equal(t, ErrorPayload{Message: "Not your turn!", Code: gameerr.CodeNotYourTurn}, m.Payload)

	raw, err := json.Marshal(Pong())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(raw))
}
