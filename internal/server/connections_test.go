package server

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snakes-server/internal/protocol"
)

func queued(c *Client) []string {
	var out []string
	for {
		select {
		case data := <-c.Outbound():
			var m received
			if err := json.Unmarshal(data, &m); err == nil {
				out = append(out, m.Type)
			}
		default:
			return out
		}
	}
}

func TestConnectionManager_RoomBroadcast(t *testing.T) {
	cm := NewConnectionManager(zerolog.Nop())
	a := cm.Register("a")
	b := cm.Register("b")
	c := cm.Register("c")

	cm.Join("a", "room_1")
	cm.Join("b", "room_1")
	cm.Join("c", "room_2")

	cm.SendRoom("room_1", protocol.GameReset())
	assert.Equal(t, []string{protocol.TypeGameReset}, queued(a))
	assert.Equal(t, []string{protocol.TypeGameReset}, queued(b))
	assert.Empty(t, queued(c))

	cm.SendAll(protocol.Pong())
	for _, cl := range []*Client{a, b, c} {
		assert.Equal(t, []string{protocol.TypePong}, queued(cl))
	}
}

func TestConnectionManager_JoinMovesGroup(t *testing.T) {
	cm := NewConnectionManager(zerolog.Nop())
	a := cm.Register("a")

	cm.Join("a", "room_1")
	cm.Join("a", "room_2")
	assert.Equal(t, "room_2", cm.RoomOf("a"))

	cm.SendRoom("room_1", protocol.Pong())
	assert.Empty(t, queued(a))

	// Leaving a group the client is not in is a no-op.
	cm.Leave("a", "room_1")
	assert.Equal(t, "room_2", cm.RoomOf("a"))

	cm.Leave("a", "room_2")
	assert.Equal(t, "", cm.RoomOf("a"))
}

func TestConnectionManager_PreservesOrder(t *testing.T) {
	cm := NewConnectionManager(zerolog.Nop())
	a := cm.Register("a")
	cm.Join("a", "room_1")

	cm.SendRoom("room_1", protocol.GameReset())
	cm.Send("a", protocol.Pong())
	cm.SendAll(protocol.RoomsList(nil))

	assert.Equal(t, []string{protocol.TypeGameReset, protocol.TypePong, protocol.TypeRoomsList}, queued(a))
}

func TestConnectionManager_UnregisterClosesClient(t *testing.T) {
	cm := NewConnectionManager(zerolog.Nop())
	a := cm.Register("a")
	cm.Join("a", "room_1")

	cm.Unregister("a")
	cm.Unregister("a")

	assert.Equal(t, 0, cm.Count())
	select {
	case <-a.Done():
	default:
		t.Fatal("client should be closed")
	}

	// Sends to a gone client are dropped.
	cm.Send("a", protocol.Pong())
	cm.SendRoom("room_1", protocol.Pong())
	assert.Empty(t, queued(a))
}

func TestConnectionManager_SlowConsumerDropped(t *testing.T) {
	cm := NewConnectionManager(zerolog.Nop())
	slow := cm.Register("slow")
	fast := cm.Register("fast")

	for i := 0; i < outboundQueueSize; i++ {
		cm.Send("slow", protocol.Pong())
	}
	select {
	case <-slow.Done():
		t.Fatal("a full queue alone should not drop the client")
	default:
	}

	cm.SendAll(protocol.Pong())

	select {
	case <-slow.Done():
	default:
		t.Fatal("overflowing client should be closed")
	}
	require.Len(t, queued(fast), 1)
	assert.Len(t, queued(slow), outboundQueueSize)
}

func TestConnectionManager_CloseAll(t *testing.T) {
	cm := NewConnectionManager(zerolog.Nop())
	a := cm.Register("a")
	b := cm.Register("b")

	cm.CloseAll()

	for _, c := range []*Client{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("client %s should be closed", c.ID)
		}
	}
}
