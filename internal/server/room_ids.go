package server

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"snakes-server/internal/protocol"
)

const roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateRoomID returns room_<unix millis>_<6 base36 chars>, retrying while
// taken reports a collision.
func GenerateRoomID(now time.Time, taken func(string) bool) string {
	for {
		id := fmt.Sprintf("%s%d_%s", protocol.RoomIDPrefix, now.UnixMilli(), randomSuffix(6))
		if taken == nil || !taken(id) {
			return id
		}
	}
}

func randomSuffix(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(roomIDAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			idx = big.NewInt(int64(i))
		}
		out[i] = roomIDAlphabet[idx.Int64()]
	}
	return string(out)
}
