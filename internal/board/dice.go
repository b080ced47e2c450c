package board

import (
	"crypto/rand"
	"math/big"
)

// Roller is the only source of randomness in a game.
type Roller interface {
	Roll() int
}

// CryptoDice rolls a fair die using crypto/rand.
type CryptoDice struct{}

func NewDice() *CryptoDice {
	return &CryptoDice{}
}

// Roll returns an integer in [1, DiceSides].
func (d *CryptoDice) Roll() int {
	n, err := rand.Int(rand.Reader, big.NewInt(DiceSides))
	if err != nil {
		// crypto/rand does not fail on supported platforms
		return 1
	}
	return int(n.Int64()) + 1
}

// FixedDice replays a queue of rolls; once exhausted it keeps returning the
// last value. Used by tests and local tooling.
type FixedDice struct {
	rolls []int
	next  int
}

func NewFixedDice(rolls ...int) *FixedDice {
	return &FixedDice{rolls: rolls}
}

func (d *FixedDice) Queue(rolls ...int) {
	d.rolls = append(d.rolls, rolls...)
}

func (d *FixedDice) Roll() int {
	if len(d.rolls) == 0 {
		return 1
	}
	if d.next >= len(d.rolls) {
		return d.rolls[len(d.rolls)-1]
	}
	r := d.rolls[d.next]
	d.next++
	return r
}
