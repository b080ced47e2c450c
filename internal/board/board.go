package board

const (
	StartingPosition = 1
	WinningPosition  = 100
	DiceSides        = 6
	MaxPlayers       = 4
	MinPlayers       = 2
)

// Jumps maps a trigger square to where the piece ends up. Ladders go up,
// snakes go down. No destination is itself a trigger, so one lookup is enough.
var Jumps = map[int]int{
	2:  23,
	4:  68,
	6:  45,
	20: 59,
	30: 96,
	43: 17,
	50: 5,
	52: 72,
	56: 8,
	57: 96,
	71: 92,
	73: 15,
	84: 58,
	87: 49,
	98: 40,
}

// ApplyRoll returns the square a piece on current reaches after rolling roll.
// Reaching or passing the winning square lands exactly on it.
func ApplyRoll(current, roll int) int {
	next := current + roll
	if next >= WinningPosition {
		return WinningPosition
	}
	if dest, ok := Jumps[next]; ok {
		next = dest
	}
	return next
}

func IsWin(position int) bool {
	return position >= WinningPosition
}
