package room

import (
	"fmt"
	"slices"

	"snakes-server/internal/board"
	"snakes-server/internal/gameerr"
)

// Phase is the lifecycle stage of a room's game.
type Phase string

const (
	PhasePending Phase = "pending"
	PhaseActive  Phase = "active"
	PhaseWon     Phase = "won"
)

// transitions lists the legal phase changes. Reset moves Won (or a running
// Active round) back to Active; nothing returns to Pending.
var transitions = map[Phase][]Phase{
	PhasePending: {PhaseActive},
	PhaseActive:  {PhaseWon, PhaseActive},
	PhaseWon:     {PhaseActive},
}

// CanTransition reports whether a room in phase p may move to phase to.
func (p Phase) CanTransition(to Phase) bool {
	return slices.Contains(transitions[p], to)
}

type Player struct {
	ID           string `json:"id"`
	ClientID     string `json:"clientId"`
	Name         string `json:"name"`
	Position     int    `json:"position"`
	Disconnected bool   `json:"disconnected"`
}

// GameState is the authoritative state of one room. Players and PlayerOrder
// always hold the same ids; CurrentTurn is empty or a connected player.
type GameState struct {
	Players     map[string]*Player `json:"players"`
	PlayerOrder []string           `json:"playerOrder"`
	CurrentTurn string             `json:"currentTurn"`
	Winner      string             `json:"winner"`
	Phase       Phase              `json:"phase"`
}

func newGameState() GameState {
	return GameState{
		Players:     make(map[string]*Player),
		PlayerOrder: []string{},
		Phase:       PhasePending,
	}
}

// Started is true once the first round has begun, including after a win.
func (g *GameState) Started() bool {
	return g.Phase != PhasePending
}

// InProgress is true only while dice are being rolled. Disconnects hold a
// seat only in this phase.
func (g *GameState) InProgress() bool {
	return g.Phase == PhaseActive
}

func (g *GameState) connected(id string) bool {
	p, ok := g.Players[id]
	return ok && !p.Disconnected
}

// ConnectedCount counts seats whose player is not away.
func (g *GameState) ConnectedCount() int {
	n := 0
	for _, p := range g.Players {
		if !p.Disconnected {
			n++
		}
	}
	return n
}

// NextTurn rotates among connected players in PlayerOrder, starting after the
// current turn holder. Empty means nobody is connected.
func (g *GameState) NextTurn() string {
	active := make([]string, 0, len(g.PlayerOrder))
	for _, id := range g.PlayerOrder {
		if g.connected(id) {
			active = append(active, id)
		}
	}
	if len(active) == 0 {
		return ""
	}
	// A missing current turn yields -1, so rotation starts at the first entry.
	idx := slices.Index(active, g.CurrentTurn)
	return active[(idx+1)%len(active)]
}

// NextActiveTurn scans forward from afterID's seat, wrapping once, for the
// first connected player. afterID is usually a player who just disconnected.
func (g *GameState) NextActiveTurn(afterID string) string {
	start := slices.Index(g.PlayerOrder, afterID)
	if start == -1 {
		return ""
	}
	n := len(g.PlayerOrder)
	for i := 1; i <= n; i++ {
		candidate := g.PlayerOrder[(start+i)%n]
		if g.connected(candidate) {
			return candidate
		}
	}
	return ""
}

// FirstConnected returns the first connected id in PlayerOrder other than skip.
func (g *GameState) FirstConnected(skip string) string {
	for _, id := range g.PlayerOrder {
		if id != skip && g.connected(id) {
			return id
		}
	}
	return ""
}

// openingTurn is PlayerOrder[0] when connected, else the next connected seat.
func (g *GameState) openingTurn() string {
	if len(g.PlayerOrder) == 0 {
		return ""
	}
	first := g.PlayerOrder[0]
	if g.connected(first) {
		return first
	}
	return g.NextActiveTurn(first)
}

func (g *GameState) transition(to Phase) error {
	if !g.Phase.CanTransition(to) {
		return fmt.Errorf("illegal phase transition %s -> %s", g.Phase, to)
	}
	g.Phase = to
	return nil
}

// clone returns a deep copy safe to hand to another goroutine.
func (g *GameState) clone() GameState {
	out := GameState{
		Players:     make(map[string]*Player, len(g.Players)),
		PlayerOrder: slices.Clone(g.PlayerOrder),
		CurrentTurn: g.CurrentTurn,
		Winner:      g.Winner,
		Phase:       g.Phase,
	}
	for id, p := range g.Players {
		cp := *p
		out.Players[id] = &cp
	}
	return out
}

// View is the wire projection of a GameState. gameStarted and a nullable
// winner/currentTurn are derived from the phase.
type View struct {
	Players     map[string]Player `json:"players"`
	PlayerOrder []string          `json:"playerOrder"`
	CurrentTurn *string           `json:"currentTurn"`
	Winner      *string           `json:"winner"`
	GameStarted bool              `json:"gameStarted"`
	Phase       Phase             `json:"phase"`
}

func (g *GameState) View() View {
	v := View{
		Players:     make(map[string]Player, len(g.Players)),
		PlayerOrder: slices.Clone(g.PlayerOrder),
		GameStarted: g.Started(),
		Phase:       g.Phase,
	}
	for id, p := range g.Players {
		v.Players[id] = *p
	}
	if g.CurrentTurn != "" {
		turn := g.CurrentTurn
		v.CurrentTurn = &turn
	}
	if g.Phase == PhaseWon {
		winner := g.Winner
		v.Winner = &winner
	}
	return v
}

// RollResult describes one resolved roll.
type RollResult struct {
	PlayerID    string
	Roll        int
	From        int
	NewPosition int
	Won         bool
}

// start moves Pending to Active and hands the first turn out.
func (g *GameState) start() error {
	if err := g.transition(PhaseActive); err != nil {
		return gameerr.ErrGameAlreadyStarted
	}
	g.CurrentTurn = g.openingTurn()
	return nil
}

// roll applies a die roll for the current turn holder and either declares a
// winner or advances the turn.
func (g *GameState) roll(playerID string, roll int) (RollResult, error) {
	p, ok := g.Players[playerID]
	if !ok {
		return RollResult{}, gameerr.PlayerNotFound(playerID)
	}

	res := RollResult{PlayerID: playerID, Roll: roll, From: p.Position}
	p.Position = board.ApplyRoll(p.Position, roll)
	res.NewPosition = p.Position

	if board.IsWin(p.Position) {
		if err := g.transition(PhaseWon); err != nil {
			return RollResult{}, err
		}
		g.Winner = playerID
		res.Won = true
		return res, nil
	}

	g.CurrentTurn = g.NextTurn()
	return res, nil
}

// reset starts a new round with every piece back on the first square.
func (g *GameState) reset() error {
	if !g.Started() {
		return gameerr.ErrGameNotStarted
	}
	if err := g.transition(PhaseActive); err != nil {
		return err
	}
	for _, p := range g.Players {
		p.Position = board.StartingPosition
	}
	g.Winner = ""
	g.CurrentTurn = g.openingTurn()
	return nil
}
