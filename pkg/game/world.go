package game

import (
	"github.com/stratagem-engine/stratagem/pkg/command"
)

// Faction is a player-controlled side in the game.
type Faction struct {
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
	HomeX int    `json:"homeX"`
	HomeY int    `json:"homeY"`
}

// Unit is a movable entity owned by a faction.
type Unit struct {
	ID      int  `json:"id"`
	Faction int  `json:"faction"`
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Moved   bool `json:"moved"`
}

// World is a minimal concrete world state: factions taking turns moving
// units on an unbounded grid. It exists so the coordination core, the
// binaries, and the tests have real commands to execute; the core itself
// depends only on the command.WorldState interface.
//
// World carries no lock. At most one goroutine mutates it at a time, which
// the session state machine and the action gate jointly guarantee.
type World struct {
	TurnIndex int       `json:"turn"`
	Active    int       `json:"active"`
	Factions  []Faction `json:"factions"`
	Units     []Unit    `json:"units"`
}

func NewWorld(factions ...Faction) *World {
	return &World{
		Factions: factions,
	}
}

func (w *World) Turn() int {
	return w.TurnIndex
}

func (w *World) ActiveFaction() int {
	return w.Active
}

func (w *World) FactionCount() int {
	return len(w.Factions)
}

func (w *World) FactionAlive(index int) bool {
	if index < 0 || index >= len(w.Factions) {
		return false
	}
	return w.Factions[index].Alive
}

// Snapshot returns a deep copy suitable for later restoration.
func (w *World) Snapshot() command.WorldState {
	return w.Clone()
}

// Clone returns a deep copy of the world.
func (w *World) Clone() *World {
	clone := &World{
		TurnIndex: w.TurnIndex,
		Active:    w.Active,
		Factions:  make([]Faction, len(w.Factions)),
		Units:     make([]Unit, len(w.Units)),
	}
	copy(clone.Factions, w.Factions)
	copy(clone.Units, w.Units)
	return clone
}

// Unit returns the unit with the given ID, or nil.
func (w *World) Unit(id int) *Unit {
	for i := range w.Units {
		if w.Units[i].ID == id {
			return &w.Units[i]
		}
	}
	return nil
}

// AdvanceControl hands control to the next surviving faction. Wrapping past
// the last faction starts the next turn with the first surviving faction.
// With no survivors the active index is left unchanged.
func (w *World) AdvanceControl() {
	for next := w.Active + 1; next < len(w.Factions); next++ {
		if w.Factions[next].Alive {
			w.Active = next
			return
		}
	}
	for first := 0; first < len(w.Factions); first++ {
		if w.Factions[first].Alive {
			w.TurnIndex++
			w.Active = first
			return
		}
	}
}
