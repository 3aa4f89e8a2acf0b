package game

import (
	"fmt"

	"github.com/stratagem-engine/stratagem/pkg/command"
)

// MoveCommand moves a unit of the acting faction to a new grid position.
type MoveCommand struct {
	CommandTurn    int `json:"turn"`
	CommandFaction int `json:"faction"`
	UnitID         int `json:"unitID"`
	ToX            int `json:"toX"`
	ToY            int `json:"toY"`
}

func (c *MoveCommand) Turn() int      { return c.CommandTurn }
func (c *MoveCommand) Faction() int   { return c.CommandFaction }
func (c *MoveCommand) EndsTurn() bool { return false }

func (c *MoveCommand) Validate(world command.WorldState) error {
	w, ok := world.(*World)
	if !ok {
		return &command.ErrInvalidCommand{Reason: "world is not a grid world"}
	}
	if w.Active != c.CommandFaction {
		return &command.ErrInvalidCommand{Reason: fmt.Sprintf("faction %d is not active", c.CommandFaction)}
	}
	unit := w.Unit(c.UnitID)
	if unit == nil {
		return &command.ErrInvalidCommand{Reason: fmt.Sprintf("unit %d does not exist", c.UnitID)}
	}
	if unit.Faction != c.CommandFaction {
		return &command.ErrInvalidCommand{Reason: fmt.Sprintf("unit %d is not owned by faction %d", c.UnitID, c.CommandFaction)}
	}
	return nil
}

func (c *MoveCommand) Execute(ec *command.ExecContext) error {
	w, ok := ec.World.(*World)
	if !ok {
		return &command.ErrInvalidCommand{Reason: "world is not a grid world"}
	}
	unit := w.Unit(c.UnitID)
	if unit == nil {
		return &command.ErrInvalidCommand{Reason: fmt.Sprintf("unit %d does not exist", c.UnitID)}
	}
	unit.X = c.ToX
	unit.Y = c.ToY
	unit.Moved = true
	return nil
}

// EndTurnCommand hands control from the acting faction to the next
// surviving one.
type EndTurnCommand struct {
	CommandTurn    int `json:"turn"`
	CommandFaction int `json:"faction"`
}

func (c *EndTurnCommand) Turn() int      { return c.CommandTurn }
func (c *EndTurnCommand) Faction() int   { return c.CommandFaction }
func (c *EndTurnCommand) EndsTurn() bool { return true }

func (c *EndTurnCommand) Validate(world command.WorldState) error {
	if world.ActiveFaction() != c.CommandFaction {
		return &command.ErrInvalidCommand{Reason: fmt.Sprintf("faction %d is not active", c.CommandFaction)}
	}
	return nil
}

func (c *EndTurnCommand) Execute(ec *command.ExecContext) error {
	w, ok := ec.World.(*World)
	if !ok {
		return &command.ErrInvalidCommand{Reason: "world is not a grid world"}
	}
	w.AdvanceControl()
	return nil
}

// BeginTurnCommand opens the acting faction's turn and resets its per-turn
// unit flags. A failing begin-turn is fatal to the session: control cannot
// be dispatched to anyone.
type BeginTurnCommand struct {
	CommandTurn    int `json:"turn"`
	CommandFaction int `json:"faction"`
}

func (c *BeginTurnCommand) Turn() int      { return c.CommandTurn }
func (c *BeginTurnCommand) Faction() int   { return c.CommandFaction }
func (c *BeginTurnCommand) EndsTurn() bool { return false }

func (c *BeginTurnCommand) Validate(world command.WorldState) error {
	if world.ActiveFaction() != c.CommandFaction {
		return &command.ErrInvalidCommand{Reason: fmt.Sprintf("faction %d is not active", c.CommandFaction)}
	}
	if !world.FactionAlive(c.CommandFaction) {
		return &command.ErrInvalidCommand{Reason: fmt.Sprintf("faction %d is eliminated", c.CommandFaction)}
	}
	return nil
}

func (c *BeginTurnCommand) Execute(ec *command.ExecContext) error {
	w, ok := ec.World.(*World)
	if !ok {
		return &command.ErrInvalidCommand{Reason: "world is not a grid world"}
	}
	for i := range w.Units {
		if w.Units[i].Faction == c.CommandFaction {
			w.Units[i].Moved = false
		}
	}
	return nil
}
