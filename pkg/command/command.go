package command

// WorldState is the mutable game data that commands read and mutate. The
// coordination core never interprets it beyond turn and faction bookkeeping.
type WorldState interface {
	// Turn returns the current turn index.
	Turn() int
	// ActiveFaction returns the index of the currently active faction.
	ActiveFaction() int
	// FactionCount returns the number of factions, surviving or not.
	FactionCount() int
	// FactionAlive reports whether the faction at index is still in the game.
	FactionAlive(index int) bool
	// Snapshot returns a deep copy suitable for later restoration.
	Snapshot() WorldState
}

// DisplaySink receives intermediate display events produced while a command
// executes. Implementations run on the control loop; commands must not
// assume they do.
type DisplaySink interface {
	// ShowCommand presents a command's source and target before its effects
	// appear: scroll its sites into view and highlight the acting entity.
	ShowCommand(cmd Command)
	// Refresh redraws the display after a mutation completes.
	Refresh()
}

// ExecContext bundles the mutable world state, an optional current-faction
// hint, and a sink for intermediate display events. Display is nil during
// silent replay.
type ExecContext struct {
	World   WorldState
	Faction int
	Display DisplaySink
}

// Command is a single recorded player action.
type Command interface {
	// Turn returns the turn index the command was recorded in.
	Turn() int
	// Faction returns the index of the acting faction.
	Faction() int
	// EndsTurn reports whether executing the command hands control to the
	// next faction.
	EndsTurn() bool
	// Validate fails with an ErrInvalidCommand if the command cannot legally
	// apply to the given world state.
	Validate(world WorldState) error
	// Execute applies the command's effect. It is only called after Validate
	// succeeded against the same world state.
	Execute(ec *ExecContext) error
}
