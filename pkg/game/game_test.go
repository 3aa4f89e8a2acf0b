package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stratagem-engine/stratagem/pkg/command"
)

func twoFactionWorld() *World {
	w := NewWorld(
		Faction{Name: "red", Alive: true},
		Faction{Name: "blue", Alive: true},
	)
	w.Units = []Unit{
		{ID: 1, Faction: 0, X: 0, Y: 0},
		{ID: 2, Faction: 1, X: 5, Y: 5},
	}
	return w
}

func TestWorld_AdvanceControl(t *testing.T) {
	tests := []struct {
		name        string
		alive       []bool
		active      int
		wantActive  int
		wantTurn    int
	}{
		{
			name:       "next faction",
			alive:      []bool{true, true, true},
			active:     0,
			wantActive: 1,
			wantTurn:   0,
		},
		{
			name:       "skips eliminated faction",
			alive:      []bool{true, false, true},
			active:     0,
			wantActive: 2,
			wantTurn:   0,
		},
		{
			name:       "wraps to a new turn",
			alive:      []bool{true, true, true},
			active:     2,
			wantActive: 0,
			wantTurn:   1,
		},
		{
			name:       "wrap skips eliminated first faction",
			alive:      []bool{false, true, true},
			active:     2,
			wantActive: 1,
			wantTurn:   1,
		},
		{
			name:       "sole survivor keeps control across turns",
			alive:      []bool{false, true, false},
			active:     1,
			wantActive: 1,
			wantTurn:   1,
		},
		{
			name:       "no survivors leaves control unchanged",
			alive:      []bool{false, false},
			active:     1,
			wantActive: 1,
			wantTurn:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &World{Active: tt.active}
			for _, alive := range tt.alive {
				w.Factions = append(w.Factions, Faction{Alive: alive})
			}

			w.AdvanceControl()

			assert.Equal(t, tt.wantActive, w.Active)
			assert.Equal(t, tt.wantTurn, w.TurnIndex)
		})
	}
}

func TestWorld_SnapshotIsIndependent(t *testing.T) {
	w := twoFactionWorld()
	snapshot := w.Snapshot().(*World)

	w.Unit(1).X = 42
	w.Factions[1].Alive = false
	w.TurnIndex = 9

	assert.Equal(t, 0, snapshot.Unit(1).X)
	assert.True(t, snapshot.FactionAlive(1))
	assert.Equal(t, 0, snapshot.Turn())
}

func TestMoveCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     *MoveCommand
		wantErr string
	}{
		{
			name: "valid move",
			cmd:  &MoveCommand{CommandFaction: 0, UnitID: 1, ToX: 3, ToY: 4},
		},
		{
			name:    "inactive faction",
			cmd:     &MoveCommand{CommandFaction: 1, UnitID: 2},
			wantErr: "faction 1 is not active",
		},
		{
			name:    "unknown unit",
			cmd:     &MoveCommand{CommandFaction: 0, UnitID: 99},
			wantErr: "unit 99 does not exist",
		},
		{
			name:    "enemy unit",
			cmd:     &MoveCommand{CommandFaction: 0, UnitID: 2},
			wantErr: "unit 2 is not owned by faction 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := twoFactionWorld()
			err := tt.cmd.Validate(w)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, command.IsInvalidCommand(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			require.NoError(t, tt.cmd.Execute(&command.ExecContext{World: w, Faction: tt.cmd.Faction()}))
			unit := w.Unit(tt.cmd.UnitID)
			assert.Equal(t, tt.cmd.ToX, unit.X)
			assert.Equal(t, tt.cmd.ToY, unit.Y)
			assert.True(t, unit.Moved)
		})
	}
}

func TestEndTurnCommand(t *testing.T) {
	w := twoFactionWorld()
	cmd := &EndTurnCommand{CommandFaction: 0}

	require.NoError(t, cmd.Validate(w))
	require.NoError(t, cmd.Execute(&command.ExecContext{World: w, Faction: 0}))
	assert.Equal(t, 1, w.ActiveFaction())
	assert.Equal(t, 0, w.Turn())
	assert.True(t, cmd.EndsTurn())

	next := &EndTurnCommand{CommandFaction: 1}
	require.NoError(t, next.Validate(w))
	require.NoError(t, next.Execute(&command.ExecContext{World: w, Faction: 1}))
	assert.Equal(t, 0, w.ActiveFaction())
	assert.Equal(t, 1, w.Turn())
}

func TestBeginTurnCommand(t *testing.T) {
	w := twoFactionWorld()
	w.Unit(1).Moved = true
	w.Unit(2).Moved = true

	cmd := &BeginTurnCommand{CommandFaction: 0}
	require.NoError(t, cmd.Validate(w))
	require.NoError(t, cmd.Execute(&command.ExecContext{World: w, Faction: 0}))

	assert.False(t, w.Unit(1).Moved)
	// Only the acting faction's units are reset.
	assert.True(t, w.Unit(2).Moved)
}

func TestBeginTurnCommand_EliminatedFaction(t *testing.T) {
	w := twoFactionWorld()
	w.Factions[0].Alive = false

	cmd := &BeginTurnCommand{CommandFaction: 0}
	err := cmd.Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eliminated")
}

func TestHistoryCodecRoundTrip(t *testing.T) {
	history := command.NewHistory()
	history.Append(&BeginTurnCommand{CommandTurn: 0, CommandFaction: 0})
	history.Append(&MoveCommand{CommandTurn: 0, CommandFaction: 0, UnitID: 1, ToX: 2, ToY: 3})
	history.Append(&EndTurnCommand{CommandTurn: 0, CommandFaction: 0})

	records, err := EncodeHistory(history)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, CommandTypeBeginTurn, records[0].Type)
	assert.Equal(t, CommandTypeMove, records[1].Type)
	assert.Equal(t, CommandTypeEndTurn, records[2].Type)

	decoded, err := DecodeHistory(records)
	require.NoError(t, err)
	assert.Equal(t, history.Commands(), decoded.Commands())
}

func TestDecodeCommand_UnknownType(t *testing.T) {
	_, err := DecodeCommand(&CommandRecord{Type: "teleport"})
	assert.Error(t, err)
}
