package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_SetNotifiesListeners(t *testing.T) {
	m := NewStateMachine()

	type transition struct {
		old State
		new State
	}
	var seen []transition
	m.AddListener(func(old, new State) {
		seen = append(seen, transition{old: old, new: new})
	})

	m.Set(StateHuman)
	m.Set(StateReplay)
	// Overwriting with the same state still notifies.
	m.Set(StateReplay)

	assert.Equal(t, []transition{
		{old: StateInvalid, new: StateHuman},
		{old: StateHuman, new: StateReplay},
		{old: StateReplay, new: StateReplay},
	}, seen)
	assert.Equal(t, StateReplay, m.State())
}

func TestStateMachine_RequireState(t *testing.T) {
	m := NewStateMachine()
	m.Set(StateHuman)

	require.NoError(t, m.RequireState(StateHuman))

	err := m.RequireState(StateComputer)
	require.Error(t, err)
	assert.True(t, IsStateMismatch(err))
	mismatch := err.(*ErrStateMismatch)
	assert.Equal(t, StateHuman, mismatch.Actual)
	assert.Equal(t, []State{StateComputer}, mismatch.Expected)
}

func TestStateMachine_RequireOneOf(t *testing.T) {
	m := NewStateMachine()
	m.Set(StateReplay)

	require.NoError(t, m.RequireOneOf(StateHuman, StateReplay))
	assert.Error(t, m.RequireOneOf(StateHuman, StateComputer))
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInvalid, "Invalid"},
		{StateClosed, "Closed"},
		{StateCommand, "Command"},
		{StateComputer, "Computer"},
		{StateHuman, "Human"},
		{StateReplay, "Replay"},
		{StateSelection, "Selection"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
