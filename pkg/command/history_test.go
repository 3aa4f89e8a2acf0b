package command

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommand struct {
	CmdTurn    int
	CmdFaction int
	Label      string
	Ends       bool
}

func (c *fakeCommand) Turn() int      { return c.CmdTurn }
func (c *fakeCommand) Faction() int   { return c.CmdFaction }
func (c *fakeCommand) EndsTurn() bool { return c.Ends }

func (c *fakeCommand) Validate(world WorldState) error {
	return nil
}

func (c *fakeCommand) Execute(ec *ExecContext) error {
	return nil
}

func historyOf(labels ...string) *History {
	h := NewHistory()
	for _, label := range labels {
		h.Append(&fakeCommand{Label: label})
	}
	return h
}

func labels(h *History) []string {
	var out []string
	for _, cmd := range h.Commands() {
		out = append(out, cmd.(*fakeCommand).Label)
	}
	return out
}

func TestHistory_AddCommands(t *testing.T) {
	tests := []struct {
		name        string
		ours        *History
		theirs      *History
		want        []string
		wantErr     bool
		wantErrIdx  int
	}{
		{
			name:   "surplus is appended",
			ours:   historyOf("a", "b"),
			theirs: historyOf("a", "b", "c", "d"),
			want:   []string{"a", "b", "c", "d"},
		},
		{
			name:   "identical histories are a no-op",
			ours:   historyOf("a", "b"),
			theirs: historyOf("a", "b"),
			want:   []string{"a", "b"},
		},
		{
			name:   "shorter compatible history is a no-op",
			ours:   historyOf("a", "b", "c"),
			theirs: historyOf("a"),
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "empty receiver adopts everything",
			ours:   historyOf(),
			theirs: historyOf("a", "b"),
			want:   []string{"a", "b"},
		},
		{
			name:       "divergent prefix is rejected",
			ours:       historyOf("a", "b"),
			theirs:     historyOf("a", "x", "c"),
			wantErr:    true,
			wantErrIdx: 1,
			want:       []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ours.AddCommands(tt.theirs)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsIncompatibleHistory(err))
				assert.Equal(t, tt.wantErrIdx, err.(*ErrIncompatibleHistory).Index)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, labels(tt.ours))
		})
	}
}

func TestHistory_CommandsReturnsCopy(t *testing.T) {
	h := historyOf("a")
	snapshot := h.Commands()

	h.Append(&fakeCommand{Label: "b"})

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, h.Len())
}

func TestErrInvalidCommand(t *testing.T) {
	err := &ErrInvalidCommand{Reason: "unit 3 does not exist"}
	assert.True(t, IsInvalidCommand(err))
	assert.False(t, IsInvalidCommand(fmt.Errorf("other")))
	assert.Contains(t, err.Error(), "unit 3 does not exist")
}
