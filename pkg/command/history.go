package command

import (
	"reflect"
	"sync"
)

// History is an ordered, append-only log of commands. Replay never reorders
// or mutates it; readers only advance a cursor through the Commands view.
type History struct {
	mu       sync.RWMutex
	commands []Command
}

func NewHistory() *History {
	return &History{}
}

// Len returns the number of recorded commands.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.commands)
}

// At returns the command at index.
func (h *History) At(index int) Command {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.commands[index]
}

// Commands returns a read-only snapshot of the recorded commands.
func (h *History) Commands() []Command {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Command, len(h.commands))
	copy(out, h.commands)
	return out
}

// Append records a command at the end of the history.
func (h *History) Append(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd)
}

// AddCommands appends the commands other has beyond the shared prefix.
// It fails with an ErrIncompatibleHistory if the two histories are not
// compatible prefixes of one another.
func (h *History) AddCommands(other *History) error {
	theirs := other.Commands()

	h.mu.Lock()
	defer h.mu.Unlock()

	shared := len(h.commands)
	if len(theirs) < shared {
		shared = len(theirs)
	}
	for i := 0; i < shared; i++ {
		if !reflect.DeepEqual(h.commands[i], theirs[i]) {
			return &ErrIncompatibleHistory{Index: i}
		}
	}

	if len(theirs) > len(h.commands) {
		h.commands = append(h.commands, theirs[len(h.commands):]...)
	}
	return nil
}
