package command

import "fmt"

// ErrInvalidCommand indicates a command failed validation against the
// current world state. Always recoverable by aborting the operation that
// tried to apply it; never allowed to corrupt live state.
type ErrInvalidCommand struct {
	Reason string
}

func (e *ErrInvalidCommand) Error() string {
	return fmt.Sprintf("invalid command: %s", e.Reason)
}

func IsInvalidCommand(err error) bool {
	_, ok := err.(*ErrInvalidCommand)
	return ok
}

// ErrIncompatibleHistory indicates two histories are not compatible
// prefixes of one another and cannot be merged.
type ErrIncompatibleHistory struct {
	Index int
}

func (e *ErrIncompatibleHistory) Error() string {
	return fmt.Sprintf("histories diverge at command %d", e.Index)
}

func IsIncompatibleHistory(err error) bool {
	_, ok := err.(*ErrIncompatibleHistory)
	return ok
}
