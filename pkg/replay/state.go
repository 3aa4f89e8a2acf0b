package replay

// State describes what the replay step loop is doing, or has been asked to
// do. CurrentState reflects the loop; RequestedState reflects the last
// caller request. The two diverge whenever a requested transition cannot
// take effect immediately, such as requesting Pause mid-step.
type State int

const (
	StatePlay State = iota
	StatePause
	StateSkip
	StateStop
)

func (s State) String() string {
	switch s {
	case StatePlay:
		return "Play"
	case StatePause:
		return "Pause"
	case StateSkip:
		return "Skip"
	case StateStop:
		return "Stop"
	}
	return "Unknown"
}
