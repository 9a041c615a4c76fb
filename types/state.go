package types

// State represents the TaskManager lifecycle state.
//
// States follow a single forward progression:
//
//	StateCreated → StateStarted → StateStopped
//
// A failed Start leaves the manager in StateCreated so the caller may retry once
// the coordination store is reachable again. StateStopped is terminal.
type State int

const (
	// StateCreated is the initial state before Start succeeds.
	StateCreated State = iota

	// StateStarted indicates the manager has joined its worker group and is
	// reacting to membership, partition and assignment changes.
	StateStarted

	// StateStopped indicates the manager has left the group and released its
	// partition listener.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateStarted:
		return "Started"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
