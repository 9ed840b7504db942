// SPDX-License-Identifier: MPL-2.0

package container

// State is the launcher's position in the container lifecycle.
type State int

const (
	// StateUnprepared is the initial state before any work happened.
	StateUnprepared State = iota
	// StatePreparing covers lock acquisition and image preparation.
	StatePreparing
	// StateLaunching covers resource acquisition and the run call.
	StateLaunching
	// StateStarting covers the health check wait.
	StateStarting
	// StateReady means the container is up and, if applicable, healthy.
	StateReady
	// StateStopping covers the teardown.
	StateStopping
	// StateRemoved is the terminal state of a torn down container.
	StateRemoved
	// StateFailed absorbs preparation, launch and health failures.
	StateFailed
)

var stateNames = map[State]string{
	StateUnprepared: "unprepared",
	StatePreparing:  "preparing",
	StateLaunching:  "launching",
	StateStarting:   "starting",
	StateReady:      "ready",
	StateStopping:   "stopping",
	StateRemoved:    "removed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
