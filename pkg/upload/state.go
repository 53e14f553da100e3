package upload

import "fmt"

// State is a step of an upload session.
type State int

const (
	StateIdle State = iota
	StateValidatingInput
	StateLocatingLocalFile
	StateResolvingDirectories
	StateLocatingRemoteFile
	StateBuildingRequest
	StateUploading
	StateSucceeded
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StateIdle:                 "idle",
	StateValidatingInput:      "validating_input",
	StateLocatingLocalFile:    "locating_local_file",
	StateResolvingDirectories: "resolving_directories",
	StateLocatingRemoteFile:   "locating_remote_file",
	StateBuildingRequest:      "building_request",
	StateUploading:            "uploading",
	StateSucceeded:            "succeeded",
	StateFailed:               "failed",
	StateCancelled:            "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(s))
}

type transition struct {
	from State
	to   State
}

// validTransitions lists the forward path of a session. Every non-terminal
// state may additionally end in Failed or Cancelled.
var validTransitions = map[transition]bool{
	{StateIdle, StateValidatingInput}:                    true,
	{StateValidatingInput, StateLocatingLocalFile}:       true,
	{StateLocatingLocalFile, StateResolvingDirectories}:  true,
	{StateResolvingDirectories, StateLocatingRemoteFile}: true,
	{StateLocatingRemoteFile, StateBuildingRequest}:      true,
	{StateBuildingRequest, StateUploading}:               true,
	{StateUploading, StateSucceeded}:                     true,
}

// ValidateTransition checks if a state transition is valid.
func ValidateTransition(from, to State) error {
	if IsTerminal(from) {
		return fmt.Errorf("invalid state transition from terminal state %s to %s", from, to)
	}

	if to == StateFailed || to == StateCancelled {
		return nil
	}

	if !validTransitions[transition{from: from, to: to}] {
		return fmt.Errorf("invalid state transition from %s to %s", from, to)
	}

	return nil
}

// IsTerminal reports whether s ends a session.
func IsTerminal(s State) bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}
