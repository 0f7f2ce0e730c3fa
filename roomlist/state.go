package roomlist

import (
	"github.com/matrix-org/sliding-sync-client/internal"
)

// State is how much of a list has been loaded.
type State uint32

const (
	NotLoaded State = iota
	// Restored from a snapshot, nothing received from the server yet.
	Preloaded
	// The server has answered at least once but the list window does not cover every room yet.
	PartiallyLoaded
	// Every room the list is configured to fetch has been loaded.
	FullyLoaded
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "NotLoaded"
	case Preloaded:
		return "Preloaded"
	case PartiallyLoaded:
		return "PartiallyLoaded"
	case FullyLoaded:
		return "FullyLoaded"
	}
	return "Unknown"
}

// StatePayload is delivered to state observers on every transition.
type StatePayload struct {
	State State
}

func (StatePayload) Type() string { return "state" }

// forward transitions; Invalidate is the only way back.
var transitions = map[State][]State{
	NotLoaded:       {Preloaded, PartiallyLoaded},
	Preloaded:       {PartiallyLoaded},
	PartiallyLoaded: {FullyLoaded},
}

func checkTransition(from, to State) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return internal.NewError(internal.KindIllegalTransition, nil, "%s -> %s", from, to)
}
