package pipeline

import (
	"fmt"
	"packager/internal/stage"
	"slices"
)

// State is the position of a run in the stage chain.
type State string

// Run states, in the only order a run may move through them.
// StateFailed is terminal and reachable from any non-terminal state.
const (
	StatePending    State = "pending"
	StateClean      State = "clean"
	StateCopied     State = "copied"
	StateThinned    State = "thinned"
	StateCompressed State = "compressed"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

var stateOrder = []State{StatePending, StateClean, StateCopied, StateThinned, StateCompressed, StateDone}

// stateAfter returns the state a run reaches once the named stage succeeds.
func stateAfter(name string) State {
	switch name {
	case stage.NameClean:
		return StateClean
	case stage.NameCopy:
		return StateCopied
	case stage.NameThin:
		return StateThinned
	case stage.NameCompress:
		return StateCompressed
	default:
		return ""
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// advance moves forward to next. Moving backwards, staying put or leaving a
// terminal state is an error.
func (s State) advance(next State) (State, error) {
	if s.Terminal() {
		return s, fmt.Errorf("run already %s, cannot move to %s", s, next)
	}
	if next == StateFailed {
		return next, nil
	}

	from, to := slices.Index(stateOrder, s), slices.Index(stateOrder, next)
	if to < 0 || to <= from {
		return s, fmt.Errorf("invalid transition %s -> %s", s, next)
	}
	return next, nil
}
