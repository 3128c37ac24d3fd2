package petsync

import "fmt"

// streamState tracks the lifecycle of one logical stream.
//
// We assume the following transitions:
//
//	stateUninitialized -> stateSubscribing (Open)
//	stateSubscribing   -> stateSynced (first arrival processed) | stateTornDown
//	stateSynced        -> stateReconciling (arrival batch picked up) | stateTornDown
//	stateReconciling   -> stateSynced (merge and notify complete) | stateTornDown
//
// The synced/reconciling alternation is not user-visible; it encodes that
// arrival batches are processed one at a time, never interleaved.
type streamState int

const (
	stateUninitialized streamState = iota
	stateSubscribing
	stateSynced
	stateReconciling
	stateTornDown
)

func (s streamState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateSubscribing:
		return "subscribing"
	case stateSynced:
		return "synced"
	case stateReconciling:
		return "reconciling"
	case stateTornDown:
		return "torn_down"
	default:
		return "invalid"
	}
}

func (s streamState) validateTransitionTo(next streamState) error {
	switch s {
	case stateUninitialized:
		if next == stateSubscribing {
			return nil
		}
	case stateSubscribing:
		switch next {
		case stateSynced, stateTornDown:
			return nil
		}
	case stateSynced:
		switch next {
		case stateReconciling, stateTornDown:
			return nil
		}
	case stateReconciling:
		switch next {
		case stateSynced, stateTornDown:
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %v to %v", s, next)
}
