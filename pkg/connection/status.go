package connection

import "fmt"

// Status is the connection status of one push subscription.
//
// We assume the following transitions:
//
//	StatusConnecting
//	  -> StatusLive (subscribe acknowledged by the server)
//	  -> StatusDegraded (handshake error or timeout)
//	  -> StatusClosed (torn down before going live)
//
//	StatusLive
//	  -> StatusDegraded (socket error, heartbeat timeout)
//	  -> StatusConnecting (transport is re-dialing)
//	  -> StatusClosed (explicit teardown)
//
//	StatusDegraded
//	  -> StatusConnecting (reconnection attempt)
//	  -> StatusLive (resubscribe acknowledged)
//	  -> StatusClosed (explicit teardown)
//
// Any other transition is invalid and indicates a transport bug.
// Degraded is a recoverable condition, never a fatal error: while a
// subscription is not live, the poll fallback carries delivery.
type Status int

const (
	// StatusUnknown is intentionally the zero value, so an uninitialized
	// status is never mistaken for a healthy channel. The poll fallback
	// treats it like degraded and keeps fetching.
	StatusUnknown Status = iota
	StatusConnecting
	StatusLive
	StatusDegraded
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusConnecting:
		return "connecting"
	case StatusLive:
		return "live"
	case StatusDegraded:
		return "degraded"
	case StatusClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// ValidateTransitionTo returns an error if moving from s to next is not a
// legal subscription lifecycle transition.
func (s Status) ValidateTransitionTo(next Status) error {
	switch s {
	case StatusUnknown:
		if next == StatusConnecting || next == StatusClosed {
			return nil
		}
	case StatusConnecting:
		switch next {
		case StatusLive, StatusDegraded, StatusClosed:
			return nil
		}
	case StatusLive:
		switch next {
		case StatusDegraded, StatusConnecting, StatusClosed:
			return nil
		}
	case StatusDegraded:
		switch next {
		case StatusConnecting, StatusLive, StatusClosed:
			return nil
		}
	}

	return fmt.Errorf("invalid status transition from %v to %v", s, next)
}
